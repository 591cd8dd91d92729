package cause_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zeixcom/cause-effect/cause"
)

// should dispose every effect created while the scope was active
func TestScopeDisposesEffects(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	a := cause.State(rs, 1)
	b := cause.State(rs, 1)

	aRuns, bRuns := 0, 0
	dispose := cause.Scope(rs, func() {
		cause.Effect(rs, func() (cause.Cleanup, error) {
			a.Value()
			aRuns++
			return nil, nil
		})
		cause.Effect(rs, func() (cause.Cleanup, error) {
			b.Value()
			bRuns++
			return nil, nil
		})
	})
	assert.Equal(t, 1, aRuns)
	assert.Equal(t, 1, bRuns)

	dispose()
	assert.NoError(t, a.SetValue(2))
	assert.NoError(t, b.SetValue(2))
	assert.Equal(t, 1, aRuns)
	assert.Equal(t, 1, bRuns)
}

// should dispose child scopes transitively
func TestScopeNested(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 1)

	runs := 0
	dispose := cause.Scope(rs, func() {
		cause.Scope(rs, func() {
			cause.Effect(rs, func() (cause.Cleanup, error) {
				s.Value()
				runs++
				return nil, nil
			})
		})
	})
	assert.Equal(t, 1, runs)

	dispose()
	assert.NoError(t, s.SetValue(2))
	assert.Equal(t, 1, runs)
}

// should run scope cleanups in reverse registration order on dispose
func TestScopeCleanupOrder(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})

	order := []string{}
	dispose := cause.Scope(rs, func() {
		rs.OnCleanup(func() { order = append(order, "first") })
		rs.OnCleanup(func() { order = append(order, "second") })
	})
	assert.Empty(t, order)

	dispose()
	assert.Equal(t, []string{"second", "first"}, order)

	dispose()
	assert.Len(t, order, 2)
}

// should leave effects created outside the scope running
func TestScopeDoesNotAffectOutsiders(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 1)

	outsideRuns := 0
	cause.Effect(rs, func() (cause.Cleanup, error) {
		s.Value()
		outsideRuns++
		return nil, nil
	})

	dispose := cause.Scope(rs, func() {
		cause.Effect(rs, func() (cause.Cleanup, error) {
			s.Value()
			return nil, nil
		})
	})
	dispose()

	assert.NoError(t, s.SetValue(2))
	assert.Equal(t, 2, outsideRuns)
}
