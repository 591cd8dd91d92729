package cause_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zeixcom/cause-effect/cause"
)

// should run immediately and re-run on dependency changes
func TestEffectRuns(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 1)

	seen := []int{}
	cause.Effect(rs, func() (cause.Cleanup, error) {
		seen = append(seen, s.Value())
		return nil, nil
	})
	assert.Equal(t, []int{1}, seen)

	assert.NoError(t, s.SetValue(2))
	assert.NoError(t, s.SetValue(3))
	assert.Equal(t, []int{1, 2, 3}, seen)
}

// should stop re-running once disposed
func TestEffectDispose(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 1)

	runs := 0
	dispose := cause.Effect(rs, func() (cause.Cleanup, error) {
		s.Value()
		runs++
		return nil, nil
	})
	assert.Equal(t, 1, runs)

	dispose()
	assert.NoError(t, s.SetValue(2))
	assert.Equal(t, 1, runs)
}

// should run all cleanups from the previous run, most recent first, before
// the next run and on dispose
func TestEffectCleanupOrder(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 1)

	order := []string{}
	dispose := cause.Effect(rs, func() (cause.Cleanup, error) {
		v := s.Value()
		rs.OnCleanup(func() {
			order = append(order, fmt.Sprintf("first-%d", v))
		})
		return func() {
			order = append(order, fmt.Sprintf("returned-%d", v))
		}, nil
	})
	assert.Empty(t, order)

	assert.NoError(t, s.SetValue(2))
	assert.Equal(t, []string{"returned-1", "first-1"}, order)

	dispose()
	assert.Equal(t, []string{"returned-1", "first-1", "returned-2", "first-2"}, order)

	// dispose is idempotent
	dispose()
	assert.Len(t, order, 4)
}

// should report body errors through the system error callback without
// stopping other effects in the same flush
func TestEffectErrorReported(t *testing.T) {
	var reportedFrom cause.SignalAware
	var reported error
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		reportedFrom = from
		reported = err
	})
	s := cause.State(rs, 1)

	cause.Effect(rs, func() (cause.Cleanup, error) {
		if s.Value() > 1 {
			return nil, fmt.Errorf("boom")
		}
		return nil, nil
	})
	otherRuns := 0
	cause.Effect(rs, func() (cause.Cleanup, error) {
		s.Value()
		otherRuns++
		return nil, nil
	})

	assert.NoError(t, s.SetValue(2))
	assert.EqualError(t, reported, "boom")
	assert.IsType(t, &cause.EffectRunner{}, reportedFrom)
	assert.Equal(t, 2, otherRuns)
}

// should report a panicking effect body and keep the effect subscribed
func TestEffectPanicReported(t *testing.T) {
	var reported error
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		reported = err
	})
	s := cause.State(rs, 1)

	runs := 0
	cause.Effect(rs, func() (cause.Cleanup, error) {
		runs++
		if s.Value() == 2 {
			panic("boom")
		}
		return nil, nil
	})
	assert.Equal(t, 1, runs)

	assert.NoError(t, s.SetValue(2))
	assert.ErrorContains(t, reported, "boom")

	// the dependency edge survived the panic, later writes still re-run
	assert.NoError(t, s.SetValue(3))
	assert.Equal(t, 3, runs)
}

// should dispose a nested effect when the outer effect re-runs
func TestNestedEffectDisposedOnOuterRerun(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	outer := cause.State(rs, 1)
	inner := cause.State(rs, 10)

	innerRuns := 0
	cause.Effect(rs, func() (cause.Cleanup, error) {
		outer.Value()
		cause.Effect(rs, func() (cause.Cleanup, error) {
			inner.Value()
			innerRuns++
			return nil, nil
		})
		return nil, nil
	})
	assert.Equal(t, 1, innerRuns)

	assert.NoError(t, inner.SetValue(11))
	assert.Equal(t, 2, innerRuns)

	// re-running the outer effect retires the old inner and creates a new one
	assert.NoError(t, outer.SetValue(2))
	assert.Equal(t, 3, innerRuns)
	assert.NoError(t, inner.SetValue(12))
	assert.Equal(t, 4, innerRuns)
}

// should run an effect depending on two memos of the same state exactly
// once per write
func TestEffectOverSharedAncestor(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 1)
	twice := cause.Memo(rs, func(prev int) (int, error) {
		return s.Value() * 2, nil
	})
	thrice := cause.Memo(rs, func(prev int) (int, error) {
		return s.Value() * 3, nil
	})

	seen := []int{}
	cause.Effect(rs, func() (cause.Cleanup, error) {
		a, _ := twice.Value()
		b, _ := thrice.Value()
		seen = append(seen, a+b)
		return nil, nil
	})
	assert.Equal(t, []int{5}, seen)

	assert.NoError(t, s.SetValue(2))
	assert.Equal(t, []int{5, 10}, seen)
}
