package cause_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zeixcom/cause-effect/cause"
)

// should run a dependent effect exactly once, observing the final value
func TestBatchAtomicity(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 0)

	seen := []int{}
	cause.Effect(rs, func() (cause.Cleanup, error) {
		seen = append(seen, s.Value())
		return nil, nil
	})
	assert.Equal(t, []int{0}, seen)

	rs.Batch(func() {
		s.SetValue(1)
		s.SetValue(2)
		s.SetValue(3)
	})
	assert.Equal(t, []int{0, 3}, seen)
}

// should never show an effect a partially applied pair of writes
func TestBatchConsistentPair(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	first := cause.State(rs, "Jane")
	last := cause.State(rs, "Doe")

	seen := []string{}
	cause.Effect(rs, func() (cause.Cleanup, error) {
		seen = append(seen, first.Value()+" "+last.Value())
		return nil, nil
	})

	rs.Batch(func() {
		first.SetValue("John")
		last.SetValue("Smith")
	})
	assert.Equal(t, []string{"Jane Doe", "John Smith"}, seen)
}

// should flush only when the outermost batch ends
func TestBatchNesting(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 0)

	runs := 0
	cause.Effect(rs, func() (cause.Cleanup, error) {
		s.Value()
		runs++
		return nil, nil
	})
	assert.Equal(t, 1, runs)

	rs.StartBatch()
	s.SetValue(1)
	rs.StartBatch()
	s.SetValue(2)
	rs.EndBatch()
	assert.Equal(t, 1, runs)
	rs.EndBatch()
	assert.Equal(t, 2, runs)
}

// should serve intermediate values to reads inside the batch
func TestBatchReadsInside(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	s := cause.State(rs, 1)
	m := cause.Memo(rs, func(prev int) (int, error) {
		return s.Value() * 10, nil
	})

	rs.Batch(func() {
		s.SetValue(2)
		v, err := m.Value()
		assert.NoError(t, err)
		assert.Equal(t, 20, v)
		s.SetValue(3)
	})
	v, _ := m.Value()
	assert.Equal(t, 30, v)
}

// should keep flushing effects enqueued by effects running during the flush
func TestFlushDrainsChainedEffects(t *testing.T) {
	rs := cause.NewReactiveSystem(func(from cause.SignalAware, err error) {
		assert.FailNow(t, err.Error())
	})
	a := cause.State(rs, 0)
	b := cause.State(rs, 0)

	bSeen := []int{}
	cause.Effect(rs, func() (cause.Cleanup, error) {
		bSeen = append(bSeen, b.Value())
		return nil, nil
	})
	cause.Effect(rs, func() (cause.Cleanup, error) {
		v := a.Value()
		if v > 0 {
			b.SetValue(v * 100)
		}
		return nil, nil
	})

	assert.NoError(t, a.SetValue(2))
	assert.Equal(t, []int{0, 200}, bSeen)
}
