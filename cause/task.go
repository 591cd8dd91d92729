package cause

import (
	"context"
	"errors"
	"fmt"

	"github.com/petermattis/goid"
)

// TaskSignal is a cancellable asynchronous derivation. Recomputing starts
// the task function on its own goroutine and immediately serves the previous
// value; when the function returns, the result lands through the ordinary
// propagate path unless a newer run superseded it first.
type TaskSignal[T any] struct {
	rs    *ReactiveSystem
	node  *node
	fn    func(ctx context.Context, prev T) (T, error)
	value T
	err   error
	set   bool

	// ctx/cancel belong to the current in-flight run, nil when idle
	ctx    context.Context
	cancel context.CancelFunc

	equals EqualsFunc[T]
	guard  func(T) error
}

func (t *TaskSignal[T]) isSignalAware() {}

// Task creates an asynchronous derived signal computed by fn. Reads made by
// fn record dependency edges for this task; when any of them changes, the
// in-flight run is cancelled through ctx before a new one starts, so a stale
// result can never win the race.
func Task[T any](rs *ReactiveSystem, fn func(ctx context.Context, prev T) (T, error)) *TaskSignal[T] {
	t := &TaskSignal[T]{
		rs:     rs,
		node:   &node{kind: kindTask, flags: fDirty},
		fn:     fn,
		equals: defaultEquals[T],
	}
	t.node.ref = t
	t.node.update = t.startRun
	t.node.abort = t.abortInflight
	return t
}

// WithValue seeds the value served until the first run resolves.
func (t *TaskSignal[T]) WithValue(initial T) *TaskSignal[T] {
	t.value = initial
	t.set = true
	return t
}

// WithEquals overrides the equality function gating downstream propagation.
func (t *TaskSignal[T]) WithEquals(fn EqualsFunc[T]) *TaskSignal[T] {
	t.equals = fn
	return t
}

// WithGuard installs a validation guard on resolved results.
func (t *TaskSignal[T]) WithGuard(fn func(T) error) *TaskSignal[T] {
	t.guard = fn
	return t
}

// Value returns the most recently resolved value, starting a run first if a
// dependency may have changed. While a run is outstanding readers get the
// previous value; before any run has resolved they get UnsetSignalValueError
// unless the task was seeded with WithValue. A failed run's error is
// returned to every reader until a later run succeeds.
func (t *TaskSignal[T]) Value() (T, error) {
	rs := t.rs
	rs.mu.lock()
	defer rs.mu.unlock()

	if t.node.flags&(fCheck|fDirty) != 0 {
		if err := rs.refresh(t.node); err != nil {
			var zero T
			return zero, err
		}
	}
	if sink := rs.currentSink(); sink != nil {
		rs.link(t.node, sink)
	}
	if t.err != nil {
		var zero T
		return zero, t.err
	}
	if !t.set {
		var zero T
		return zero, &UnsetSignalValueError{Kind: kindTask.String()}
	}
	return t.value, nil
}

// IsPending reports whether a run is currently in flight.
func (t *TaskSignal[T]) IsPending() bool {
	t.rs.mu.lock()
	defer t.rs.mu.unlock()
	return t.cancel != nil
}

// Abort cancels any in-flight run and immediately retries against the
// current inputs. The task never stays stalled after an abort.
func (t *TaskSignal[T]) Abort() {
	rs := t.rs
	rs.mu.lock()
	defer rs.mu.unlock()
	t.abortInflight()
	t.node.flags = t.node.flags&^fCheck | fDirty
	if err := rs.refresh(t.node); err != nil {
		rs.reportError(t, err)
	}
}

// abortInflight cancels the current run, if any, and reports whether one
// was live. Installed as the node's abort hook so propagation discards
// superseded work before marking the task dirty.
func (t *TaskSignal[T]) abortInflight() bool {
	if t.cancel == nil {
		return false
	}
	t.cancel()
	t.cancel = nil
	t.ctx = nil
	return true
}

// startRun is the task's recompute routine: discard any previous run, reset
// the edge tail so this run's reads rebuild the dependency set, and launch
// the function. The node is clean from here on; the value only changes when
// the run resolves.
func (t *TaskSignal[T]) startRun() bool {
	t.abortInflight()
	t.node.depsTail = nil
	t.node.flags &^= fCheck | fDirty

	ctx, cancel := context.WithCancel(context.Background())
	t.ctx = ctx
	t.cancel = cancel
	prev := t.value
	go t.run(ctx, prev)
	return false
}

func (t *TaskSignal[T]) run(ctx context.Context, prev T) {
	rs := t.rs
	gid := goid.Get()
	run := &asyncRun{
		sub:   t.node,
		alive: func() bool { return t.ctx == ctx },
	}
	rs.asyncRuns.Store(gid, run)
	defer rs.asyncRuns.Delete(gid)

	// a panicking fn must not kill the process; it resolves as an error
	var next T
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cause: task panicked: %v", r)
			}
		}()
		next, err = t.fn(ctx, prev)
	}()
	t.resolve(ctx, next, err)
}

// resolve applies one run's outcome. Superseded and cancelled runs are
// discarded silently; anything else lands through the equality gate and
// propagates like a state write.
func (t *TaskSignal[T]) resolve(ctx context.Context, next T, err error) {
	rs := t.rs
	rs.mu.lock()
	defer rs.mu.unlock()

	if ctx != t.ctx {
		// a newer run superseded this one
		return
	}
	t.cancel = nil
	t.ctx = nil
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		// abandoned on purpose, never surfaced
		return
	}

	// drop edges to sources this run did not read
	rs.endTracking(t.node)

	changed := true
	if err == nil && t.guard != nil {
		if gerr := t.guard(next); gerr != nil {
			err = &InvalidSignalValueError{Value: next, Reason: gerr}
		}
	}
	switch {
	case err != nil:
		t.err = err
	case t.err == nil && t.set && t.equals(t.value, next):
		changed = false
	default:
		t.value = next
		t.err = nil
		t.set = true
	}

	if changed && t.node.subs != nil {
		rs.propagate(t.node.subs, fDirty)
	}
	rs.maybeFlush()
}
