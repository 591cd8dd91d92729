package cause

import (
	"context"
	"errors"
	"fmt"
)

// Cleanup undoes whatever the last effect run set up. All cleanups from the
// previous run execute, most recent first, before the next run and on
// dispose.
type Cleanup func()

// EffectRunner is the graph-side identity of one effect, handed to the
// system's OnErrorFunc when the effect's body fails.
type EffectRunner struct {
	rs   *ReactiveSystem
	node *node
	fn   func() (Cleanup, error)

	cleanups []Cleanup
}

func (e *EffectRunner) isSignalAware() {}

// Effect creates a terminal observer. fn runs immediately and re-runs
// whenever a dependency it read is confirmed changed. A Cleanup returned by
// fn (or registered through OnCleanup inside it) runs before each re-run.
// Errors from fn go to the system's OnErrorFunc; cancellation-flavored
// errors are swallowed, because abandoning superseded async work is not a
// failure. The returned dispose runs the cleanups, detaches every source
// edge and permanently retires the effect.
func Effect(rs *ReactiveSystem, fn func() (Cleanup, error)) (dispose func()) {
	rs.mu.lock()
	defer rs.mu.unlock()

	e := &EffectRunner{rs: rs, node: &node{kind: kindEffect}, fn: fn}
	e.node.ref = e
	e.node.update = e.rerun

	if rs.activeEffect != nil {
		// an effect created inside another effect lives and dies with the
		// run that created it
		outer := rs.activeEffect
		outer.cleanups = append(outer.cleanups, e.dispose)
	} else if rs.activeScope != nil {
		rs.activeScope.adopt(e)
	}

	e.rerun()
	return func() {
		rs.mu.lock()
		defer rs.mu.unlock()
		e.dispose()
	}
}

// rerun executes the effect body with this node collecting dependencies.
// The tracking context is restored in a defer so a panicking body cannot
// leave the node flagged running or corrupt the active sink; the panic is
// reported like any other body error.
func (e *EffectRunner) rerun() bool {
	rs := e.rs
	e.runCleanups()

	var cleanup Cleanup
	var err error
	func() {
		prevSub := rs.activeSub
		prevEffect := rs.activeEffect
		rs.activeSub = e.node
		rs.activeEffect = e
		rs.startTracking(e.node)
		defer func() {
			rs.activeSub = prevSub
			rs.activeEffect = prevEffect
			rs.endTracking(e.node)
			if r := recover(); r != nil {
				err = fmt.Errorf("cause: effect panicked: %v", r)
			}
		}()
		cleanup, err = e.fn()
	}()

	if cleanup != nil {
		e.cleanups = append(e.cleanups, cleanup)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		rs.reportError(e, err)
	}
	return false
}

func (e *EffectRunner) runCleanups() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
	e.cleanups = e.cleanups[:0]
}

// dispose retires the effect: cleanups run one final time, the node is
// marked inert and every source edge is detached.
func (e *EffectRunner) dispose() {
	if e.node.flags&fDisposed != 0 {
		return
	}
	e.runCleanups()
	e.node.flags |= fDisposed
	if e.node.deps != nil {
		e.rs.unlinkAll(e.node.deps)
		e.node.deps = nil
		e.node.depsTail = nil
	}
}
