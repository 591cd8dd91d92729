package cause

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// SignalAware is implemented by every reactive primitive so error reporting
// can name the node that failed.
type SignalAware interface {
	isSignalAware()
}

// OnErrorFunc receives errors that cannot surface through a reader: effect
// body failures and writes arriving at a node that is mid-recomputation.
type OnErrorFunc func(from SignalAware, err error)

// ReactiveSystem carries the shared state of one dependency graph: the
// currently recomputing sink, the batch depth, and the pending effect queue.
// All nodes created against a system belong to it; nodes from different
// systems must not be mixed.
//
// The graph itself is single threaded. The system serializes every entry
// point through a goroutine-reentrant lock, so values may be read from any
// goroutine and task resolutions re-enter the graph safely.
type ReactiveSystem struct {
	mu reentrantMutex

	// activeSub is the node currently collecting dependencies, if any.
	activeSub    *node
	activeEffect *EffectRunner
	activeScope  *scope
	pauseStack   []*node

	batchDepth int
	flushing   bool
	queue      []*node

	// asyncRuns maps a task goroutine's id to its run, so reads made while
	// a task function executes still record dependency edges.
	asyncRuns sync.Map

	onError OnErrorFunc
}

// NewReactiveSystem creates an empty graph. onError may be nil, in which
// case effect errors are dropped.
func NewReactiveSystem(onError OnErrorFunc) *ReactiveSystem {
	return &ReactiveSystem{onError: onError}
}

func (rs *ReactiveSystem) reportError(from SignalAware, err error) {
	if rs.onError != nil {
		rs.onError(from, err)
	}
}

// StartBatch defers effect flushing until the matching EndBatch.
func (rs *ReactiveSystem) StartBatch() {
	rs.mu.lock()
	rs.batchDepth++
	rs.mu.unlock()
}

// EndBatch closes the innermost batch. Closing the outermost batch flushes
// the pending effects.
func (rs *ReactiveSystem) EndBatch() {
	rs.mu.lock()
	defer rs.mu.unlock()
	rs.batchDepth--
	if rs.batchDepth == 0 {
		rs.flush()
	}
}

// Batch runs fn with effect flushing deferred until fn returns. Batches
// nest; only the outermost one flushes. Writes inside the batch apply in
// call order, and no effect observes a partially applied batch.
func (rs *ReactiveSystem) Batch(fn func()) {
	rs.mu.lock()
	defer rs.mu.unlock()
	rs.batchDepth++
	defer func() {
		rs.batchDepth--
		if rs.batchDepth == 0 {
			rs.flush()
		}
	}()
	fn()
}

// PauseTracking stops dependency collection until ResumeTracking. Reads made
// in between do not record edges, whether they happen during a synchronous
// recompute or inside a task function.
func (rs *ReactiveSystem) PauseTracking() {
	rs.mu.lock()
	rs.pauseStack = append(rs.pauseStack, rs.activeSub)
	if rs.activeSub == nil {
		if v, ok := rs.asyncRuns.Load(goid.Get()); ok {
			v.(*asyncRun).paused++
		}
	}
	rs.activeSub = nil
	rs.mu.unlock()
}

// ResumeTracking restores the dependency collection paused by the matching
// PauseTracking.
func (rs *ReactiveSystem) ResumeTracking() {
	rs.mu.lock()
	last := len(rs.pauseStack) - 1
	restored := rs.pauseStack[last]
	rs.pauseStack = rs.pauseStack[:last]
	if restored == nil {
		if v, ok := rs.asyncRuns.Load(goid.Get()); ok {
			run := v.(*asyncRun)
			if run.paused > 0 {
				run.paused--
			}
		}
	}
	rs.activeSub = restored
	rs.mu.unlock()
}

// Untrack runs fn with dependency collection paused.
func (rs *ReactiveSystem) Untrack(fn func()) {
	rs.PauseTracking()
	defer rs.ResumeTracking()
	fn()
}

// OnCleanup registers fn to run before the active effect re-runs and when it
// is disposed, or when the active scope is disposed. Outside of both it is
// a no-op.
func (rs *ReactiveSystem) OnCleanup(fn func()) {
	rs.mu.lock()
	defer rs.mu.unlock()
	switch {
	case rs.activeEffect != nil:
		rs.activeEffect.cleanups = append(rs.activeEffect.cleanups, fn)
	case rs.activeScope != nil:
		rs.activeScope.cleanups = append(rs.activeScope.cleanups, fn)
	}
}

// currentSink resolves the node that should record a dependency edge for a
// read: the actively recomputing sink, or the task whose function is running
// on this goroutine.
func (rs *ReactiveSystem) currentSink() *node {
	if rs.activeSub != nil {
		return rs.activeSub
	}
	if v, ok := rs.asyncRuns.Load(goid.Get()); ok {
		run := v.(*asyncRun)
		if run.paused == 0 && run.alive() {
			return run.sub
		}
	}
	return nil
}

// asyncRun ties a task goroutine to its node for the duration of one task
// function call. alive reports whether this run is still the task's current
// one; reads from superseded or pause-tracked runs are not tracked.
type asyncRun struct {
	sub    *node
	alive  func() bool
	paused int
}

// flush drains the pending effect queue, re-running every effect that is
// still stale by the time it is reached. Effects may enqueue further
// effects; the loop keeps going until the queue is empty.
func (rs *ReactiveSystem) flush() {
	if rs.flushing {
		return
	}
	rs.flushing = true
	defer func() { rs.flushing = false }()

	for i := 0; i < len(rs.queue); i++ {
		n := rs.queue[i]
		n.flags &^= fQueued
		if n.flags&fDisposed != 0 || n.flags&(fCheck|fDirty) == 0 {
			continue
		}
		if err := rs.refresh(n); err != nil {
			rs.reportError(n.ref, err)
		}
	}
	rs.queue = rs.queue[:0]
}

// maybeFlush flushes unless a batch or an outer flush is already in charge.
func (rs *ReactiveSystem) maybeFlush() {
	if rs.batchDepth == 0 && !rs.flushing {
		rs.flush()
	}
}

// reentrantMutex serializes graph mutation while letting the goroutine that
// holds it re-enter: a memo recomputation reading another signal locks again
// on the same goroutine without deadlocking.
type reentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int
}

func (m *reentrantMutex) lock() {
	gid := goid.Get()
	if m.owner.Load() == gid {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(gid)
	m.depth = 1
}

func (m *reentrantMutex) unlock() {
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}
