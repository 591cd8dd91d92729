package cause

// StartFunc wires an external event source (timer, watcher, socket) to the
// graph. It receives the setter that external events should call and returns
// the teardown to run when the last subscriber goes away.
type StartFunc[T any] func(set func(T)) (stop func())

// RefSignal bridges a push-based external source into the pull graph. The
// start function runs on the first subscribing edge and its teardown runs
// when the last edge is trimmed; resubscribing starts it again. Until
// someone subscribes the external resource stays untouched.
type RefSignal[T any] struct {
	rs    *ReactiveSystem
	node  *node
	value T
	start StartFunc[T]
	stop  func()

	equals EqualsFunc[T]
}

func (r *RefSignal[T]) isSignalAware() {}

// Ref creates an external-source adapter holding initial.
func Ref[T any](rs *ReactiveSystem, initial T, start StartFunc[T]) *RefSignal[T] {
	r := &RefSignal[T]{
		rs:     rs,
		node:   &node{kind: kindRef},
		value:  initial,
		start:  start,
		equals: defaultEquals[T],
	}
	r.node.ref = r
	r.node.activate = r.activateSource
	r.node.deactivate = r.deactivateSource
	return r
}

// WithEquals overrides the equality function gating external updates.
func (r *RefSignal[T]) WithEquals(fn EqualsFunc[T]) *RefSignal[T] {
	r.equals = fn
	return r
}

// Value returns the current value, recording a dependency edge when read
// during a recomputation. The first such edge activates the source.
func (r *RefSignal[T]) Value() T {
	rs := r.rs
	rs.mu.lock()
	defer rs.mu.unlock()
	if sink := rs.currentSink(); sink != nil {
		rs.link(r.node, sink)
	}
	return r.value
}

// Peek returns the current value without subscribing.
func (r *RefSignal[T]) Peek() T {
	r.rs.mu.lock()
	defer r.rs.mu.unlock()
	return r.value
}

// Active reports whether the external source is currently wired up.
func (r *RefSignal[T]) Active() bool {
	r.rs.mu.lock()
	defer r.rs.mu.unlock()
	return r.stop != nil
}

// set is handed to the start function; external events land through the
// ordinary state-write path.
func (r *RefSignal[T]) set(next T) {
	rs := r.rs
	rs.mu.lock()
	defer rs.mu.unlock()
	if r.equals(r.value, next) {
		return
	}
	r.value = next
	if r.node.subs != nil {
		rs.propagate(r.node.subs, fDirty)
	}
	rs.maybeFlush()
}

func (r *RefSignal[T]) activateSource() {
	if r.stop != nil {
		return
	}
	r.stop = r.start(r.set)
}

func (r *RefSignal[T]) deactivateSource() {
	if r.stop == nil {
		return
	}
	stop := r.stop
	r.stop = nil
	stop()
}
