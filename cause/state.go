package cause

// StateSignal is the mutable leaf of the graph: a plain value whose writes
// mark every dependent stale.
type StateSignal[T any] struct {
	rs    *ReactiveSystem
	node  *node
	value T

	equals EqualsFunc[T]
	guard  func(T) error
}

func (s *StateSignal[T]) isSignalAware() {}

// State creates a mutable signal holding initial.
func State[T any](rs *ReactiveSystem, initial T) *StateSignal[T] {
	s := &StateSignal[T]{
		rs:     rs,
		node:   &node{kind: kindState},
		value:  initial,
		equals: defaultEquals[T],
	}
	s.node.ref = s
	return s
}

// WithEquals overrides the equality function gating writes.
func (s *StateSignal[T]) WithEquals(fn EqualsFunc[T]) *StateSignal[T] {
	s.equals = fn
	return s
}

// WithGuard installs a validation guard. Writes carrying a value the guard
// rejects fail with InvalidSignalValueError and leave the state untouched.
func (s *StateSignal[T]) WithGuard(fn func(T) error) *StateSignal[T] {
	s.guard = fn
	return s
}

// Value returns the current value. Read during a recomputation it records a
// dependency edge to the reading node.
func (s *StateSignal[T]) Value() T {
	rs := s.rs
	rs.mu.lock()
	defer rs.mu.unlock()
	if sink := rs.currentSink(); sink != nil {
		rs.link(s.node, sink)
	}
	return s.value
}

// Peek returns the current value without recording a dependency.
func (s *StateSignal[T]) Peek() T {
	s.rs.mu.lock()
	defer s.rs.mu.unlock()
	return s.value
}

// SetValue stores next and marks dependents dirty. Equal values are a no-op.
// Outside of a batch the pending effects flush before SetValue returns.
func (s *StateSignal[T]) SetValue(next T) error {
	rs := s.rs
	rs.mu.lock()
	defer rs.mu.unlock()

	if s.guard != nil {
		if err := s.guard(next); err != nil {
			return &InvalidSignalValueError{Value: next, Reason: err}
		}
	}
	if s.equals(s.value, next) {
		return nil
	}
	s.value = next

	if s.node.subs != nil {
		rs.propagate(s.node.subs, fDirty)
	}
	rs.maybeFlush()
	return nil
}

// Update applies fn to the current value and stores the result through the
// same gate as SetValue.
func (s *StateSignal[T]) Update(fn func(T) T) error {
	rs := s.rs
	rs.mu.lock()
	defer rs.mu.unlock()
	return s.SetValue(fn(s.value))
}
