package cause

import "fmt"

// MemoSignal is a cached synchronous derivation. The computation never runs
// until the memo is first read, and after that only when a dependency is
// confirmed to have changed.
type MemoSignal[T any] struct {
	rs    *ReactiveSystem
	node  *node
	fn    func(prev T) (T, error)
	value T
	err   error
	set   bool

	equals EqualsFunc[T]
	guard  func(T) error
}

func (m *MemoSignal[T]) isSignalAware() {}

// Memo creates a derived signal computed by fn. fn receives the previously
// cached value (the zero value, or the WithValue seed, on the first run) and
// its reads record this memo's dependency edges.
func Memo[T any](rs *ReactiveSystem, fn func(prev T) (T, error)) *MemoSignal[T] {
	m := &MemoSignal[T]{
		rs:     rs,
		node:   &node{kind: kindMemo, flags: fDirty},
		fn:     fn,
		equals: defaultEquals[T],
	}
	m.node.ref = m
	m.node.update = m.recompute
	return m
}

// WithValue seeds the previous-value argument for the first computation.
func (m *MemoSignal[T]) WithValue(initial T) *MemoSignal[T] {
	m.value = initial
	return m
}

// WithEquals overrides the equality function gating downstream propagation.
func (m *MemoSignal[T]) WithEquals(fn EqualsFunc[T]) *MemoSignal[T] {
	m.equals = fn
	return m
}

// WithGuard installs a validation guard on computed results.
func (m *MemoSignal[T]) WithGuard(fn func(T) error) *MemoSignal[T] {
	m.guard = fn
	return m
}

// Value returns the cached value, recomputing first if any dependency may
// have changed. A computation error is cached and returned to every reader
// until a later recomputation succeeds.
func (m *MemoSignal[T]) Value() (T, error) {
	rs := m.rs
	rs.mu.lock()
	defer rs.mu.unlock()

	if m.node.flags&(fCheck|fDirty|fRunning) != 0 {
		if err := rs.refresh(m.node); err != nil {
			var zero T
			return zero, err
		}
	}
	if sink := rs.currentSink(); sink != nil {
		rs.link(m.node, sink)
	}
	if m.err != nil {
		var zero T
		return zero, m.err
	}
	return m.value, nil
}

// Peek returns the value without recording a dependency. It still
// recomputes when stale.
func (m *MemoSignal[T]) Peek() (T, error) {
	rs := m.rs
	rs.mu.lock()
	defer rs.mu.unlock()
	if m.node.flags&(fCheck|fDirty|fRunning) != 0 {
		if err := rs.refresh(m.node); err != nil {
			var zero T
			return zero, err
		}
	}
	if m.err != nil {
		var zero T
		return zero, m.err
	}
	return m.value, nil
}

// recompute rebuilds the edge set while running fn and applies the equality
// gate. Reports whether the cached value (or error state) changed. The
// tracking context is restored in a defer so a panicking fn cannot leave the
// node flagged running or corrupt the active sink; the panic itself lands in
// the node's cached error like any other computation failure.
func (m *MemoSignal[T]) recompute() bool {
	rs := m.rs
	var next T
	var err error
	func() {
		prevSub := rs.activeSub
		rs.activeSub = m.node
		rs.startTracking(m.node)
		defer func() {
			rs.activeSub = prevSub
			rs.endTracking(m.node)
			if r := recover(); r != nil {
				err = fmt.Errorf("cause: memo panicked: %v", r)
			}
		}()
		next, err = m.fn(m.value)
	}()

	if err == nil && m.guard != nil {
		if gerr := m.guard(next); gerr != nil {
			err = &InvalidSignalValueError{Value: next, Reason: gerr}
		}
	}
	if err != nil {
		m.err = err
		return true
	}
	if m.err == nil && m.set && m.equals(m.value, next) {
		return false
	}
	m.value = next
	m.err = nil
	m.set = true
	return true
}
