package cause

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// disposer is anything a scope can retire: effects and nested scopes.
type disposer interface {
	dispose()
}

// scope aggregates the effects and child scopes created while it was
// active, so one dispose call tears the whole subtree down.
type scope struct {
	rs       *ReactiveSystem
	children mapset.Set[disposer]
	cleanups []func()
	disposed bool
}

// Scope runs fn with a fresh ownership scope active. Every effect and
// nested scope created during fn registers with it; the returned dispose
// retires them all, children first, then runs the scope's own cleanups in
// reverse registration order.
func Scope(rs *ReactiveSystem, fn func()) (dispose func()) {
	rs.mu.lock()
	defer rs.mu.unlock()

	sc := &scope{rs: rs, children: mapset.NewThreadUnsafeSet[disposer]()}
	if rs.activeScope != nil {
		rs.activeScope.adopt(sc)
	}

	prev := rs.activeScope
	rs.activeScope = sc
	fn()
	rs.activeScope = prev

	return func() {
		rs.mu.lock()
		defer rs.mu.unlock()
		sc.dispose()
	}
}

func (sc *scope) adopt(d disposer) {
	sc.children.Add(d)
}

func (sc *scope) dispose() {
	if sc.disposed {
		return
	}
	sc.disposed = true
	sc.children.Each(func(d disposer) bool {
		d.dispose()
		return false
	})
	sc.children.Clear()
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
	sc.cleanups = nil
}
