package cause

type nodeKind uint8

const (
	kindState nodeKind = iota
	kindMemo
	kindTask
	kindEffect
	kindRef
)

func (k nodeKind) String() string {
	switch k {
	case kindState:
		return "state"
	case kindMemo:
		return "memo"
	case kindTask:
		return "task"
	case kindEffect:
		return "effect"
	case kindRef:
		return "ref"
	default:
		return "unknown"
	}
}

type nodeFlags uint8

const (
	fCheck nodeFlags = 1 << iota
	fDirty
	fRunning
	fQueued
	fDisposed
)

// node is the type-erased unit of the dependency graph. The typed wrappers
// (StateSignal, MemoSignal, ...) install the kind-specific behavior through
// the update/abort/activate/deactivate hooks.
type node struct {
	kind  nodeKind
	flags nodeFlags

	// incoming edges: the sources this node read during its last recompute
	deps, depsTail *edge
	// outgoing edges: the sinks that read this node
	subs, subsTail *edge

	// update recomputes the node's value and reports whether it changed.
	update func() bool
	// abort cancels in-flight asynchronous work and reports whether any was
	// live. Only set on task nodes.
	abort func() bool
	// activate/deactivate run when the node gains its first subscriber and
	// loses its last one. Only set on ref nodes.
	activate   func()
	deactivate func()

	// ref points back at the typed wrapper, for error reporting.
	ref SignalAware
}

// edge is a directed link from a dependency (source) to a subscriber (sink).
// It is an intrusive member of two lists: the dep's subs list (prevSub,
// nextSub) and the sub's deps list (nextDep).
type edge struct {
	dep *node
	sub *node

	prevSub *edge
	nextSub *edge
	nextDep *edge
}

// link records that sub read dep during its current recomputation. The tail
// fast paths keep stable dependency lists allocation free: a repeated read of
// the most recent dep is a no-op, and when the next expected edge already
// points at dep the edge is reused in place.
func (rs *ReactiveSystem) link(dep, sub *node) {
	if dep == sub {
		// a node reading its own value would propagate to itself forever
		rs.reportError(sub.ref, &CircularDependencyError{Kind: sub.kind.String()})
		return
	}

	current := sub.depsTail
	if current != nil && current.dep == dep {
		return
	}

	var next *edge
	if current != nil {
		next = current.nextDep
	} else {
		next = sub.deps
	}
	if next != nil && next.dep == dep {
		sub.depsTail = next
		return
	}

	e := &edge{dep: dep, sub: sub, nextDep: next}
	if current == nil {
		sub.deps = e
	} else {
		current.nextDep = e
	}

	first := dep.subs == nil
	if first {
		dep.subs = e
	} else {
		tail := dep.subsTail
		e.prevSub = tail
		tail.nextSub = e
	}

	sub.depsTail = e
	dep.subsTail = e

	if first && dep.activate != nil {
		dep.activate()
	}
}

// startTracking prepares sub for a fresh recomputation: the tail resets to
// the head of the source list so link rebuilds the edge set in place.
func (rs *ReactiveSystem) startTracking(sub *node) {
	sub.depsTail = nil
	sub.flags = sub.flags&^(fCheck|fDirty) | fRunning
}

// endTracking trims the edges for sources that were not re-read this pass.
func (rs *ReactiveSystem) endTracking(sub *node) {
	tail := sub.depsTail
	if tail != nil {
		if tail.nextDep != nil {
			rs.unlinkAll(tail.nextDep)
			tail.nextDep = nil
		}
	} else if sub.deps != nil {
		rs.unlinkAll(sub.deps)
		sub.deps = nil
	}
	sub.flags &^= fRunning
}

// unlinkAll detaches a chain of edges from their dependencies. A dependency
// that drops to zero subscribers deactivates (ref teardown) and, if derived,
// releases its own upstream edges so inactive chains fully unwind.
func (rs *ReactiveSystem) unlinkAll(e *edge) {
	for e != nil {
		dep := e.dep
		next := e.nextDep

		if e.nextSub != nil {
			e.nextSub.prevSub = e.prevSub
		} else {
			dep.subsTail = e.prevSub
		}
		if e.prevSub != nil {
			e.prevSub.nextSub = e.nextSub
		} else {
			dep.subs = e.nextSub
		}

		if dep.subs == nil {
			if dep.update != nil {
				// nobody is left to observe the result, so in-flight
				// asynchronous work is wasted; recompute from scratch if
				// anything subscribes again
				if dep.abort != nil {
					dep.abort()
				}
				dep.flags |= fDirty
				if dep.deps != nil {
					rs.unlinkAll(dep.deps)
					dep.deps = nil
					dep.depsTail = nil
				}
			}
			if dep.deactivate != nil {
				dep.deactivate()
			}
		}

		e = next
	}
}

// propagate pushes a source change to the subscribers of e's list. Non-effect
// sinks are upgraded to at most the target severity and their own sinks are
// marked CHECK, never DIRTY: a downstream node must verify an upstream change
// actually produced a new value before recomputing. Effect sinks are flagged
// and queued for the next flush.
func (rs *ReactiveSystem) propagate(e *edge, target nodeFlags) {
	for ; e != nil; e = e.nextSub {
		sub := e.sub

		if sub.flags&fRunning != 0 {
			// a write arrived at a node that is currently recomputing:
			// it reads what it writes
			rs.reportError(sub.ref, &CircularDependencyError{Kind: sub.kind.String()})
			continue
		}

		if sub.kind == kindEffect {
			if sub.flags&fDisposed != 0 {
				continue
			}
			if target == fDirty {
				sub.flags = sub.flags&^fCheck | fDirty
			} else if sub.flags&(fCheck|fDirty) == 0 {
				sub.flags |= fCheck
			}
			if sub.flags&fQueued == 0 {
				sub.flags |= fQueued
				rs.queue = append(rs.queue, sub)
			}
			continue
		}

		// skip if already at least as severe
		if target == fCheck && sub.flags&(fCheck|fDirty) != 0 {
			continue
		}
		if target == fDirty && sub.flags&fDirty != 0 {
			continue
		}

		upgraded := target
		if sub.abort != nil && sub.abort() {
			// stale in-flight work must not win the race, and having
			// discarded it the node must re-run unconditionally
			upgraded = fDirty
		}
		if upgraded == fDirty {
			sub.flags = sub.flags&^fCheck | fDirty
		} else {
			sub.flags |= fCheck
		}

		if sub.subs != nil {
			rs.propagate(sub.subs, fCheck)
		}
	}
}

// shallowPropagate upgrades CHECK subscribers to DIRTY once their dependency
// is confirmed to have produced a different value. This is what makes diamond
// graphs converge without redundant recomputation.
func (rs *ReactiveSystem) shallowPropagate(e *edge) {
	for ; e != nil; e = e.nextSub {
		sub := e.sub
		if sub.flags&fCheck != 0 && sub.flags&fDirty == 0 {
			sub.flags = sub.flags&^fCheck | fDirty
		}
	}
}

// refresh is the pull half of the algorithm, run on every read. A CHECK node
// walks upstream until its own flag escalates to DIRTY or every source turns
// out clean; a DIRTY node recomputes; a RUNNING node being read is a cycle.
func (rs *ReactiveSystem) refresh(n *node) error {
	if n.flags&fRunning != 0 {
		return &CircularDependencyError{Kind: n.kind.String()}
	}

	if n.flags&fCheck != 0 {
		for e := n.deps; e != nil; e = e.nextDep {
			dep := e.dep
			if dep.flags&(fCheck|fDirty) != 0 {
				if err := rs.refresh(dep); err != nil {
					return err
				}
			}
			if n.flags&fDirty != 0 {
				break
			}
		}
		n.flags &^= fCheck
	}

	if n.flags&fDirty != 0 {
		if n.update() && n.subs != nil {
			rs.shallowPropagate(n.subs)
		}
	}

	return nil
}
