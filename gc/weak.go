package gc

// ---------------------------------------------------------------------------
// Weak slots
// ---------------------------------------------------------------------------

// MarkWeak registers slot as a weak reference owned by the object currently
// being traced. The referent is not kept alive; if it dies the slot is set
// to Nil at sweep. Slots registered during root enumeration have no owner
// and live until removed.
func (c *Collector) MarkWeak(slot *Handle) {
	if slot == nil {
		return
	}
	switch c.phase {
	case phaseCollect:
		c.weak[slot] = c.tracingOwner
	case phaseMark:
		c.weak[slot] = Nil
	default:
		if c.epsilon {
			return
		}
		fatalf(InternalInvariantBroken, "weak mark outside of a trace")
	}
}

// RemoveWeak unregisters slot. parent must be the slot's owner.
func (c *Collector) RemoveWeak(parent Handle, slot *Handle) {
	c.locked(func() {
		owner, ok := c.weak[slot]
		if !ok {
			return
		}
		if owner != parent {
			fatalf(InternalInvariantBroken, "weak slot owned by %s removed by %s", owner, parent)
		}
		delete(c.weak, slot)
	})
}

// WeakSlots returns the number of registered weak slots.
func (c *Collector) WeakSlots() int {
	var n int
	c.locked(func() { n = len(c.weak) })
	return n
}

// sweepWeak runs before any object is released: slots owned by dying
// objects are forgotten, and slots whose referent is dying are cleared.
func (c *Collector) sweepWeak() {
	for slot, owner := range c.weak {
		if owner != Nil {
			oi, ok := c.registry.Get(owner)
			if !ok || oi.color == White {
				delete(c.weak, slot)
				continue
			}
		}
		target := *slot
		if !target.IsHeap() {
			continue
		}
		ti, ok := c.registry.Get(target)
		if ok && ti.color != White && !ti.zombie {
			continue
		}
		*slot = Nil
		delete(c.weak, slot)
		c.stats.weakSlotsCleared++
	}
}
