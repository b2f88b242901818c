package gc

// WriteBarrier records that parent now references child. It must be called
// on every reference store into a heap object.
func (c *Collector) WriteBarrier(parent, child Handle) {
	if c.epsilon || !child.IsHeap() {
		return
	}
	c.locked(func() {
		c.recordWrite(parent, child)
	})
}

func (c *Collector) recordWrite(parent, child Handle) {
	info := c.registry.Lookup(parent)
	if !info.wbProtected || info.lifecycle == Clear {
		return
	}
	if info.writeLog == nil {
		info.writeLog = NewRefList(0)
	}
	info.writeLog.Append(child)
	c.stats.writeBarriers++

	if c.cfg.VerifyAfterEveryWriteBarrier && info.lifecycle != Dirty {
		info.lifecycle = Dirty
		c.pendingVerify.Append(parent)
	}
}

// WriteBarrierUnprotect permanently stops recording barriers for h. Its
// snapshot is kept and refreshed without comparison from now on.
func (c *Collector) WriteBarrierUnprotect(h Handle) {
	if c.epsilon {
		return
	}
	c.locked(func() {
		info := c.registry.Lookup(h)
		if !info.wbProtected {
			return
		}
		info.wbProtected = false
		info.writeLog.Free()
		info.writeLog = nil
		if info.lifecycle == Dirty {
			info.lifecycle = Marked
		}
		logger().Debugf("unprotected %s", h)
	})
}

// WriteBarrierRemember declares that h was mutated in ways no barrier
// described. Its history is discarded and a fresh baseline is captured at
// the next tick.
func (c *Collector) WriteBarrierRemember(h Handle) {
	if c.epsilon {
		return
	}
	c.locked(func() {
		info := c.registry.Lookup(h)
		if info.lifecycle == Clear {
			return
		}
		info.dropSnapshot()
		c.baselineQueue.Append(h)
	})
}
