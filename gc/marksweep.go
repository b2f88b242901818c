package gc

import (
	"time"
)

// ---------------------------------------------------------------------------
// Full collection
// ---------------------------------------------------------------------------

// collect runs one cycle: verify every protected object, refresh every
// unprotected one, mark from roots over the resulting snapshots, sweep, and
// recompute the threshold. Caller holds the lock.
func (c *Collector) collect(reason string) {
	c.collecting.Store(true)
	defer c.collecting.Store(false)

	start := time.Now()
	before := c.liveCount()
	violationsBefore := c.stats.violations

	handles := c.registry.Handles()
	for _, h := range handles {
		info := c.registry.Lookup(h)
		if info.zombie {
			continue
		}
		if info.wbProtected {
			c.verifyChecked(h)
		} else {
			c.refresh(h)
		}
	}

	c.markAll()
	freed, zombified := c.sweep(handles)

	survivors := c.liveCount()
	c.threshold = 2 * survivors
	c.stats.count++

	info := CycleInfo{
		Cycle:      c.stats.count,
		Reason:     reason,
		LiveBefore: before,
		LiveAfter:  survivors,
		Freed:      freed,
		Zombies:    zombified,
		Violations: c.stats.violations - violationsBefore,
		Threshold:  c.threshold,
		Duration:   time.Since(start),
	}
	c.lastCycle = info
	c.deferredCycles = append(c.deferredCycles, info)
	logger().Debugf("cycle %d (%s): live %d -> %d, freed %d, zombies %d, threshold %d",
		info.Cycle, reason, before, survivors, freed, zombified, c.threshold)
}

// ---------------------------------------------------------------------------
// Mark
// ---------------------------------------------------------------------------

func (c *Collector) markAll() {
	for _, info := range c.registry.objects {
		info.color = White
		info.pinned = false
	}
	c.markQueue.Reset()

	c.phase = phaseMark
	c.rt.MarkRoots(c)
	for _, info := range c.registry.objects {
		for _, f := range info.finalizers {
			for _, h := range f.Captures {
				if h.IsHeap() {
					c.shade(h, c.registry.Lookup(h))
				}
			}
		}
	}
	c.phase = phaseIdle

	for c.markQueue.Len() > 0 {
		h := c.markQueue.Pop()
		info := c.registry.Lookup(h)
		snap := info.snapshot
		for i := 0; i < snap.Len(); i++ {
			child := snap.At(i)
			if child == h {
				continue
			}
			c.shade(child, c.registry.Lookup(child))
		}
		info.color = Black
	}
}

func (c *Collector) shade(h Handle, info *ObjectInfo) {
	if info.color != White {
		return
	}
	info.color = Gray
	c.markQueue.Append(h)
}

// ---------------------------------------------------------------------------
// Sweep
// ---------------------------------------------------------------------------

// sweep reclaims every White object among handles. Objects allocated during
// the cycle are Black and never appear in handles.
func (c *Collector) sweep(handles []Handle) (freed, zombified int) {
	c.sweepWeak()

	for _, h := range handles {
		info := c.registry.Lookup(h)
		if info.color != White || info.zombie {
			continue
		}
		c.queueFinalizers(h, info)
		if info.teardown != nil {
			c.zombify(h, info, info.teardown.fn, info.teardown.arg)
			zombified++
			continue
		}
		c.release(h)
		freed++
	}
	return freed, zombified
}

// release drops all metadata and storage for h.
func (c *Collector) release(h Handle) {
	info := c.registry.Lookup(h)
	info.snapshot.Free()
	info.writeLog.Free()
	info.snapshot, info.writeLog = nil, nil
	info.storage = nil
	info.finalizers = nil

	hs := &c.heapStats[info.sizeClass]
	if info.zombie {
		hs.FinalSlots--
		c.stats.zombieCount--
	} else {
		hs.LiveSlots--
	}
	hs.FreedObjects++
	c.stats.freedObjects++

	c.ids.forget(h)
	c.registry.Unregister(h)
}

// liveCount is the number of registered objects that are not zombies.
func (c *Collector) liveCount() int {
	return c.registry.Len() - c.stats.zombieCount
}
