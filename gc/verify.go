package gc

import (
	"fmt"
	"io"
	"strings"
)

const maxBootstrapReferences = 8

// ---------------------------------------------------------------------------
// Tracing in collect mode
// ---------------------------------------------------------------------------

// traceChildren asks the runtime for obj's outgoing references, collecting
// them instead of marking.
func (c *Collector) traceChildren(obj Handle) *RefList {
	info := c.registry.Lookup(obj)
	list := NewRefList(info.snapshot.Len() + info.writeLog.Len())

	prevPhase, prevBuf, prevOwner := c.phase, c.traceBuf, c.tracingOwner
	c.phase, c.traceBuf, c.tracingOwner = phaseCollect, list, obj
	defer func() {
		c.phase, c.traceBuf, c.tracingOwner = prevPhase, prevBuf, prevOwner
	}()

	c.rt.MarkChildren(c, obj)
	return list
}

// TraceChildren returns obj's current outgoing references as reported by the
// runtime. It does not touch obj's snapshot.
func (c *Collector) TraceChildren(obj Handle) []Handle {
	var out []Handle
	c.locked(func() {
		out = c.traceChildren(obj).Slice()
	})
	return out
}

// Mark is called by the runtime from inside MarkChildren or MarkRoots.
func (c *Collector) Mark(h Handle) {
	c.mark(h, false)
}

// MarkAndPin marks h and records that it must never move. The collector is
// non-moving, so pinning is only reported.
func (c *Collector) MarkAndPin(h Handle) {
	c.mark(h, true)
}

func (c *Collector) mark(h Handle, pin bool) {
	if !h.IsHeap() {
		return
	}
	switch c.phase {
	case phaseCollect:
		info := c.registry.Lookup(h)
		if pin {
			info.pinned = true
		}
		c.traceBuf.Append(h)
	case phaseMark:
		info := c.registry.Lookup(h)
		if pin {
			info.pinned = true
		}
		c.shade(h, info)
	default:
		if c.epsilon {
			return
		}
		fatalf(InternalInvariantBroken, "mark of %s outside of a trace", h)
	}
}

// AllowBootstrapReference exempts h from missed-barrier reports. It exists
// for self-referential singletons created before tracing was available.
func (c *Collector) AllowBootstrapReference(h Handle) {
	c.locked(func() {
		for _, b := range c.bootstrap {
			if b == h {
				return
			}
		}
		if len(c.bootstrap) >= maxBootstrapReferences {
			fatalf(ResourceExhaustion, "bootstrap allow-list is full (%d entries)", maxBootstrapReferences)
		}
		c.bootstrap = append(c.bootstrap, h)
	})
}

func (c *Collector) isBootstrap(h Handle) bool {
	for _, b := range c.bootstrap {
		if b == h {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// verify recomputes obj's children, reports any reference that is neither
// in the previous snapshot nor declared through a barrier, and installs the
// recomputed list as the new snapshot. A Clear object has no baseline, so
// its first capture skips the comparison.
func (c *Collector) verify(obj Handle) []Handle {
	info := c.registry.Lookup(obj)
	current := c.traceChildren(obj)

	var missed []Handle
	if info.lifecycle != Clear {
		c.stats.verifiedObjects++
		cursor := 0
		for i := 0; i < current.Len(); i++ {
			r := current.At(i)
			if info.snapshot.findRotating(r, &cursor) {
				continue
			}
			if info.writeLog.Contains(r) || r == obj || c.isBootstrap(r) {
				continue
			}
			if containsHandle(missed, r) {
				continue
			}
			missed = append(missed, r)
		}
		if len(missed) > 0 {
			c.reportMissed(obj, info, current, missed)
		}
		if c.cfg.WarnOnUselessWriteBarrier {
			c.checkUseless(obj, info, current)
		}
	}

	info.snapshot.Free()
	info.writeLog.Free()
	info.snapshot = current
	info.writeLog = nil
	info.lifecycle = Marked
	return missed
}

// verifyChecked verifies obj and aborts on a miss when barriers are verified
// eagerly.
func (c *Collector) verifyChecked(obj Handle) []Handle {
	missed := c.verify(obj)
	if len(missed) > 0 && c.cfg.VerifyAfterEveryWriteBarrier {
		fatalf(ProtocolViolation, "%d missed write barrier(s) on %s", len(missed), obj)
	}
	return missed
}

// refresh re-captures an unprotected object's snapshot with no comparison.
func (c *Collector) refresh(obj Handle) {
	info := c.registry.Lookup(obj)
	current := c.traceChildren(obj)
	info.snapshot.Free()
	info.writeLog.Free()
	info.snapshot = current
	info.writeLog = nil
	info.lifecycle = Marked
}

// Verify runs a verification pass over obj now and returns the missed
// references it found. In eager mode a miss is fatal.
func (c *Collector) Verify(obj Handle) []Handle {
	var missed []Handle
	c.locked(func() {
		missed = c.verifyChecked(obj)
	})
	return missed
}

func (c *Collector) reportMissed(obj Handle, info *ObjectInfo, current *RefList, missed []Handle) {
	c.stats.violations++
	c.stats.missedReferences += uint64(len(missed))

	var b strings.Builder
	fmt.Fprintf(&b, "WBCHECK ERROR: missed write barrier detected\n")
	fmt.Fprintf(&b, "  parent: %s (size %d, %s)\n", obj, info.allocSize, info.lifecycle)
	fmt.Fprintf(&b, "  references: snapshot=%d write_log=%d current=%d missed=%d\n",
		info.snapshot.Len(), info.writeLog.Len(), current.Len(), len(missed))
	for _, m := range missed {
		fmt.Fprintf(&b, "  missed reference to %s\n", m)
	}
	_, _ = io.WriteString(c.diag, b.String())
	logger().Errorf("missed %d write barrier(s) on %s", len(missed), obj)
}

func (c *Collector) checkUseless(obj Handle, info *ObjectInfo, current *RefList) {
	for i := 0; i < info.writeLog.Len(); i++ {
		w := info.writeLog.At(i)
		if current.Contains(w) {
			continue
		}
		c.stats.uselessWriteBarriers++
		logger().Warningf("useless write barrier on %s: %s is not referenced", obj, w)
	}
}

func containsHandle(list []Handle, h Handle) bool {
	for _, v := range list {
		if v == h {
			return true
		}
	}
	return false
}
