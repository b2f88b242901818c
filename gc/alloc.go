package gc

// ---------------------------------------------------------------------------
// Size classes
// ---------------------------------------------------------------------------

var sizeClasses = [...]int{40, 80, 160, 320, 640}

const numSizeClasses = len(sizeClasses)

// MaxObjectSize is the largest allocatable object size.
const MaxObjectSize = 640

// SizeClasses returns the slot size ladder.
func SizeClasses() []int {
	out := make([]int, numSizeClasses)
	copy(out, sizeClasses[:])
	return out
}

// SizeClassIndex returns the index of the smallest class that fits size, or
// -1 when size is too large.
func SizeClassIndex(size int) int {
	for i, s := range sizeClasses {
		if size <= s {
			return i
		}
	}
	return -1
}

// SizeAllocatable reports whether an object of size bytes can be allocated.
func (c *Collector) SizeAllocatable(size int) bool {
	return SizeClassIndex(size) >= 0
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Alloc creates a new object of at least size bytes and returns its handle.
// The object starts Black so it survives any cycle triggered before the
// runtime finishes initialising it; its baseline snapshot is captured at the
// next scheduler tick.
func (c *Collector) Alloc(size int, wbProtected bool) Handle {
	var h Handle
	c.withTick(func() {
		h = c.newObject(size, wbProtected)
	})
	return h
}

func (c *Collector) newObject(size int, wbProtected bool) Handle {
	if !c.epsilon {
		c.tick()
	}

	class := SizeClassIndex(size)
	if class < 0 {
		fatalf(InternalInvariantBroken, "size too big: %d bytes (max %d)", size, MaxObjectSize)
	}
	slot := sizeClasses[class]

	h := c.registry.reserve()
	info := c.registry.Register(h, slot, wbProtected)
	info.sizeClass = class
	info.storage = make([]byte, slot)

	hs := &c.heapStats[class]
	hs.LiveSlots++
	hs.AllocatedObjects++
	c.stats.allocatedObjects++

	if !c.epsilon {
		c.baselineQueue.Append(h)
	}
	return h
}

// SlotSize returns the slot size h was allocated in.
func (c *Collector) SlotSize(h Handle) int {
	var n int
	c.locked(func() {
		n = c.registry.Lookup(h).allocSize
	})
	return n
}

// Storage returns the raw slot backing h. The collector never interprets it.
func (c *Collector) Storage(h Handle) []byte {
	var b []byte
	c.locked(func() {
		b = c.registry.Lookup(h).storage
	})
	return b
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// tick drains deferred verification work and collects when due. Caller holds
// the lock.
func (c *Collector) tick() {
	if c.collecting.Load() {
		return
	}
	c.drainQueues()

	switch {
	case c.forceCollect:
		c.forceCollect = false
		c.collect("request")
	case c.enabled && c.stress:
		c.collect("stress")
	case c.enabled && c.liveCount() >= c.threshold:
		c.collect("threshold")
	}
}

// drainQueues verifies every object dirtied by an eager barrier and
// captures every pending baseline.
func (c *Collector) drainQueues() {
	for c.pendingVerify.Len() > 0 {
		h := c.pendingVerify.Pop()
		if info, ok := c.registry.Get(h); !ok || info.zombie || info.lifecycle != Dirty {
			continue
		}
		c.verifyChecked(h)
	}

	for c.baselineQueue.Len() > 0 {
		h := c.baselineQueue.Pop()
		info, ok := c.registry.Get(h)
		if !ok || info.zombie || info.lifecycle != Clear {
			continue
		}
		c.verify(h)
	}
}
