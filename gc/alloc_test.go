package gc

import "testing"

func TestSizeClassRounding(t *testing.T) {
	tests := []struct {
		size, class, slot int
	}{
		{0, 0, 40},
		{1, 0, 40},
		{40, 0, 40},
		{41, 1, 80},
		{160, 2, 160},
		{161, 3, 320},
		{640, 4, 640},
		{641, -1, 0},
	}
	c, _, _ := newTestCollector(t, DefaultConfig())
	for _, tt := range tests {
		if got := SizeClassIndex(tt.size); got != tt.class {
			t.Errorf("SizeClassIndex(%d) = %d, want %d", tt.size, got, tt.class)
		}
		if got := c.SizeAllocatable(tt.size); got != (tt.class >= 0) {
			t.Errorf("SizeAllocatable(%d) = %t", tt.size, got)
		}
		if tt.class < 0 {
			continue
		}
		h := c.Alloc(tt.size, false)
		if got := c.SlotSize(h); got != tt.slot {
			t.Errorf("SlotSize after Alloc(%d) = %d, want %d", tt.size, got, tt.slot)
		}
		if got := len(c.Storage(h)); got != tt.slot {
			t.Errorf("storage for Alloc(%d) is %d bytes", tt.size, got)
		}
	}
}

func TestAllocTooBigIsFatal(t *testing.T) {
	c, _, _ := newTestCollector(t, DefaultConfig())
	mustFatal(t, InternalInvariantBroken, func() {
		c.Alloc(MaxObjectSize+1, true)
	})
	if n, _ := c.StatKey(StatTotalAllocatedObjects); n != 0 {
		t.Errorf("total_allocated_objects = %d after failed alloc", n)
	}
}

func TestSizeClassesIsACopy(t *testing.T) {
	s := SizeClasses()
	s[0] = 1
	if SizeClasses()[0] != 40 {
		t.Error("SizeClasses exposed the ladder")
	}
}

func TestBaselineCapturedLazily(t *testing.T) {
	c, rt, _ := newTestCollector(t, DefaultConfig())
	a := c.Alloc(40, true)
	if r := mustDescribe(t, c, a); r.Lifecycle != Clear || r.Color != Black {
		t.Fatalf("fresh object is (%s, %s)", r.Lifecycle, r.Color)
	}

	b := c.Alloc(40, true)
	if r := mustDescribe(t, c, a); r.Lifecycle != Marked {
		t.Fatalf("baseline not captured at next tick: %s", r.Lifecycle)
	}

	// Initialisation stores happen before the baseline and need no barrier.
	d := c.Alloc(40, true)
	rt.storeWithoutBarrier(d, b)
	flush(c)
	if r := mustDescribe(t, c, d); !sameHandles(r.Snapshot, []Handle{b}) {
		t.Errorf("baseline = %v, want [%s]", r.Snapshot, b)
	}
	if c.Violations() != 0 {
		t.Errorf("baseline capture reported violations")
	}
}

func TestThresholdTriggersCollection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialThreshold = 5
	c, _, _ := newTestCollector(t, cfg)
	for i := 0; i < 5; i++ {
		c.Alloc(40, true)
	}
	if c.Count() != 0 {
		t.Fatalf("collected early: count = %d", c.Count())
	}
	c.Alloc(40, true)
	if c.Count() != 1 {
		t.Fatalf("count = %d, want 1", c.Count())
	}
	if info := c.LatestGCInfo(); info.Reason != "threshold" || info.Freed != 5 {
		t.Errorf("cycle info = %+v", info)
	}
	// Nothing survived, so every following allocation collects.
	if c.Threshold() != 0 {
		t.Errorf("threshold = %d, want 0", c.Threshold())
	}
}

func TestDisableSuppressesThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialThreshold = 2
	c, _, _ := newTestCollector(t, cfg)
	c.Disable()
	for i := 0; i < 10; i++ {
		c.Alloc(40, false)
	}
	if c.Count() != 0 {
		t.Errorf("collected while disabled")
	}
	c.StartCollection()
	if c.Count() != 1 {
		t.Errorf("explicit request ignored while disabled")
	}
	c.Enable()
	if !c.Enabled() {
		t.Error("Enable did not take")
	}
}

func TestStressCollectsEveryTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stress = true
	c, rt, _ := newTestCollector(t, cfg)
	root := c.Alloc(40, true)
	rt.roots = []Handle{root}
	for i := 0; i < 4; i++ {
		c.Alloc(40, true)
	}
	// The first allocation already collected an empty heap.
	if c.Count() != 5 {
		t.Errorf("count = %d, want 5", c.Count())
	}
	mustDescribe(t, c, root)
	if n, _ := c.StatKey(StatHeapLiveSlots); n != 2 {
		t.Errorf("heap_live_slots = %d, want 2", n)
	}

	c.SetStress(false)
	if c.Stress() {
		t.Error("SetStress(false) did not take")
	}
}
