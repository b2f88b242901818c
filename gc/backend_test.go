package gc

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewSelectsBackend(t *testing.T) {
	rt := newTestRuntime()
	tests := []struct {
		name    string
		want    string
		wantErr error
	}{
		{"", BackendWBCheck, nil},
		{BackendWBCheck, BackendWBCheck, nil},
		{BackendEpsilon, BackendEpsilon, nil},
		{"mmtk", "", ErrUnknownBackend},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Backend = tt.name
		b, err := New(cfg, rt)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New(%q) err = %v, want %v", tt.name, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q): %v", tt.name, err)
		}
		if b.Name() != tt.want {
			t.Errorf("New(%q).Name() = %q, want %q", tt.name, b.Name(), tt.want)
		}
	}
}

func TestNewRequiresRuntime(t *testing.T) {
	if _, err := New(DefaultConfig(), nil); err == nil {
		t.Error("New accepted a nil runtime")
	}
}

func TestCollectorIDsAreUnique(t *testing.T) {
	a, _, _ := newTestCollector(t, DefaultConfig())
	b, _, _ := newTestCollector(t, DefaultConfig())
	if a.ID() == b.ID() {
		t.Error("two collectors share an id")
	}
}

func TestDebugLocksCollector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebugLocks = true
	c, rt, _ := newTestCollector(t, cfg)
	a := c.Alloc(40, true)
	rt.roots = []Handle{a}
	c.StartCollection()
	mustDescribe(t, c, a)
}

// ---------------------------------------------------------------------------
// Epsilon
// ---------------------------------------------------------------------------

func TestEpsilonNeverFrees(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialThreshold = 2
	cfg.Stress = true
	rt := newTestRuntime()
	e := NewEpsilon(cfg, rt)

	var objs []Handle
	for i := 0; i < 10; i++ {
		objs = append(objs, e.Alloc(80, true))
	}
	rt.storeWithoutBarrier(objs[0], objs[1])
	e.WriteBarrier(objs[0], objs[1])
	e.StartCollection()

	if e.Count() != 0 {
		t.Errorf("epsilon collected %d times", e.Count())
	}
	if rt.traced != 0 {
		t.Errorf("epsilon traced %d objects", rt.traced)
	}
	for _, h := range objs {
		mustDescribe(t, e, h)
	}
	if n, _ := e.StatKey(StatWriteBarriers); n != 0 {
		t.Errorf("epsilon recorded %d barriers", n)
	}
}

func TestEpsilonShutdownRunsFinalizersAndZombies(t *testing.T) {
	e := NewEpsilon(DefaultConfig(), newTestRuntime())
	a := e.Alloc(40, true)
	b := e.Alloc(40, true)
	var ran, torn bool
	e.DefineFinalizer(a, &Finalizer{Fn: func(Handle) { ran = true }})
	e.SetNativeTeardown(b, func(any) { torn = true }, nil)

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !ran || !torn {
		t.Errorf("finalizer ran=%t teardown ran=%t", ran, torn)
	}
	if n, _ := e.StatKey(StatHeapLiveSlots); n != 0 {
		t.Errorf("heap_live_slots = %d after shutdown", n)
	}
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

func TestShutdownCleanReturnsNil(t *testing.T) {
	c, rt, _ := newTestCollector(t, DefaultConfig())
	a := c.Alloc(40, true)
	b := c.Alloc(40, true)
	flush(c)
	rt.store(c, a, b)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !c.IsShutdown() {
		t.Error("IsShutdown() = false")
	}
	if n, _ := c.StatKey(StatTotalFreedObjects); n != 2 {
		t.Errorf("total_freed_objects = %d, want 2", n)
	}
}

func TestShutdownReportsViolations(t *testing.T) {
	c, rt, diag := newTestCollector(t, DefaultConfig())
	a := c.Alloc(40, true)
	flush(c)
	b := c.Alloc(40, true)
	rt.storeWithoutBarrier(a, b)

	err := c.Shutdown()
	if !errors.Is(err, ErrViolations) {
		t.Fatalf("Shutdown err = %v, want ErrViolations", err)
	}
	if !strings.Contains(diag.String(), "WBCHECK ERROR") {
		t.Errorf("no diagnostic:\n%s", diag)
	}
	// Idempotent.
	if err := c.Shutdown(); !errors.Is(err, ErrViolations) {
		t.Errorf("second Shutdown err = %v", err)
	}
}

func TestShutdownRunsFinalizersRegisteredByFinalizers(t *testing.T) {
	c, rt, _ := newTestCollector(t, DefaultConfig())
	a := c.Alloc(40, true)
	rt.roots = []Handle{a}
	var order []string
	c.DefineFinalizer(a, &Finalizer{Fn: func(Handle) {
		order = append(order, "a")
		b := c.Alloc(40, false)
		c.DefineFinalizer(b, &Finalizer{Fn: func(Handle) {
			order = append(order, "b")
		}})
	}})

	if err := c.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, ",") != "a,b" {
		t.Errorf("finalizer order = %v", order)
	}
}

func TestFormatStats(t *testing.T) {
	c, _, _ := newTestCollector(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		c.Alloc(640, true)
	}
	var buf bytes.Buffer
	FormatStats(&buf, c)
	out := buf.String()
	for _, want := range []string{"backend wbcheck", StatHeapAllocatedBytes, "1.9 kB", "heap[4] 640 B slots: live=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatStats output missing %q:\n%s", want, out)
		}
	}
	if _, err := c.StatKey("bogus"); !errors.Is(err, ErrUnknownStat) {
		t.Errorf("StatKey(bogus) err = %v", err)
	}
}
