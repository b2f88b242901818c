package gc

import (
	"bytes"
	"testing"
)

// testRuntime is a minimal host: each object's children are a plain slice
// the test mutates directly, bypassing or going through the barrier as the
// test requires.
type testRuntime struct {
	children map[Handle][]Handle
	weak     map[Handle][]*Handle
	roots    []Handle
	traced   int
}

func newTestRuntime() *testRuntime {
	return &testRuntime{
		children: make(map[Handle][]Handle),
		weak:     make(map[Handle][]*Handle),
	}
}

func (rt *testRuntime) MarkChildren(m Marker, obj Handle) {
	rt.traced++
	for _, c := range rt.children[obj] {
		m.Mark(c)
	}
	for _, slot := range rt.weak[obj] {
		m.MarkWeak(slot)
	}
}

func (rt *testRuntime) MarkRoots(m Marker) {
	for _, r := range rt.roots {
		m.MarkAndPin(r)
	}
}

// store sets obj's children and reports each new reference through the
// write barrier.
func (rt *testRuntime) store(c *Collector, obj Handle, children ...Handle) {
	rt.children[obj] = append(rt.children[obj], children...)
	for _, ch := range children {
		c.WriteBarrier(obj, ch)
	}
}

// storeWithoutBarrier mutates obj behind the collector's back.
func (rt *testRuntime) storeWithoutBarrier(obj Handle, children ...Handle) {
	rt.children[obj] = append(rt.children[obj], children...)
}

func newTestCollector(t *testing.T, cfg Config) (*Collector, *testRuntime, *bytes.Buffer) {
	t.Helper()
	rt := newTestRuntime()
	c := NewCollector(cfg, rt)
	var diag bytes.Buffer
	c.SetDiagnosticWriter(&diag)
	return c, rt, &diag
}

// flush runs a scheduler tick without collecting by disabling collection
// around it.
func flush(c *Collector) {
	c.withTick(func() {
		enabled := c.enabled
		c.enabled = false
		c.tick()
		c.enabled = enabled
	})
}

func mustFatal(t *testing.T, kind FatalKind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected fatal %s, got none", kind)
		}
		fe, ok := AsFatal(r)
		if !ok {
			t.Fatalf("expected *FatalError, got %T: %v", r, r)
		}
		if fe.Kind != kind {
			t.Fatalf("expected fatal %s, got %s (%s)", kind, fe.Kind, fe.Msg)
		}
	}()
	fn()
}

func mustDescribe(t *testing.T, c *Collector, h Handle) ObjectReport {
	t.Helper()
	r, ok := c.Describe(h)
	if !ok {
		t.Fatalf("%s is not a live object", h)
	}
	return r
}

func sameHandles(a, b []Handle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
