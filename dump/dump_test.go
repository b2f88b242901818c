package dump

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/wbcheck/gc"
)

type graph struct {
	edges map[gc.Handle][]gc.Handle
	roots []gc.Handle
}

func (g *graph) MarkChildren(m gc.Marker, obj gc.Handle) {
	for _, c := range g.edges[obj] {
		m.Mark(c)
	}
}

func (g *graph) MarkRoots(m gc.Marker) {
	for _, r := range g.roots {
		m.Mark(r)
	}
}

func buildHeap(t *testing.T) (*gc.Collector, []gc.Handle) {
	t.Helper()
	g := &graph{edges: make(map[gc.Handle][]gc.Handle)}
	c := gc.NewCollector(gc.DefaultConfig(), g)
	a := c.Alloc(40, true)
	b := c.Alloc(80, true)
	d := c.Alloc(160, false)
	g.edges[a] = []gc.Handle{b, d}
	g.edges[b] = []gc.Handle{d}
	c.WriteBarrier(a, b)
	c.WriteBarrier(a, d)
	c.WriteBarrier(b, d)
	g.roots = []gc.Handle{a}
	c.DefineFinalizer(d, &gc.Finalizer{Fn: func(gc.Handle) {}})
	c.StartCollection()
	if c.Violations() != 0 {
		t.Fatalf("heap built with %d violations", c.Violations())
	}
	return c, []gc.Handle{a, b, d}
}

func TestCaptureRecordsLiveHeap(t *testing.T) {
	c, objs := buildHeap(t)
	at := time.Unix(1700000000, 42)
	d := Capture(c, at)

	if d.Backend != gc.BackendWBCheck || d.Instance() != c.ID() || d.Cycles != 1 {
		t.Errorf("header = %q %s %d", d.Backend, d.Instance(), d.Cycles)
	}
	if !d.Time().Equal(at) {
		t.Errorf("time = %v, want %v", d.Time(), at)
	}
	if len(d.Objects) != 3 {
		t.Fatalf("objects = %d, want 3", len(d.Objects))
	}
	ra, ok := d.Find(objs[0])
	if !ok {
		t.Fatal("root missing from dump")
	}
	if len(ra.Snapshot) != 2 || ra.Snapshot[0] != uint64(objs[1]) || ra.Snapshot[1] != uint64(objs[2]) {
		t.Errorf("root snapshot = %v", ra.Snapshot)
	}
	if ra.Color != uint8(gc.Black) || ra.Lifecycle != uint8(gc.Marked) || !ra.WBProtected {
		t.Errorf("root record = %+v", ra)
	}
	if rd, _ := d.Find(objs[2]); rd.Finalizers != 1 || rd.WBProtected || rd.Size != 160 {
		t.Errorf("leaf record = %+v", rd)
	}
	if d.Edges() != 3 {
		t.Errorf("edges = %d, want 3", d.Edges())
	}
	if d.Stats[gc.StatHeapLiveSlots] != 3 {
		t.Errorf("stats = %v", d.Stats)
	}
}

func TestDumpFileRoundTrip(t *testing.T) {
	c, objs := buildHeap(t)
	d := Capture(c, time.Now())
	path := filepath.Join(t.TempDir(), "heap.cbor")

	if err := WriteFile(path, d); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Instance() != d.Instance() || got.TakenAt != d.TakenAt || len(got.Objects) != len(d.Objects) {
		t.Fatalf("read back %+v", got)
	}
	rb, ok := got.Find(objs[1])
	if !ok || len(rb.Snapshot) != 1 || rb.Snapshot[0] != uint64(objs[2]) {
		t.Errorf("record for %s = %+v", objs[1], rb)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	c, _ := buildHeap(t)
	at := time.Unix(0, 1)
	first, err := Marshal(Capture(c, at))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Marshal(Capture(c, at))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("canonical encoding differs between identical dumps")
	}
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage accepted")
	}
	data, err := Marshal(&HeapDump{Version: Version + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("future version accepted")
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.cbor")); err == nil {
		t.Error("missing file accepted")
	}
}
