package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/wbcheck/gc"
)

type rootsOnly struct {
	roots []gc.Handle
}

func (r *rootsOnly) MarkChildren(gc.Marker, gc.Handle) {}

func (r *rootsOnly) MarkRoots(m gc.Marker) {
	for _, h := range r.roots {
		m.Mark(h)
	}
}

func openTemp(t *testing.T, id uuid.UUID) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "cycles.db"), id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndReadBack(t *testing.T) {
	id := uuid.New()
	j := openTemp(t, id)

	info := gc.CycleInfo{
		Cycle:      1,
		Reason:     "threshold",
		LiveBefore: 10,
		LiveAfter:  4,
		Freed:      6,
		Zombies:    1,
		Threshold:  8,
		Duration:   3 * time.Millisecond,
	}
	if err := j.Record(info); err != nil {
		t.Fatalf("Record: %v", err)
	}
	info.Cycle, info.Reason, info.Freed, info.Violations = 2, "request", 0, 2
	if err := j.Record(info); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := j.Cycles(id)
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	first := entries[0]
	if first.Instance != id || first.Cycle != 1 || first.Reason != "threshold" ||
		first.LiveBefore != 10 || first.LiveAfter != 4 || first.Freed != 6 ||
		first.Zombies != 1 || first.Threshold != 8 || first.Duration != 3*time.Millisecond {
		t.Errorf("first entry = %+v", first)
	}
	if entries[1].Violations != 2 || entries[1].Reason != "request" {
		t.Errorf("second entry = %+v", entries[1])
	}

	s, err := j.Summarize(id)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Cycles != 2 || s.Freed != 6 || s.Violations != 2 || s.TotalPause != 6*time.Millisecond || s.MaxPause != 3*time.Millisecond {
		t.Errorf("summary = %+v", s)
	}
}

func TestSummarizeUnknownInstance(t *testing.T) {
	j := openTemp(t, uuid.New())
	s, err := j.Summarize(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if s != (Summary{}) {
		t.Errorf("summary = %+v, want zero", s)
	}
}

func TestInstancesShareDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.db")
	a, b := uuid.New(), uuid.New()

	ja, err := Open(path, a)
	if err != nil {
		t.Fatal(err)
	}
	if err := ja.Record(gc.CycleInfo{Cycle: 1, Reason: "request"}); err != nil {
		t.Fatal(err)
	}
	ja.Close()

	jb, err := Open(path, b)
	if err != nil {
		t.Fatal(err)
	}
	defer jb.Close()
	if err := jb.Record(gc.CycleInfo{Cycle: 1, Reason: "stress"}); err != nil {
		t.Fatal(err)
	}

	ids, err := jb.Instances()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Errorf("instances = %v, want [%s %s]", ids, a, b)
	}
	entries, _ := jb.Cycles(a)
	if len(entries) != 1 || entries[0].Reason != "request" {
		t.Errorf("entries for first instance = %+v", entries)
	}
}

func TestHookRecordsEveryCycle(t *testing.T) {
	rt := &rootsOnly{}
	c := gc.NewCollector(gc.DefaultConfig(), rt)
	j := openTemp(t, c.ID())
	c.SetCycleHook(j.Hook())

	keep := c.Alloc(40, true)
	rt.roots = []gc.Handle{keep}
	c.Alloc(40, false)
	c.StartCollection()
	c.StartCollection()
	c.StartCollection()

	entries, err := j.Cycles(c.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("journal has %d cycles, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Cycle != uint64(i+1) || e.Reason != "request" {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
	if entries[0].Freed != 1 || entries[2].LiveAfter != 1 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestClosedJournal(t *testing.T) {
	j := openTemp(t, uuid.New())
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := j.Record(gc.CycleInfo{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Record after close = %v", err)
	}
	if _, err := j.Cycles(uuid.New()); !errors.Is(err, ErrClosed) {
		t.Errorf("Cycles after close = %v", err)
	}
}
