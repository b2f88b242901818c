package gc

import "testing"

func TestRefListAppendPreservesOrder(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 5, 17, 1000} {
		l := NewRefList(0)
		for i := 0; i < n; i++ {
			l.Append(Handle((i + 1) * 8))
		}
		if l.Len() != n {
			t.Fatalf("n=%d: Len() = %d", n, l.Len())
		}
		if l.Len() > l.Cap() {
			t.Fatalf("n=%d: Len() %d > Cap() %d", n, l.Len(), l.Cap())
		}
		for i := 0; i < n; i++ {
			if got := l.At(i); got != Handle((i+1)*8) {
				t.Fatalf("n=%d: At(%d) = %s", n, i, got)
			}
		}
	}
}

func TestRefListGrowthDoubles(t *testing.T) {
	l := NewRefList(0)
	l.Append(8)
	if l.Cap() != refListMinCap {
		t.Fatalf("first growth cap = %d, want %d", l.Cap(), refListMinCap)
	}
	for i := 0; i < refListMinCap; i++ {
		l.Append(16)
	}
	if l.Cap() != 2*refListMinCap {
		t.Errorf("cap = %d, want %d", l.Cap(), 2*refListMinCap)
	}
}

func TestRefListHintAvoidsGrowth(t *testing.T) {
	l := NewRefList(10)
	for i := 0; i < 10; i++ {
		l.Append(8)
	}
	if l.Cap() != 10 {
		t.Errorf("cap = %d, want 10", l.Cap())
	}
}

func TestRefListNilReadsAsEmpty(t *testing.T) {
	var l *RefList
	if l.Len() != 0 || l.Cap() != 0 {
		t.Error("nil list should be empty")
	}
	if l.Contains(8) {
		t.Error("nil list should contain nothing")
	}
	if l.Slice() != nil {
		t.Error("nil list Slice() should be nil")
	}
	l.Free()
}

func TestRefListPopIsLIFO(t *testing.T) {
	l := NewRefList(0)
	l.Append(8)
	l.Append(16)
	l.Append(24)
	for _, want := range []Handle{24, 16, 8} {
		if got := l.Pop(); got != want {
			t.Fatalf("Pop() = %s, want %s", got, want)
		}
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after draining", l.Len())
	}
}

func TestRefListSliceIsACopy(t *testing.T) {
	l := NewRefList(0)
	l.Append(8)
	s := l.Slice()
	s[0] = 16
	if l.At(0) != 8 {
		t.Error("Slice() aliased the backing array")
	}
}

func TestRefListFindRotating(t *testing.T) {
	l := NewRefList(0)
	for _, h := range []Handle{8, 16, 24, 32} {
		l.Append(h)
	}

	cursor := 0
	for _, h := range []Handle{8, 16, 24, 32} {
		if !l.findRotating(h, &cursor) {
			t.Fatalf("in-order lookup of %s failed", h)
		}
	}
	if cursor != 4 {
		t.Errorf("cursor = %d after in-order scan, want 4", cursor)
	}

	// Wraps around for reordered lookups.
	cursor = 3
	if !l.findRotating(8, &cursor) {
		t.Fatal("wrapped lookup failed")
	}
	if cursor != 1 {
		t.Errorf("cursor = %d, want 1", cursor)
	}

	if l.findRotating(40, &cursor) {
		t.Error("found a handle that is not present")
	}
	if cursor != 1 {
		t.Errorf("miss moved the cursor to %d", cursor)
	}
}

func TestRefListReset(t *testing.T) {
	l := NewRefList(0)
	l.Append(8)
	l.Append(16)
	c := l.Cap()
	l.Reset()
	if l.Len() != 0 || l.Cap() != c {
		t.Errorf("Reset: len=%d cap=%d, want 0 and %d", l.Len(), l.Cap(), c)
	}
}
