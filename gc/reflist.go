package gc

import "math"

// ---------------------------------------------------------------------------
// RefList: growable handle array
// ---------------------------------------------------------------------------

const refListMinCap = 4

// RefList is an ordered sequence of handles with doubling growth. It backs
// snapshots, write logs, the mark queue and every transient child list.
//
// A nil *RefList behaves as an empty list for read operations.
type RefList struct {
	items []Handle
}

// NewRefList creates a list with room for hint entries. Callers re-capturing
// a snapshot size hint as len(snapshot)+len(writeLog).
func NewRefList(hint int) *RefList {
	if hint < 0 {
		hint = 0
	}
	l := &RefList{}
	if hint > 0 {
		l.items = make([]Handle, 0, hint)
	}
	return l
}

// Append adds v at the end of the list.
func (l *RefList) Append(v Handle) {
	if len(l.items) == cap(l.items) {
		l.grow()
	}
	l.items = append(l.items, v)
}

func (l *RefList) grow() {
	c := cap(l.items)
	next := c * 2
	if next < refListMinCap {
		next = refListMinCap
	}
	if c > math.MaxInt32 {
		fatalf(ResourceExhaustion, "reference list cannot grow beyond %d entries", c)
	}
	items := make([]Handle, len(l.items), next)
	copy(items, l.items)
	l.items = items
}

// Contains reports whether v is in the list. Linear scan; object fan-out is
// expected to be small.
func (l *RefList) Contains(v Handle) bool {
	if l == nil {
		return false
	}
	for _, h := range l.items {
		if h == v {
			return true
		}
	}
	return false
}

// findRotating looks for v starting at *cursor and wrapping around. On a
// match the cursor moves just past the match, so lists compared in the same
// order are matched in a single pass.
func (l *RefList) findRotating(v Handle, cursor *int) bool {
	if l == nil {
		return false
	}
	n := len(l.items)
	if n == 0 {
		return false
	}
	start := *cursor % n
	for i := 0; i < n; i++ {
		idx := start + i
		if idx >= n {
			idx -= n
		}
		if l.items[idx] == v {
			*cursor = idx + 1
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (l *RefList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Cap returns the current capacity.
func (l *RefList) Cap() int {
	if l == nil {
		return 0
	}
	return cap(l.items)
}

// At returns the i-th entry.
func (l *RefList) At(i int) Handle {
	return l.items[i]
}

// Pop removes and returns the last entry. The list must not be empty.
func (l *RefList) Pop() Handle {
	n := len(l.items) - 1
	v := l.items[n]
	l.items = l.items[:n]
	return v
}

// Slice returns a copy of the entries.
func (l *RefList) Slice() []Handle {
	if l == nil || len(l.items) == 0 {
		return nil
	}
	out := make([]Handle, len(l.items))
	copy(out, l.items)
	return out
}

// Reset empties the list but keeps its capacity.
func (l *RefList) Reset() {
	l.items = l.items[:0]
}

// Free releases the backing array.
func (l *RefList) Free() {
	if l == nil {
		return
	}
	l.items = nil
}
