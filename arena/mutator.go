package arena

import "github.com/chazu/wbcheck/gc"

// Mutator is a goroutine's attachment to the arena. Its allocations pass
// through a safepoint first, so a collection requested through the
// handshake runs once every attached mutator has parked.
//
// Each mutator has a stack of local handles that the arena reports as
// roots. Allocate pushes the new object; Pop and Reset release them.
type Mutator struct {
	a        *Arena
	locals   []gc.Handle
	detached bool
}

// Attach registers a new mutator with the arena's handshake.
func (a *Arena) Attach() *Mutator {
	m := &Mutator{a: a}
	a.mu.Lock()
	a.mutators[m] = struct{}{}
	a.mu.Unlock()
	a.hs.Attach()
	return m
}

// Detach unregisters m and drops its locals. Detaching twice is harmless.
func (m *Mutator) Detach() {
	if m.detached {
		return
	}
	m.detached = true
	m.a.mu.Lock()
	delete(m.a.mutators, m)
	m.locals = nil
	m.a.mu.Unlock()
	m.a.hs.Detach()
}

// Safepoint parks m if a collection has been requested. It reports whether
// a collection ran while m was parked.
func (m *Mutator) Safepoint() bool {
	return m.a.hs.Safepoint(m.a.Collect)
}

// RequestCollection asks every attached mutator to stop for a collection
// and parks m until it has run.
func (m *Mutator) RequestCollection() {
	m.a.hs.Request()
	m.Safepoint()
}

// Allocate safepoints, allocates, and pushes the new object onto m's locals.
func (m *Mutator) Allocate(class string, nslots int, protected bool, init ...gc.Handle) (gc.Handle, error) {
	if nslots < 0 || nslots > MaxSlots {
		return gc.Nil, ErrTooManySlots
	}
	if len(init) > nslots {
		return gc.Nil, ErrSlotRange
	}
	m.Safepoint()

	a := m.a
	a.mu.Lock()
	defer a.mu.Unlock()
	h, err := a.allocate(class, nslots, protected, init)
	if err != nil {
		return gc.Nil, err
	}
	m.locals = append(m.locals, h)
	return h, nil
}

// Push adds h to m's locals.
func (m *Mutator) Push(h gc.Handle) {
	m.a.mu.Lock()
	m.locals = append(m.locals, h)
	m.a.mu.Unlock()
}

// Pop drops the top n locals.
func (m *Mutator) Pop(n int) {
	m.a.mu.Lock()
	defer m.a.mu.Unlock()
	if n > len(m.locals) {
		n = len(m.locals)
	}
	clear(m.locals[len(m.locals)-n:])
	m.locals = m.locals[:len(m.locals)-n]
}

// Reset drops every local.
func (m *Mutator) Reset() {
	m.a.mu.Lock()
	clear(m.locals)
	m.locals = m.locals[:0]
	m.a.mu.Unlock()
}

// Locals returns the number of handles on m's stack.
func (m *Mutator) Locals() int {
	m.a.mu.Lock()
	defer m.a.mu.Unlock()
	return len(m.locals)
}

// Store writes through the barrier. Stores are not safepoints.
func (m *Mutator) Store(h gc.Handle, i int, v gc.Handle) error {
	return m.a.Store(h, i, v)
}

// StoreWithoutBarrier writes behind the collector's back.
func (m *Mutator) StoreWithoutBarrier(h gc.Handle, i int, v gc.Handle) error {
	return m.a.StoreWithoutBarrier(h, i, v)
}

// Load reads a slot.
func (m *Mutator) Load(h gc.Handle, i int) (gc.Handle, error) {
	return m.a.Load(h, i)
}
