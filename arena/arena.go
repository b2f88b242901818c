// Package arena is a small managed-object host built on a gc.Backend.
//
// Objects are fixed arrays of reference slots plus one optional weak slot.
// Every reference store goes through the backend's write barrier unless the
// caller explicitly asks otherwise, which is how the missed-barrier
// detector is exercised end to end.
//
// The arena lock plays the role of a global interpreter lock: it is held
// across every backend call the arena makes. The backend calls back into
// MarkChildren and MarkRoots from inside those calls, so the callbacks read
// arena state without locking.
package arena

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/wbcheck/gc"
)

var log = commonlog.GetLogger("wbcheck.arena")

// HeaderSize is the per-object overhead charged against the size class.
const HeaderSize = 16

// SlotSize is the storage charged for each reference slot.
const SlotSize = 8

// MaxSlots is the largest slot count that fits the biggest size class.
const MaxSlots = (gc.MaxObjectSize - HeaderSize) / SlotSize

// Object is the arena's view of one heap object.
type Object struct {
	Class string
	slots []gc.Handle
	weak  gc.Handle
}

// NumSlots returns the number of reference slots.
func (o *Object) NumSlots() int { return len(o.slots) }

// Arena owns a backend and the objects allocated through it.
type Arena struct {
	mu       sync.Mutex
	backend  gc.Backend
	objects  map[gc.Handle]*Object
	roots    map[gc.Handle]int
	scratch  []gc.Handle
	hs       *gc.Handshake
	mutators map[*Mutator]struct{}
	onCycle  func(gc.CycleInfo)
	closed   bool

	allocated uint64
	reclaimed uint64
}

// New creates an arena and its backend. The backend is chosen by
// cfg.Backend.
func New(cfg gc.Config) (*Arena, error) {
	a := &Arena{
		objects:  make(map[gc.Handle]*Object),
		roots:    make(map[gc.Handle]int),
		hs:       gc.NewHandshake(),
		mutators: make(map[*Mutator]struct{}),
	}
	b, err := gc.New(cfg, a)
	if err != nil {
		return nil, err
	}
	a.backend = b
	b.SetCycleHook(a.afterCycle)
	log.Debugf("arena created on %s backend %s", b.Name(), b.ID())
	return a, nil
}

// Backend returns the arena's collector.
func (a *Arena) Backend() gc.Backend { return a.backend }

// Handshake returns the rendezvous mutators attach to.
func (a *Arena) Handshake() *gc.Handshake { return a.hs }

// SetCycleHook installs fn to run after each collection cycle, once the
// arena has dropped the objects the cycle reclaimed. fn runs with the arena
// locked and must not call back into it.
func (a *Arena) SetCycleHook(fn func(gc.CycleInfo)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCycle = fn
}

// ---------------------------------------------------------------------------
// gc.Runtime
// ---------------------------------------------------------------------------

// MarkChildren reports every strong slot of obj and registers its weak
// slot.
func (a *Arena) MarkChildren(m gc.Marker, obj gc.Handle) {
	o := a.objects[obj]
	if o == nil {
		return
	}
	for _, h := range o.slots {
		m.Mark(h)
	}
	if o.weak.IsHeap() {
		m.MarkWeak(&o.weak)
	}
}

// MarkRoots reports the root set plus any handles held by an allocation in
// progress.
func (a *Arena) MarkRoots(m gc.Marker) {
	for _, h := range slices.Sorted(maps.Keys(a.roots)) {
		m.MarkAndPin(h)
	}
	for _, h := range a.scratch {
		m.Mark(h)
	}
	for mu := range a.mutators {
		for _, h := range mu.locals {
			m.Mark(h)
		}
	}
}

func (a *Arena) afterCycle(info gc.CycleInfo) {
	a.reconcile()
	if a.onCycle != nil {
		a.onCycle(info)
	}
}

// reconcile forgets objects the backend has released or turned into
// zombies. Called with the arena locked.
func (a *Arena) reconcile() {
	dropped := 0
	for h := range a.objects {
		r, ok := a.backend.Describe(h)
		if ok && !r.Zombie {
			continue
		}
		delete(a.objects, h)
		delete(a.roots, h)
		dropped++
	}
	a.reclaimed += uint64(dropped)
	if dropped > 0 {
		log.Debugf("reconciled %d reclaimed object(s), %d remain", dropped, len(a.objects))
	}
}

// ---------------------------------------------------------------------------
// Allocation and access
// ---------------------------------------------------------------------------

// Allocate creates an object with nslots reference slots, the first
// len(init) of which are initialised from init. Initialising stores need no
// barrier: the object has no baseline yet.
func (a *Arena) Allocate(class string, nslots int, protected bool, init ...gc.Handle) (gc.Handle, error) {
	if nslots < 0 || nslots > MaxSlots {
		return gc.Nil, fmt.Errorf("arena: %d slots: %w", nslots, ErrTooManySlots)
	}
	if len(init) > nslots {
		return gc.Nil, fmt.Errorf("arena: %d initial values for %d slots: %w", len(init), nslots, ErrSlotRange)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocate(class, nslots, protected, init)
}

// allocate is called with the arena locked.
func (a *Arena) allocate(class string, nslots int, protected bool, init []gc.Handle) (gc.Handle, error) {
	if a.closed {
		return gc.Nil, ErrClosed
	}

	// init may be the only reference to its handles; keep them alive across
	// any collection the allocation triggers.
	a.scratch = append(a.scratch[:0], init...)
	h := a.backend.Alloc(HeaderSize+SlotSize*nslots, protected)
	a.scratch = a.scratch[:0]

	o := &Object{Class: class, slots: make([]gc.Handle, nslots)}
	copy(o.slots, init)
	a.objects[h] = o
	a.allocated++
	return h, nil
}

func (a *Arena) object(h gc.Handle) (*Object, error) {
	o := a.objects[h]
	if o == nil {
		return nil, fmt.Errorf("arena: %s: %w", h, ErrNoObject)
	}
	return o, nil
}

func (a *Arena) slot(h gc.Handle, i int) (*Object, error) {
	o, err := a.object(h)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(o.slots) {
		return nil, fmt.Errorf("arena: slot %d of %s (%d slots): %w", i, h, len(o.slots), ErrSlotRange)
	}
	return o, nil
}

// Store writes v into slot i of h and reports it through the write barrier.
func (a *Arena) Store(h gc.Handle, i int, v gc.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, err := a.slot(h, i)
	if err != nil {
		return err
	}
	o.slots[i] = v
	a.backend.WriteBarrier(h, v)
	return nil
}

// StoreWithoutBarrier writes v into slot i of h without telling the
// collector. A protected object mutated this way is reported as a missed
// write barrier at its next verification.
func (a *Arena) StoreWithoutBarrier(h gc.Handle, i int, v gc.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, err := a.slot(h, i)
	if err != nil {
		return err
	}
	o.slots[i] = v
	return nil
}

// Load returns slot i of h.
func (a *Arena) Load(h gc.Handle, i int) (gc.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, err := a.slot(h, i)
	if err != nil {
		return gc.Nil, err
	}
	return o.slots[i], nil
}

// Slots returns a copy of h's strong slots.
func (a *Arena) Slots(h gc.Handle) ([]gc.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, err := a.object(h)
	if err != nil {
		return nil, err
	}
	return slices.Clone(o.slots), nil
}

// Class returns the class name h was allocated with.
func (a *Arena) Class(h gc.Handle) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, err := a.object(h)
	if err != nil {
		return "", err
	}
	return o.Class, nil
}

// SetWeak points h's weak slot at target. The target is not kept alive;
// once it is reclaimed Weak returns Nil.
func (a *Arena) SetWeak(h, target gc.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, err := a.object(h)
	if err != nil {
		return err
	}
	if o.weak.IsHeap() && !target.IsHeap() {
		a.backend.RemoveWeak(h, &o.weak)
	}
	o.weak = target
	return nil
}

// Weak returns h's weak slot.
func (a *Arena) Weak(h gc.Handle) (gc.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, err := a.object(h)
	if err != nil {
		return gc.Nil, err
	}
	return o.weak, nil
}

// Live reports whether the arena still holds h.
func (a *Arena) Live(h gc.Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.objects[h] != nil
}

// Len returns the number of objects the arena holds.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.objects)
}

// Counts returns how many objects have been allocated and reclaimed.
func (a *Arena) Counts() (allocated, reclaimed uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated, a.reclaimed
}

// ---------------------------------------------------------------------------
// Roots
// ---------------------------------------------------------------------------

// AddRoot keeps h alive until a matching RemoveRoot. Roots nest.
func (a *Arena) AddRoot(h gc.Handle) {
	if !h.IsHeap() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roots[h]++
}

// RemoveRoot undoes one AddRoot.
func (a *Arena) RemoveRoot(h gc.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch n := a.roots[h]; {
	case n > 1:
		a.roots[h] = n - 1
	case n == 1:
		delete(a.roots, h)
	}
}

// Roots returns the current root set in handle order.
func (a *Arena) Roots() []gc.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Sorted(maps.Keys(a.roots))
}

// ---------------------------------------------------------------------------
// Finalization
// ---------------------------------------------------------------------------

// DefineFinalizer registers fn to run when h is reclaimed. fn runs with the
// arena locked and must not call back into it.
func (a *Arena) DefineFinalizer(h gc.Handle, fn func(gc.Handle), captures ...gc.Handle) (*gc.Finalizer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.object(h); err != nil {
		return nil, err
	}
	return a.backend.DefineFinalizer(h, &gc.Finalizer{Fn: fn, Captures: captures}), nil
}

// SetTeardown registers a native teardown for h. When h dies it becomes a
// zombie and fn(arg) runs before its storage is released.
func (a *Arena) SetTeardown(h gc.Handle, fn gc.TeardownFunc, arg any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.object(h); err != nil {
		return err
	}
	a.backend.SetNativeTeardown(h, fn, arg)
	return nil
}

// ---------------------------------------------------------------------------
// Collection and shutdown
// ---------------------------------------------------------------------------

// Collect runs a full collection cycle.
func (a *Arena) Collect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.backend.StartCollection()
}

// Verify checks every object without collecting. It is the batch-mode
// equivalent of a collection's verification pass and returns the number of
// objects with missed barriers found.
func (a *Arena) Verify() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.backend.(*gc.Collector)
	if !ok || c.Epsilon() {
		return 0
	}
	n := 0
	for _, h := range slices.Sorted(maps.Keys(a.objects)) {
		r, ok := c.Describe(h)
		if !ok || !r.WBProtected || r.Zombie || r.Lifecycle == gc.Clear {
			continue
		}
		if len(c.Verify(h)) > 0 {
			n++
		}
	}
	return n
}

// Close shuts the backend down, running every outstanding finalizer and
// teardown. The returned error wraps gc.ErrViolations if any missed barrier
// was detected.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	err := a.backend.Shutdown()
	a.reclaimed += uint64(len(a.objects))
	clear(a.objects)
	clear(a.roots)
	return err
}
