package gc

import "sync"

// ---------------------------------------------------------------------------
// Handshake: stop-the-world rendezvous between mutators
// ---------------------------------------------------------------------------

// Handshake parks attached mutators at safepoints when a collection has been
// requested. The last mutator to park is elected to run the collection; the
// others wait until the cycle counter advances.
type Handshake struct {
	mu   sync.Mutex
	cond *sync.Cond

	cycle     uint64
	requested bool
	electing  bool
	attached  int
	parked    int
}

// NewHandshake creates a handshake with no attached mutators.
func NewHandshake() *Handshake {
	hs := &Handshake{}
	hs.cond = sync.NewCond(&hs.mu)
	return hs
}

// Attach registers a mutator. Attached mutators must reach a safepoint for a
// requested collection to run.
func (hs *Handshake) Attach() {
	hs.mu.Lock()
	hs.attached++
	hs.mu.Unlock()
}

// Detach unregisters a mutator. If every remaining mutator is already parked
// one of them is woken to run the collection.
func (hs *Handshake) Detach() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.attached == 0 {
		fatalf(InternalInvariantBroken, "handshake detach without attach")
	}
	hs.attached--
	if hs.requested && hs.parked > 0 && hs.parked == hs.attached {
		hs.cond.Broadcast()
	}
}

// Request asks for a collection at the next safepoint and returns the cycle
// counter the request will advance.
func (hs *Handshake) Request() uint64 {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.requested = true
	return hs.cycle
}

// Pending reports whether a collection has been requested and not yet run.
func (hs *Handshake) Pending() bool {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.requested
}

// Safepoint is called by an attached mutator at allocation and explicit
// collection points. If no collection is requested it returns false at
// once. Otherwise the mutator parks; the last to park runs collect with the
// handshake lock released, advances the cycle and wakes everyone. It
// returns true once the requested cycle has completed.
func (hs *Handshake) Safepoint(collect func()) bool {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if !hs.requested {
		return false
	}

	token := hs.cycle
	hs.parked++
	for hs.cycle == token {
		if !hs.electing && hs.parked == hs.attached {
			hs.runElected(collect)
			return true
		}
		hs.cond.Wait()
	}
	return true
}

// runElected is entered and left with hs.mu held.
func (hs *Handshake) runElected(collect func()) {
	hs.electing = true
	hs.mu.Unlock()
	defer func() {
		hs.mu.Lock()
		hs.electing = false
		hs.requested = false
		hs.parked = 0
		hs.cycle++
		hs.cond.Broadcast()
	}()
	collect()
}

// Cycle returns the number of completed handshake collections.
func (hs *Handshake) Cycle() uint64 {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.cycle
}

// Attached returns the number of attached mutators.
func (hs *Handshake) Attached() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.attached
}

// Parked returns the number of mutators currently parked.
func (hs *Handshake) Parked() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.parked
}
