package gc

import (
	"fmt"

	"github.com/google/uuid"
)

// Marker is the visitor handed to the runtime's tracing callbacks. During a
// snapshot capture Mark appends to the child list being collected; during
// root enumeration it shades the object Gray.
type Marker interface {
	Mark(h Handle)
	MarkAndPin(h Handle)
	MarkWeak(slot *Handle)
}

// Runtime is what the collector needs from the host: a way to enumerate an
// object's outgoing references and a way to enumerate roots. Both are
// invoked with the collector lock held and must not call back into the
// backend except through the Marker.
type Runtime interface {
	MarkChildren(m Marker, obj Handle)
	MarkRoots(m Marker)
}

// Finalizer is a callback registered against an object. Registrations are
// compared by pointer identity. Captures lists handles the callback closes
// over; they are kept alive for as long as the registration exists.
type Finalizer struct {
	Fn       func(obj Handle)
	Captures []Handle
}

// TeardownFunc is an opaque native deallocation callback run for zombies.
type TeardownFunc func(arg any)

// Backend is the collector contract the runtime programs against. Exactly
// one implementation is selected at startup by New.
type Backend interface {
	Name() string
	ID() uuid.UUID

	Alloc(size int, wbProtected bool) Handle
	SizeAllocatable(size int) bool
	SlotSize(h Handle) int

	Marker
	RemoveWeak(parent Handle, slot *Handle)

	WriteBarrier(parent, child Handle)
	WriteBarrierUnprotect(h Handle)
	WriteBarrierRemember(h Handle)

	DefineFinalizer(h Handle, f *Finalizer) *Finalizer
	UndefineFinalizer(h Handle)
	CopyFinalizer(dest, src Handle)
	MakeZombie(h Handle, fn TeardownFunc, arg any)
	SetNativeTeardown(h Handle, fn TeardownFunc, arg any)

	StartCollection()
	IsCollecting() bool
	Enable()
	Disable()

	EachLiveObject(fn func(ObjectReport) bool)
	Describe(h Handle) (ObjectReport, bool)
	ObjectID(h Handle) uint64
	ObjectIDToRef(id uint64) (Handle, error)

	Count() uint64
	Violations() uint64
	Stat() map[string]uint64
	StatKey(key string) (uint64, error)
	StatHeap(class int) HeapStats
	LatestGCInfo() CycleInfo
	SetCycleHook(fn func(CycleInfo))

	Shutdown() error
}

// Backend names accepted by Config.Backend.
const (
	BackendWBCheck = "wbcheck"
	BackendEpsilon = "epsilon"
)

// Config is read once at startup.
type Config struct {
	Backend                      string `toml:"backend"`
	DebugOutput                  bool   `toml:"debug_output"`
	VerifyAfterEveryWriteBarrier bool   `toml:"verify_after_every_write_barrier"`
	WarnOnUselessWriteBarrier    bool   `toml:"warn_on_useless_write_barrier"`
	Stress                       bool   `toml:"stress"`
	InitialThreshold             int    `toml:"initial_threshold"`
	DebugLocks                   bool   `toml:"debug_locks"`
}

// DefaultInitialThreshold is the live-object count that triggers the first
// collection.
const DefaultInitialThreshold = 1000

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendWBCheck,
		InitialThreshold: DefaultInitialThreshold,
	}
}

// New selects and constructs the backend named by cfg.Backend.
func New(cfg Config, rt Runtime) (Backend, error) {
	if rt == nil {
		return nil, fmt.Errorf("gc: runtime is required")
	}
	switch cfg.Backend {
	case "", BackendWBCheck:
		return NewCollector(cfg, rt), nil
	case BackendEpsilon:
		return NewEpsilon(cfg, rt), nil
	default:
		return nil, fmt.Errorf("gc: %q: %w", cfg.Backend, ErrUnknownBackend)
	}
}
