package gc

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

type phase uint8

const (
	phaseIdle phase = iota
	// phaseCollect: Mark appends to traceBuf.
	phaseCollect
	// phaseMark: Mark shades the handle Gray and pushes it on the mark queue.
	phaseMark
)

// Collector is the write-barrier-verifying mark-sweep backend. All of its
// state hangs off this struct; there are no package-level globals.
type Collector struct {
	cfg     Config
	rt      Runtime
	id      uuid.UUID
	epsilon bool

	mu         sync.Locker
	collecting atomic.Bool

	registry *Registry

	phase        phase
	traceBuf     *RefList
	tracingOwner Handle
	markQueue    *RefList

	pendingVerify *RefList
	baselineQueue *RefList
	bootstrap     []Handle

	weak    map[*Handle]Handle
	ids     objectIDs
	zombies *zombieEntry

	deferredFinalizers []finalizerJob
	deferredCycles     []CycleInfo

	enabled      bool
	stress       bool
	forceCollect bool
	shutdown     bool
	threshold    int

	stats     counters
	heapStats [numSizeClasses]HeapStats
	lastCycle CycleInfo
	hook      func(CycleInfo)
	diag      io.Writer
}

// NewCollector constructs the verifying collector directly.
func NewCollector(cfg Config, rt Runtime) *Collector {
	if cfg.InitialThreshold <= 0 {
		cfg.InitialThreshold = DefaultInitialThreshold
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendWBCheck
	}
	c := &Collector{
		cfg:           cfg,
		rt:            rt,
		id:            uuid.New(),
		registry:      NewRegistry(),
		markQueue:     NewRefList(0),
		pendingVerify: NewRefList(0),
		baselineQueue: NewRefList(0),
		weak:          make(map[*Handle]Handle),
		ids:           newObjectIDs(),
		enabled:       true,
		stress:        cfg.Stress,
		threshold:     cfg.InitialThreshold,
		diag:          os.Stderr,
	}
	for i := range c.heapStats {
		c.heapStats[i].SlotSize = sizeClasses[i]
	}
	if cfg.DebugLocks {
		c.mu = &deadlock.Mutex{}
	} else {
		c.mu = &sync.Mutex{}
	}
	if cfg.DebugOutput {
		enableDebugOutput()
	}
	logger().Debugf("collector %s started (backend %s, threshold %d, eager %t)",
		c.id, cfg.Backend, c.threshold, cfg.VerifyAfterEveryWriteBarrier)
	return c
}

// Name returns the active backend name.
func (c *Collector) Name() string { return c.cfg.Backend }

// ID returns the collector instance id.
func (c *Collector) ID() uuid.UUID { return c.id }

// Config returns the configuration the collector was built with.
func (c *Collector) Config() Config { return c.cfg }

// SetDiagnosticWriter redirects missed-barrier reports, which go to stderr
// by default.
func (c *Collector) SetDiagnosticWriter(w io.Writer) {
	c.locked(func() {
		c.diag = w
	})
}

func (c *Collector) locked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// ---------------------------------------------------------------------------
// Deferred work: callbacks that must run without the collector lock
// ---------------------------------------------------------------------------

type deferred struct {
	finalizers []finalizerJob
	zombies    *zombieEntry
	cycles     []CycleInfo
	hook       func(CycleInfo)
}

func (c *Collector) takeDeferred() deferred {
	d := deferred{
		finalizers: c.deferredFinalizers,
		zombies:    c.zombies,
		cycles:     c.deferredCycles,
		hook:       c.hook,
	}
	c.deferredFinalizers = nil
	c.zombies = nil
	c.deferredCycles = nil
	return d
}

func (c *Collector) runDeferred(d deferred) {
	for _, job := range d.finalizers {
		job.run()
	}
	c.processZombies(d.zombies)
	if d.hook != nil {
		for _, info := range d.cycles {
			d.hook(info)
		}
	}
}

// withTick runs fn under the lock and then flushes any work a collection
// cycle triggered inside fn left behind.
func (c *Collector) withTick(fn func()) {
	var d deferred
	c.locked(func() {
		fn()
		d = c.takeDeferred()
	})
	c.runDeferred(d)
}

// ---------------------------------------------------------------------------
// Enable / disable / stress
// ---------------------------------------------------------------------------

// Enable allows threshold-driven collections.
func (c *Collector) Enable() {
	c.locked(func() { c.enabled = true })
}

// Disable suppresses threshold-driven collections. Explicit requests still
// collect.
func (c *Collector) Disable() {
	c.locked(func() { c.enabled = false })
}

// Enabled reports whether threshold-driven collection is on.
func (c *Collector) Enabled() bool {
	var on bool
	c.locked(func() { on = c.enabled })
	return on
}

// SetStress turns on collection at every scheduler tick.
func (c *Collector) SetStress(on bool) {
	c.locked(func() { c.stress = on })
}

// Stress reports whether stress mode is on.
func (c *Collector) Stress() bool {
	var on bool
	c.locked(func() { on = c.stress })
	return on
}

// Threshold returns the live-object count that triggers the next collection.
func (c *Collector) Threshold() int {
	var t int
	c.locked(func() { t = c.threshold })
	return t
}

// SetThreshold overrides the current collection threshold.
func (c *Collector) SetThreshold(n int) {
	c.locked(func() { c.threshold = n })
}

// IsCollecting reports whether a collection cycle is in progress.
func (c *Collector) IsCollecting() bool {
	return c.collecting.Load()
}

// StartCollection runs a scheduler tick that always collects.
func (c *Collector) StartCollection() {
	if c.epsilon {
		return
	}
	c.withTick(func() {
		c.forceCollect = true
		c.tick()
	})
}
