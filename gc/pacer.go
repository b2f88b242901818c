package gc

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Pacer: periodic collection requests
// ---------------------------------------------------------------------------

// DefaultPaceInterval is the default interval between pacer requests.
const DefaultPaceInterval = 100 * time.Millisecond

// Pacer periodically asks for a collection. While mutators are attached to
// the handshake it only raises a request, so the collection runs at the next
// safepoint; with no mutators attached it collects directly.
type Pacer struct {
	hs       *Handshake
	collect  func()
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	requests atomic.Uint64
	direct   atomic.Uint64
}

// NewPacer creates a pacer. Use DefaultPaceInterval for the default.
func NewPacer(hs *Handshake, collect func(), interval time.Duration) *Pacer {
	if interval <= 0 {
		interval = DefaultPaceInterval
	}
	p := &Pacer{
		hs:       hs,
		collect:  collect,
		interval: interval,
	}
	p.enabled.Store(true)
	return p
}

// Start begins the pacing goroutine. Calling Start twice is harmless.
func (p *Pacer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != nil {
		return
	}

	p.stop = make(chan struct{})
	p.stopped = make(chan struct{})

	stopCh := p.stop
	stoppedCh := p.stopped
	go p.loop(stopCh, stoppedCh)
}

// Stop halts the pacing goroutine and waits for it to exit. A collection
// already running is allowed to finish.
func (p *Pacer) Stop() {
	p.mu.Lock()
	stopCh := p.stop
	stoppedCh := p.stopped
	p.stop = nil
	p.stopped = nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled enables or disables pacing without stopping the goroutine.
func (p *Pacer) SetEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// IsEnabled returns whether pacing is enabled.
func (p *Pacer) IsEnabled() bool {
	return p.enabled.Load()
}

// Interval returns the pacing interval.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Requests returns how many handshake requests the pacer has raised.
func (p *Pacer) Requests() uint64 {
	return p.requests.Load()
}

// DirectCollections returns how many collections the pacer ran itself.
func (p *Pacer) DirectCollections() uint64 {
	return p.direct.Load()
}

// PaceNow acts as if the timer had fired.
func (p *Pacer) PaceNow() {
	p.pace()
}

func (p *Pacer) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if p.enabled.Load() {
				p.pace()
			}
		}
	}
}

func (p *Pacer) pace() {
	if p.hs != nil && p.hs.Attached() > 0 {
		p.hs.Request()
		p.requests.Add(1)
		return
	}
	p.collect()
	p.direct.Add(1)
}
