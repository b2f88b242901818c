package gc

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPacerDefaults(t *testing.T) {
	p := NewPacer(nil, func() {}, 0)
	if p.Interval() != DefaultPaceInterval {
		t.Errorf("interval = %v, want %v", p.Interval(), DefaultPaceInterval)
	}
	if !p.IsEnabled() {
		t.Error("new pacer should be enabled")
	}
}

func TestPacerCollectsDirectlyWithoutMutators(t *testing.T) {
	hs := NewHandshake()
	var n atomic.Int32
	p := NewPacer(hs, func() { n.Add(1) }, time.Hour)
	p.PaceNow()
	if n.Load() != 1 || p.DirectCollections() != 1 || p.Requests() != 0 {
		t.Errorf("collections=%d direct=%d requests=%d", n.Load(), p.DirectCollections(), p.Requests())
	}
	if hs.Pending() {
		t.Error("pacer raised a request with no mutators attached")
	}
}

func TestPacerRequestsThroughHandshake(t *testing.T) {
	hs := NewHandshake()
	hs.Attach()
	defer hs.Detach()

	var n atomic.Int32
	p := NewPacer(hs, func() { n.Add(1) }, time.Hour)
	p.PaceNow()
	if n.Load() != 0 {
		t.Error("pacer collected while a mutator was attached")
	}
	if !hs.Pending() || p.Requests() != 1 {
		t.Fatalf("pending=%t requests=%d", hs.Pending(), p.Requests())
	}
	hs.Safepoint(func() { n.Add(1) })
	if n.Load() != 1 {
		t.Errorf("collections = %d after safepoint", n.Load())
	}
}

func TestPacerStartStop(t *testing.T) {
	var n atomic.Int32
	p := NewPacer(nil, func() { n.Add(1) }, 5*time.Millisecond)
	p.Start()
	p.Start()

	deadline := time.Now().Add(5 * time.Second)
	for n.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("pacer never fired")
		}
		time.Sleep(time.Millisecond)
	}
	p.Stop()
	p.Stop()

	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	if n.Load() != after {
		t.Error("pacer fired after Stop")
	}
}

func TestPacerDisabledSkips(t *testing.T) {
	var n atomic.Int32
	p := NewPacer(nil, func() { n.Add(1) }, 2*time.Millisecond)
	p.SetEnabled(false)
	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	if n.Load() != 0 {
		t.Errorf("disabled pacer collected %d times", n.Load())
	}
}
