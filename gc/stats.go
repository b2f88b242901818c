package gc

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

type counters struct {
	count                uint64
	allocatedObjects     uint64
	freedObjects         uint64
	writeBarriers        uint64
	verifiedObjects      uint64
	violations           uint64
	missedReferences     uint64
	uselessWriteBarriers uint64
	weakSlotsCleared     uint64
	zombieCount          int
}

// HeapStats describes one size class.
type HeapStats struct {
	SlotSize         int
	LiveSlots        int
	FinalSlots       int
	AllocatedObjects uint64
	FreedObjects     uint64
}

// CycleInfo summarises one collection cycle.
type CycleInfo struct {
	Cycle      uint64
	Reason     string
	LiveBefore int
	LiveAfter  int
	Freed      int
	Zombies    int
	Violations uint64
	Threshold  int
	Duration   time.Duration
}

// ObjectReport is a point-in-time copy of one object's metadata.
type ObjectReport struct {
	Handle      Handle
	Size        int
	WBProtected bool
	Pinned      bool
	Zombie      bool
	Lifecycle   Lifecycle
	Color       Color
	Finalizers  int
	Snapshot    []Handle
	WriteLog    []Handle
}

// Stat keys, as reported by Stat.
const (
	StatCount                 = "count"
	StatHeapLiveSlots         = "heap_live_slots"
	StatHeapFinalSlots        = "heap_final_slots"
	StatTotalAllocatedObjects = "total_allocated_objects"
	StatTotalFreedObjects     = "total_freed_objects"
	StatHeapAllocatedBytes    = "heap_allocated_bytes"
	StatThreshold             = "threshold"
	StatWriteBarriers         = "write_barriers"
	StatVerifiedObjects       = "verified_objects"
	StatWBViolations          = "wb_violations"
	StatMissedReferences      = "missed_references"
	StatUselessWriteBarriers  = "useless_write_barriers"
	StatWeakSlotsCleared      = "weak_slots_cleared"
)

func (c *Collector) statLocked() map[string]uint64 {
	var bytes uint64
	for _, hs := range c.heapStats {
		bytes += uint64(hs.LiveSlots+hs.FinalSlots) * uint64(hs.SlotSize)
	}
	return map[string]uint64{
		StatCount:                 c.stats.count,
		StatHeapLiveSlots:         uint64(c.liveCount()),
		StatHeapFinalSlots:        uint64(c.stats.zombieCount),
		StatTotalAllocatedObjects: c.stats.allocatedObjects,
		StatTotalFreedObjects:     c.stats.freedObjects,
		StatHeapAllocatedBytes:    bytes,
		StatThreshold:             uint64(c.threshold),
		StatWriteBarriers:         c.stats.writeBarriers,
		StatVerifiedObjects:       c.stats.verifiedObjects,
		StatWBViolations:          c.stats.violations,
		StatMissedReferences:      c.stats.missedReferences,
		StatUselessWriteBarriers:  c.stats.uselessWriteBarriers,
		StatWeakSlotsCleared:      c.stats.weakSlotsCleared,
	}
}

// Stat returns every statistic keyed by name.
func (c *Collector) Stat() map[string]uint64 {
	var m map[string]uint64
	c.locked(func() { m = c.statLocked() })
	return m
}

// StatKey returns a single statistic.
func (c *Collector) StatKey(key string) (uint64, error) {
	v, ok := c.Stat()[key]
	if !ok {
		return 0, fmt.Errorf("gc: %q: %w", key, ErrUnknownStat)
	}
	return v, nil
}

// StatHeap returns the statistics of one size class.
func (c *Collector) StatHeap(class int) HeapStats {
	if class < 0 || class >= numSizeClasses {
		return HeapStats{}
	}
	var hs HeapStats
	c.locked(func() { hs = c.heapStats[class] })
	return hs
}

// Count returns the number of completed collection cycles.
func (c *Collector) Count() uint64 {
	var n uint64
	c.locked(func() { n = c.stats.count })
	return n
}

// Violations returns the number of objects found with missed barriers.
func (c *Collector) Violations() uint64 {
	var n uint64
	c.locked(func() { n = c.stats.violations })
	return n
}

// LatestGCInfo describes the most recent cycle.
func (c *Collector) LatestGCInfo() CycleInfo {
	var info CycleInfo
	c.locked(func() { info = c.lastCycle })
	return info
}

// SetCycleHook installs fn to be called after each cycle, outside the lock.
func (c *Collector) SetCycleHook(fn func(CycleInfo)) {
	c.locked(func() { c.hook = fn })
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

func (c *Collector) report(h Handle, info *ObjectInfo) ObjectReport {
	return ObjectReport{
		Handle:      h,
		Size:        info.allocSize,
		WBProtected: info.wbProtected,
		Pinned:      info.pinned,
		Zombie:      info.zombie,
		Lifecycle:   info.lifecycle,
		Color:       info.color,
		Finalizers:  len(info.finalizers),
		Snapshot:    info.snapshot.Slice(),
		WriteLog:    info.writeLog.Slice(),
	}
}

// Describe returns a report for h, or false if h is not a live object.
func (c *Collector) Describe(h Handle) (ObjectReport, bool) {
	var (
		r  ObjectReport
		ok bool
	)
	c.locked(func() {
		var info *ObjectInfo
		if info, ok = c.registry.Get(h); ok {
			r = c.report(h, info)
		}
	})
	return r, ok
}

// EachLiveObject calls fn for every live object in handle order until fn
// returns false. The reports are copied under the lock and fn runs without
// it.
func (c *Collector) EachLiveObject(fn func(ObjectReport) bool) {
	var reports []ObjectReport
	c.locked(func() {
		for _, h := range c.registry.Handles() {
			info := c.registry.Lookup(h)
			if info.zombie {
				continue
			}
			reports = append(reports, c.report(h, info))
		}
	})
	for _, r := range reports {
		if !fn(r) {
			return
		}
	}
}

// FormatStats writes a human-readable summary of b's statistics.
func FormatStats(w io.Writer, b Backend) {
	stats := b.Stat()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "backend %s (%s)\n", b.Name(), b.ID())
	for _, k := range keys {
		v := stats[k]
		if k == StatHeapAllocatedBytes {
			fmt.Fprintf(w, "  %-24s %s\n", k, humanize.Bytes(v))
			continue
		}
		fmt.Fprintf(w, "  %-24s %s\n", k, humanize.Comma(int64(v)))
	}
	for i := 0; i < numSizeClasses; i++ {
		hs := b.StatHeap(i)
		fmt.Fprintf(w, "  heap[%d] %s slots: live=%s final=%s allocated=%s freed=%s\n",
			i, humanize.Bytes(uint64(hs.SlotSize)),
			humanize.Comma(int64(hs.LiveSlots)), humanize.Comma(int64(hs.FinalSlots)),
			humanize.Comma(int64(hs.AllocatedObjects)), humanize.Comma(int64(hs.FreedObjects)))
	}
}
