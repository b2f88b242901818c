// Package dump writes and reads CBOR snapshots of a collector's live heap.
// A dump records each live object's metadata and its last verified child
// list, which is enough to inspect the graph the collector traced.
package dump

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/chazu/wbcheck/gc"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dump: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Version is bumped whenever the record layout changes.
const Version = 1

// HeapDump is a point-in-time copy of every live object.
type HeapDump struct {
	Version uint8             `cbor:"1,keyasint"`
	Backend string            `cbor:"2,keyasint"`
	ID      [16]byte          `cbor:"3,keyasint"`
	Cycles  uint64            `cbor:"4,keyasint"`
	TakenAt int64             `cbor:"5,keyasint"` // unix nanoseconds
	Stats   map[string]uint64 `cbor:"6,keyasint,omitempty"`
	Objects []Record          `cbor:"7,keyasint,omitempty"`
}

// Record describes one object.
type Record struct {
	Handle      uint64   `cbor:"1,keyasint"`
	Size        uint16   `cbor:"2,keyasint"`
	WBProtected bool     `cbor:"3,keyasint"`
	Pinned      bool     `cbor:"4,keyasint,omitempty"`
	Lifecycle   uint8    `cbor:"5,keyasint"`
	Color       uint8    `cbor:"6,keyasint"`
	Finalizers  uint32   `cbor:"7,keyasint,omitempty"`
	Snapshot    []uint64 `cbor:"8,keyasint,omitempty"`
	WriteLog    []uint64 `cbor:"9,keyasint,omitempty"`
}

// Source is what Capture reads from; gc.Backend satisfies it.
type Source interface {
	Name() string
	ID() uuid.UUID
	Count() uint64
	Stat() map[string]uint64
	EachLiveObject(fn func(gc.ObjectReport) bool)
}

// Capture copies src's live heap.
func Capture(src Source, at time.Time) *HeapDump {
	d := &HeapDump{
		Version: Version,
		Backend: src.Name(),
		ID:      src.ID(),
		Cycles:  src.Count(),
		TakenAt: at.UnixNano(),
		Stats:   src.Stat(),
	}
	src.EachLiveObject(func(r gc.ObjectReport) bool {
		d.Objects = append(d.Objects, Record{
			Handle:      uint64(r.Handle),
			Size:        uint16(r.Size),
			WBProtected: r.WBProtected,
			Pinned:      r.Pinned,
			Lifecycle:   uint8(r.Lifecycle),
			Color:       uint8(r.Color),
			Finalizers:  uint32(r.Finalizers),
			Snapshot:    handles(r.Snapshot),
			WriteLog:    handles(r.WriteLog),
		})
		return true
	})
	return d
}

func handles(hs []gc.Handle) []uint64 {
	if len(hs) == 0 {
		return nil
	}
	out := make([]uint64, len(hs))
	for i, h := range hs {
		out[i] = uint64(h)
	}
	return out
}

// Instance returns the collector id the dump was taken from.
func (d *HeapDump) Instance() uuid.UUID {
	return uuid.UUID(d.ID)
}

// Time returns when the dump was taken.
func (d *HeapDump) Time() time.Time {
	return time.Unix(0, d.TakenAt)
}

// Find returns the record for h.
func (d *HeapDump) Find(h gc.Handle) (Record, bool) {
	for _, r := range d.Objects {
		if r.Handle == uint64(h) {
			return r, true
		}
	}
	return Record{}, false
}

// Edges returns the total number of snapshot references in the dump.
func (d *HeapDump) Edges() int {
	n := 0
	for _, r := range d.Objects {
		n += len(r.Snapshot)
	}
	return n
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Marshal serializes a dump to canonical CBOR.
func Marshal(d *HeapDump) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// Unmarshal deserializes a dump from CBOR bytes.
func Unmarshal(data []byte) (*HeapDump, error) {
	var d HeapDump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("dump: unmarshal: %w", err)
	}
	if d.Version != Version {
		return nil, fmt.Errorf("dump: unsupported version %d", d.Version)
	}
	return &d, nil
}

// WriteFile writes d to path.
func WriteFile(path string, d *HeapDump) error {
	data, err := Marshal(d)
	if err != nil {
		return fmt.Errorf("dump: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("dump: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads a dump written by WriteFile.
func ReadFile(path string) (*HeapDump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dump: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
