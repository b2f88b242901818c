package gc

// Lifecycle tracks how far an object's snapshot can be trusted.
type Lifecycle uint8

const (
	// Clear: no baseline snapshot yet; barriers are not recorded.
	Clear Lifecycle = iota
	// Marked: the snapshot is authoritative as of the last capture.
	Marked
	// Dirty: barriers were recorded and an eager verification is pending.
	Dirty
)

func (l Lifecycle) String() string {
	switch l {
	case Clear:
		return "clear"
	case Marked:
		return "marked"
	case Dirty:
		return "dirty"
	default:
		return "invalid"
	}
}

// Color is the tri-color marking state.
type Color uint8

const (
	White Color = iota
	Gray
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Gray:
		return "gray"
	case Black:
		return "black"
	default:
		return "invalid"
	}
}

type teardown struct {
	fn  TeardownFunc
	arg any
}

// ObjectInfo is the collector's side-table entry for one live object. It is
// owned exclusively by the Registry and only touched under the collector lock.
type ObjectInfo struct {
	allocSize   int
	sizeClass   int
	wbProtected bool
	pinned      bool
	zombie      bool

	finalizers []*Finalizer
	snapshot   *RefList
	writeLog   *RefList
	teardown   *teardown
	storage    []byte

	lifecycle Lifecycle
	color     Color
}

// Size returns the slot size the object was allocated in.
func (o *ObjectInfo) Size() int { return o.allocSize }

// WBProtected reports whether barriers are recorded for the object.
func (o *ObjectInfo) WBProtected() bool { return o.wbProtected }

// Lifecycle returns the snapshot state.
func (o *ObjectInfo) Lifecycle() Lifecycle { return o.lifecycle }

// Color returns the marking color.
func (o *ObjectInfo) Color() Color { return o.color }

// Snapshot returns a copy of the last captured child list.
func (o *ObjectInfo) Snapshot() []Handle { return o.snapshot.Slice() }

// WriteLog returns a copy of the barrier log since the last capture.
func (o *ObjectInfo) WriteLog() []Handle { return o.writeLog.Slice() }

func (o *ObjectInfo) hasFinalizers() bool { return len(o.finalizers) > 0 }

// dropSnapshot returns the object to Clear, honouring the invariant that a
// Clear object carries neither a snapshot nor a write log.
func (o *ObjectInfo) dropSnapshot() {
	o.snapshot.Free()
	o.writeLog.Free()
	o.snapshot = nil
	o.writeLog = nil
	o.lifecycle = Clear
}
