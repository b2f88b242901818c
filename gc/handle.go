package gc

import "fmt"

// Handle is an opaque reference to a managed object. The zero Handle is Nil.
//
// Heap handles are multiples of handleAlign, handed out monotonically by the
// allocator. Any handle with one of the low bits set is an immediate value
// and never refers to registry metadata.
type Handle uint64

// Nil is the null reference.
const Nil Handle = 0

const (
	handleAlign = 8
	handleMask  = handleAlign - 1
)

// Immediate encodes a small integer as a non-heap handle.
func Immediate(v int64) Handle {
	return Handle(uint64(v)<<3 | 1)
}

// IsHeap reports whether h refers to a heap object.
func (h Handle) IsHeap() bool {
	return h != Nil && h&handleMask == 0
}

// IsImmediate reports whether h encodes an immediate value.
func (h Handle) IsImmediate() bool {
	return h&handleMask != 0
}

// ImmediateValue decodes an immediate handle. The result is meaningless for
// heap handles.
func (h Handle) ImmediateValue() int64 {
	return int64(h) >> 3
}

func (h Handle) String() string {
	switch {
	case h == Nil:
		return "nil"
	case h.IsImmediate():
		return fmt.Sprintf("imm(%d)", h.ImmediateValue())
	default:
		return fmt.Sprintf("0x%x", uint64(h))
	}
}
