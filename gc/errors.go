package gc

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Fatal conditions
// ---------------------------------------------------------------------------

// FatalKind classifies conditions the collector cannot recover from.
type FatalKind int

const (
	// ProtocolViolation is a missed write barrier detected in eager mode.
	ProtocolViolation FatalKind = iota + 1
	// InternalInvariantBroken covers unknown handles, double releases and
	// corrupted bookkeeping.
	InternalInvariantBroken
	// ResourceExhaustion means the collector could not grow its own
	// bookkeeping.
	ResourceExhaustion
)

func (k FatalKind) String() string {
	switch k {
	case ProtocolViolation:
		return "protocol violation"
	case InternalInvariantBroken:
		return "internal invariant broken"
	case ResourceExhaustion:
		return "resource exhaustion"
	default:
		return fmt.Sprintf("fatal(%d)", int(k))
	}
}

// FatalError is the panic value raised for fatal conditions. Hosts recover
// it at their outermost frame, report it and abort.
type FatalError struct {
	Kind FatalKind
	Msg  string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("wbcheck: %s: %s", e.Kind, e.Msg)
}

// AsFatal reports whether a recovered panic value is a *FatalError.
func AsFatal(r any) (*FatalError, bool) {
	fe, ok := r.(*FatalError)
	return fe, ok
}

func fatalf(kind FatalKind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger().Criticalf("%s: %s", kind, msg)
	panic(&FatalError{Kind: kind, Msg: msg})
}

// ---------------------------------------------------------------------------
// Recoverable errors
// ---------------------------------------------------------------------------

var (
	// ErrViolations is wrapped by Shutdown when missed write barriers were
	// recorded at any point during the process lifetime.
	ErrViolations = errors.New("write barrier violations recorded")

	// ErrNotIDValue is returned for object ids that were never issued.
	ErrNotIDValue = errors.New("not an id value")

	// ErrRecycledObject is returned for object ids whose object was freed.
	ErrRecycledObject = errors.New("recycled object")

	// ErrUnknownBackend is returned by New for an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown gc backend")

	// ErrUnknownStat is returned by StatKey for an unrecognised key.
	ErrUnknownStat = errors.New("unknown stat key")
)
