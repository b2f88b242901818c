package arena

import "errors"

var (
	ErrNoObject     = errors.New("no such object")
	ErrSlotRange    = errors.New("slot index out of range")
	ErrTooManySlots = errors.New("object too large")
	ErrClosed       = errors.New("arena closed")
)
