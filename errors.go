package ecflash

import (
	"errors"
	"fmt"
)

// ErrFlashBusy is reported when the flash chip keeps its write-in-progress
// bit set across all status reads at the start of a transaction.
var ErrFlashBusy = errors.New("flash busy")

// TimeoutError indicates that a polling loop used up its iteration budget.
type TimeoutError struct {
	Op     string
	Budget int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s (budget %d polls)", e.Op, e.Budget)
}

// VerificationError indicates that a programmed byte did not read back
// correctly after one retry. The ROM is partially programmed at this point.
type VerificationError struct {
	Addr uint32
	Want byte
	Got  byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify failed at 0x%06X: wrote 0x%02X, read 0x%02X", e.Addr, e.Want, e.Got)
}

// ResourceError indicates that a resource needed for a request could not be
// obtained, such as the I/O port device or a complete request buffer.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resource %s unavailable", e.Resource)
	}
	return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// SequenceError indicates an operation attempted in a state where the bus or
// mode discipline does not allow it.
type SequenceError struct {
	Op     string
	Reason string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s: protocol sequence violated: %s", e.Op, e.Reason)
}

// FlashError reports a failed flash transaction.
type FlashError struct {
	Op   string
	Addr uint32
	Err  error
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("flash %s at 0x%06X: %v", e.Op, e.Addr, e.Err)
}

func (e *FlashError) Unwrap() error { return e.Err }

// PieceError indicates that the EC kept flagging program errors on the IE
// region and the piece sequence was restarted too many times.
type PieceError struct {
	Addr     uint32
	Restarts int
}

func (e *PieceError) Error() string {
	return fmt.Sprintf("piece program at 0x%06X: EC reported program error, gave up after %d restarts",
		e.Addr, e.Restarts)
}

// RangeError indicates a request outside the accepted address window.
type RangeError struct {
	Op     string
	Addr   uint32
	Size   uint32
	Limit  uint32
	Reason string // set when the request is malformed rather than too large
}

func (e *RangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	if e.Size == 0 {
		return fmt.Sprintf("%s: address 0x%X out of range (limit 0x%X)", e.Op, e.Addr, e.Limit)
	}
	return fmt.Sprintf("%s: 0x%X bytes at 0x%X out of range (limit 0x%X)", e.Op, e.Size, e.Addr, e.Limit)
}
