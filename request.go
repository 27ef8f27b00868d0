package ecflash

import (
	"bytes"
	"fmt"

	"github.com/gentam/ecflash/internal/kb3310"
)

// Region is one of the two logical address spaces of the flash.
type Region int

const (
	RegionROM Region = iota // EC firmware, programmed byte by byte over XBI
	RegionIE                // information element, programmed in pieces by the EC
)

func (r Region) String() string {
	if r == RegionIE {
		return "IE"
	}
	return "ROM"
}

// Base returns the flash address of offset 0 in the region.
func (r Region) Base() uint32 {
	if r == RegionIE {
		return kb3310.IEStartAddr
	}
	return kb3310.ROMStartAddr
}

// Request is one programming job. Buf is owned by the request.
type Request struct {
	Region    Region
	StartAddr uint32 // offset from the region base
	Size      uint32
	Buf       []byte
}

// Addr returns the absolute flash address of the first byte.
func (r *Request) Addr() uint32 {
	return r.Region.Base() + r.StartAddr
}

// Pieces returns the number of PieceSize chunks in the request.
func (r *Request) Pieces() int {
	return int(r.Size / kb3310.PieceSize)
}

// NewROMRequest validates payload against the ROM ceiling and copies it.
func NewROMRequest(payload []byte) (*Request, error) {
	size := uint32(len(payload))
	if size == 0 {
		return nil, &RangeError{Op: "program rom", Limit: kb3310.ROMMaxSize, Reason: "empty payload"}
	}
	if size > kb3310.ROMMaxSize {
		return nil, &RangeError{Op: "program rom", Size: size, Limit: kb3310.ROMMaxSize}
	}
	return &Request{
		Region:    RegionROM,
		StartAddr: 0,
		Size:      size,
		Buf:       bytes.Clone(payload),
	}, nil
}

// NewIERequest validates a request for the IE region and pads the buffer with
// 0xFF up to the next PieceSize multiple.
func NewIERequest(start uint32, payload []byte) (*Request, error) {
	size := uint32(len(payload))
	if uint64(start)+uint64(size) > kb3310.IEMaxSize {
		return nil, &RangeError{Op: "program ie", Addr: start, Size: size, Limit: kb3310.IEMaxSize}
	}
	// The EC transfer window only reaches 64KB into the region.
	if size > kb3310.ROMMaxSize || start > kb3310.ROMMaxSize {
		return nil, &RangeError{Op: "program ie", Addr: start, Size: size, Limit: kb3310.ROMMaxSize}
	}
	if size == 0 {
		return nil, &RangeError{Op: "program ie", Addr: start, Limit: kb3310.IEMaxSize, Reason: "empty payload"}
	}

	padded := (size + kb3310.PieceSize - 1) / kb3310.PieceSize * kb3310.PieceSize
	buf := bytes.Repeat([]byte{0xFF}, int(padded))
	copy(buf, payload)
	return &Request{
		Region:    RegionIE,
		StartAddr: start,
		Size:      padded,
		Buf:       buf,
	}, nil
}

func (r *Request) validate() error {
	op := r.Region.String() + " request"
	if r.Size == 0 {
		return &RangeError{Op: op, Addr: r.StartAddr, Reason: "empty request"}
	}
	if r.Region == RegionIE && r.Size%kb3310.PieceSize != 0 {
		return &RangeError{
			Op:     op,
			Addr:   r.StartAddr,
			Size:   r.Size,
			Reason: fmt.Sprintf("size 0x%X is not a multiple of %d", r.Size, kb3310.PieceSize),
		}
	}
	if uint32(len(r.Buf)) < r.Size {
		return &ResourceError{
			Resource: r.Region.String() + " buffer",
			Err:      fmt.Errorf("have %d bytes, request declares %d", len(r.Buf), r.Size),
		}
	}
	return nil
}
