package ecflash

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/gentam/ecflash/internal/ecsim"
	"github.com/gentam/ecflash/internal/kb3310"
)

func markers(pieces []ecsim.Piece) []byte {
	var m []byte
	for _, p := range pieces {
		m = append(m, p.Marker)
	}
	return m
}

func TestProgramIE(t *testing.T) {
	d, ec, _ := newSimDevice(t, simFlashSize)
	payload := pattern(20)

	if err := d.ProgramIE(0, payload); err != nil {
		t.Fatalf("ProgramIE: %v", err)
	}

	pieces := ec.Pieces()
	if len(pieces) != 3 {
		t.Fatalf("%d pieces, want 3", len(pieces))
	}
	if got, want := markers(pieces), []byte{kb3310.FirstPieceYes, kb3310.FirstPieceNo, kb3310.FirstPieceNo}; !slices.Equal(got, want) {
		t.Errorf("markers = %X, want %X", got, want)
	}
	for i, p := range pieces {
		if want := uint32(kb3310.IEStartAddr + i*kb3310.PieceSize); p.Addr != want {
			t.Errorf("piece %d at 0x%06X, want 0x%06X", i, p.Addr, want)
		}
	}
	if got := pieces[2].Data; !bytes.Equal(got[:4], payload[16:]) || !bytes.Equal(got[4:], []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("last piece = %X, want payload tail padded with 0xFF", got)
	}

	flash := ec.Flash()
	if !bytes.Equal(flash[kb3310.IEStartAddr:kb3310.IEStartAddr+20], payload) {
		t.Error("IE region does not hold the payload")
	}
	if got := ec.Commands(); len(got) != 3 || got[0] != kb3310.CmdProgramPiece {
		t.Errorf("commands = %X, want 3x program piece", got)
	}
}

func TestProgramIEFirstPieceMarker(t *testing.T) {
	d, ec, _ := newSimDevice(t, simFlashSize)

	if err := d.ProgramIE(0, pattern(16)); err != nil {
		t.Fatalf("first ProgramIE: %v", err)
	}
	if err := d.ProgramIE(0x100, pattern(16)); err != nil {
		t.Fatalf("second ProgramIE: %v", err)
	}

	want := []byte{kb3310.FirstPieceYes, kb3310.FirstPieceNo, kb3310.FirstPieceNo, kb3310.FirstPieceNo}
	if got := markers(ec.Pieces()); !slices.Equal(got, want) {
		t.Errorf("markers = %X, want %X", got, want)
	}
	if got := ec.Pieces()[2].Addr; got != kb3310.IEStartAddr+0x100 {
		t.Errorf("second request starts at 0x%06X", got)
	}
}

func TestProgramIEPieceCount(t *testing.T) {
	for _, size := range []int{1, 7, 8, 9, 64, 1000} {
		d, ec, _ := newSimDevice(t, simFlashSize)
		if err := d.ProgramIE(0, pattern(size)); err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if got, want := len(ec.Pieces()), (size+7)/8; got != want {
			t.Errorf("size %d: %d pieces, want %d", size, got, want)
		}
	}
}

func TestProgramIERestartsOnError(t *testing.T) {
	d, ec, _ := newSimDevice(t, simFlashSize)
	ec.PieceErrorSkip = 2
	ec.PieceErrors = 1

	if err := d.ProgramIE(0, pattern(24)); err != nil {
		t.Fatalf("ProgramIE: %v", err)
	}
	pieces := ec.Pieces()
	want := []byte{
		kb3310.FirstPieceYes, kb3310.FirstPieceNo,
		kb3310.FirstPieceYes, kb3310.FirstPieceNo, kb3310.FirstPieceNo,
	}
	if got := markers(pieces); !slices.Equal(got, want) {
		t.Errorf("markers = %X, want %X", got, want)
	}
	if pieces[2].Addr != kb3310.IEStartAddr {
		t.Errorf("restart at 0x%06X, want the first piece", pieces[2].Addr)
	}
}

func TestProgramIEGivesUp(t *testing.T) {
	d, ec, _ := newSimDevice(t, simFlashSize, WithMaxPieceRestarts(2))
	ec.PieceErrors = 100

	err := d.ProgramIE(0, pattern(8))
	var pe *PieceError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *PieceError", err)
	}
	if pe.Restarts != 2 || pe.Addr != kb3310.IEStartAddr {
		t.Errorf("PieceError = %+v", pe)
	}
	if n := len(ec.Pieces()); n != 0 {
		t.Errorf("%d pieces handed over", n)
	}
}

func TestProgramIEStatusTimeout(t *testing.T) {
	d, ec, _ := newSimDevice(t, simFlashSize, WithFlashTimeout(5))
	ec.PieceStuck = true

	err := d.ProgramIE(0, pattern(8))
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want *TimeoutError", err)
	}
	var fe *FlashError
	if !errors.As(err, &fe) {
		t.Errorf("%v is not a *FlashError", err)
	}
	if got := ec.Reads(kb3310.RegPieceStatus); got != 5 {
		t.Errorf("%d piece status reads, want 5", got)
	}
}

func TestProgramIECommandTimeout(t *testing.T) {
	d, ec, _ := newSimDevice(t, simFlashSize, WithCommandTimeout(3))
	ec.CmdStuck = true

	err := d.ProgramIE(0, pattern(16))
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want *TimeoutError", err)
	}
	if n := len(ec.Commands()); n != 1 {
		t.Errorf("%d commands issued after the first one hung", n)
	}
}

func TestProgramIEProgress(t *testing.T) {
	var got []Progress
	d, _, _ := newSimDevice(t, simFlashSize, WithProgress(func(p Progress) {
		got = append(got, p)
	}))

	if err := d.ProgramIE(0, pattern(16)); err != nil {
		t.Fatalf("ProgramIE: %v", err)
	}
	want := []Progress{
		{Phase: PhasePieces, Done: 8, Total: 16},
		{Phase: PhasePieces, Done: 16, Total: 16},
		{Phase: PhaseCompleted, Done: 16, Total: 16},
	}
	if !slices.Equal(got, want) {
		t.Errorf("progress = %v, want %v", got, want)
	}
}

func TestPieceProgrammerRejects(t *testing.T) {
	d, ec, _ := newSimDevice(t, simFlashSize)

	rom, err := NewROMRequest(pattern(8))
	if err != nil {
		t.Fatal(err)
	}
	var se *SequenceError
	if err := d.IE.Program(rom); !errors.As(err, &se) {
		t.Errorf("ROM request: got %v, want *SequenceError", err)
	}

	short := &Request{Region: RegionIE, Size: 16, Buf: make([]byte, 8)}
	var re *ResourceError
	if err := d.IE.Program(short); !errors.As(err, &re) {
		t.Errorf("short buffer: got %v, want *ResourceError", err)
	}

	partial := &Request{Region: RegionIE, Size: 12, Buf: make([]byte, 12)}
	var rng *RangeError
	if err := d.IE.Program(partial); !errors.As(err, &rng) {
		t.Errorf("partial piece: got %v, want *RangeError", err)
	}
	if n := len(ec.Pieces()); n != 0 {
		t.Errorf("%d pieces sent for rejected requests", n)
	}
}
