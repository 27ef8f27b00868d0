package ecflash

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gentam/ecflash/internal/kb3310"
)

func TestNewIERequest(t *testing.T) {
	tests := []struct {
		name     string
		start    uint32
		size     int
		wantSize uint32
		wantErr  any
	}{
		{"one byte", 0, 1, 8, nil},
		{"aligned", 0x40, 16, 16, nil},
		{"unaligned", 0x10, 13, 16, nil},
		{"window", 0, kb3310.ROMMaxSize, kb3310.ROMMaxSize, nil},
		{"empty", 0, 0, 0, &RangeError{}},
		{"too large", 0, kb3310.ROMMaxSize + 1, 0, &RangeError{}},
		{"start past window", kb3310.ROMMaxSize + 1, 8, 0, &RangeError{}},
		{"past region", kb3310.IEMaxSize - 4, 8, 0, &RangeError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := pattern(tt.size)
			req, err := NewIERequest(tt.start, payload)
			switch want := tt.wantErr.(type) {
			case *RangeError:
				if !errors.As(err, &want) {
					t.Fatalf("got %v, want *RangeError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewIERequest: %v", err)
			}
			if req.Size != tt.wantSize || len(req.Buf) != int(tt.wantSize) {
				t.Fatalf("size %d, buf %d, want %d", req.Size, len(req.Buf), tt.wantSize)
			}
			if req.Size%kb3310.PieceSize != 0 {
				t.Errorf("size %d not a piece multiple", req.Size)
			}
			if !bytes.Equal(req.Buf[:tt.size], payload) {
				t.Error("payload not copied")
			}
			for i, b := range req.Buf[tt.size:] {
				if b != 0xFF {
					t.Errorf("pad byte %d = 0x%02X", i, b)
				}
			}
			if got := req.Addr(); got != kb3310.IEStartAddr+tt.start {
				t.Errorf("Addr() = 0x%X", got)
			}
			if got := req.Pieces(); got != (tt.size+7)/8 {
				t.Errorf("Pieces() = %d", got)
			}
		})
	}
}

func TestNewROMRequest(t *testing.T) {
	payload := pattern(100)
	req, err := NewROMRequest(payload)
	if err != nil {
		t.Fatalf("NewROMRequest: %v", err)
	}
	if req.Region != RegionROM || req.Size != 100 || req.Addr() != kb3310.ROMStartAddr {
		t.Errorf("request = %+v", req)
	}
	payload[0] = 0xAA
	if req.Buf[0] != 0 {
		t.Error("request shares the caller's buffer")
	}

	if _, err := NewROMRequest(make([]byte, kb3310.ROMMaxSize)); err != nil {
		t.Errorf("full size ROM: %v", err)
	}
	var re *RangeError
	if _, err := NewROMRequest(make([]byte, kb3310.ROMMaxSize+1)); !errors.As(err, &re) {
		t.Errorf("oversized ROM: got %v, want *RangeError", err)
	}
	for _, empty := range [][]byte{nil, {}} {
		if req, err := NewROMRequest(empty); !errors.As(err, &re) || req != nil {
			t.Errorf("empty ROM: got %v, %v, want *RangeError", req, err)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr any
	}{
		{"ie", &Request{Region: RegionIE, Size: 16, Buf: make([]byte, 16)}, nil},
		{"rom odd size", &Request{Region: RegionROM, Size: 13, Buf: make([]byte, 13)}, nil},
		{"empty ie", &Request{Region: RegionIE}, &RangeError{}},
		{"empty rom", &Request{Region: RegionROM}, &RangeError{}},
		{"ie partial piece", &Request{Region: RegionIE, Size: 12, Buf: make([]byte, 12)}, &RangeError{}},
		{"short buffer", &Request{Region: RegionIE, Size: 16, Buf: make([]byte, 8)}, &ResourceError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.validate()
			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Errorf("validate: %v", err)
				}
			case *RangeError:
				if !errors.As(err, &want) {
					t.Errorf("got %v, want *RangeError", err)
				}
			case *ResourceError:
				if !errors.As(err, &want) {
					t.Errorf("got %v, want *ResourceError", err)
				}
			}
		})
	}
}

func TestRegion(t *testing.T) {
	if RegionROM.String() != "ROM" || RegionIE.String() != "IE" {
		t.Errorf("names %q %q", RegionROM, RegionIE)
	}
	if RegionROM.Base() != 0 || RegionIE.Base() != 0x20000 {
		t.Errorf("bases 0x%X 0x%X", RegionROM.Base(), RegionIE.Base())
	}
}
