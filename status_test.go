package ecflash

import "testing"

func TestStatusRegisterString(t *testing.T) {
	tests := []struct {
		sr   StatusRegister
		want string
	}{
		{0x00, "00000000"},
		{0x1C, "00011100 BP2,BP1,BP0"},
		{0x03, "00000011 WEL,WIP"},
		{0x84, "10000100 SRWD,BP0"},
	}
	for _, tt := range tests {
		if got := tt.sr.String(); got != tt.want {
			t.Errorf("StatusRegister(0x%02X).String() = %q, want %q", byte(tt.sr), got, tt.want)
		}
	}
}

func TestStatusRegisterProtection(t *testing.T) {
	if got := StatusRegister(0xFF).Protection(); got != 0x1C {
		t.Errorf("Protection() = 0x%02X", byte(got))
	}
	if StatusRegister(0x02).Busy() || !StatusRegister(0x01).Busy() {
		t.Error("Busy() does not follow bit 0")
	}
}

func TestPieceStatus(t *testing.T) {
	for _, tt := range []struct {
		ps          PieceStatus
		done, error bool
	}{
		{0x00, false, false},
		{0x01, true, false},
		{0x03, true, true},
		{0x02, false, true},
	} {
		if tt.ps.Done() != tt.done || tt.ps.Error() != tt.error {
			t.Errorf("PieceStatus(0x%02X): done=%v error=%v", byte(tt.ps), tt.ps.Done(), tt.ps.Error())
		}
	}
}
