package ecflash

import "github.com/gentam/ecflash/internal/kb3310"

type chipParams struct {
	name string

	// readCmd is the opcode used for single byte reads. Spansion parts on
	// these boards return garbage on HIGH_SPEED_READ through XBI.
	readCmd byte
}

// Manufacturer IDs, first byte of the JEDEC ID.
const (
	romIDSpansion = 0x01
	romIDMXIC     = 0xC2
	romIDAMIC     = 0x37
	romIDEON      = 0x1C
)

var knownChips = map[byte]chipParams{
	romIDSpansion: {name: "Spansion", readCmd: kb3310.SPICmdReadByte},
	romIDMXIC:     {name: "MXIC", readCmd: kb3310.SPICmdHighSpeedRead},
	romIDAMIC:     {name: "AMIC", readCmd: kb3310.SPICmdHighSpeedRead},
	romIDEON:      {name: "EON", readCmd: kb3310.SPICmdHighSpeedRead},
}

// readCmd returns the read opcode for the identified chip. Without
// identification every chip is read with HIGH_SPEED_READ; an identified but
// unknown chip falls back to plain READ.
func (f *Flash) readCmd() byte {
	if f.chip != nil {
		return f.chip.readCmd
	}
	if f.identified {
		return kb3310.SPICmdReadByte
	}
	return kb3310.SPICmdHighSpeedRead
}

// ChipName returns the manufacturer name of the identified chip, or an empty
// string if the chip was not identified or is not known.
func (f *Flash) ChipName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chip == nil {
		return ""
	}
	return f.chip.name
}
