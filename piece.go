package ecflash

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/gentam/ecflash/internal/kb3310"
)

// PieceProgrammer writes the IE region by handing fixed size pieces to the
// EC firmware, which programs them itself. It does not use the XBI session.
type PieceProgrammer struct {
	bus *HardwareBus
	cfg *Config
	ctl *Controller
}

// Program writes req piece by piece. When the EC flags a program error the
// whole sequence restarts from the first piece, since the EC expects a fresh
// first-piece handshake.
func (p *PieceProgrammer) Program(req *Request) error {
	if req.Region != RegionIE {
		return &SequenceError{Op: "program pieces", Reason: req.Region.String() + " request"}
	}
	if err := req.validate(); err != nil {
		return err
	}

	addr := req.Addr()
	pieces := req.Pieces()
	glog.V(1).Infof("ie: programming %d pieces at 0x%06X", pieces, addr)

	for restarts := 0; ; restarts++ {
		failed, err := p.programAll(req, addr, pieces)
		if err != nil {
			return err
		}
		if !failed {
			break
		}
		if restarts >= p.cfg.MaxPieceRestarts {
			return &PieceError{Addr: addr, Restarts: restarts}
		}
		glog.Warningf("ie: EC reported program error, restarting from first piece")
	}

	p.cfg.report(Progress{Phase: PhaseCompleted, Done: int(req.Size), Total: int(req.Size)})
	return nil
}

// programAll runs one pass over all pieces. It reports failed when the EC
// flagged a program error and the pass has to start over.
func (p *PieceProgrammer) programAll(req *Request, addr uint32, pieces int) (failed bool, err error) {
	for i := range pieces {
		pieceAddr := addr + uint32(i)*kb3310.PieceSize

		st, err := p.waitReady()
		if err != nil {
			return false, &FlashError{Op: "piece status", Addr: pieceAddr, Err: err}
		}
		if st.Error() {
			glog.V(1).Infof("ie: piece status 0x%02X before piece %d", byte(st), i)
			return true, nil
		}

		marker := byte(kb3310.FirstPieceNo)
		if i == 0 && addr == kb3310.IEStartAddr {
			marker = kb3310.FirstPieceYes
		}
		p.bus.WriteReg(kb3310.RegPieceStart, marker)
		p.bus.WriteReg(kb3310.RegPieceStart+1, byte(pieceAddr))
		p.bus.WriteReg(kb3310.RegPieceStart+2, byte(pieceAddr>>8))
		p.bus.WriteReg(kb3310.RegPieceStart+3, byte(pieceAddr>>16))
		data := req.Buf[i*kb3310.PieceSize : (i+1)*kb3310.PieceSize]
		for j, b := range data {
			p.bus.WriteReg(uint16(kb3310.RegPieceStart+4+j), b)
		}

		if err := p.ctl.IssueCommand(kb3310.CmdProgramPiece); err != nil {
			return false, fmt.Errorf("program piece %d at 0x%06X: %w", i, pieceAddr, err)
		}

		p.cfg.report(Progress{Phase: PhasePieces, Done: (i + 1) * kb3310.PieceSize, Total: int(req.Size)})
	}
	return false, nil
}

// waitReady polls the piece status until the EC reports the previous piece
// as done.
func (p *PieceProgrammer) waitReady() (PieceStatus, error) {
	var st PieceStatus
	ok := poll(p.cfg.FlashTimeout, p.cfg.Delayer, p.cfg.RegDelay, func() bool {
		st = PieceStatus(p.bus.ReadReg(kb3310.RegPieceStatus))
		return st.Done()
	})
	if !ok {
		return st, &TimeoutError{Op: "piece status", Budget: p.cfg.FlashTimeout}
	}
	return st, nil
}
