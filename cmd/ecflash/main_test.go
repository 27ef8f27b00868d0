package main

import (
	"errors"
	"io"
	"testing"

	"github.com/gentam/ecflash"
	"github.com/gentam/ecflash/internal/ecsim"
)

// useSim routes openDevice to a fresh simulated EC and returns it.
func useSim(t *testing.T) *ecsim.EC {
	t.Helper()
	ec := ecsim.New(simFlashSize)
	oldSim, oldNew := simulate, newSimEC
	simulate = true
	newSimEC = func() *ecsim.EC { return ec }
	t.Cleanup(func() {
		simulate, newSimEC = oldSim, oldNew
	})
	return ec
}

func TestWithDeviceHaltsOnError(t *testing.T) {
	ec := useSim(t)
	errTest := errors.New("test failure")

	err := withDevice(func(d *ecflash.Device) error {
		if ec.Closed() {
			t.Error("device halted before fn ran")
		}
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Errorf("got %v, want %v", err, errTest)
	}
	if !ec.Closed() {
		t.Error("device not halted when fn failed")
	}
}

func TestWithDeviceHaltsOnSuccess(t *testing.T) {
	ec := useSim(t)

	if err := withDevice(func(d *ecflash.Device) error { return nil }); err != nil {
		t.Fatalf("withDevice: %v", err)
	}
	if !ec.Closed() {
		t.Error("device not halted")
	}
}

func TestProgressBarFollowsPaddedTotal(t *testing.T) {
	ec := useSim(t)
	payload := []byte("thirteen byte")

	bar := newProgressBar(len(payload))
	bar.bar.Output = io.Discard
	var last ecflash.Progress
	err := withDevice(func(d *ecflash.Device) error {
		return d.ProgramIE(0, payload)
	}, ecflash.WithProgress(func(p ecflash.Progress) {
		last = p
		bar.update(p)
	}))
	bar.finish()
	if err != nil {
		t.Fatalf("ProgramIE: %v", err)
	}

	if last.Total != 16 {
		t.Fatalf("reported total %d, want the padded 16", last.Total)
	}
	if bar.bar.Total != int64(last.Total) {
		t.Errorf("bar total %d, want %d", bar.bar.Total, last.Total)
	}
	if n := len(ec.Pieces()); n != 2 {
		t.Errorf("%d pieces programmed, want 2", n)
	}
}

func TestProgressBarKeepsTotalWithoutReport(t *testing.T) {
	bar := newProgressBar(100)
	bar.bar.Output = io.Discard
	bar.update(ecflash.Progress{Phase: ecflash.PhaseErase})
	bar.finish()
	if bar.bar.Total != 100 {
		t.Errorf("bar total %d, want 100", bar.bar.Total)
	}
}
