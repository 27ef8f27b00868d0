package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/marcinbor85/gohex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/gentam/ecflash"
	"github.com/gentam/ecflash/internal/kb3310"
)

// image is a firmware file loaded into memory. Addr is the flash address of
// the first byte for Intel HEX files and zero for raw binaries.
type image struct {
	Addr uint32
	Data []byte
}

func loadImage(filename string) (*image, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hex", ".ihex":
	default:
		return &image{Data: raw}, nil
	}

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: no data", filename)
	}
	start := segments[0].Address
	end := start
	for _, s := range segments {
		start = min(start, s.Address)
		end = max(end, s.Address+uint32(len(s.Data)))
	}
	glog.V(1).Infof("%s: %d segments, 0x%06X-0x%06X", filename, len(segments), start, end)
	return &image{Addr: start, Data: mem.ToBinary(start, end-start, 0xFF)}, nil
}

func addImageFlag(fs *pflag.FlagSet, p *string) {
	fs.StringVarP(p, "file", "f", "", "input file, raw binary or Intel HEX (.hex)")
}

// progressBar renders programming progress on stderr.
type progressBar struct {
	bar   *pb.ProgressBar
	phase ecflash.Phase
}

func newProgressBar(total int) *progressBar {
	bar := pb.New(total)
	bar.SetUnits(pb.U_BYTES)
	bar.Output = os.Stderr
	bar.ManualUpdate = true
	return &progressBar{bar: bar}
}

func (p *progressBar) update(pr ecflash.Progress) {
	if p.phase == "" {
		p.bar.Start()
	}
	// IE payloads are padded to whole pieces
	if pr.Total > 0 && int64(pr.Total) != p.bar.Total {
		p.bar.Total = int64(pr.Total)
	}
	if pr.Phase != p.phase {
		p.phase = pr.Phase
		p.bar.Prefix(fmt.Sprintf("%-9s", pr.Phase))
	}
	p.bar.Set(pr.Done)
	p.bar.Update()
}

func (p *progressBar) finish() {
	if p.phase != "" {
		p.bar.Finish()
	}
}

var programROMOpts struct {
	filename string
	yes      bool
}

var programROMCmd = &cobra.Command{
	Use:   "program-rom",
	Short: "Replace the EC firmware and reboot",
	Long: `Erase the first flash block, program the EC firmware byte by byte with
read back verification, restore block protection and reboot the machine.

There is no rollback. If programming fails the EC stays in reset mode and the
machine may not boot until the command is run again successfully.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if programROMOpts.filename == "" {
			fatalUsage("input file is required")
		}
		if !programROMOpts.yes && !simulate {
			fatalUsage("program-rom reboots the machine; pass --yes to continue")
		}

		img, err := loadImage(programROMOpts.filename)
		if err != nil {
			fatalf("failed to load image: %v", err)
		}
		if img.Addr != kb3310.ROMStartAddr {
			fatalf("image starts at 0x%06X, ROM images must start at 0", img.Addr)
		}

		bar := newProgressBar(len(img.Data))
		err = withDevice(func(d *ecflash.Device) error {
			return d.ProgramROM(img.Data)
		}, ecflash.WithProgress(bar.update))
		bar.finish()
		if err != nil {
			fatalf("program ROM failed: %v", err)
		}
		fmt.Fprintf(os.Stderr, "programmed %d bytes, system reboot requested\n", len(img.Data))
	},
}

var programIEOpts struct {
	filename string
	start    uint32
}

var programIECmd = &cobra.Command{
	Use:   "program-ie",
	Short: "Program the IE region through the EC firmware",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if programIEOpts.filename == "" {
			fatalUsage("input file is required")
		}

		img, err := loadImage(programIEOpts.filename)
		if err != nil {
			fatalf("failed to load image: %v", err)
		}
		start := programIEOpts.start
		if !cmd.Flags().Changed("start") && img.Addr >= kb3310.IEStartAddr {
			start = img.Addr - kb3310.IEStartAddr
		}

		bar := newProgressBar(len(img.Data))
		err = withDevice(func(d *ecflash.Device) error {
			return d.ProgramIE(start, img.Data)
		}, ecflash.WithProgress(bar.update))
		bar.finish()
		if err != nil {
			fatalf("program IE failed: %v", err)
		}
		fmt.Fprintf(os.Stderr, "programmed %d bytes at IE offset 0x%X\n", len(img.Data), start)
	},
}

func init() {
	fs := programROMCmd.Flags()
	addImageFlag(fs, &programROMOpts.filename)
	fs.BoolVar(&programROMOpts.yes, "yes", false, "confirm that the machine reboots after programming")

	fs = programIECmd.Flags()
	addImageFlag(fs, &programIEOpts.filename)
	fs.Uint32VarP(&programIEOpts.start, "start", "s", 0, "offset into the IE region")
}
