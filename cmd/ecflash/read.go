package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gentam/ecflash"
)

var readOpts struct {
	addr    uint32
	n       int
	outFile string
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read flash memory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if readOpts.n <= 0 {
			fatalUsage("count must be positive")
		}

		var data []byte
		err := withDevice(func(d *ecflash.Device) error {
			var err error
			data, err = d.ReadFlashRange(readOpts.addr, readOpts.n)
			if err != nil {
				return fmt.Errorf("read flash failed after %d bytes: %w", len(data), err)
			}
			return nil
		})
		if err != nil {
			fatalf("%v", err)
		}
		if readOpts.outFile == "" {
			fmt.Println(hex.Dump(data))
			return
		}
		if err := os.WriteFile(readOpts.outFile, data, 0644); err != nil {
			fatalf("write file failed: %v", err)
		}
	},
}

func init() {
	fs := readCmd.Flags()
	fs.Uint32VarP(&readOpts.addr, "addr", "a", 0, "flash address")
	fs.IntVarP(&readOpts.n, "count", "n", 256, "number of bytes to read")
	fs.StringVarP(&readOpts.outFile, "out", "o", "", "output file (default: hexdump)")
}
