package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gentam/ecflash"
)

var regCmd = &cobra.Command{
	Use:   "reg",
	Short: "Access EC registers (0xF000-0xFFFF)",
}

var regReadCmd = &cobra.Command{
	Use:   "read ADDR",
	Short: "Read an EC register",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addr := uint32(parseUint(args[0], 32))

		err := withDevice(func(d *ecflash.Device) error {
			v, err := d.ReadRegister(addr)
			if err != nil {
				return fmt.Errorf("read register failed: %w", err)
			}
			fmt.Printf("0x%04X: 0x%02X\n", addr, v)
			return nil
		})
		if err != nil {
			fatalf("%v", err)
		}
	},
}

var regWriteCmd = &cobra.Command{
	Use:   "write ADDR VAL",
	Short: "Write an EC register",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		addr := uint32(parseUint(args[0], 32))
		v := byte(parseUint(args[1], 8))

		err := withDevice(func(d *ecflash.Device) error {
			if err := d.WriteRegister(addr, v); err != nil {
				return fmt.Errorf("write register failed: %w", err)
			}
			return nil
		})
		if err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	regCmd.AddCommand(regReadCmd, regWriteCmd)
}
