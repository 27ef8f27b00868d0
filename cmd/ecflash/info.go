package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gentam/ecflash"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print flash ID and status",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := withDevice(func(d *ecflash.Device) error {
			id, name, err := d.Identify()
			if err != nil {
				return fmt.Errorf("read flash ID failed: %w", err)
			}
			if name == "" {
				name = "unknown"
			}
			sr, err := d.Flash.ReadStatus()
			if err != nil {
				return fmt.Errorf("read flash status register failed: %w", err)
			}

			fmt.Printf("Device:          %s\n", d)
			fmt.Printf("Flash ID:        %X\n", id)
			fmt.Printf("Manufacturer:    %s\n", name)
			fmt.Printf("Status:          %s\n", sr)
			fmt.Printf("EC mode:         %s\n", d.Controller.Mode())
			return nil
		})
		if err != nil {
			fatalf("%v", err)
		}
	},
}
