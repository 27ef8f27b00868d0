// Command ecflash reads and programs the SPI flash behind a KB3310B embedded
// controller.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/gentam/ecflash"
	"github.com/gentam/ecflash/internal/ecsim"
)

func fatalf(format string, a ...any) {
	glog.Flush()
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

var (
	simulate  bool
	noProtect bool
	identify  bool
)

// simFlashSize is the flash size of the simulated EC.
const simFlashSize = 1 << 20

var rootCmd = &cobra.Command{
	Use:   "ecflash",
	Short: "Read and program the KB3310B EC flash",
	Long: `ecflash talks to the ENE KB3310B embedded controller through the host's
I/O ports (/dev/port) and reads or programs the SPI flash behind it.

Programming the ROM reboots the machine. A failed ROM run can leave it
unbootable until the ROM is programmed again.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&simulate, "simulate", false, "use a simulated EC instead of /dev/port")
	pf.BoolVar(&noProtect, "no-protect", false, "leave the flash status register alone around erase and program")
	pf.BoolVar(&identify, "identify", false, "read the flash JEDEC ID before any other operation")
	pf.AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(regCmd, readCmd, infoCmd, programROMCmd, programIECmd)
}

func main() {
	// glog reads its settings from the standard flag set
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	if err := rootCmd.Execute(); err != nil {
		glog.Flush()
		os.Exit(1)
	}
}

// newSimEC returns the EC used with --simulate.
var newSimEC = func() *ecsim.EC { return ecsim.New(simFlashSize) }

// openDevice opens the EC, or a simulated one with --simulate. The caller
// must Halt the device.
func openDevice(opts ...ecflash.Option) (*ecflash.Device, error) {
	opts = append(opts,
		ecflash.WithProtectionAware(!noProtect),
		ecflash.WithIdentifyChip(identify),
	)

	if !simulate {
		return ecflash.Open(opts...)
	}
	opts = append(opts, ecflash.WithDelayer(ecflash.DelayFunc(func(time.Duration) {})))
	d, err := ecflash.New(newSimEC(), opts...)
	if err != nil {
		return nil, fmt.Errorf("simulated EC: %w", err)
	}
	glog.Infof("using %v", d)
	return d, nil
}

// withDevice runs fn on an open device and halts it before returning, so
// callers can exit on the returned error.
func withDevice(fn func(d *ecflash.Device) error, opts ...ecflash.Option) error {
	d, err := openDevice(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Halt(); err != nil {
			glog.Warningf("halt %v: %v", d, err)
		}
	}()
	return fn(d)
}

func parseUint(s string, bits int) uint64 {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		fatalUsage("invalid number %q: %v", s, err)
	}
	return v
}
