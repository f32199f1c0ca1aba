// magsensorctl is the operator CLI from §6: ping | status | set-interval |
// get-interval | stream-enable | hmc-config | led | monitor | aht20-read |
// calib-{get,set,save,load,reset,capture-earth} | enter-bootloader. Every
// subcommand returns exit code 0 on success, non-zero on timeout/protocol/
// validation errors, and prints one human-readable summary line per
// response frame.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

// commonFlags are accepted by every subcommand, mirroring the teacher's
// per-binary flag.FlagSet pattern (cmd/lsys1, cmd/send-recv) generalized
// to long-form pflag options per §6.
type commonFlags struct {
	backend  string
	channel  string
	deviceID int
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.backend, "backend", "socketcan", "CAN transport backend: socketcan or usbcan")
	fs.StringVar(&c.channel, "channel", "can0", "SocketCAN interface name, or usbcan selector (bus:addr)")
	fs.IntVar(&c.deviceID, "device", -1, "target device id [0,127]")
	return c
}

func (c *commonFlags) transportConfig() transport.Config {
	return transport.Config{Backend: c.backend, Channel: c.channel}
}

func (c *commonFlags) resolveDeviceID() (frame.DeviceID, error) {
	if c.deviceID < 0 || c.deviceID > frame.MaxDeviceID {
		return 0, fmt.Errorf("magsensorctl: --device is required and must be in [0,%d]", frame.MaxDeviceID)
	}
	return frame.DeviceID(c.deviceID), nil
}

type subcommand struct {
	name string
	desc string
	run  func(args []string) error
}

func main() {
	subs := []subcommand{
		{"ping", "ping one device and report its proto/flags", runPing},
		{"status", "read a device's sensor/stream status", runStatus},
		{"set-interval", "set one stream's sample interval", runSetInterval},
		{"get-interval", "read one or all stream intervals", runGetInterval},
		{"stream-enable", "enable or disable one stream", runStreamEnable},
		{"hmc-config", "get or set the HMC5883-class magnetometer config", runHMCConfig},
		{"led", "drive the LED strip (state/anim/gradient/sector ops)", runLED},
		{"monitor", "live-stream telemetry and events to the terminal", runMonitor},
		{"aht20-read", "read the onboard temperature/humidity sensor", runAHT20Read},
		{"calib-get", "read one or all calibration fields", runCalibGet},
		{"calib-set", "write one calibration field", runCalibSet},
		{"calib-save", "persist calibration to device flash", runCalibSave},
		{"calib-load", "restore calibration from device flash", runCalibLoad},
		{"calib-reset", "reset calibration to firmware defaults", runCalibReset},
		{"calib-capture-earth", "capture the earth field vector", runCalibCaptureEarth},
		{"enter-bootloader", "reboot the device into its bootloader", runEnterBootloader},
	}

	if len(os.Args) < 2 {
		printUsage(subs)
		os.Exit(2)
	}

	name := os.Args[1]
	for _, s := range subs {
		if s.name != name {
			continue
		}
		if err := s.run(os.Args[2:]); err != nil {
			log.Error("command failed", "op", name, "cause", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "magsensorctl: unknown command %q\n", name)
	printUsage(subs)
	os.Exit(2)
}

func printUsage(subs []subcommand) {
	fmt.Fprintln(os.Stderr, "usage: magsensorctl <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, s := range subs {
		fmt.Fprintf(os.Stderr, "  %-20s %s\n", s.name, s.desc)
	}
}
