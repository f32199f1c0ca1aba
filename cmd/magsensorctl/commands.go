package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/canmagnet/magsensor/pkg/client"
	"github.com/canmagnet/magsensor/pkg/discovery"
	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

// openClient parses the common flags from fs's already-parsed args and
// opens a command session for the target device, per every §4.2 operation's
// shared "open session, issue request" shape.
func openClient(c *commonFlags) (*client.Client, func(), error) {
	id, err := c.resolveDeviceID()
	if err != nil {
		return nil, nil, err
	}
	sess, err := transport.NewSession(c.transportConfig(), id)
	if err != nil {
		return nil, nil, err
	}
	return client.New(sess), func() { sess.Close() }, nil
}

func runPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	c := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := cl.Ping()
	if err != nil {
		return err
	}
	if res.HasPong {
		fmt.Printf("pong from device %d: proto=%d flags=0x%02x\n", res.DeviceID, res.Proto, res.Flags)
	} else {
		fmt.Println("ok (no PONG payload)")
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	c := registerCommonFlags(fs)
	stats := fs.Bool("stats", false, "probe the bus and print a JSON roster snapshot instead of one device's status")
	probeMs := fs.Int("probe-ms", 50, "per-device probe timeout in milliseconds, used only with --stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *stats {
		found, err := discovery.ProbeWindow(c.transportConfig(), frame.MaxDeviceID, time.Duration(*probeMs)*time.Millisecond, 0)
		if err != nil {
			return err
		}
		enc, err := json.MarshalIndent(found, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	}

	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := cl.GetStatus()
	if err != nil {
		return err
	}
	fmt.Printf("sensors=%v streams=%v interval_low=%v\n", res.Sensors, res.Streams, res.IntervalLowLSB)
	return nil
}

func parseStream(s string) (frame.Stream, error) {
	switch s {
	case "mag":
		return frame.StreamMag, nil
	case "acc":
		return frame.StreamAcc, nil
	case "env":
		return frame.StreamEnv, nil
	case "event":
		return frame.StreamEvent, nil
	case "all", "0", "":
		return frame.StreamAll, nil
	default:
		return 0, fmt.Errorf("magsensorctl: unknown stream %q (want mag|acc|env|event|all)", s)
	}
}

func runSetInterval(args []string) error {
	fs := flag.NewFlagSet("set-interval", flag.ExitOnError)
	c := registerCommonFlags(fs)
	streamStr := fs.String("stream", "", "stream: mag|acc|env|event")
	ms := fs.Uint16("ms", 0, "interval in milliseconds [0,60000]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stream, err := parseStream(*streamStr)
	if err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	iv, err := cl.SetInterval(stream, *ms)
	if err != nil {
		return err
	}
	fmt.Printf("stream=%d enabled=%v interval_ms=%d\n", iv.StreamID, iv.Enabled, iv.Ms)
	return nil
}

func runGetInterval(args []string) error {
	fs := flag.NewFlagSet("get-interval", flag.ExitOnError)
	c := registerCommonFlags(fs)
	streamStr := fs.String("stream", "all", "stream: mag|acc|env|event|all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stream, err := parseStream(*streamStr)
	if err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	ivs, err := cl.GetIntervals(stream)
	if err != nil {
		return err
	}
	for _, iv := range ivs {
		fmt.Printf("stream=%d enabled=%v interval_ms=%d\n", iv.StreamID, iv.Enabled, iv.Ms)
	}
	return nil
}

func runStreamEnable(args []string) error {
	fs := flag.NewFlagSet("stream-enable", flag.ExitOnError)
	c := registerCommonFlags(fs)
	streamStr := fs.String("stream", "", "stream: mag|acc|env|event")
	enable := fs.Bool("enable", true, "enable (true) or disable (false)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stream, err := parseStream(*streamStr)
	if err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := cl.SetStreamEnable(stream, *enable); err != nil {
		return err
	}
	fmt.Printf("stream=%d enabled=%v\n", stream, *enable)
	return nil
}

func runHMCConfig(args []string) error {
	fs := flag.NewFlagSet("hmc-config", flag.ExitOnError)
	c := registerCommonFlags(fs)
	set := fs.Bool("set", false, "write config instead of reading it")
	rangeID := fs.Uint8("range", 0, "range id [0,7]")
	dataRate := fs.Uint8("rate", 0, "data rate id [0,6]")
	samples := fs.Uint8("samples", 0, "samples id [0,3]")
	mode := fs.Uint8("mode", 0, "mode id [0,2]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	var cfg frame.HMCConfig
	if *set {
		cfg, err = cl.SetHMCConfig(*rangeID, *dataRate, *samples, *mode)
	} else {
		cfg, err = cl.GetHMCConfig()
	}
	if err != nil {
		return err
	}
	fmt.Printf("range=%d rate=%d samples=%d mode=%d mg_per_digit=%.2f\n",
		cfg.RangeID, cfg.DataRate, cfg.Samples, cfg.Mode, cfg.MgPerDigit())
	return nil
}

func runAHT20Read(args []string) error {
	fs := flag.NewFlagSet("aht20-read", flag.ExitOnError)
	c := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	meas, err := cl.AHT20Read()
	if err != nil {
		return err
	}
	fmt.Printf("temp=%.2fC rh=%.2f%% status=0x%02x crc_ok=%v\n",
		float64(meas.TempCenti)/100.0, float64(meas.RHCenti)/100.0, meas.Status, meas.CRCOK)
	return nil
}

func parseCalibField(s string) (frame.CalibField, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("magsensorctl: --field must be numeric [0,19], got %q: %w", s, err)
	}
	if n < 0 || n > frame.MaxCalibField {
		return 0, fmt.Errorf("magsensorctl: --field %d out of range [0,19]", n)
	}
	return frame.CalibField(n), nil
}

func runCalibGet(args []string) error {
	fs := flag.NewFlagSet("calib-get", flag.ExitOnError)
	c := registerCommonFlags(fs)
	fieldStr := fs.String("field", "0", "calibration field id [1,19], or 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	field, err := parseCalibField(*fieldStr)
	if err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if field == 0 {
		all, err := cl.GetAllCalib()
		if err != nil {
			return err
		}
		for f := frame.CalibField(frame.MinCalibField); f <= frame.MaxCalibField; f++ {
			if v, ok := all[f]; ok {
				fmt.Printf("%s(%d)=%d\n", f, f, v)
			}
		}
		return nil
	}
	v, err := cl.GetCalib(field)
	if err != nil {
		return err
	}
	fmt.Printf("%s(%d)=%d\n", v.Field, v.Field, v.Value)
	return nil
}

func runCalibSet(args []string) error {
	fs := flag.NewFlagSet("calib-set", flag.ExitOnError)
	c := registerCommonFlags(fs)
	fieldStr := fs.String("field", "", "calibration field id [1,19]")
	value := fs.Int16("value", 0, "value [-32768,32767]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	field, err := parseCalibField(*fieldStr)
	if err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := cl.SetCalib(field, *value); err != nil {
		return err
	}
	fmt.Printf("%s(%d) set to %d\n", field, field, *value)
	return nil
}

func runCalibSave(args []string) error  { return runCalibOp(args, "calib-save", (*client.Client).CalibSave) }
func runCalibLoad(args []string) error  { return runCalibOp(args, "calib-load", (*client.Client).CalibLoad) }
func runCalibReset(args []string) error { return runCalibOp(args, "calib-reset", (*client.Client).CalibReset) }

func runCalibCaptureEarth(args []string) error {
	fs := flag.NewFlagSet("calib-capture-earth", flag.ExitOnError)
	c := registerCommonFlags(fs)
	samples := fs.Int("samples", 1, "number of consecutive captures to average")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	info, err := cl.CalibCaptureEarthAveraged(*samples)
	if err != nil {
		return err
	}
	fmt.Printf("op=%v result=%v\n", info.Op, info.Result)
	return nil
}

func runCalibOp(args []string, name string, op func(*client.Client) (frame.CalibInfo, error)) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	info, err := op(cl)
	if err != nil {
		return err
	}
	fmt.Printf("op=%v result=%v\n", info.Op, info.Result)
	return nil
}

// runLED dispatches to one of the WS281x sub-operations from §6, mirroring
// the top-level subcommand table's shape one level down since the LED
// surface has too many distinct verbs for a single flag set.
func runLED(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("magsensorctl: led requires a sub-command: state|anim|gradient|sector-color|sector-mode|sector-zone|length|active-sector|brightness|all")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "state":
		return runLEDState(rest)
	case "anim":
		return runLEDAnim(rest)
	case "gradient":
		return runLEDGradient(rest)
	case "sector-color":
		return runLEDSectorColor(rest)
	case "sector-mode":
		return runLEDSectorMode(rest)
	case "sector-zone":
		return runLEDSectorZone(rest)
	case "length":
		return runLEDLength(rest)
	case "active-sector":
		return runLEDActiveSector(rest)
	case "brightness":
		return runLEDBrightness(rest)
	case "all":
		return runLEDAll(rest)
	default:
		return fmt.Errorf("magsensorctl: led: unknown sub-command %q", sub)
	}
}

func runLEDState(args []string) error {
	fs := flag.NewFlagSet("led state", flag.ExitOnError)
	c := registerCommonFlags(fs)
	set := fs.Bool("set", false, "write state instead of reading it")
	on := fs.Bool("on", true, "strip on/off")
	brightness := fs.Uint8("brightness", 128, "brightness [0,255]")
	color := fs.Uint16("color", 0xffff, "base color, rgb565")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if *set {
		if err := cl.SetWSState(*on, *brightness, *color); err != nil {
			return err
		}
	}
	st, err := cl.GetWSState()
	if err != nil {
		return err
	}
	fmt.Printf("on=%v brightness=%d color=0x%04x\n", st.On, st.Brightness, st.ColorRGB)
	return nil
}

func parseAnimMode(s string) (frame.AnimMode, error) {
	switch s {
	case "solid":
		return frame.AnimSolid, nil
	case "gradient":
		return frame.AnimGradient, nil
	case "sector-follow":
		return frame.AnimSectorFollow, nil
	case "pulse":
		return frame.AnimPulse, nil
	default:
		return 0, fmt.Errorf("magsensorctl: unknown anim mode %q (want solid|gradient|sector-follow|pulse)", s)
	}
}

func runLEDAnim(args []string) error {
	fs := flag.NewFlagSet("led anim", flag.ExitOnError)
	c := registerCommonFlags(fs)
	set := fs.Bool("set", false, "write the animation instead of reading it")
	modeStr := fs.String("mode", "solid", "animation mode: solid|gradient|sector-follow|pulse")
	speed := fs.Uint8("speed", 0, "animation speed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if *set {
		mode, err := parseAnimMode(*modeStr)
		if err != nil {
			return err
		}
		if err := cl.SetWSAnim(mode, *speed); err != nil {
			return err
		}
	}
	an, err := cl.GetWSAnim()
	if err != nil {
		return err
	}
	fmt.Printf("mode=%d speed=%d\n", an.Mode, an.Speed)
	return nil
}

func runLEDGradient(args []string) error {
	fs := flag.NewFlagSet("led gradient", flag.ExitOnError)
	c := registerCommonFlags(fs)
	set := fs.Bool("set", false, "write one stop instead of reading")
	index := fs.Uint8("index", 0, "stop index [0,31], or 0 with --set=false for all")
	pos := fs.Uint8("pos", 0, "stop position along the ramp [0,255]")
	color := fs.Uint16("color", 0, "stop color, rgb565")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if *set {
		if err := cl.SetWSGradientStop(*index, frame.GradientStop{Pos: *pos, ColorRGB: *color}); err != nil {
			return err
		}
		fmt.Printf("stop %d set: pos=%d color=0x%04x\n", *index, *pos, *color)
		return nil
	}
	stops, err := cl.GetWSGradient(*index)
	if err != nil {
		return err
	}
	for _, g := range stops {
		fmt.Printf("stop[%d/%d] pos=%d color=0x%04x\n", g.Index, g.Count, g.Stop.Pos, g.Stop.ColorRGB)
	}
	return nil
}

func runLEDSectorColor(args []string) error {
	fs := flag.NewFlagSet("led sector-color", flag.ExitOnError)
	c := registerCommonFlags(fs)
	set := fs.Bool("set", false, "write the sector color instead of reading it")
	sector := fs.Uint8("sector", 0, "sector index")
	color := fs.Uint16("color", 0, "color, rgb565")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if *set {
		if err := cl.SetWSSectorColor(*sector, *color); err != nil {
			return err
		}
	}
	sc, err := cl.GetWSSectorColor(*sector)
	if err != nil {
		return err
	}
	fmt.Printf("sector=%d color=0x%04x\n", sc.Sector, sc.ColorRGB)
	return nil
}

func runLEDSectorMode(args []string) error {
	fs := flag.NewFlagSet("led sector-mode", flag.ExitOnError)
	c := registerCommonFlags(fs)
	sector := fs.Uint8("sector", 0, "sector index")
	modeStr := fs.String("mode", "solid", "animation mode: solid|gradient|sector-follow|pulse")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, err := parseAnimMode(*modeStr)
	if err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := cl.SetWSSectorMode(*sector, mode); err != nil {
		return err
	}
	fmt.Printf("sector=%d mode=%s set\n", *sector, *modeStr)
	return nil
}

func runLEDSectorZone(args []string) error {
	fs := flag.NewFlagSet("led sector-zone", flag.ExitOnError)
	c := registerCommonFlags(fs)
	set := fs.Bool("set", false, "write the sector zone instead of reading it")
	sector := fs.Uint8("sector", 0, "sector index")
	first := fs.Uint16("first", 0, "first pixel index")
	last := fs.Uint16("last", 0, "last pixel index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if *set {
		if err := cl.SetWSSectorZone(*sector, *first, *last); err != nil {
			return err
		}
	}
	z, err := cl.GetWSSectorZone(*sector)
	if err != nil {
		return err
	}
	fmt.Printf("sector=%d first=%d last=%d\n", z.Sector, z.FirstPixel, z.LastPixel)
	return nil
}

func runLEDLength(args []string) error {
	fs := flag.NewFlagSet("led length", flag.ExitOnError)
	c := registerCommonFlags(fs)
	set := fs.Bool("set", false, "write the strip length instead of reading it")
	length := fs.Uint16("length", 0, "strip pixel count")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if *set {
		if err := cl.SetWSLength(*length); err != nil {
			return err
		}
	}
	l, err := cl.GetWSLength()
	if err != nil {
		return err
	}
	fmt.Printf("length=%d\n", l.Length)
	return nil
}

func runLEDActiveSector(args []string) error {
	fs := flag.NewFlagSet("led active-sector", flag.ExitOnError)
	c := registerCommonFlags(fs)
	sector := fs.Uint8("sector", 0, "sector index to activate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := cl.SetWSActiveSector(*sector); err != nil {
		return err
	}
	fmt.Printf("active sector set to %d\n", *sector)
	return nil
}

func runLEDBrightness(args []string) error {
	fs := flag.NewFlagSet("led brightness", flag.ExitOnError)
	c := registerCommonFlags(fs)
	brightness := fs.Uint8("value", 128, "brightness [0,255]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := cl.SetWSBrightness(*brightness); err != nil {
		return err
	}
	fmt.Printf("brightness set to %d\n", *brightness)
	return nil
}

func runLEDAll(args []string) error {
	fs := flag.NewFlagSet("led all", flag.ExitOnError)
	c := registerCommonFlags(fs)
	color := fs.Uint16("color", 0, "color, rgb565, applied to every pixel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := cl.SetWSAll(*color); err != nil {
		return err
	}
	fmt.Printf("all pixels set to 0x%04x\n", *color)
	return nil
}

// runMonitor live-streams one device's telemetry and event frames to the
// terminal until 'q' is pressed or the process receives SIGINT. Raw mode
// lets a single keypress stop the stream without waiting on a newline, the
// same trick the teacher's interactive terminal host uses for its stdin
// reader (MakeRaw + single-byte reads in a goroutine, restored on exit).
func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	c := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := c.resolveDeviceID()
	if err != nil {
		return err
	}

	listener, err := transport.NewListener(c.transportConfig(), []frame.DeviceID{id})
	if err != nil {
		return err
	}

	fd := int(os.Stdin.Fd())
	oldState, rawErr := term.MakeRaw(fd)
	rawMode := rawErr == nil
	if rawMode {
		defer term.Restore(fd, oldState)
	} else {
		fmt.Fprintf(os.Stderr, "magsensorctl: monitor: stdin is not a terminal, press ctrl-c to quit\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	quit := make(chan struct{})
	if rawMode {
		go func() {
			buf := make([]byte, 1)
			for {
				n, err := os.Stdin.Read(buf)
				if err != nil {
					return
				}
				if n > 0 && (buf[0] == 'q' || buf[0] == 'Q' || buf[0] == 0x03) {
					close(quit)
					return
				}
			}
		}()
	}

	go listener.Run(ctx)

	fmt.Fprintf(os.Stdout, "monitoring device %d, press 'q' to quit\r\n", id)
	inbox := listener.Inbox(id)
	for {
		select {
		case <-sigCh:
			return nil
		case <-quit:
			return nil
		case f := <-inbox:
			printMonitorFrame(f)
		}
	}
}

// printMonitorFrame renders one telemetry or event frame as a single
// human-readable line. \r\n is used throughout since the terminal is in
// raw mode and won't translate a bare \n into a full carriage return.
func printMonitorFrame(f frame.Frame) {
	if f.IsStatus() {
		return
	}
	switch f.Subtype() {
	case frame.SubtypeMag:
		s, err := frame.DecodeMag(f)
		if err == nil {
			fmt.Printf("MAG x=%d y=%d z=%d\r\n", s.X, s.Y, s.Z)
		}
	case frame.SubtypeAcc:
		s, err := frame.DecodeAcc(f)
		if err == nil {
			fmt.Printf("ACC x=%d y=%d z=%d\r\n", s.X, s.Y, s.Z)
		}
	case frame.SubtypeEnv:
		e, err := frame.DecodeEnv(f)
		if err == nil {
			fmt.Printf("ENV temp=%.2fC rh=%.2f%% valid=%v\r\n", float64(e.TempCenti)/100.0, float64(e.RHCenti)/100.0, e.Valid)
		}
	case frame.SubtypeEvent:
		ev, err := frame.DecodeEvent(f)
		if err == nil {
			fmt.Printf("EVENT %s p0=%d p1=%d p2=%d t=%d\r\n", ev.Type, ev.P0, ev.P1, ev.P2, ev.P3)
		}
	case frame.SubtypeEventState:
		es, err := frame.DecodeEventState(f)
		if err == nil {
			fmt.Printf("STATE sector=%d elev=%d\r\n", es.Sector, es.Elev)
		}
	default:
		fmt.Printf("FRAME subtype=%s data=% x\r\n", f.Subtype(), f.Data)
	}
}

func runEnterBootloader(args []string) error {
	fs := flag.NewFlagSet("enter-bootloader", flag.ExitOnError)
	c := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cl, closeFn, err := openClient(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := cl.EnterBootloader(); err != nil {
		return err
	}
	fmt.Println("device rebooting into bootloader")
	return nil
}
