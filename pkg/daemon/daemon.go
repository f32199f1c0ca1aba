// Package daemon wires the per-process subsystems from §5 together: the
// CAN listener, the per-device event routing (detector or hardware
// EVENT frames, depending on config), the beat scheduler/mixer, and the
// LED controller, all under one cancellation context. It is the
// supervisor a long-running process starts once discovery and per-device
// bring-up have completed; the CLI's `monitor` subcommand does not use it.
package daemon

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/canmagnet/magsensor/pkg/client"
	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/detector"
	"github.com/canmagnet/magsensor/pkg/discovery"
	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/led"
	"github.com/canmagnet/magsensor/pkg/transport"
	"github.com/canmagnet/magsensor/pkg/voice"
)

// Device bundles one roster member's runtime state: its own command
// client (for the LED pipeline and any ad-hoc requests), its telemetry
// inbox from the shared listener, and — when operating in software-event
// mode — its mirrored detector (§3: DeviceRuntime).
type Device struct {
	ID       frame.DeviceID
	Cfg      config.DeviceConfig
	Client   *client.Client
	Detector *detector.Detector // nil when EventSource == hardware
}

// Daemon owns the shared listener, scheduler, mixer, and LED controller
// and drives per-device frame routing on the main loop, the sole
// authoritative owner of per-device scheduler state (§5).
type Daemon struct {
	listener   *transport.Listener
	scheduler  *voice.Scheduler
	mixer      *voice.Mixer
	led        *led.Controller
	stats      *discovery.StatsTable
	devices    map[frame.DeviceID]*Device
	ignoreZero bool
	log        *log.Logger
}

// New assembles a Daemon from an already-open Listener, Mixer, and LED
// Controller, plus the bring-up-complete device roster. Each device must
// already be registered with the scheduler and mixer by the caller
// (ordering matters: RegisterDevice before the main loop starts routing
// its frames).
func New(listener *transport.Listener, scheduler *voice.Scheduler, mixer *voice.Mixer, ledCtl *led.Controller, global config.GlobalConfig, devices map[frame.DeviceID]*Device) *Daemon {
	roster := make([]frame.DeviceID, 0, len(devices))
	for id := range devices {
		roster = append(roster, id)
	}
	return &Daemon{
		listener:   listener,
		scheduler:  scheduler,
		mixer:      mixer,
		led:        ledCtl,
		stats:      discovery.NewStatsTable(roster),
		devices:    devices,
		ignoreZero: global.IgnoreSectorZero,
		log:        log.With("component", "daemon"),
	}
}

// Stats exposes the per-device observability snapshot (§4.6).
func (d *Daemon) Stats() []discovery.Stats { return d.stats.Snapshot() }

// Run starts the listener, mixer ramp worker, LED worker, and beat
// scheduler sweep as parallel goroutines under one errgroup, then drives
// per-device frame routing on the calling goroutine (the main loop) until
// ctx is cancelled. It returns once every worker has joined.
//
// Per §5's cancellation contract, each worker is expected to unwind
// within 1s of ctx being cancelled; Run itself blocks until they do.
func (d *Daemon) Run(ctx context.Context) error {
	d.log.Info("starting", "op", "run", "device_count", len(d.devices))
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.listener.Run(ctx)
		return nil
	})
	g.Go(func() error {
		d.mixer.Run()
		return nil
	})
	g.Go(func() error {
		d.led.Run(ctx)
		return nil
	})
	g.Go(func() error {
		d.scheduler.Run()
		return nil
	})
	g.Go(func() error {
		d.routeLoop(ctx)
		return nil
	})

	<-ctx.Done()
	d.mixer.Stop()
	d.scheduler.Stop()
	return g.Wait()
}

// routeLoop fans each device's inbox into the detector (software mode) or
// directly into the scheduler (hardware mode), per §2's data-flow
// contract. One select-loop per device would scale poorly past a handful
// of devices, so frames are merged through a single fan-in channel
// instead; arrival order within a device is preserved because each
// source-channel read is FIFO and the merge only ever interleaves across
// devices, never reorders within one (§5).
func (d *Daemon) routeLoop(ctx context.Context) {
	type tagged struct {
		id frame.DeviceID
		f  frame.Frame
	}
	merged := make(chan tagged, 4096)

	for id := range d.devices {
		id := id
		go func() {
			inbox := d.listener.Inbox(id)
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-inbox:
					if !ok {
						return
					}
					select {
					case merged <- tagged{id, f}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	idleTicker := time.NewTicker(time.Second)
	defer idleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-merged:
			d.handleFrame(t.id, t.f)
		case now := <-idleTicker.C:
			d.stats.MarkIdle(now.UnixMilli(), 30000)
		}
	}
}

func (d *Daemon) handleFrame(id frame.DeviceID, f frame.Frame) {
	d.stats.Observe(id, f, time.Now().UnixMilli())
	dev, ok := d.devices[id]
	if !ok {
		return
	}

	switch {
	case !f.IsStatus() && f.Subtype() == frame.SubtypeEvent:
		ev, err := frame.DecodeEvent(f)
		if err != nil {
			return
		}
		if dev.Detector != nil {
			// Software-event device: a hardware EVENT frame arriving
			// anyway (device-side detector still running) is not this
			// daemon's authority; only the mirrored detector's own
			// output drives the scheduler.
			return
		}
		if d.ignoreZero && ev.Type == frame.EventSectorActivated && ev.P0 == 0 {
			return
		}
		d.scheduler.ApplyEvent(int(id), ev, time.Now())

	case !f.IsStatus() && f.Subtype() == frame.SubtypeMag:
		if dev.Detector == nil {
			return
		}
		sample, err := frame.DecodeMag(f)
		if err != nil {
			return
		}
		nowS := float64(time.Now().UnixMilli()) / 1000.0
		for _, ev := range dev.Detector.Process(float64(sample.X), float64(sample.Y), float64(sample.Z), nowS) {
			d.scheduler.ApplyEvent(int(id), ev, time.Now())
		}

	case !f.IsStatus() && f.Subtype() == frame.SubtypeEventState:
		es, err := frame.DecodeEventState(f)
		if err != nil {
			return
		}
		if dev.Cfg.HoldNoteInSector && es.Sector == 0 {
			epoch := d.mixer.CurrentEpoch(int(id))
			time.AfterFunc(time.Duration(dev.Cfg.HoldZeroGraceMs)*time.Millisecond, func() {
				d.mixer.StopDeviceIfCurrent(int(id), dev.Cfg.ReleaseMs, epoch)
			})
		}
		d.led.SetPlaying(int(id), es.Sector != 0)
	}
}
