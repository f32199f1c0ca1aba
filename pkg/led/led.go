// Package led drives the WS28xx-style addressable LED strip behind each
// device (§4.5): a bounded, per-device-aware command pipeline with
// pacing and retry, idle/playing/simple-mode rendering policy, gradient
// diffing, a keepalive heartbeat, and an optional synchronous
// verified-apply path before the async pipeline takes over.
package led

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/client"
	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
)

// QueueCapacity bounds the pending-command queue per §5 ("typical
// 2048-8192 items"); the LED pipeline is lighter-weight than the CAN
// listener so it sits at the low end of that range.
const QueueCapacity = 2048

// pollInterval is how often Run sweeps the keepalive timers (§5: "~10ms
// polling for keepalive timers").
const pollInterval = 10 * time.Millisecond

// deviceState is the per-device mirror from §4.5.
type deviceState struct {
	cfg          config.LEDConfig
	simpleMode   bool
	isPlaying    bool
	currentStops []frame.GradientStop
	lastSpeed    uint8
	lastKeepalive time.Time
	pendingGen   int // bumped on every state transition to drop stale commands
}

// command is one queued LED write, tagged with the generation it was
// enqueued under so a state transition can invalidate it (§4.5: "drops
// all still-pending commands for that device").
type command struct {
	deviceID    int
	generation  int
	retriesLeft int
	send        func(c *client.Client) error
	describe    string
}

// Controller owns one worker goroutine draining a shared, per-device-aware
// queue against each device's *client.Client.
type Controller struct {
	clients map[int]*client.Client
	states  map[int]*deviceState
	log     *log.Logger

	queue chan command
	stop  chan struct{}
}

// NewController builds an LED controller for the given device->client map.
func NewController(clients map[int]*client.Client) *Controller {
	return &Controller{
		clients: clients,
		states:  make(map[int]*deviceState),
		log:     log.With("component", "led"),
		queue:   make(chan command, QueueCapacity),
		stop:    make(chan struct{}),
	}
}

// Register attaches a device's LED config, defaulting it to idle/non-simple.
func (c *Controller) Register(deviceID int, cfg config.LEDConfig) {
	c.states[deviceID] = &deviceState{cfg: cfg}
}

// VerifiedApply runs the synchronous initial-apply path for deviceID: it
// sends and awaits each frame on the device's own client before the async
// pipeline takes over. On failure the device is marked simple-mode and
// Run's worker proceeds best-effort (§4.5).
func (c *Controller) VerifiedApply(deviceID int) error {
	st, ok := c.states[deviceID]
	if !ok {
		return errors.New("led: device not registered")
	}
	cl, ok := c.clients[deviceID]
	if !ok {
		return errors.New("led: no client for device")
	}

	if err := c.applyIdleSync(cl, st); err != nil {
		st.simpleMode = true
		c.log.Warn("verified apply failed, falling back to simple mode", "op", "verified_apply", "device_id", deviceID, "cause", err)
		return err
	}
	return nil
}

func (c *Controller) applyIdleSync(cl *client.Client, st *deviceState) error {
	if err := cl.SetWSLength(st.cfg.Length); err != nil {
		return err
	}
	if err := cl.SetWSBrightness(st.cfg.Brightness); err != nil {
		return err
	}
	if st.cfg.SimpleMode {
		color := gradientAverageColor(st.cfg.BaseGradient)
		if err := cl.SetWSAll(color); err != nil {
			return err
		}
		return cl.SetWSAnim(frame.AnimPulse, st.cfg.BaseSpeed)
	}
	stops := resolveStops(st.cfg.BaseGradient)
	for i, s := range stops {
		if err := cl.SetWSGradientStop(uint8(i), s); err != nil {
			return err
		}
	}
	if err := cl.SetWSAnim(frame.AnimSectorFollow, st.cfg.BaseSpeed); err != nil {
		return err
	}
	st.currentStops = stops
	st.lastSpeed = st.cfg.BaseSpeed
	st.isPlaying = false
	return nil
}

// Run drains the queue on the calling goroutine until ctx is cancelled,
// pacing each send by command_spacing_ms and retrying failures up to
// send_retries times, and sweeping keepalive heartbeats every pollInterval.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case cmd := <-c.queue:
			c.drain(cmd)
		case now := <-ticker.C:
			c.sweepKeepalive(now)
		}
	}
}

// Stop halts Run.
func (c *Controller) Stop() { close(c.stop) }

func (c *Controller) drain(cmd command) {
	st, ok := c.states[cmd.deviceID]
	if !ok || st.pendingGen != cmd.generation {
		return // stale: device transitioned since this was enqueued
	}
	cl, ok := c.clients[cmd.deviceID]
	if !ok {
		return
	}
	if err := cmd.send(cl); err != nil {
		if cmd.retriesLeft > 0 {
			cmd.retriesLeft--
			c.enqueue(cmd)
			return
		}
		c.log.Error("led command failed", "op", cmd.describe, "device_id", cmd.deviceID, "cause", err)
		return
	}
	spacing := time.Duration(st.cfg.CommandSpacingMs) * time.Millisecond
	if spacing > 0 {
		time.Sleep(spacing)
	}
}

func (c *Controller) enqueue(cmd command) {
	select {
	case c.queue <- cmd:
	default:
		// Bounded queue overflow: drop the oldest pending command to make
		// room. The queue is shared by all devices, so the dropped command
		// may belong to a different device than cmd.
		select {
		case <-c.queue:
		default:
		}
		select {
		case c.queue <- cmd:
		default:
		}
	}
}

// SetPlaying transitions deviceID between idle and playing rendering,
// invalidating any still-pending commands for it and enqueueing the new
// gradient/speed state (§4.5).
func (c *Controller) SetPlaying(deviceID int, playing bool) {
	st, ok := c.states[deviceID]
	if !ok {
		return
	}
	st.isPlaying = playing
	st.pendingGen++
	gen := st.pendingGen

	if st.cfg.SimpleMode || st.simpleMode {
		speed := st.cfg.BaseSpeed
		if playing {
			speed = st.cfg.PlaySpeed
		}
		c.enqueueSimple(deviceID, gen, speed)
		return
	}

	gradient := st.cfg.BaseGradient
	speed := st.cfg.BaseSpeed
	if playing {
		speed = st.cfg.PlaySpeed
		if len(st.cfg.PlayGradient) > 0 {
			gradient = st.cfg.PlayGradient
		}
	}
	c.enqueueGradient(deviceID, gen, gradient, speed)
}

func (c *Controller) enqueueSimple(deviceID, gen int, speed uint8) {
	st := c.states[deviceID]
	color := gradientAverageColor(st.cfg.BaseGradient)
	c.enqueue(command{
		deviceID: deviceID, generation: gen, retriesLeft: st.cfg.SendRetries, describe: "ws_set_all",
		send: func(cl *client.Client) error { return cl.SetWSAll(color) },
	})
	c.enqueue(command{
		deviceID: deviceID, generation: gen, retriesLeft: st.cfg.SendRetries, describe: "ws_set_anim",
		send: func(cl *client.Client) error { return cl.SetWSAnim(frame.AnimPulse, speed) },
	})
}

func (c *Controller) enqueueGradient(deviceID, gen int, gradient []config.GradientStopConfig, speed uint8) {
	st := c.states[deviceID]
	target := resolveStops(gradient)
	diffStops(st.currentStops, target, func(idx uint8, stop frame.GradientStop) {
		c.enqueue(command{
			deviceID: deviceID, generation: gen, retriesLeft: st.cfg.SendRetries, describe: "ws_set_gradient",
			send: func(cl *client.Client) error { return cl.SetWSGradientStop(idx, stop) },
		})
	})
	st.currentStops = target

	if speed != st.lastSpeed {
		mode := frame.AnimSectorFollow
		c.enqueue(command{
			deviceID: deviceID, generation: gen, retriesLeft: st.cfg.SendRetries, describe: "ws_set_anim",
			send: func(cl *client.Client) error { return cl.SetWSAnim(mode, speed) },
		})
		st.lastSpeed = speed
	}
}

func (c *Controller) sweepKeepalive(now time.Time) {
	for id, st := range c.states {
		if st.cfg.KeepaliveMs <= 0 {
			continue
		}
		if now.Sub(st.lastKeepalive) < time.Duration(st.cfg.KeepaliveMs)*time.Millisecond {
			continue
		}
		st.lastKeepalive = now
		// Forget the mirrored stops and speed so the diff re-sends both.
		speed := st.cfg.BaseSpeed
		if st.isPlaying {
			speed = st.cfg.PlaySpeed
		}
		st.currentStops = nil
		st.lastSpeed = ^speed
		c.SetPlaying(id, st.isPlaying) // force=true in spirit: re-sends current state
	}
}

// diffStops enqueues only the stop indexes whose color/position changed,
// avoiding redundant writes when the gradient hasn't moved (§4.5).
func diffStops(current, target []frame.GradientStop, emit func(idx uint8, stop frame.GradientStop)) {
	for i, stop := range target {
		if i >= len(current) || current[i] != stop {
			emit(uint8(i), stop)
		}
	}
}

func resolveStops(cfg []config.GradientStopConfig) []frame.GradientStop {
	out := make([]frame.GradientStop, 0, len(cfg))
	for _, s := range cfg {
		out = append(out, frame.GradientStop{Pos: s.Pos, ColorRGB: parseHexColor(s.Color)})
	}
	return out
}

func gradientAverageColor(cfg []config.GradientStopConfig) uint16 {
	if len(cfg) == 0 {
		return 0
	}
	var r, g, b uint32
	for _, s := range cfg {
		cr, cg, cb := rgb565Components(parseHexColor(s.Color))
		r += uint32(cr)
		g += uint32(cg)
		b += uint32(cb)
	}
	n := uint32(len(cfg))
	return packRGB565(uint8(r/n), uint8(g/n), uint8(b/n))
}

func parseHexColor(s string) uint16 {
	if len(s) != 7 || s[0] != '#' {
		return 0
	}
	r := hexByte(s[1:3])
	g := hexByte(s[3:5])
	b := hexByte(s[5:7])
	return packRGB565(r, g, b)
}

func hexByte(s string) uint8 {
	var v uint8
	for _, ch := range s {
		v <<= 4
		switch {
		case ch >= '0' && ch <= '9':
			v |= uint8(ch - '0')
		case ch >= 'a' && ch <= 'f':
			v |= uint8(ch-'a') + 10
		case ch >= 'A' && ch <= 'F':
			v |= uint8(ch-'A') + 10
		}
	}
	return v
}

func packRGB565(r, g, b uint8) uint16 {
	return (uint16(r>>3) << 11) | (uint16(g>>2) << 5) | uint16(b>>3)
}

func rgb565Components(c uint16) (r, g, b uint8) {
	r = uint8((c>>11)&0x1F) << 3
	g = uint8((c>>5)&0x3F) << 2
	b = uint8(c&0x1F) << 3
	return
}
