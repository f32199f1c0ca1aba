// Package client implements the per-device request/reply operations from
// §4.2: each call drops buffered stream frames, sends a command, awaits
// the matching status, and optionally collects the typed frame(s) that
// carry the new state.
package client

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

// DefaultTimeout bounds a single request/reply round trip.
const DefaultTimeout = 500 * time.Millisecond

// DefaultQuiescence bounds a chunked multi-frame collection's per-burst
// silence window (§4.1: "typical 800ms with no matching frame").
const DefaultQuiescence = 800 * time.Millisecond

// Client is the typed device operations helper built on a transport
// Session.
type Client struct {
	sess *transport.Session
	log  *log.Logger

	Timeout    time.Duration
	Quiescence time.Duration
}

// New wraps an already-open Session.
func New(sess *transport.Session) *Client {
	return &Client{
		sess:       sess,
		log:        log.With("component", "client", "device_id", sess.DeviceID()),
		Timeout:    DefaultTimeout,
		Quiescence: DefaultQuiescence,
	}
}

func (c *Client) flushAndSend(cmd frame.Command) error {
	c.sess.FlushPending(64, 20*time.Millisecond)
	if err := c.sess.Send(cmd.Payload()); err != nil {
		c.log.Error("send failed", "op", cmd.Opcode, "cause", err)
		return err
	}
	return nil
}

// ErrValidation is returned for host-side argument range violations,
// raised before any frame is sent (§7).
type ErrValidation struct {
	Op     string
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("client: validation failed for %s: %s", e.Op, e.Reason)
}

// PingResult is the decoded response to Ping.
type PingResult struct {
	DeviceID frame.DeviceID
	Proto    uint8
	Flags    uint8
	HasPong  bool
}

// Ping sends PING and awaits status, then optionally a PONG text frame.
func (c *Client) Ping() (PingResult, error) {
	if err := c.flushAndSend(frame.CmdPing()); err != nil {
		return PingResult{}, err
	}
	if err := c.sess.WaitStatus("ping", byte(frame.OpPing), c.Timeout); err != nil {
		return PingResult{}, err
	}

	f, err := c.sess.WaitFrame("pong", 100*time.Millisecond, func(f frame.Frame) bool { return f.IsPong() })
	if err != nil {
		return PingResult{DeviceID: c.sess.DeviceID()}, nil
	}
	pong, err := frame.DecodePong(f)
	if err != nil {
		return PingResult{DeviceID: c.sess.DeviceID()}, nil
	}
	return PingResult{DeviceID: pong.DeviceID, Proto: pong.Proto, Flags: pong.Flags, HasPong: true}, nil
}

// StatusResult is the decoded GET_STATUS reply.
type StatusResult struct {
	SensorBits     uint8
	StreamBits     uint8
	IntervalLowLSB [4]uint8
	Sensors        []string
	Streams        []string
}

func (c *Client) GetStatus() (StatusResult, error) {
	if err := c.flushAndSend(frame.CmdGetStatus()); err != nil {
		return StatusResult{}, err
	}
	if err := c.sess.WaitStatus("get_status", byte(frame.OpGetStatus), c.Timeout); err != nil {
		return StatusResult{}, err
	}
	f, err := c.sess.WaitFrame("status", c.Timeout, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeStatus
	})
	if err != nil {
		return StatusResult{}, err
	}
	ds, err := frame.DecodeDeviceStatus(f)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		SensorBits:     ds.SensorBits,
		StreamBits:     ds.StreamBits,
		IntervalLowLSB: ds.IntervalLowLSB,
		Sensors:        ds.Sensors(),
		Streams:        ds.Streams(),
	}, nil
}

// SetInterval validates stream/ms and waits for the echoed INTERVAL frame
// to confirm the same stream id.
func (c *Client) SetInterval(stream frame.Stream, ms uint16) (frame.Interval, error) {
	if !stream.Valid() {
		return frame.Interval{}, &ErrValidation{Op: "set_interval", Reason: "stream must be in [1,4]"}
	}
	if ms > 60000 {
		return frame.Interval{}, &ErrValidation{Op: "set_interval", Reason: "ms must be in [0,60000]"}
	}
	if err := c.flushAndSend(frame.CmdSetInterval(stream, ms)); err != nil {
		return frame.Interval{}, err
	}
	if err := c.sess.WaitStatus("set_interval", byte(stream), c.Timeout); err != nil {
		return frame.Interval{}, err
	}
	f, err := c.sess.WaitFrame("interval", c.Timeout, func(f frame.Frame) bool {
		if f.IsStatus() || f.Subtype() != frame.SubtypeInterval {
			return false
		}
		iv, err := frame.DecodeInterval(f)
		return err == nil && iv.StreamID == stream
	})
	if err != nil {
		return frame.Interval{}, err
	}
	return frame.DecodeInterval(f)
}

// SetStreamEnable validates stream and toggles it on/off.
func (c *Client) SetStreamEnable(stream frame.Stream, enabled bool) error {
	if !stream.Valid() {
		return &ErrValidation{Op: "set_stream_enable", Reason: "stream must be in [1,4]"}
	}
	if err := c.flushAndSend(frame.CmdSetStreamEnable(stream, enabled)); err != nil {
		return err
	}
	return c.sess.WaitStatus("set_stream_enable", byte(stream), c.Timeout)
}

// GetIntervals returns one Interval per requested stream; stream=0 collects
// all four, in arbitrary arrival order.
func (c *Client) GetIntervals(stream frame.Stream) ([]frame.Interval, error) {
	if err := c.flushAndSend(frame.CmdGetInterval(stream)); err != nil {
		return nil, err
	}
	if err := c.sess.WaitStatus("get_interval", byte(stream), c.Timeout); err != nil {
		return nil, err
	}
	want := 1
	if stream == frame.StreamAll {
		want = 4
	}
	frames, err := c.sess.CollectFrames("get_interval", c.Timeout, c.Quiescence, want, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeInterval
	})
	if err != nil {
		return nil, err
	}
	out := make([]frame.Interval, 0, len(frames))
	for _, f := range frames {
		iv, err := frame.DecodeInterval(f)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

// EnterBootloader awaits only the status reply; the device reboots and
// any cached session state should be considered invalidated by the
// caller afterward.
func (c *Client) EnterBootloader() error {
	if err := c.flushAndSend(frame.CmdEnterBootloader()); err != nil {
		return err
	}
	return c.sess.WaitStatus("enter_bootloader", byte(frame.OpEnterBootloader), c.Timeout)
}
