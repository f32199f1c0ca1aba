package client

import (
	"time"

	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

// DiscoveredDevice is one responder to a broadcast ping sweep.
type DiscoveredDevice struct {
	DeviceID frame.DeviceID
	Proto    uint8
	Flags    uint8
}

// Discover opens a bus filtered to the status broadcast range, sends a
// PING addressed to every device ID in [1,maxID], and collects PONGs for
// window. Unlike a per-device Session, discovery never knows its
// responders' IDs up front, so it listens broadcast-wide rather than
// exact-filtering on one device (§4.2).
func Discover(cfg transport.Config, maxID frame.DeviceID, window time.Duration) ([]DiscoveredDevice, error) {
	bus, err := transport.Open(cfg, transport.StatusBroadcastFilter())
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	for id := frame.DeviceID(1); id <= maxID; id++ {
		payload := frame.CmdPing().Payload()
		if err := bus.Send(id.CommandID(), payload[:]); err != nil {
			return nil, err
		}
	}

	deadline := time.Now().Add(window)
	seen := make(map[frame.DeviceID]DiscoveredDevice)
	for time.Now().Before(deadline) {
		f, ok, err := bus.Recv(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !f.IsPong() {
			continue
		}
		pong, err := frame.DecodePong(f)
		if err != nil {
			continue
		}
		seen[pong.DeviceID] = DiscoveredDevice{DeviceID: pong.DeviceID, Proto: pong.Proto, Flags: pong.Flags}
	}

	out := make([]DiscoveredDevice, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	return out, nil
}
