package transport

import "github.com/canmagnet/magsensor/pkg/frame"

// NewSessionForTesting builds a Session around a caller-supplied Bus,
// bypassing Open. It exists so higher-level packages can exercise their
// request/reply logic against a scripted Bus without real hardware.
func NewSessionForTesting(bus Bus, deviceID frame.DeviceID) *Session {
	return &Session{bus: bus, deviceID: deviceID}
}
