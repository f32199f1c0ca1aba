// Package transport owns the CAN bus handle for one process and routes
// frames by arbitration ID, exposing a synchronous request/reply RPC on
// top of an asynchronous read/write bus. It multiplexes a background
// telemetry listener so many devices can stream concurrently while
// command/reply traffic stays request-scoped per device.
package transport

import (
	"errors"
	"time"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// ErrTransport wraps a bus I/O failure (open, send, receive-filter
// reconfiguration) as distinct from a protocol or timeout error.
var ErrTransport = errors.New("transport: bus I/O failure")

// Filter is a CAN acceptance filter: a frame is accepted when
// (arbID & Mask) == (ID & Mask).
type Filter struct {
	ID   uint32
	Mask uint32
}

// ExactFilter matches only the given arbitration ID.
func ExactFilter(id uint32) Filter { return Filter{ID: id, Mask: 0x7FF} }

// StatusBroadcastFilter matches every device's status ID (0x580-0x5FF).
func StatusBroadcastFilter() Filter {
	return Filter{ID: frame.StatusFilterID, Mask: frame.StatusFilterMask}
}

// Bus is the minimal hardware-facing contract a backend must satisfy.
// Two real backends exist: a native Linux SocketCAN bus (socketcan.go)
// and a USB-CAN adapter bridge (usbcan.go) for hosts without one.
type Bus interface {
	// Send transmits one frame; payload must be <=8 bytes.
	Send(arbID uint32, payload []byte) error
	// Recv blocks up to timeout for the next frame accepted by the
	// bus's configured filter, or returns (Frame{}, false, nil) on
	// timeout. It never blocks indefinitely.
	Recv(timeout time.Duration) (frame.Frame, bool, error)
	// SetFilter reconfigures the receive filter at the bus level where
	// possible; backends that can't filter in hardware apply it in
	// software on Recv.
	SetFilter(f Filter) error
	Close() error
}

// Config selects and parametrizes a Bus backend.
type Config struct {
	// Backend is "socketcan" or "usbcan".
	Backend string
	// Channel is the SocketCAN interface name (e.g. "can0") or, for
	// usbcan, the device selector string (see openUSBCANBus).
	Channel string
}

// Open constructs the configured backend and applies the initial filter.
func Open(cfg Config, filter Filter) (Bus, error) {
	var (
		bus Bus
		err error
	)
	switch cfg.Backend {
	case "usbcan":
		bus, err = openUSBCANBus(cfg.Channel)
	case "socketcan", "":
		bus, err = openSocketCANBus(cfg.Channel)
	default:
		return nil, errors.Join(ErrTransport, errBackend(cfg.Backend))
	}
	if err != nil {
		return nil, err
	}
	if err := bus.SetFilter(filter); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

type errBackendT struct{ name string }

func (e errBackendT) Error() string { return "unknown CAN backend " + e.name }

func errBackend(name string) error { return errBackendT{name: name} }
