package transport

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// DefaultInboxSize bounds each device's telemetry queue (§5: typical
// 2048-8192 items; we default to the low end since frames are tiny and
// consumers drain continuously).
const DefaultInboxSize = 2048

// Listener is the background telemetry demultiplexer: one bus opened with
// the broadcast status filter, routing frames by arbitration ID into
// bounded per-device inboxes. Overflow drops the oldest buffered frame,
// preferring the freshest sample (§5).
type Listener struct {
	bus    Bus
	inbox  map[frame.DeviceID]chan frame.Frame
	log    *log.Logger
}

// NewListener opens a bus with the broadcast status filter and prepares
// inboxes for the given device roster.
func NewListener(cfg Config, devices []frame.DeviceID) (*Listener, error) {
	bus, err := Open(cfg, StatusBroadcastFilter())
	if err != nil {
		return nil, err
	}
	l := &Listener{
		bus:   bus,
		inbox: make(map[frame.DeviceID]chan frame.Frame, len(devices)),
		log:   log.With("component", "listener"),
	}
	for _, d := range devices {
		l.inbox[d] = make(chan frame.Frame, DefaultInboxSize)
	}
	return l, nil
}

// Inbox returns the read-only channel of frames destined for a device.
func (l *Listener) Inbox(id frame.DeviceID) <-chan frame.Frame {
	return l.inbox[id]
}

// Run drains the bus until ctx is cancelled. Transient bus errors are
// logged and back off briefly; the loop never exits on its own while ctx
// is alive (§7: "the listener thread never exits while the process is
// running").
func (l *Listener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, ok, err := l.bus.Recv(200 * time.Millisecond)
		if err != nil {
			l.log.Error("listener recv error, backing off", "cause", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if !ok {
			continue
		}

		id, ok := frame.DeviceIDFromStatusID(f.ArbID)
		if !ok {
			continue
		}
		ch, ok := l.inbox[id]
		if !ok {
			continue
		}
		l.deliver(ch, f)
	}
}

func (l *Listener) deliver(ch chan frame.Frame, f frame.Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	// Full: drop the oldest buffered frame to make room for the freshest.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

// Close shuts down the underlying bus handle.
func (l *Listener) Close() error { return l.bus.Close() }
