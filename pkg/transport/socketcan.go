package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	einridecan "go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// socketCANBus is the native Linux transport backend: one raw CAN socket
// per process, read and written through einride's socketcan package.
type socketCANBus struct {
	conn net.Conn
	tx   *socketcan.Transmitter
	rx   *socketcan.Receiver

	mu     sync.Mutex
	filter Filter
}

func openSocketCANBus(channel string) (Bus, error) {
	if channel == "" {
		channel = "can0"
	}
	conn, err := socketcan.DialContext(context.Background(), "can", channel)
	if err != nil {
		return nil, fmt.Errorf("%w: socketcan dial %s: %v", ErrTransport, channel, err)
	}
	return &socketCANBus{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
		rx:   socketcan.NewReceiver(conn),
	}, nil
}

func (b *socketCANBus) Send(arbID uint32, payload []byte) error {
	if len(payload) > 8 {
		return fmt.Errorf("%w: payload too long (%d bytes)", ErrTransport, len(payload))
	}
	var f einridecan.Frame
	f.ID = arbID
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)
	if err := b.tx.TransmitFrame(context.Background(), f); err != nil {
		return fmt.Errorf("%w: transmit: %v", ErrTransport, err)
	}
	return nil
}

func (b *socketCANBus) Recv(timeout time.Duration) (frame.Frame, bool, error) {
	b.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		ok := b.rx.Receive()
		if !ok {
			if err := b.rx.Err(); err != nil {
				if isTimeoutErr(err) {
					return frame.Frame{}, false, nil
				}
				return frame.Frame{}, false, fmt.Errorf("%w: receive: %v", ErrTransport, err)
			}
			return frame.Frame{}, false, nil
		}
		f := b.rx.Frame()
		if f.IsRemoteFrame || f.IsExtended {
			continue
		}
		b.mu.Lock()
		accept := matchesFilter(b.filter, f.ID)
		b.mu.Unlock()
		if !accept {
			continue
		}
		var out frame.Frame
		out.ArbID = f.ID
		copy(out.Data[:], f.Data[:f.Length])
		return out, true, nil
	}
}

func (b *socketCANBus) SetFilter(f Filter) error {
	b.mu.Lock()
	b.filter = f
	b.mu.Unlock()
	return nil
}

func (b *socketCANBus) Close() error {
	return b.conn.Close()
}

func matchesFilter(f Filter, arbID uint32) bool {
	if f.Mask == 0 {
		return true
	}
	return arbID&f.Mask == f.ID&f.Mask
}

func isTimeoutErr(err error) bool {
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}
	return false
}
