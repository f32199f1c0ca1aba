package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// USB-CAN adapter constants for a candleLight-class CAN-over-USB dongle.
// The adapter exposes one bulk IN/OUT endpoint pair on interface 0; each
// transfer carries one framed CAN message: marker, arbitration ID (LE),
// DLC, then up to 8 data bytes, zero-padded to a fixed 12-byte transfer.
const (
	usbcanVendorID   = 0x1d50
	usbcanProductID  = 0x606f
	usbcanFrameMark  = 0xC0
	usbcanFrameSize  = 12
	usbcanBufferSize = 512
)

// usbCANBus bridges a USB-CAN adapter's bulk endpoints to the Bus
// interface, reusing the same drain/parse/retry shape the teacher's USB
// device client uses for its EP5 request/response loop, just carrying CAN
// frames instead of register commands.
type usbCANBus struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint

	recvMu  sync.Mutex
	recvBuf []byte
	filter  Filter
}

// openUSBCANBus opens the adapter chosen by selector: "" picks the
// first adapter found, "bus:addr" picks by USB location.
func openUSBCANBus(selector string) (Bus, error) {
	ctx := gousb.NewContext()

	usbDevices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(usbcanVendorID) && desc.Product == gousb.ID(usbcanProductID)
	})
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: usb enumerate: %v", ErrTransport, err)
	}
	if len(usbDevices) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("%w: no USB-CAN adapter found", ErrTransport)
	}

	dev, err := pickUSBDevice(usbDevices, selector)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	dev.SetAutoDetach(true)
	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: usb config: %v", ErrTransport, err)
	}
	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: usb claim interface: %v", ErrTransport, err)
	}
	epIn, err := iface.InEndpoint(1)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: usb in endpoint: %v", ErrTransport, err)
	}
	epOut, err := iface.OutEndpoint(1)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: usb out endpoint: %v", ErrTransport, err)
	}

	b := &usbCANBus{
		ctx: ctx, dev: dev, cfg: cfg, iface: iface, epIn: epIn, epOut: epOut,
		recvBuf: make([]byte, 0, usbcanBufferSize),
	}
	b.drain()
	return b, nil
}

func pickUSBDevice(devices []*gousb.Device, selector string) (*gousb.Device, error) {
	if selector == "" {
		for _, d := range devices[1:] {
			d.Close()
		}
		return devices[0], nil
	}
	if strings.Contains(selector, ":") {
		parts := strings.SplitN(selector, ":", 2)
		bus, err1 := strconv.Atoi(parts[0])
		addr, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			for _, d := range devices {
				d.Close()
			}
			return nil, fmt.Errorf("%w: invalid bus:addr selector %q", ErrTransport, selector)
		}
		for _, d := range devices {
			if d.Desc.Bus == bus && d.Desc.Address == addr {
				for _, other := range devices {
					if other != d {
						other.Close()
					}
				}
				return d, nil
			}
		}
		for _, d := range devices {
			d.Close()
		}
		return nil, fmt.Errorf("%w: no USB-CAN adapter at %s", ErrTransport, selector)
	}
	for _, d := range devices[1:] {
		d.Close()
	}
	return devices[0], nil
}

func (b *usbCANBus) drain() {
	buf := make([]byte, usbcanBufferSize)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		n, err := b.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil || n == 0 {
			break
		}
	}
	b.recvBuf = b.recvBuf[:0]
}

func (b *usbCANBus) Send(arbID uint32, payload []byte) error {
	if len(payload) > 8 {
		return fmt.Errorf("%w: payload too long (%d bytes)", ErrTransport, len(payload))
	}
	buf := make([]byte, usbcanFrameSize)
	buf[0] = usbcanFrameMark
	binary.LittleEndian.PutUint32(buf[1:5], arbID)
	buf[5] = uint8(len(payload))
	copy(buf[6:], payload)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := b.epOut.WriteContext(ctx, buf)
	if err != nil {
		return fmt.Errorf("%w: usb write: %v", ErrTransport, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short usb write: wrote %d of %d", ErrTransport, n, len(buf))
	}
	return nil
}

func (b *usbCANBus) Recv(timeout time.Duration) (frame.Frame, bool, error) {
	b.recvMu.Lock()
	defer b.recvMu.Unlock()

	deadline := time.Now().Add(timeout)
	readBuf := make([]byte, usbcanBufferSize)

	for {
		if f, ok := b.tryParseOne(); ok {
			if matchesFilter(b.filter, f.ArbID) {
				return f, true, nil
			}
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return frame.Frame{}, false, nil
		}
		readTimeout := 50 * time.Millisecond
		if remaining < readTimeout {
			readTimeout = remaining
		}

		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		n, err := b.epIn.ReadContext(ctx, readBuf)
		cancel()
		if err != nil {
			continue // timeout/cancel on this short read is routine; retry until deadline
		}
		if n > 0 {
			b.recvBuf = append(b.recvBuf, readBuf[:n]...)
		}
	}
}

// tryParseOne extracts one complete frame from the buffered bytes, if any.
func (b *usbCANBus) tryParseOne() (frame.Frame, bool) {
	for len(b.recvBuf) > 0 && b.recvBuf[0] != usbcanFrameMark {
		b.recvBuf = b.recvBuf[1:]
	}
	if len(b.recvBuf) < usbcanFrameSize {
		return frame.Frame{}, false
	}
	pkt := b.recvBuf[:usbcanFrameSize]
	b.recvBuf = b.recvBuf[usbcanFrameSize:]

	var f frame.Frame
	f.ArbID = binary.LittleEndian.Uint32(pkt[1:5])
	dlc := pkt[5]
	if dlc > 8 {
		dlc = 8
	}
	copy(f.Data[:], pkt[6:6+dlc])
	return f, true
}

func (b *usbCANBus) SetFilter(f Filter) error {
	b.filter = f
	return nil
}

func (b *usbCANBus) Close() error {
	b.iface.Close()
	b.cfg.Close()
	err := b.dev.Close()
	b.ctx.Close()
	return err
}
