package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// ErrTimeout is returned when a request deadline expires with no matching
// frame. Cause, if non-nil, is the last mismatching error-status frame
// seen during the wait.
type ErrTimeout struct {
	Op    string
	Cause error
}

func (e *ErrTimeout) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport: timeout waiting for %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("transport: timeout waiting for %s", e.Op)
}

func (e *ErrTimeout) Unwrap() error { return e.Cause }

// ErrStatus wraps a non-OK status reply.
type ErrStatus struct {
	Code frame.StatusCode
	Tag  uint8
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("transport: status error %s (tag=0x%02x)", e.Code, e.Tag)
}

// DefaultDeferredQueueSize bounds the deferred-frame buffer (§4.1).
const DefaultDeferredQueueSize = 128

// Session is the per-device request/reply helper described in §4.1: it
// owns a dedicated Bus filtered to one device's status ID, and implements
// wait_status / wait_frame / flush_pending / chunked collection on top of
// raw frame reads.
type Session struct {
	bus      Bus
	deviceID frame.DeviceID

	deferred []frame.Frame
	log      *log.Logger
}

// NewSession opens a command session for one device: a Bus filtered
// exactly to that device's status ID, per §4.1's "command client uses
// exact status ID match".
func NewSession(cfg Config, deviceID frame.DeviceID) (*Session, error) {
	bus, err := Open(cfg, ExactFilter(deviceID.StatusID()))
	if err != nil {
		return nil, err
	}
	return &Session{
		bus:      bus,
		deviceID: deviceID,
		log:      log.With("component", "transport", "device_id", deviceID),
	}, nil
}

func (s *Session) Close() error { return s.bus.Close() }

// Send transmits an 8-byte command payload on the device's command ID.
func (s *Session) Send(payload [8]byte) error {
	return s.bus.Send(s.deviceID.CommandID(), payload[:])
}

// FlushPending drops any buffered frames accumulated on the command
// socket before issuing a request, bounded by wall-clock and count so a
// mid-burst device can't starve the flush.
func (s *Session) FlushPending(maxFrames int, maxWait time.Duration) int {
	s.deferred = s.deferred[:0]
	deadline := time.Now().Add(maxWait)
	dropped := 0
	for dropped < maxFrames && time.Now().Before(deadline) {
		_, ok, err := s.bus.Recv(5 * time.Millisecond)
		if err != nil || !ok {
			break
		}
		dropped++
	}
	return dropped
}

// WaitStatus consumes frames until a status reply with the expected tag
// is seen (returned as success), an error status with that tag is seen
// (returned as *ErrStatus), or the deadline expires (returned as
// *ErrTimeout wrapping the last mismatching error status, if any).
// Non-status frames that don't match are buffered into the deferred
// queue and re-presented to the next wait call; anything beyond the
// deferred queue's capacity is dropped.
func (s *Session) WaitStatus(op string, expectedTag uint8, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error

	for time.Now().Before(deadline) {
		f, ok, err := s.nextFrame(time.Until(deadline))
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if f.IsStatus() {
			st := frame.DecodeStatus(f)
			if st.Tag == expectedTag {
				if st.Code.IsError() {
					return &ErrStatus{Code: st.Code, Tag: st.Tag}
				}
				return nil
			}
			if st.Code.IsError() {
				lastErr = &ErrStatus{Code: st.Code, Tag: st.Tag}
			}
			continue
		}
		s.bufferDeferred(f)
	}
	return &ErrTimeout{Op: op, Cause: lastErr}
}

// WaitFrame consumes frames from the deferred queue first, then the bus,
// until predicate matches, an error status is encountered (raised), or
// the deadline expires. OK-status frames are silently absorbed.
func (s *Session) WaitFrame(op string, timeout time.Duration, predicate func(frame.Frame) bool) (frame.Frame, error) {
	deadline := time.Now().Add(timeout)

	for i := 0; i < len(s.deferred); i++ {
		if predicate(s.deferred[i]) {
			f := s.deferred[i]
			s.deferred = append(s.deferred[:i], s.deferred[i+1:]...)
			return f, nil
		}
	}

	for time.Now().Before(deadline) {
		f, ok, err := s.nextFrame(time.Until(deadline))
		if err != nil {
			return frame.Frame{}, err
		}
		if !ok {
			break
		}
		if f.IsStatus() {
			st := frame.DecodeStatus(f)
			if st.Code.IsError() {
				return frame.Frame{}, &ErrStatus{Code: st.Code, Tag: st.Tag}
			}
			continue
		}
		if predicate(f) {
			return f, nil
		}
		s.bufferDeferred(f)
	}
	return frame.Frame{}, &ErrTimeout{Op: op}
}

// CollectFrames runs the chunked-reply protocol: keep consuming matching
// typed frames until wantCount is reached, a quiescence window with no
// matching frame elapses, or the overall deadline expires.
func (s *Session) CollectFrames(op string, timeout, quiescence time.Duration, wantCount int, predicate func(frame.Frame) bool) ([]frame.Frame, error) {
	deadline := time.Now().Add(timeout)
	var out []frame.Frame

	for len(out) < wantCount && time.Now().Before(deadline) {
		waitFor := quiescence
		if remaining := time.Until(deadline); remaining < waitFor {
			waitFor = remaining
		}
		f, err := s.WaitFrame(op, waitFor, predicate)
		if err != nil {
			var to *ErrTimeout
			if errors.As(err, &to) {
				break
			}
			return out, err
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, &ErrTimeout{Op: op}
	}
	return out, nil
}

func (s *Session) nextFrame(timeout time.Duration) (frame.Frame, bool, error) {
	if len(s.deferred) > 0 {
		f := s.deferred[0]
		s.deferred = s.deferred[1:]
		return f, true, nil
	}
	f, ok, err := s.bus.Recv(timeout)
	if err != nil {
		s.log.Error("bus recv failed", "cause", err)
		return frame.Frame{}, false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return f, ok, nil
}

func (s *Session) bufferDeferred(f frame.Frame) {
	if len(s.deferred) >= DefaultDeferredQueueSize {
		s.log.Warn("deferred queue full, dropping frame", "subtype", f.Subtype())
		return
	}
	s.deferred = append(s.deferred, f)
}

// SetDeviceID tears down and reopens the bus filter atomically, clearing
// the deferred queue and invalidating outstanding state (§4.1).
func (s *Session) SetDeviceID(cfg Config, newID frame.DeviceID) error {
	if err := s.bus.Close(); err != nil {
		return err
	}
	bus, err := Open(cfg, ExactFilter(newID.StatusID()))
	if err != nil {
		return err
	}
	s.bus = bus
	s.deviceID = newID
	s.deferred = s.deferred[:0]
	return nil
}

func (s *Session) DeviceID() frame.DeviceID { return s.deviceID }
