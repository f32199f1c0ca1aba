package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// fakeBus is a scripted in-memory Bus for exercising Session's
// wait/deferred logic without real CAN hardware.
type fakeBus struct {
	queue []frame.Frame
	sent  [][8]byte
}

func newFakeBus(frames ...frame.Frame) *fakeBus {
	return &fakeBus{queue: frames}
}

func (b *fakeBus) Send(arbID uint32, payload []byte) error {
	var d [8]byte
	copy(d[:], payload)
	b.sent = append(b.sent, d)
	return nil
}

func (b *fakeBus) Recv(timeout time.Duration) (frame.Frame, bool, error) {
	if len(b.queue) == 0 {
		return frame.Frame{}, false, nil
	}
	f := b.queue[0]
	b.queue = b.queue[1:]
	return f, true, nil
}

func (b *fakeBus) SetFilter(f Filter) error { return nil }
func (b *fakeBus) Close() error             { return nil }

func newTestSession(frames ...frame.Frame) *Session {
	return &Session{bus: newFakeBus(frames...), deviceID: frame.DeviceID(1)}
}

func TestWaitStatusOK(t *testing.T) {
	f := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.OpPing)})
	s := newTestSession(f)
	err := s.WaitStatus("ping", byte(frame.OpPing), time.Second)
	assert.NoError(t, err)
}

func TestWaitStatusError(t *testing.T) {
	f := frame.EncodeStatus(frame.Status{Code: frame.StatusErrRange, Tag: 5})
	s := newTestSession(f)
	err := s.WaitStatus("calib_set", 5, time.Second)
	var statusErr *ErrStatus
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, frame.StatusErrRange, statusErr.Code)
}

func TestWaitStatusTimeoutCarriesLastMismatch(t *testing.T) {
	mismatch := frame.EncodeStatus(frame.Status{Code: frame.StatusErrSensor, Tag: 9})
	s := newTestSession(mismatch)
	err := s.WaitStatus("op", 1, 20*time.Millisecond)
	var to *ErrTimeout
	require.ErrorAs(t, err, &to)
	var statusErr *ErrStatus
	require.ErrorAs(t, to.Cause, &statusErr)
	assert.Equal(t, frame.StatusErrSensor, statusErr.Code)
}

func TestNonMatchingFrameIsDeferredThenRedelivered(t *testing.T) {
	mag := frame.EncodeMag(frame.Sample3{X: 1})
	status := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.OpGetStatus)})
	s := newTestSession(mag, status)

	// mag doesn't match the status wait; it's buffered, then the status
	// frame satisfies the wait.
	err := s.WaitStatus("get_status", byte(frame.OpGetStatus), time.Second)
	require.NoError(t, err)
	require.Len(t, s.deferred, 1)

	f, err := s.WaitFrame("mag", time.Second, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeMag
	})
	require.NoError(t, err)
	got, err := frame.DecodeMag(f)
	require.NoError(t, err)
	assert.Equal(t, int16(1), got.X)
	assert.Empty(t, s.deferred)
}

func TestCollectFramesStopsAtWantCount(t *testing.T) {
	mk := func(stream frame.Stream) frame.Frame {
		return frame.EncodeInterval(frame.Interval{StreamID: stream, Enabled: true, Ms: 100})
	}
	s := newTestSession(mk(frame.StreamMag), mk(frame.StreamAcc), mk(frame.StreamEnv), mk(frame.StreamEvent))

	got, err := s.CollectFrames("get_intervals", time.Second, 50*time.Millisecond, 4, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeInterval
	})
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestFlushPendingDrainsQueue(t *testing.T) {
	s := newTestSession(frame.EncodeMag(frame.Sample3{}), frame.EncodeMag(frame.Sample3{}))
	dropped := s.FlushPending(10, 100*time.Millisecond)
	assert.Equal(t, 2, dropped)
}

func TestSendWritesCommandID(t *testing.T) {
	bus := newFakeBus()
	s := &Session{bus: bus, deviceID: frame.DeviceID(3)}
	cmd := frame.CmdPing()
	require.NoError(t, s.Send(cmd.Payload()))
	require.Len(t, bus.sent, 1)
	assert.Equal(t, byte(frame.OpPing), bus.sent[0][0])
}
