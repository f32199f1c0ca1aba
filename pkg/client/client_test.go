package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/transport"
)

// scriptedBus releases one scripted reply batch per Send and records
// outbound payloads, enough surface to exercise Client without real
// hardware. A batch only becomes readable once its command is sent, so
// Client's pre-send flush does not consume it.
type scriptedBus struct {
	replies [][]frame.Frame
	queue   []frame.Frame
	sent    [][8]byte
}

func (b *scriptedBus) Send(arbID uint32, payload []byte) error {
	var d [8]byte
	copy(d[:], payload)
	b.sent = append(b.sent, d)
	if len(b.replies) > 0 {
		b.queue = append(b.queue, b.replies[0]...)
		b.replies = b.replies[1:]
	}
	return nil
}

func (b *scriptedBus) Recv(timeout time.Duration) (frame.Frame, bool, error) {
	if len(b.queue) == 0 {
		return frame.Frame{}, false, nil
	}
	f := b.queue[0]
	b.queue = b.queue[1:]
	return f, true, nil
}

func (b *scriptedBus) SetFilter(f transport.Filter) error { return nil }
func (b *scriptedBus) Close() error                       { return nil }

func newTestClient(frames ...frame.Frame) *Client {
	return newTestClientBatches(frames)
}

// newTestClientBatches scripts one reply batch per command the test sends.
func newTestClientBatches(batches ...[]frame.Frame) *Client {
	bus := &scriptedBus{replies: batches}
	sess := transport.NewSessionForTesting(bus, frame.DeviceID(7))
	c := New(sess)
	c.Timeout = 200 * time.Millisecond
	c.Quiescence = 30 * time.Millisecond
	return c
}

func TestClientPingWithPong(t *testing.T) {
	status := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.OpPing)})
	pong := frame.EncodePong(frame.Pong{DeviceID: 7, Proto: 2, Flags: 0x01})
	c := newTestClient(status, pong)

	res, err := c.Ping()
	require.NoError(t, err)
	assert.True(t, res.HasPong)
	assert.Equal(t, frame.DeviceID(7), res.DeviceID)
	assert.Equal(t, uint8(2), res.Proto)
}

func TestClientPingWithoutPongStillSucceeds(t *testing.T) {
	status := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.OpPing)})
	c := newTestClient(status)

	res, err := c.Ping()
	require.NoError(t, err)
	assert.False(t, res.HasPong)
}

func TestClientSetIntervalRejectsOutOfRangeMs(t *testing.T) {
	c := newTestClient()
	_, err := c.SetInterval(frame.StreamMag, 70000)
	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
}

func TestClientSetIntervalRoundTrip(t *testing.T) {
	status := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.StreamMag)})
	iv := frame.EncodeInterval(frame.Interval{StreamID: frame.StreamMag, Enabled: true, Ms: 250})
	c := newTestClient(status, iv)

	got, err := c.SetInterval(frame.StreamMag, 250)
	require.NoError(t, err)
	assert.Equal(t, uint16(250), got.Ms)
	assert.True(t, got.Enabled)
}

func TestClientGetStatusDecodesSensorAndStreamBits(t *testing.T) {
	status := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.OpGetStatus)})
	ds := frame.EncodeDeviceStatus(frame.DeviceStatus{
		SensorBits: frame.SensorHMC | frame.SensorAHT,
		StreamBits: 1 << (frame.StreamMag - 1),
	})
	c := newTestClient(status, ds)

	got, err := c.GetStatus()
	require.NoError(t, err)
	assert.Contains(t, got.Sensors, "hmc")
	assert.Contains(t, got.Sensors, "aht")
	assert.Contains(t, got.Streams, "mag")
}

func TestClientCalibSetValidatesField(t *testing.T) {
	c := newTestClient()
	err := c.SetCalib(frame.CalibField(99), 10)
	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
}

func TestClientCalibGetRoundTrip(t *testing.T) {
	status := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.FieldCenterX)})
	cv := frame.EncodeCalibValue(frame.CalibValue{Field: frame.FieldCenterX, Value: 42})
	c := newTestClient(status, cv)

	got, err := c.GetCalib(frame.FieldCenterX)
	require.NoError(t, err)
	assert.Equal(t, int16(42), got.Value)
}

func TestClientAHT20ReadRetriesOnErrSensor(t *testing.T) {
	errStatus := frame.EncodeStatus(frame.Status{Code: frame.StatusErrSensor, Tag: byte(frame.OpAHT20Read)})
	okStatus := frame.EncodeStatus(frame.Status{Code: frame.StatusOK, Tag: byte(frame.OpAHT20Read)})
	meas := frame.EncodeAHT20Meas(frame.AHT20Meas{TempCenti: 2300, RHCenti: 4500, CRCOK: true})
	c := newTestClientBatches([]frame.Frame{errStatus}, []frame.Frame{okStatus, meas})

	got, err := c.AHT20Read()
	require.NoError(t, err)
	assert.Equal(t, int16(2300), got.TempCenti)
}

func TestClientHMCSetConfigRejectsOutOfRangeMode(t *testing.T) {
	c := newTestClient()
	_, err := c.SetHMCConfig(0, 0, 0, 99)
	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
}

func TestClientWSSetGradientRejectsOutOfRangeIndex(t *testing.T) {
	c := newTestClient()
	err := c.SetWSGradientStop(255, frame.GradientStop{Pos: 0, ColorRGB: 0})
	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
}
