package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeviceIDAddressDerivation(t *testing.T) {
	id := DeviceID(5)
	assert.Equal(t, uint32(0x605), id.CommandID())
	assert.Equal(t, uint32(0x585), id.StatusID())

	got, ok := DeviceIDFromStatusID(0x585)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = DeviceIDFromStatusID(0x600)
	assert.False(t, ok)
}

func TestStatusRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := StatusCode(rapid.SampledFrom([]StatusCode{
			StatusOK, StatusErrGeneric, StatusErrRange, StatusErrState, StatusErrSensor, StatusErrCRC,
		}).Draw(t, "code"))
		tag := rapid.Byte().Draw(t, "tag")

		f := EncodeStatus(Status{Code: code, Tag: tag})
		got := DecodeStatus(f)
		assert.Equal(t, code, got.Code)
		assert.Equal(t, tag, got.Tag)
		assert.Equal(t, code == StatusOK, !got.Code.IsError())
	})
}

func TestPongRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Pong{
			DeviceID: DeviceID(rapid.IntRange(0, MaxDeviceID).Draw(t, "dev")),
			Proto:    rapid.Byte().Draw(t, "proto"),
			Flags:    rapid.Byte().Draw(t, "flags"),
		}
		f := EncodePong(p)
		require.True(t, f.IsPong())
		got, err := DecodePong(f)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})
}

func TestSample3RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := Sample3{
			X: int16(rapid.IntRange(-32768, 32767).Draw(t, "x")),
			Y: int16(rapid.IntRange(-32768, 32767).Draw(t, "y")),
			Z: int16(rapid.IntRange(-32768, 32767).Draw(t, "z")),
		}
		gotMag, err := DecodeMag(EncodeMag(v))
		require.NoError(t, err)
		assert.Equal(t, v, gotMag)

		gotAcc, err := DecodeAcc(EncodeAcc(v))
		require.NoError(t, err)
		assert.Equal(t, v, gotAcc)
	})
}

func TestEventRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := Event{
			Type: EventType(rapid.IntRange(1, 9).Draw(t, "type")),
			P0:   rapid.Byte().Draw(t, "p0"),
			P1:   rapid.Byte().Draw(t, "p1"),
			P2:   rapid.Byte().Draw(t, "p2"),
			P3:   uint16(rapid.IntRange(0, 65535).Draw(t, "p3")),
		}
		got, err := DecodeEvent(EncodeEvent(e))
		require.NoError(t, err)
		assert.Equal(t, e, got)
	})
}

func TestIntervalRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := Interval{
			StreamID: Stream(rapid.IntRange(1, 4).Draw(t, "stream")),
			Enabled:  rapid.Bool().Draw(t, "enabled"),
			Ms:       uint16(rapid.IntRange(0, 60000).Draw(t, "ms")),
		}
		got, err := DecodeInterval(EncodeInterval(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	})
}

func TestCalibValueRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := CalibValue{
			Field: CalibField(rapid.IntRange(MinCalibField, MaxCalibField).Draw(t, "field")),
			Value: int16(rapid.IntRange(-32768, 32767).Draw(t, "value")),
		}
		got, err := DecodeCalibValue(EncodeCalibValue(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	})
}

func TestHMCConfigRoundTrip(t *testing.T) {
	v := HMCConfig{RangeID: 3, DataRate: 2, Samples: 1, Mode: 0, MgCenti: 92}
	got, err := DecodeHMCConfig(EncodeHMCConfig(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
	assert.InDelta(t, 0.92, got.MgPerDigit(), 1e-9)
}

func TestAHT20RawPacking(t *testing.T) {
	v := AHT20Raw{RawH: 0xABCDE, RawT: 0x12345}
	got, err := DecodeAHT20Raw(EncodeAHT20Raw(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestWSGradientRoundTrip(t *testing.T) {
	v := WSGradient{Index: 4, Count: 12, Stop: GradientStop{Pos: 200, ColorRGB: 0xF81F}}
	got, err := DecodeWSGradient(EncodeWSGradient(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestRequireSubtypeMismatch(t *testing.T) {
	f := EncodeMag(Sample3{})
	_, err := DecodeEvent(f)
	assert.Error(t, err)
}

func TestIsStatusDiscriminatesOKFromTypedFrame(t *testing.T) {
	ok := EncodeStatus(Status{Code: StatusOK, Tag: byte(OpPing)})
	assert.True(t, ok.IsStatus(), "an OK status reply must still be recognized as a status frame")

	event := EncodeEvent(Event{Type: EventSectorActivated, P0: 3, P1: 120, P2: 40})
	assert.False(t, event.IsStatus(), "a typed frame with non-zero trailing fields is not a status reply")

	pong := EncodePong(Pong{DeviceID: 1, Proto: 2, Flags: 3})
	assert.False(t, pong.IsStatus())
}

func TestCommandPayloadLayout(t *testing.T) {
	c := CmdSetInterval(StreamMag, 250)
	p := c.Payload()
	assert.Equal(t, byte(OpSetInterval), p[0])
	assert.Equal(t, byte(StreamMag), p[1])
}
