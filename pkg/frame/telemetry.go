package frame

import (
	"encoding/binary"
	"fmt"
)

// Sample3 is a raw 3-axis reading, shared by MAG and ACC frames.
type Sample3 struct {
	X, Y, Z int16
}

func decodeSample3(f Frame, want Subtype) (Sample3, error) {
	if err := requireSubtype(f, want); err != nil {
		return Sample3{}, err
	}
	return Sample3{
		X: int16(binary.LittleEndian.Uint16(f.Data[2:4])),
		Y: int16(binary.LittleEndian.Uint16(f.Data[4:6])),
		Z: int16(binary.LittleEndian.Uint16(f.Data[6:8])),
	}, nil
}

func encodeSample3(s Subtype, v Sample3) Frame {
	d := typedHeader(s)
	binary.LittleEndian.PutUint16(d[2:4], uint16(v.X))
	binary.LittleEndian.PutUint16(d[4:6], uint16(v.Y))
	binary.LittleEndian.PutUint16(d[6:8], uint16(v.Z))
	return Frame{Data: d}
}

func DecodeMag(f Frame) (Sample3, error) { return decodeSample3(f, SubtypeMag) }
func EncodeMag(v Sample3) Frame          { return encodeSample3(SubtypeMag, v) }

func DecodeAcc(f Frame) (Sample3, error) { return decodeSample3(f, SubtypeAcc) }
func EncodeAcc(v Sample3) Frame          { return encodeSample3(SubtypeAcc, v) }

// Env is a temperature/humidity reading from the AHT20 environmental sensor.
type Env struct {
	TempCenti int16
	RHCenti   uint16
	Valid     bool
}

func DecodeEnv(f Frame) (Env, error) {
	if err := requireSubtype(f, SubtypeEnv); err != nil {
		return Env{}, err
	}
	return Env{
		TempCenti: int16(binary.LittleEndian.Uint16(f.Data[2:4])),
		RHCenti:   binary.LittleEndian.Uint16(f.Data[4:6]),
		Valid:     f.Data[6] != 0,
	}, nil
}

func EncodeEnv(v Env) Frame {
	d := typedHeader(SubtypeEnv)
	binary.LittleEndian.PutUint16(d[2:4], uint16(v.TempCenti))
	binary.LittleEndian.PutUint16(d[4:6], v.RHCenti)
	if v.Valid {
		d[6] = 1
	}
	return Frame{Data: d}
}

// EventType enumerates the detector's state-transition outputs.
type EventType uint8

const (
	EventSectorActivated          EventType = 1
	EventSectorChanged            EventType = 2
	EventIntensityChange          EventType = 3
	EventSectionDeactivated       EventType = 4
	EventSessionStarted           EventType = 5
	EventSessionEnded             EventType = 6
	EventPassingSectorChange      EventType = 7
	EventPossibleMechanicalFault  EventType = 8
	EventErrorNoData              EventType = 9
)

func (t EventType) String() string {
	switch t {
	case EventSectorActivated:
		return "SECTOR_ACTIVATED"
	case EventSectorChanged:
		return "SECTOR_CHANGED"
	case EventIntensityChange:
		return "INTENSITY_CHANGE"
	case EventSectionDeactivated:
		return "SECTION_DEACTIVATED"
	case EventSessionStarted:
		return "SESSION_STARTED"
	case EventSessionEnded:
		return "SESSION_ENDED"
	case EventPassingSectorChange:
		return "PASSING_SECTOR_CHANGE"
	case EventPossibleMechanicalFault:
		return "POSSIBLE_MECHANICAL_FAILURE"
	case EventErrorNoData:
		return "ERROR_NO_DATA"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Event is a typed state-transition record, produced by the device or
// mirrored by the host detector. P3 is a monotonic millisecond timestamp
// truncated to 16 bits.
type Event struct {
	Type       EventType
	P0, P1, P2 uint8
	P3         uint16
}

func DecodeEvent(f Frame) (Event, error) {
	if err := requireSubtype(f, SubtypeEvent); err != nil {
		return Event{}, err
	}
	return Event{
		Type: EventType(f.Data[2]),
		P0:   f.Data[3],
		P1:   f.Data[4],
		P2:   f.Data[5],
		P3:   binary.LittleEndian.Uint16(f.Data[6:8]),
	}, nil
}

func EncodeEvent(e Event) Frame {
	d := typedHeader(SubtypeEvent)
	d[2] = byte(e.Type)
	d[3] = e.P0
	d[4] = e.P1
	d[5] = e.P2
	binary.LittleEndian.PutUint16(d[6:8], e.P3)
	return Frame{Data: d}
}

// Interval describes one stream's enable/period configuration.
type Interval struct {
	StreamID Stream
	Enabled  bool
	Ms       uint16
}

func DecodeInterval(f Frame) (Interval, error) {
	if err := requireSubtype(f, SubtypeInterval); err != nil {
		return Interval{}, err
	}
	return Interval{
		StreamID: Stream(f.Data[2]),
		Enabled:  f.Data[3] != 0,
		Ms:       binary.LittleEndian.Uint16(f.Data[4:6]),
	}, nil
}

func EncodeInterval(v Interval) Frame {
	d := typedHeader(SubtypeInterval)
	d[2] = byte(v.StreamID)
	if v.Enabled {
		d[3] = 1
	}
	binary.LittleEndian.PutUint16(d[4:6], v.Ms)
	return Frame{Data: d}
}

// DeviceStatus mirrors the STATUS frame: which sensors are present, which
// streams are enabled, and one low interval byte per stream (bit-packed
// ms/100, per the device firmware's compact encoding).
type DeviceStatus struct {
	SensorBits     uint8
	StreamBits     uint8
	IntervalLowLSB [4]uint8
}

const (
	SensorHMC uint8 = 1 << 0
	SensorLIS uint8 = 1 << 1
	SensorAHT uint8 = 1 << 2
)

func DecodeDeviceStatus(f Frame) (DeviceStatus, error) {
	if err := requireSubtype(f, SubtypeStatus); err != nil {
		return DeviceStatus{}, err
	}
	var v DeviceStatus
	v.SensorBits = f.Data[2]
	v.StreamBits = f.Data[3]
	copy(v.IntervalLowLSB[:], f.Data[4:8])
	return v, nil
}

func EncodeDeviceStatus(v DeviceStatus) Frame {
	d := typedHeader(SubtypeStatus)
	d[2] = v.SensorBits
	d[3] = v.StreamBits
	copy(d[4:8], v.IntervalLowLSB[:])
	return Frame{Data: d}
}

// Sensors returns the set of sensor names present on this device.
func (v DeviceStatus) Sensors() []string {
	var out []string
	if v.SensorBits&SensorHMC != 0 {
		out = append(out, "hmc")
	}
	if v.SensorBits&SensorLIS != 0 {
		out = append(out, "lis")
	}
	if v.SensorBits&SensorAHT != 0 {
		out = append(out, "aht")
	}
	return out
}

// Streams returns the set of stream names currently enabled.
func (v DeviceStatus) Streams() []string {
	var out []string
	for bit, name := range map[uint8]string{1: "mag", 2: "acc", 4: "env", 8: "event"} {
		if v.StreamBits&bit != 0 {
			out = append(out, name)
		}
	}
	return out
}

// EventState mirrors the device's current sector/elevation (EVENT_STATE),
// used by hardware-event devices to report their live zone without a full
// EVENT frame.
type EventState struct {
	Sector uint8
	Elev   uint8
}

func DecodeEventState(f Frame) (EventState, error) {
	if err := requireSubtype(f, SubtypeEventState); err != nil {
		return EventState{}, err
	}
	return EventState{Sector: f.Data[2], Elev: f.Data[3]}, nil
}

func EncodeEventState(v EventState) Frame {
	d := typedHeader(SubtypeEventState)
	d[2] = v.Sector
	d[3] = v.Elev
	return Frame{Data: d}
}

func requireSubtype(f Frame, want Subtype) error {
	if f.IsStatus() {
		return fmt.Errorf("frame: expected subtype %s, got status reply", want)
	}
	if got := f.Subtype(); got != want {
		return fmt.Errorf("frame: expected subtype %s, got %s", want, got)
	}
	return nil
}
