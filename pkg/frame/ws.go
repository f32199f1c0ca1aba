package frame

import "encoding/binary"

// WSState mirrors the strip's overall on/off + brightness + base color.
type WSState struct {
	On         bool
	Brightness uint8
	ColorRGB   uint16 // rgb565
}

func DecodeWSState(f Frame) (WSState, error) {
	if err := requireSubtype(f, SubtypeWSState); err != nil {
		return WSState{}, err
	}
	return WSState{
		On:         f.Data[2] != 0,
		Brightness: f.Data[3],
		ColorRGB:   binary.LittleEndian.Uint16(f.Data[4:6]),
	}, nil
}

func EncodeWSState(v WSState) Frame {
	d := typedHeader(SubtypeWSState)
	if v.On {
		d[2] = 1
	}
	d[3] = v.Brightness
	binary.LittleEndian.PutUint16(d[4:6], v.ColorRGB)
	return Frame{Data: d}
}

// AnimMode enumerates the device's built-in LED animation modes.
type AnimMode uint8

const (
	AnimSolid        AnimMode = 0
	AnimGradient     AnimMode = 1
	AnimSectorFollow AnimMode = 2
	AnimPulse        AnimMode = 3
)

// WSAnim mirrors the currently-playing animation and its speed.
type WSAnim struct {
	Mode  AnimMode
	Speed uint8
}

func DecodeWSAnim(f Frame) (WSAnim, error) {
	if err := requireSubtype(f, SubtypeWSAnim); err != nil {
		return WSAnim{}, err
	}
	return WSAnim{Mode: AnimMode(f.Data[2]), Speed: f.Data[3]}, nil
}

func EncodeWSAnim(v WSAnim) Frame {
	d := typedHeader(SubtypeWSAnim)
	d[2] = byte(v.Mode)
	d[3] = v.Speed
	return Frame{Data: d}
}

// GradientStop is one control point of an LED gradient ramp.
type GradientStop struct {
	Pos      uint8
	ColorRGB uint16
}

// MaxGradientStops bounds the per-device gradient-stop table.
const MaxGradientStops = 32

// WSGradient carries one stop at a given index, the chunked-reply unit for
// GRADIENT_GET(0) (collect-all).
type WSGradient struct {
	Index uint8
	Count uint8
	Stop  GradientStop
}

func DecodeWSGradient(f Frame) (WSGradient, error) {
	if err := requireSubtype(f, SubtypeWSGradient); err != nil {
		return WSGradient{}, err
	}
	return WSGradient{
		Index: f.Data[2],
		Count: f.Data[3],
		Stop: GradientStop{
			Pos:      f.Data[4],
			ColorRGB: binary.LittleEndian.Uint16(f.Data[5:7]),
		},
	}, nil
}

func EncodeWSGradient(v WSGradient) Frame {
	d := typedHeader(SubtypeWSGradient)
	d[2] = v.Index
	d[3] = v.Count
	d[4] = v.Stop.Pos
	binary.LittleEndian.PutUint16(d[5:7], v.Stop.ColorRGB)
	return Frame{Data: d}
}

// WSSectorColor/WSSectorMode/WSSectorZone mirror per-sector LED zone state.

type WSSectorColor struct {
	Sector   uint8
	ColorRGB uint16
}

func DecodeWSSectorColor(f Frame) (WSSectorColor, error) {
	if err := requireSubtype(f, SubtypeWSSectorColor); err != nil {
		return WSSectorColor{}, err
	}
	return WSSectorColor{Sector: f.Data[2], ColorRGB: binary.LittleEndian.Uint16(f.Data[3:5])}, nil
}

func EncodeWSSectorColor(v WSSectorColor) Frame {
	d := typedHeader(SubtypeWSSectorColor)
	d[2] = v.Sector
	binary.LittleEndian.PutUint16(d[3:5], v.ColorRGB)
	return Frame{Data: d}
}

type WSSectorMode struct {
	Sector uint8
	Mode   AnimMode
}

func DecodeWSSectorMode(f Frame) (WSSectorMode, error) {
	if err := requireSubtype(f, SubtypeWSSectorMode); err != nil {
		return WSSectorMode{}, err
	}
	return WSSectorMode{Sector: f.Data[2], Mode: AnimMode(f.Data[3])}, nil
}

func EncodeWSSectorMode(v WSSectorMode) Frame {
	d := typedHeader(SubtypeWSSectorMode)
	d[2] = v.Sector
	d[3] = byte(v.Mode)
	return Frame{Data: d}
}

type WSSectorZone struct {
	Sector     uint8
	FirstPixel uint16
	LastPixel  uint16
}

func DecodeWSSectorZone(f Frame) (WSSectorZone, error) {
	if err := requireSubtype(f, SubtypeWSSectorZone); err != nil {
		return WSSectorZone{}, err
	}
	return WSSectorZone{
		Sector:     f.Data[2],
		FirstPixel: binary.LittleEndian.Uint16(f.Data[3:5]),
		LastPixel:  binary.LittleEndian.Uint16(f.Data[5:7]),
	}, nil
}

func EncodeWSSectorZone(v WSSectorZone) Frame {
	d := typedHeader(SubtypeWSSectorZone)
	d[2] = v.Sector
	binary.LittleEndian.PutUint16(d[3:5], v.FirstPixel)
	binary.LittleEndian.PutUint16(d[5:7], v.LastPixel)
	return Frame{Data: d}
}

// WSLength mirrors the configured strip pixel count.
type WSLength struct {
	Length uint16
}

func DecodeWSLength(f Frame) (WSLength, error) {
	if err := requireSubtype(f, SubtypeWSLength); err != nil {
		return WSLength{}, err
	}
	return WSLength{Length: binary.LittleEndian.Uint16(f.Data[2:4])}, nil
}

func EncodeWSLength(v WSLength) Frame {
	d := typedHeader(SubtypeWSLength)
	binary.LittleEndian.PutUint16(d[2:4], v.Length)
	return Frame{Data: d}
}
