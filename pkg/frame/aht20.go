package frame

import "encoding/binary"

// AHT20Meas is the parsed temperature/humidity measurement.
type AHT20Meas struct {
	TempCenti int16
	RHCenti   uint16
	Status    uint8
	CRCOK     bool
}

func DecodeAHT20Meas(f Frame) (AHT20Meas, error) {
	if err := requireSubtype(f, SubtypeAHT20Meas); err != nil {
		return AHT20Meas{}, err
	}
	return AHT20Meas{
		TempCenti: int16(binary.LittleEndian.Uint16(f.Data[2:4])),
		RHCenti:   binary.LittleEndian.Uint16(f.Data[4:6]),
		Status:    f.Data[6],
		CRCOK:     f.Data[7] != 0,
	}, nil
}

func EncodeAHT20Meas(v AHT20Meas) Frame {
	d := typedHeader(SubtypeAHT20Meas)
	binary.LittleEndian.PutUint16(d[2:4], uint16(v.TempCenti))
	binary.LittleEndian.PutUint16(d[4:6], v.RHCenti)
	d[6] = v.Status
	if v.CRCOK {
		d[7] = 1
	}
	return Frame{Data: d}
}

// AHT20Raw carries the sensor's raw 20-bit humidity/temperature counters,
// each packed into 2.5 bytes per the AHT20 datasheet layout.
type AHT20Raw struct {
	RawH uint32 // 20 bits
	RawT uint32 // 20 bits
}

func DecodeAHT20Raw(f Frame) (AHT20Raw, error) {
	if err := requireSubtype(f, SubtypeAHT20Raw); err != nil {
		return AHT20Raw{}, err
	}
	rawH := (uint32(f.Data[2])<<16 | uint32(f.Data[3])<<8 | uint32(f.Data[4])) & 0xFFFFF
	rawT := (uint32(f.Data[5])<<16 | uint32(f.Data[6])<<8 | uint32(f.Data[7])) & 0xFFFFF
	return AHT20Raw{RawH: rawH, RawT: rawT}, nil
}

func EncodeAHT20Raw(v AHT20Raw) Frame {
	d := typedHeader(SubtypeAHT20Raw)
	d[2] = byte((v.RawH >> 16) & 0x0F)
	d[3] = byte((v.RawH >> 8) & 0xFF)
	d[4] = byte(v.RawH & 0xFF)
	d[5] = byte((v.RawT >> 16) & 0x0F)
	d[6] = byte((v.RawT >> 8) & 0xFF)
	d[7] = byte(v.RawT & 0xFF)
	return Frame{Data: d}
}

// CalibField names the 19 calibration slots in the calibration vector.
type CalibField uint8

const (
	FieldCenterX    CalibField = 1
	FieldCenterY    CalibField = 2
	FieldCenterZ    CalibField = 3
	FieldRotateXY   CalibField = 4
	FieldRotateXZ   CalibField = 5
	FieldRotateYZ   CalibField = 6
	FieldKeepoutRad CalibField = 7
	FieldZLimit     CalibField = 8
	FieldDataRadius CalibField = 9
	FieldMagOffsetX CalibField = 10
	FieldMagOffsetY CalibField = 11
	FieldMagOffsetZ CalibField = 12
	FieldEarthX     CalibField = 13
	FieldEarthY     CalibField = 14
	FieldEarthZ     CalibField = 15
	FieldEarthValid CalibField = 16
	FieldNumSectors CalibField = 17
	FieldZMax       CalibField = 18
	FieldElevCurve  CalibField = 19
)

// MinCalibField/MaxCalibField bound the valid field_id range.
const (
	MinCalibField = 1
	MaxCalibField = 19
)

func (f CalibField) Valid() bool {
	return f >= MinCalibField && f <= MaxCalibField
}

var calibFieldNames = map[CalibField]string{
	FieldCenterX: "center_x", FieldCenterY: "center_y", FieldCenterZ: "center_z",
	FieldRotateXY: "rotate_xy", FieldRotateXZ: "rotate_xz", FieldRotateYZ: "rotate_yz",
	FieldKeepoutRad: "keepout_rad", FieldZLimit: "z_limit", FieldDataRadius: "data_radius",
	FieldMagOffsetX: "mag_offset_x", FieldMagOffsetY: "mag_offset_y", FieldMagOffsetZ: "mag_offset_z",
	FieldEarthX: "earth_x", FieldEarthY: "earth_y", FieldEarthZ: "earth_z",
	FieldEarthValid: "earth_valid", FieldNumSectors: "num_sectors", FieldZMax: "z_max",
	FieldElevCurve: "elev_curve",
}

func (f CalibField) String() string {
	if name, ok := calibFieldNames[f]; ok {
		return name
	}
	return "unknown_field"
}

// CalibValue is one {field_id, value} pair of the calibration vector.
type CalibValue struct {
	Field CalibField
	Value int16
}

func DecodeCalibValue(f Frame) (CalibValue, error) {
	if err := requireSubtype(f, SubtypeCalibValue); err != nil {
		return CalibValue{}, err
	}
	return CalibValue{
		Field: CalibField(f.Data[2]),
		Value: int16(binary.LittleEndian.Uint16(f.Data[3:5])),
	}, nil
}

func EncodeCalibValue(v CalibValue) Frame {
	d := typedHeader(SubtypeCalibValue)
	d[2] = byte(v.Field)
	binary.LittleEndian.PutUint16(d[3:5], uint16(v.Value))
	return Frame{Data: d}
}

// CalibOp enumerates the CALIB_INFO operations that report completion.
type CalibOp uint8

const (
	CalibOpSave         CalibOp = 1
	CalibOpLoad         CalibOp = 2
	CalibOpReset        CalibOp = 3
	CalibOpCaptureEarth CalibOp = 4
)

// CalibInfo reports the outcome of a save/load/reset/capture-earth command.
type CalibInfo struct {
	Op     CalibOp
	Result StatusCode
}

func DecodeCalibInfo(f Frame) (CalibInfo, error) {
	if err := requireSubtype(f, SubtypeCalibInfo); err != nil {
		return CalibInfo{}, err
	}
	return CalibInfo{Op: CalibOp(f.Data[2]), Result: StatusCode(f.Data[3])}, nil
}

func EncodeCalibInfo(v CalibInfo) Frame {
	d := typedHeader(SubtypeCalibInfo)
	d[2] = byte(v.Op)
	d[3] = byte(v.Result)
	return Frame{Data: d}
}

// HMCConfig mirrors the magnetometer's range/rate/samples/mode configuration.
type HMCConfig struct {
	RangeID   uint8
	DataRate  uint8
	Samples   uint8
	Mode      uint8
	MgCenti   uint16 // mg per digit, hundredths
}

// MgPerDigit returns the derived sensitivity in milligauss per ADC digit.
func (c HMCConfig) MgPerDigit() float64 {
	return float64(c.MgCenti) / 100.0
}

func DecodeHMCConfig(f Frame) (HMCConfig, error) {
	if err := requireSubtype(f, SubtypeHMCConfig); err != nil {
		return HMCConfig{}, err
	}
	return HMCConfig{
		RangeID:  f.Data[2],
		DataRate: f.Data[3],
		Samples:  f.Data[4],
		Mode:     f.Data[5],
		MgCenti:  binary.LittleEndian.Uint16(f.Data[6:8]),
	}, nil
}

func EncodeHMCConfig(v HMCConfig) Frame {
	d := typedHeader(SubtypeHMCConfig)
	d[2] = v.RangeID
	d[3] = v.DataRate
	d[4] = v.Samples
	d[5] = v.Mode
	binary.LittleEndian.PutUint16(d[6:8], v.MgCenti)
	return Frame{Data: d}
}

// Valid HMC configuration ranges, per the protocol's documented bounds.
const (
	HMCMaxRange    = 7
	HMCMaxDataRate = 6
	HMCMaxSamples  = 3
	HMCMaxMode     = 2
)
