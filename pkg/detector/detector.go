// Package detector implements the sector/elevation event-detection state
// machine from §4.3: it consumes a stream of 3D magnetometer samples plus
// a calibration-derived configuration and emits typed frame.Event values,
// mirroring the firmware's own detector so the host can run it in
// software-event mode or cross-check a hardware-event device.
package detector

import (
	"math"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// Sector/elevation tuning defaults (§4.3).
const (
	bufferSize     = 5
	MinSectors     = 1
	MaxSectors     = 16
	DefaultSectors = 6

	DefaultChangeThreshold      = 3.0
	DefaultDeactivationTimeout = 5000
	DefaultSessionTimeout      = 10000

	// passingChangeWindowS is the fixed 20ms tie-break window between
	// SECTOR_CHANGED and PASSING_SECTOR_CHANGE (§9: "the source uses a
	// fixed constant; preserve it unless explicitly parameterized").
	passingChangeWindowS = 0.020
)

// Config mirrors the device's calibration vector plus the detector's own
// tunables, as described in §4.3.
type Config struct {
	CenterX, CenterY, CenterZ    float64
	RotateXYDeg, RotateXZDeg, RotateYZDeg float64
	KeepoutRad float64
	ZLimit     float64
	DataRadius float64
	NumSectors int

	ChangeThreshold        float64
	DeactivationTimeoutMs  int
	SessionTimeoutMs       int
}

// ConfigFromCalibration builds a detector Config from the host's mirrored
// calibration vector (§3), sanitizing num_sectors the way the firmware
// does (out-of-range falls back to DefaultSectors).
func ConfigFromCalibration(calib map[frame.CalibField]int16) Config {
	get := func(f frame.CalibField) float64 { return float64(calib[f]) }
	cfg := Config{
		CenterX:     get(frame.FieldCenterX),
		CenterY:     get(frame.FieldCenterY),
		CenterZ:     get(frame.FieldCenterZ),
		RotateXYDeg: get(frame.FieldRotateXY) / 100.0,
		RotateXZDeg: get(frame.FieldRotateXZ) / 100.0,
		RotateYZDeg: get(frame.FieldRotateYZ) / 100.0,
		KeepoutRad:  get(frame.FieldKeepoutRad),
		ZLimit:      get(frame.FieldZLimit),
		DataRadius:  get(frame.FieldDataRadius),
		NumSectors:  int(calib[frame.FieldNumSectors]),
	}
	return cfg.sanitized()
}

func (c Config) sanitized() Config {
	if c.NumSectors < MinSectors || c.NumSectors > MaxSectors {
		c.NumSectors = DefaultSectors
	}
	if c.ChangeThreshold == 0 {
		c.ChangeThreshold = DefaultChangeThreshold
	}
	if c.DeactivationTimeoutMs == 0 {
		c.DeactivationTimeoutMs = DefaultDeactivationTimeout
	}
	if c.SessionTimeoutMs == 0 {
		c.SessionTimeoutMs = DefaultSessionTimeout
	}
	return c
}

// Detector is the per-device state machine. It is not safe for concurrent
// use; per §5, per-device scheduler state (which owns a Detector) is
// single-threaded on the main loop.
type Detector struct {
	cfg Config

	sectorBuf []int
	elevBuf   []float64

	lastSector         int
	lastElevation      float64
	lastStateElevation uint8

	lastEventS    float64
	lastNonzeroS  float64
	sessionActive bool

	lastSectorEventS map[int]float64
	deactivated      map[int]bool

	lastNoDataS float64
}

// New constructs a Detector at rest; nowS seeds the initial timestamps.
func New(cfg Config, nowS float64) *Detector {
	d := &Detector{cfg: cfg.sanitized()}
	d.Reset(nowS)
	return d
}

// ApplyConfig swaps in a new calibration-derived configuration without
// resetting the sliding-window/session state (§5: "snapshot on change").
func (d *Detector) ApplyConfig(cfg Config) {
	d.cfg = cfg.sanitized()
}

// Reset clears all sliding-window and session state, as if the detector
// had just been constructed at nowS.
func (d *Detector) Reset(nowS float64) {
	d.sectorBuf = d.sectorBuf[:0]
	d.elevBuf = d.elevBuf[:0]
	d.lastSector = 0
	d.lastElevation = 0
	d.lastStateElevation = 0
	d.lastEventS = nowS
	d.lastNonzeroS = nowS
	d.sessionActive = false
	d.lastSectorEventS = make(map[int]float64)
	d.deactivated = make(map[int]bool)
	d.lastNoDataS = math.Inf(-1)
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func stampMs16(nowS float64) uint16 {
	return uint16(int64(nowS*1000.0) & 0xFFFF)
}

// rotate3D applies the three successive planar rotations XY, XZ, YZ, in
// that order (§4.3).
func (d *Detector) rotate3D(x, y, z float64) (float64, float64, float64) {
	radXY := d.cfg.RotateXYDeg * math.Pi / 180.0
	x1 := x*math.Cos(radXY) - y*math.Sin(radXY)
	y1 := x*math.Sin(radXY) + y*math.Cos(radXY)
	z1 := z

	radXZ := d.cfg.RotateXZDeg * math.Pi / 180.0
	x2 := x1*math.Cos(radXZ) - z1*math.Sin(radXZ)
	z2 := x1*math.Sin(radXZ) + z1*math.Cos(radXZ)
	y2 := y1

	radYZ := d.cfg.RotateYZDeg * math.Pi / 180.0
	y3 := y2*math.Cos(radYZ) - z2*math.Sin(radYZ)
	z3 := y2*math.Sin(radYZ) + z2*math.Cos(radYZ)
	return x2, y3, z3
}

// ComputeSectorElevation maps one raw sample to (sector, elevation) in
// detector space, without touching any sliding-window/session state.
func (d *Detector) ComputeSectorElevation(x, y, z float64) (sector int, elev uint8) {
	zAdj := z - d.cfg.CenterZ
	xr, yr, zr := d.rotate3D(x, y, zAdj)

	dx := xr - d.cfg.CenterX
	dy := yr - d.cfg.CenterY
	distance := math.Hypot(dx, dy)
	if distance <= d.cfg.KeepoutRad || zr < d.cfg.ZLimit {
		return 0, 0
	}

	azimuth := math.Atan2(dy, dx) * 180.0 / math.Pi
	for azimuth < 0.0 {
		azimuth += 360.0
	}
	for azimuth >= 360.0 {
		azimuth -= 360.0
	}

	sector = int(azimuth/(360.0/float64(d.cfg.NumSectors))) + 1
	elev = clampU8(math.Max(0.0, zr-d.cfg.ZLimit))
	return sector, elev
}

// Process runs one sample through the state machine and returns the
// events it produces, in emission order. now_s must be strictly
// non-decreasing across calls for the monotonicity property in §8 to
// hold.
func (d *Detector) Process(x, y, z, nowS float64) []frame.Event {
	var out []frame.Event

	sector, elevU8 := d.ComputeSectorElevation(x, y, z)
	d.sectorBuf = append(d.sectorBuf, sector)
	d.elevBuf = append(d.elevBuf, float64(elevU8))
	if len(d.sectorBuf) > bufferSize {
		d.sectorBuf = d.sectorBuf[len(d.sectorBuf)-bufferSize:]
		d.elevBuf = d.elevBuf[len(d.elevBuf)-bufferSize:]
	}

	if len(d.elevBuf) < bufferSize {
		d.lastEventS = nowS
		d.lastSector = sector
		d.lastElevation = float64(elevU8)
		d.lastStateElevation = elevU8
		return out
	}

	var sum float64
	for _, e := range d.elevBuf {
		sum += e
	}
	elevAvg := sum / float64(len(d.elevBuf))

	dt := math.Max(0.001, nowS-d.lastEventS)
	speed := clampU8(math.Abs(elevAvg-d.lastElevation) / dt)
	stamp := stampMs16(nowS)

	if sector != d.lastSector {
		switch {
		case d.lastSector == 0:
			out = append(out, frame.Event{Type: frame.EventSectorActivated, P0: uint8(sector), P1: clampU8(elevAvg), P2: speed, P3: stamp})
			if !d.sessionActive {
				out = append(out, frame.Event{Type: frame.EventSessionStarted, P3: stamp})
				d.sessionActive = true
			}
		case sector != 0:
			diff := absInt(d.lastSector - sector)
			wrapDiff := d.cfg.NumSectors - diff
			if (diff == 1 || wrapDiff == 1) && (nowS-d.lastEventS) < passingChangeWindowS {
				out = append(out, frame.Event{Type: frame.EventPassingSectorChange, P0: uint8(sector), P3: stamp})
			} else {
				out = append(out, frame.Event{Type: frame.EventSectorChanged, P0: uint8(d.lastSector), P1: uint8(sector), P3: stamp})
			}
		}
		if sector >= MinSectors && sector <= d.cfg.NumSectors {
			delete(d.deactivated, sector)
			d.lastSectorEventS[sector] = nowS
		}
	} else if sector != 0 && math.Abs(elevAvg-d.lastElevation) > d.cfg.ChangeThreshold {
		if !d.deactivated[sector] {
			out = append(out, frame.Event{Type: frame.EventIntensityChange, P0: uint8(sector), P1: clampU8(elevAvg), P2: speed, P3: stamp})
			d.lastSectorEventS[sector] = nowS
		}
	}

	if d.lastSector != 0 {
		d.lastNonzeroS = nowS
	}

	if d.lastSector != 0 && d.lastSector <= d.cfg.NumSectors {
		if secLast, ok := d.lastSectorEventS[d.lastSector]; ok && (nowS-secLast) > float64(d.cfg.DeactivationTimeoutMs)/1000.0 {
			out = append(out, frame.Event{Type: frame.EventSectionDeactivated, P0: uint8(d.lastSector), P3: stamp})
			if d.sessionActive {
				out = append(out, frame.Event{Type: frame.EventSessionEnded, P3: stamp})
				d.sessionActive = false
			}
			d.deactivated[d.lastSector] = true
			delete(d.lastSectorEventS, d.lastSector)
		}
	}

	switch {
	case d.lastSector != 0 && (nowS-d.lastEventS) > float64(d.cfg.SessionTimeoutMs)/1000.0:
		out = append(out, frame.Event{Type: frame.EventPossibleMechanicalFault, P0: uint8(d.lastSector), P3: stamp})
	case d.lastSector == 0 && (nowS-d.lastNonzeroS) > float64(d.cfg.SessionTimeoutMs)/1000.0:
		if d.sessionActive {
			out = append(out, frame.Event{Type: frame.EventSessionEnded, P3: stamp})
			d.sessionActive = false
		}
	}

	d.lastSector = sector
	d.lastElevation = elevAvg
	d.lastStateElevation = clampU8(elevAvg)
	d.lastEventS = nowS
	return out
}

// PostNoData reports a stalled input stream. At most one ERROR_NO_DATA is
// emitted per session_timeout_ms window.
func (d *Detector) PostNoData(nowS float64) []frame.Event {
	if (nowS - d.lastNoDataS) < float64(d.cfg.SessionTimeoutMs)/1000.0 {
		return nil
	}
	d.lastNoDataS = nowS
	return []frame.Event{{Type: frame.EventErrorNoData, P3: stampMs16(nowS)}}
}

// SectorState returns the detector's current (sector, elevation) mirror,
// the same pair a hardware-event device reports via EVENT_STATE.
func (d *Detector) SectorState() (sector uint8, elev uint8) {
	return uint8(d.lastSector), d.lastStateElevation
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
