package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// SnapshotFormat/SnapshotVersion tag the JSON export format (§6).
const (
	SnapshotFormat  = "magsensor-device-snapshot"
	SnapshotVersion = 1
)

// Snapshot is the persisted JSON device export/import shape from §6:
// `{format, version, device_id, saved_at_unix, calibration, streams, hmc}`.
type Snapshot struct {
	Format      string           `json:"format"`
	Version     int              `json:"version"`
	DeviceID    uint8            `json:"device_id"`
	SavedAtUnix int64            `json:"saved_at_unix"`
	Calibration map[string]int16 `json:"calibration"`
	Streams     []SnapshotStream `json:"streams"`
	HMC         SnapshotHMC      `json:"hmc"`
}

type SnapshotStream struct {
	StreamID string `json:"stream_id"`
	Enabled  bool   `json:"enabled"`
	Ms       uint16 `json:"ms"`
}

type SnapshotHMC struct {
	Range    uint8 `json:"range"`
	DataRate uint8 `json:"data_rate"`
	Samples  uint8 `json:"samples"`
	Mode     uint8 `json:"mode"`
}

// NewSnapshot builds a Snapshot from decoded device state, stamping
// SavedAtUnix with now.
func NewSnapshot(deviceID frame.DeviceID, calib map[frame.CalibField]int16, streams []frame.Interval, hmc frame.HMCConfig, now time.Time) Snapshot {
	cal := make(map[string]int16, len(calib))
	for field, v := range calib {
		cal[field.String()] = v
	}
	streamOut := make([]SnapshotStream, 0, len(streams))
	for _, iv := range streams {
		streamOut = append(streamOut, SnapshotStream{StreamID: iv.StreamID.String(), Enabled: iv.Enabled, Ms: iv.Ms})
	}
	return Snapshot{
		Format:      SnapshotFormat,
		Version:     SnapshotVersion,
		DeviceID:    uint8(deviceID),
		SavedAtUnix: now.Unix(),
		Calibration: cal,
		Streams:     streamOut,
		HMC:         SnapshotHMC{Range: hmc.RangeID, DataRate: hmc.DataRate, Samples: hmc.Samples, Mode: hmc.Mode},
	}
}

// SaveSnapshot writes a Snapshot to path as indented JSON.
func SaveSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads and validates a Snapshot from path, clamping any
// out-of-range calibration values to the documented bounds (§6: "importing
// validates ranges and clamps out-of-range values").
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("config: read snapshot: %w", err)
	}
	// Calibration is decoded wide first so values outside int16 can be
	// clamped instead of failing the decode.
	var raw struct {
		Snapshot
		Calibration map[string]int64 `json:"calibration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("config: unmarshal snapshot: %w", err)
	}
	snap := raw.Snapshot
	if snap.Format != SnapshotFormat {
		return Snapshot{}, fmt.Errorf("config: unrecognized snapshot format %q", snap.Format)
	}
	if raw.Calibration != nil {
		snap.Calibration = make(map[string]int16, len(raw.Calibration))
	}
	for k, v := range raw.Calibration {
		if v < -32768 {
			v = -32768
		}
		if v > 32767 {
			v = 32767
		}
		snap.Calibration[k] = int16(v)
	}
	return snap, nil
}

// CalibrationFieldValues resolves the snapshot's named calibration map
// back into {field_id -> value} pairs, skipping any name that doesn't
// match a known field (fail loud elsewhere; this is purely an export/import
// convenience, not the authoritative device state).
func (s Snapshot) CalibrationFieldValues() map[frame.CalibField]int16 {
	byName := map[string]frame.CalibField{}
	for f := frame.CalibField(frame.MinCalibField); f <= frame.MaxCalibField; f++ {
		byName[f.String()] = f
	}
	out := make(map[frame.CalibField]int16, len(s.Calibration))
	for name, v := range s.Calibration {
		if field, ok := byName[name]; ok {
			out[field] = v
		}
	}
	return out
}
