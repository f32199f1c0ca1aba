package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canmagnet/magsensor/pkg/frame"
)

const defaultYAML = `
global:
  bpm: 100
  channel: can0
  beat_quantize: true
devices:
  - device_id: 1
    event_source: hardware
    note_map: [60, 62, 64]
    gain: 0.8
    instrument:
      type: soundfont
      soundfont: /usr/share/sf/default.sf2
`

const userYAML = `
global:
  bpm: 140
devices:
  - device_id: 1
    event_source: hardware
    note_map: [60, 62, 64]
    gain: 1.5
    instrument:
      type: soundfont
      soundfont: /usr/share/sf/default.sf2
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMergesUserOverDefault(t *testing.T) {
	defPath := writeTemp(t, "default.yaml", defaultYAML)
	userPath := writeTemp(t, "user.yaml", userYAML)

	root, err := Load(defPath, userPath)
	require.NoError(t, err)
	assert.Equal(t, 140.0, root.Global.BPM)
	assert.Equal(t, "can0", root.Global.Channel)

	dev, ok := root.DeviceByID(1)
	require.True(t, ok)
	assert.Equal(t, 1.0, dev.Gain, "gain above 1 should be clamped")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	defPath := writeTemp(t, "default.yaml", defaultYAML)
	badUser := writeTemp(t, "bad.yaml", "global:\n  bogus_key: 1\n")

	_, err := Load(defPath, badUser)
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	calib := map[frame.CalibField]int16{frame.FieldCenterX: 100, frame.FieldNumSectors: 6}
	streams := []frame.Interval{{StreamID: frame.StreamMag, Enabled: true, Ms: 20}}
	hmc := frame.HMCConfig{RangeID: 1, DataRate: 2, Samples: 0, Mode: 0, MgCenti: 92}

	snap := NewSnapshot(frame.DeviceID(3), calib, streams, hmc, time.Unix(1700000000, 0))
	require.NoError(t, SaveSnapshot(path, snap))

	got, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, SnapshotFormat, got.Format)
	assert.Equal(t, uint8(3), got.DeviceID)

	fields := got.CalibrationFieldValues()
	assert.Equal(t, int16(100), fields[frame.FieldCenterX])
	assert.Equal(t, int16(6), fields[frame.FieldNumSectors])
}

func TestLoadSnapshotRejectsWrongFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"format":"something-else","version":1}`), 0o644))
	_, err := LoadSnapshot(path)
	assert.Error(t, err)
}
