package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/canmagnet/magsensor/pkg/frame"
)

func baseConfig() Config {
	return Config{
		KeepoutRad: 10,
		ZLimit:     50,
		DataRadius: 3000,
		NumSectors: 6,
	}.sanitized()
}

// sampleFor synthesizes an (x,y,z) that lands in the given sector at a
// fixed elevation above z_limit, so tests can drive the state machine by
// sector number rather than raw geometry.
func sampleFor(cfg Config, sector int, elevAbove float64) (x, y, z float64) {
	if sector <= 0 {
		return 0, 0, 0
	}
	angle := (float64(sector-1) + 0.5) * (360.0 / float64(cfg.NumSectors)) * math.Pi / 180.0
	radius := cfg.KeepoutRad + 5
	return radius * math.Cos(angle), radius * math.Sin(angle), cfg.ZLimit + elevAbove
}

func fillWindow(t *testing.T, d *Detector, cfg Config, sector int, elev float64, nowS float64) float64 {
	t.Helper()
	for i := 0; i < bufferSize; i++ {
		x, y, z := sampleFor(cfg, sector, elev)
		d.Process(x, y, z, nowS)
		nowS += 0.01
	}
	return nowS
}

func TestSectorActivationEmitsSessionStarted(t *testing.T) {
	cfg := baseConfig()
	d := New(cfg, 0)

	now := fillWindow(t, d, cfg, 0, 0, 0)
	events := d.Process(0, 0, 0, now)
	assert.Empty(t, events)

	x, y, z := sampleFor(cfg, 3, 70)
	now += 0.01
	events = d.Process(x, y, z, now)
	require.Len(t, events, 2)
	assert.Equal(t, frame.EventSectorActivated, events[0].Type)
	assert.Equal(t, uint8(3), events[0].P0)
	assert.Equal(t, frame.EventSessionStarted, events[1].Type)
}

func TestPassingSectorChangeWithinWindow(t *testing.T) {
	cfg := baseConfig()
	d := New(cfg, 0)
	now := fillWindow(t, d, cfg, 0, 0, 0)

	x, y, z := sampleFor(cfg, 1, 70)
	now += 0.01
	events := d.Process(x, y, z, now)
	require.Len(t, events, 2) // activation + session start

	x2, y2, z2 := sampleFor(cfg, 2, 70)
	now += 0.018 // under the 20ms window
	events = d.Process(x2, y2, z2, now)
	require.Len(t, events, 1)
	assert.Equal(t, frame.EventPassingSectorChange, events[0].Type)
	assert.Equal(t, uint8(2), events[0].P0)
}

func TestSectorChangeOutsideWindow(t *testing.T) {
	cfg := baseConfig()
	d := New(cfg, 0)
	now := fillWindow(t, d, cfg, 1, 70, 0)

	x, y, z := sampleFor(cfg, 1, 70)
	now += 0.01
	d.Process(x, y, z, now)

	x2, y2, z2 := sampleFor(cfg, 2, 70)
	now += 0.5 // well past the 20ms window
	events := d.Process(x2, y2, z2, now)
	require.Len(t, events, 1)
	assert.Equal(t, frame.EventSectorChanged, events[0].Type)
	assert.Equal(t, uint8(1), events[0].P0)
	assert.Equal(t, uint8(2), events[0].P1)
}

func TestDeactivationTimeoutEndsSession(t *testing.T) {
	cfg := baseConfig()
	cfg.DeactivationTimeoutMs = 100
	d := New(cfg, 0)
	// Start outside any sector so entering sector 4 is an activation; the
	// following sector-4 samples settle the smoothed elevation.
	now := fillWindow(t, d, cfg, 0, 0, 0)
	now = fillWindow(t, d, cfg, 4, 70, now)

	x, y, z := sampleFor(cfg, 4, 70)
	now += 0.01
	d.Process(x, y, z, now)

	// Hold the same sector (no sector change) until the deactivation
	// timeout elapses.
	now += 0.2
	events := d.Process(x, y, z, now)
	require.Len(t, events, 2)
	assert.Equal(t, frame.EventSectionDeactivated, events[0].Type)
	assert.Equal(t, uint8(4), events[0].P0)
	assert.Equal(t, frame.EventSessionEnded, events[1].Type)
}

func TestNumSectorsOutOfRangeDefaults(t *testing.T) {
	cfg := Config{NumSectors: 99}.sanitized()
	assert.Equal(t, DefaultSectors, cfg.NumSectors)

	cfg2 := Config{NumSectors: 4}.sanitized()
	assert.Equal(t, 4, cfg2.NumSectors)
}

func TestPostNoDataRateLimited(t *testing.T) {
	cfg := baseConfig()
	cfg.SessionTimeoutMs = 1000
	d := New(cfg, 0)

	events := d.PostNoData(0)
	require.Len(t, events, 1)
	assert.Equal(t, frame.EventErrorNoData, events[0].Type)

	events = d.PostNoData(0.5)
	assert.Empty(t, events)

	events = d.PostNoData(1.1)
	require.Len(t, events, 1)
}

// TestTimestampMonotonicity is the §8 "detector monotonicity" property:
// for strictly increasing now_s, emitted P3 stamps are non-decreasing
// modulo 2^16 wrap.
func TestTimestampMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := baseConfig()
		d := New(cfg, 0)
		now := 0.0
		var lastStamp uint16
		first := true

		steps := rapid.IntRange(10, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			now += rapid.Float64Range(0.001, 0.05).Draw(t, "dt")
			sector := rapid.IntRange(0, cfg.NumSectors).Draw(t, "sector")
			x, y, z := sampleFor(cfg, sector, 70)
			for _, e := range d.Process(x, y, z, now) {
				if first {
					lastStamp = e.P3
					first = false
					continue
				}
				// allow wrap: a later stamp must be >= the previous one,
				// or have wrapped around 2^16.
				if e.P3 < lastStamp {
					assert.Less(t, int(lastStamp)-int(e.P3), 1000, "stamp regressed without a plausible wrap")
				}
				lastStamp = e.P3
			}
		}
	})
}
