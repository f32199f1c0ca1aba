package led

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
)

func TestParseHexColorRoundTripsThroughRGB565(t *testing.T) {
	c := parseHexColor("#ff0000")
	r, g, b := rgb565Components(c)
	assert.Greater(t, r, uint8(200))
	assert.Less(t, g, uint8(10))
	assert.Less(t, b, uint8(10))
}

func TestResolveStopsPreservesOrderAndPosition(t *testing.T) {
	cfg := []config.GradientStopConfig{
		{Pos: 0, Color: "#000000"},
		{Pos: 128, Color: "#ffffff"},
	}
	stops := resolveStops(cfg)
	assert.Equal(t, uint8(0), stops[0].Pos)
	assert.Equal(t, uint8(128), stops[1].Pos)
}

func TestDiffStopsOnlyEmitsChangedIndexes(t *testing.T) {
	current := []frame.GradientStop{{Pos: 0, ColorRGB: 1}, {Pos: 128, ColorRGB: 2}}
	target := []frame.GradientStop{{Pos: 0, ColorRGB: 1}, {Pos: 128, ColorRGB: 99}}

	var emitted []uint8
	diffStops(current, target, func(idx uint8, stop frame.GradientStop) {
		emitted = append(emitted, idx)
	})
	assert.Equal(t, []uint8{1}, emitted)
}

func TestRegisterDefaultsToIdleNonSimple(t *testing.T) {
	ctl := NewController(nil)
	ctl.Register(1, config.LEDConfig{Brightness: 128})
	st := ctl.states[1]
	assert.False(t, st.isPlaying)
	assert.False(t, st.simpleMode)
}
