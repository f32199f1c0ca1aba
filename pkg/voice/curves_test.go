package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntensityToLevelBounds(t *testing.T) {
	assert.InDelta(t, 0.2, IntensityToLevel(0, 255, 0.2, 1.0, 1.0), 1e-9)
	assert.InDelta(t, 1.0, IntensityToLevel(255, 255, 0.2, 1.0, 1.0), 1e-9)
}

func TestIntensityToLevelClampsAboveFullScale(t *testing.T) {
	assert.InDelta(t, 1.0, IntensityToLevel(1000, 255, 0.2, 1.0, 1.0), 1e-9)
}

func TestIntensityToVelocityBounds(t *testing.T) {
	assert.Equal(t, uint8(10), IntensityToVelocity(0, 255, 10, 120))
	assert.Equal(t, uint8(120), IntensityToVelocity(255, 255, 10, 120))
}
