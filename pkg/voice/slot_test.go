package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canmagnet/magsensor/pkg/config"
)

func newTestMixer(t *testing.T) (*Mixer, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	m := NewMixer(eng)
	err := m.Register(1, config.DeviceConfig{Gain: 1}, 0, 1)
	require.NoError(t, err)
	return m, eng
}

func TestPlayNoteClearVoiceStartsFreshOnSlotZero(t *testing.T) {
	m, eng := newTestMixer(t)
	m.PlayNote(1, 60, 0.8, 50, 100, false, 0.02, true)

	v := m.voices[1]
	require.NotNil(t, v.Slots[0].Note)
	assert.Equal(t, uint8(60), *v.Slots[0].Note)
	assert.Equal(t, 0, v.ActiveIdx)

	found := false
	for _, e := range eng.snapshot() {
		if e.op == "note_on" && e.channel == 0 && e.a == 60 {
			found = true
		}
	}
	assert.True(t, found, "expected note_on on channel 0")
}

func TestPlayNoteSameNoteRampsWithoutRetrigger(t *testing.T) {
	m, eng := newTestMixer(t)
	m.PlayNote(1, 60, 0.5, 50, 90, false, 0.02, true)
	before := len(eng.snapshot())

	m.PlayNote(1, 60, 0.9, 50, 90, false, 0.02, false)
	after := eng.snapshot()

	noteOns := 0
	for _, e := range after[before:] {
		if e.op == "note_on" {
			noteOns++
		}
	}
	assert.Zero(t, noteOns, "same note without retrigger should not re-fire note_on")

	v := m.voices[1]
	assert.InDelta(t, 0.9, v.active().TargetGain, 1e-9)
}

func TestPlayNoteDifferentNoteCrossfadesToOtherSlot(t *testing.T) {
	m, _ := newTestMixer(t)
	m.PlayNote(1, 60, 0.8, 50, 100, false, 0.02, true)
	v := m.voices[1]
	firstActive := v.ActiveIdx

	m.PlayNote(1, 64, 0.8, 50, 100, false, 0.02, false)
	assert.NotEqual(t, firstActive, v.ActiveIdx, "different note should swap the active slot")
	require.NotNil(t, v.inactive())
	assert.Equal(t, float64(0), v.inactive().TargetGain, "old active slot should ramp toward silence")
}

func TestStopDeviceZeroesBothTargets(t *testing.T) {
	m, _ := newTestMixer(t)
	m.PlayNote(1, 60, 0.8, 50, 100, false, 0.02, true)
	m.StopDevice(1, 30)

	v := m.voices[1]
	for _, s := range v.Slots {
		assert.Equal(t, float64(0), s.TargetGain)
		assert.Equal(t, 30, s.FadeMs)
	}
}
