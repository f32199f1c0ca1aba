package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
)

func TestBeatClockQuantizesToGrid(t *testing.T) {
	c := NewBeatClock(120, 0) // 500ms beats
	base := time.Unix(1700000000, 0)

	b1 := c.NextBoundary(base)
	assert.True(t, b1.After(base))
	assert.InDelta(t, 500*time.Millisecond, b1.Sub(base), float64(time.Millisecond))

	b2 := c.NextBoundary(base.Add(600 * time.Millisecond))
	assert.True(t, b2.After(base.Add(600*time.Millisecond)))
}

func TestBeatClockIdleResetRephases(t *testing.T) {
	c := NewBeatClock(120, 1) // 1s idle reset
	base := time.Unix(1700000000, 0)
	c.NextBoundary(base)

	after := base.Add(5 * time.Second)
	b := c.NextBoundary(after)
	assert.InDelta(t, 500*time.Millisecond, b.Sub(after), float64(time.Millisecond))
}

func newTestScheduler(t *testing.T) (*Scheduler, *Mixer, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	m := NewMixer(eng)
	cfg := config.DeviceConfig{
		NoteMap:     []uint8{60, 62, 64},
		MinLevel:    0.2,
		MaxLevel:    1.0,
		DynamicsGamma: 1.0,
		VelocityMin: 10,
		VelocityMax: 120,
		CrossfadeMs: 50,
		ReleaseMs:   80,
	}
	require.NoError(t, m.Register(1, cfg, 0, 1))

	sched := NewScheduler(m, config.GlobalConfig{BPM: 120, BeatQuantize: false})
	sched.RegisterDevice(1, cfg)
	return sched, m, eng
}

func TestApplyEventSectorActivatedStartsNote(t *testing.T) {
	sched, m, _ := newTestScheduler(t)
	ev := frame.Event{Type: frame.EventSectorActivated, P0: 2, P1: 200}
	sched.ApplyEvent(1, ev, time.Now())

	v := m.voices[1]
	require.NotNil(t, v.active().Note)
	assert.Equal(t, uint8(62), *v.active().Note)
}

func TestApplyEventSectionDeactivatedStopsDevice(t *testing.T) {
	sched, m, _ := newTestScheduler(t)
	sched.ApplyEvent(1, frame.Event{Type: frame.EventSectorActivated, P0: 1, P1: 200}, time.Now())
	sched.ApplyEvent(1, frame.Event{Type: frame.EventSectionDeactivated, P0: 1}, time.Now())

	v := m.voices[1]
	for _, s := range v.Slots {
		assert.Equal(t, float64(0), s.TargetGain)
	}
}

func TestApplyEventUnregisteredDeviceIsIgnored(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	assert.NotPanics(t, func() {
		sched.ApplyEvent(99, frame.Event{Type: frame.EventSectorActivated, P0: 1}, time.Now())
	})
}
