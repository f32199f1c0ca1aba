package voice

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
)

// BeatClock derives a musical grid from a BPM and exposes the next
// beat-boundary after a given instant, with an idle-reset so a long gap
// between sessions doesn't leave the grid phase-locked to a stale
// downbeat (§4.4: "idle_reset_s of silence realigns the next note to the
// nearest beat instead of waiting out the old phase").
type BeatClock struct {
	mu         sync.Mutex
	bpm        float64
	idleResetS float64
	phase      time.Time
	lastNoteAt time.Time
	armed      bool
}

// NewBeatClock builds a clock at bpm, idle-resetting after idleResetS of
// silence.
func NewBeatClock(bpm, idleResetS float64) *BeatClock {
	return &BeatClock{bpm: bpm, idleResetS: idleResetS}
}

// SetBPM changes tempo without losing phase.
func (c *BeatClock) SetBPM(bpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bpm = bpm
}

func (c *BeatClock) beatDuration() time.Duration {
	if c.bpm <= 0 {
		return time.Second
	}
	return time.Duration(60.0 / c.bpm * float64(time.Second))
}

// NextBoundary returns the next quantized instant strictly after now. If
// the clock has been idle for idleResetS it re-phases the grid to now, so
// the returned boundary is one full beat after now rather than a point on
// the stale grid.
func (c *BeatClock) NextBoundary(now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed || (c.idleResetS > 0 && now.Sub(c.lastNoteAt).Seconds() > c.idleResetS) {
		c.phase = now
		c.armed = true
	}
	c.lastNoteAt = now

	beat := c.beatDuration()
	if beat <= 0 {
		return now
	}
	elapsed := now.Sub(c.phase)
	n := elapsed / beat
	boundary := c.phase.Add((n + 1) * beat)
	if !boundary.After(now) {
		boundary = boundary.Add(beat)
	}
	return boundary
}

// deviceSched is the per-device scheduling state the Scheduler drives
// from detector/hardware events (§4.4).
type deviceSched struct {
	cfg        config.DeviceConfig
	noteDeadline time.Time
	hasNote      bool
	lastSector   uint8
}

// Scheduler maps frame.Event values (from a Detector or hardware EVENT
// frames) onto Mixer calls, quantizing onsets to a BeatClock grid and
// sweeping per-note duration deadlines for devices with a fixed
// note_duration_ms (§4.4).
type Scheduler struct {
	mixer        *Mixer
	clock        *BeatClock
	beatQuantize bool
	log          *log.Logger

	mu      sync.Mutex
	devices map[int]*deviceSched
	stopCh  chan struct{}
}

// NewScheduler wires a Mixer and a global BeatClock into an event router.
func NewScheduler(mixer *Mixer, global config.GlobalConfig) *Scheduler {
	return &Scheduler{
		mixer:        mixer,
		clock:        NewBeatClock(global.BPM, global.IdleResetS),
		beatQuantize: global.BeatQuantize,
		log:          log.With("component", "scheduler"),
		devices:      make(map[int]*deviceSched),
		stopCh:       make(chan struct{}),
	}
}

// RegisterDevice records a device's scheduling config so ApplyEvent can
// look up its note map, dynamics curve, and beat-quantize exemption.
func (s *Scheduler) RegisterDevice(deviceID int, cfg config.DeviceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceID] = &deviceSched{cfg: cfg}
}

// Run drives the duration-deadline sweep until Stop is called.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// Stop halts the sweep loop.
func (s *Scheduler) Stop() { close(s.stopCh) }

func (s *Scheduler) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.devices {
		if d.hasNote && !d.noteDeadline.IsZero() && now.After(d.noteDeadline) {
			d.hasNote = false
			s.mixer.StopDevice(id, d.cfg.ReleaseMs)
		}
	}
}

func noteForSector(notes []uint8, sector uint8) uint8 {
	if len(notes) == 0 {
		return 60
	}
	idx := int(sector) - 1
	if idx < 0 {
		idx = 0
	}
	return notes[idx%len(notes)]
}

// ApplyEvent routes one detector/hardware event onto the Mixer, applying
// beat quantization and the per-device note/dynamics configuration
// (§4.3/§4.4).
func (s *Scheduler) ApplyEvent(deviceID int, ev frame.Event, now time.Time) {
	s.mu.Lock()
	d, ok := s.devices[deviceID]
	s.mu.Unlock()
	if !ok {
		s.log.Warn("event for unregistered device", "op", "apply_event", "device_id", deviceID)
		return
	}

	switch ev.Type {
	case frame.EventSectorActivated, frame.EventSectorChanged, frame.EventPassingSectorChange:
		sector := ev.P0
		if ev.Type == frame.EventSectorChanged {
			sector = ev.P1
		}
		elev := ev.P1
		if ev.Type == frame.EventSectorChanged {
			elev = 0
		}
		note := noteForSector(d.cfg.NoteMap, sector)
		level := IntensityToLevel(float64(elev), 255, d.cfg.MinLevel, d.cfg.MaxLevel, d.cfg.DynamicsGamma)
		vel := IntensityToVelocity(float64(elev), 255, d.cfg.VelocityMin, d.cfg.VelocityMax)

		at := now
		if s.beatQuantize && !d.cfg.ExcludeFromBeatQuantize {
			at = s.clock.NextBoundary(now)
		}
		clearVoice := ev.Type == frame.EventSectorActivated || (d.cfg.FadeOutOnSectorChange && ev.Type == frame.EventSectorChanged)
		retrigger := ev.Type == frame.EventPassingSectorChange
		s.scheduleAt(at, func() {
			s.mixer.PlayNote(deviceID, note, level, d.cfg.CrossfadeMs, vel, retrigger, 0.02, clearVoice)
		})

		s.mu.Lock()
		d.hasNote = true
		d.lastSector = sector
		if d.cfg.NoteDurationMs > 0 {
			d.noteDeadline = now.Add(time.Duration(d.cfg.NoteDurationMs) * time.Millisecond)
		} else {
			d.noteDeadline = time.Time{}
		}
		s.mu.Unlock()

	case frame.EventIntensityChange:
		if !d.cfg.IntensityChangesEnabled {
			return
		}
		level := IntensityToLevel(float64(ev.P1), 255, d.cfg.MinLevel, d.cfg.MaxLevel, d.cfg.DynamicsGamma)
		s.mixer.SetLevel(deviceID, level, d.cfg.CrossfadeMs/2)

	case frame.EventSectionDeactivated:
		if d.cfg.HoldNoteInSector {
			epoch := s.mixer.CurrentEpoch(deviceID)
			time.AfterFunc(time.Duration(d.cfg.HoldZeroGraceMs)*time.Millisecond, func() {
				s.mixer.StopDeviceIfCurrent(deviceID, d.cfg.ReleaseMs, epoch)
			})
		} else {
			s.mixer.StopDevice(deviceID, d.cfg.ReleaseMs)
		}
		s.mu.Lock()
		d.hasNote = false
		s.mu.Unlock()

	case frame.EventSessionEnded:
		s.mixer.StopDevice(deviceID, d.cfg.ReleaseMs)
		s.mu.Lock()
		d.hasNote = false
		s.mu.Unlock()

	case frame.EventPossibleMechanicalFault:
		s.log.Warn("possible mechanical failure", "op", "apply_event", "device_id", deviceID, "sector", ev.P0)

	case frame.EventErrorNoData:
		s.log.Warn("no data from device", "op", "apply_event", "device_id", deviceID)
	}
}

func (s *Scheduler) scheduleAt(at time.Time, fn func()) {
	d := time.Until(at)
	if d <= 0 {
		fn()
		return
	}
	time.AfterFunc(d, fn)
}
