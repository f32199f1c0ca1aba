package voice

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/config"
)

// TickPeriod is the ramp worker's tick interval (§4.4/§5: "~2ms").
const TickPeriod = 2 * time.Millisecond

// gainEpsilon is the "both current and target gain fall to <= this" cutoff
// at which a slot's held note is cut (§4.4).
const gainEpsilon = 0.001

// VoiceSlot is one MIDI-channel's worth of state, held in pairs per device
// so the Mixer can crossfade between notes (§3).
type VoiceSlot struct {
	Channel    int
	Note       *uint8
	Gain       float64
	TargetGain float64
	FadeMs     int
	LastCC7    uint8
	ProgramKey ProgramKey
	hasProgram bool
}

func (s *VoiceSlot) rampStep(dt time.Duration) float64 {
	if s.FadeMs <= 0 {
		return 1
	}
	return dt.Seconds() * 1000.0 / float64(s.FadeMs)
}

// DeviceVoice owns a device's two voice slots on two audio channels plus
// its overall gain (§3).
type DeviceVoice struct {
	Cfg        config.DeviceConfig
	Slots      [2]*VoiceSlot
	ActiveIdx  int
	DeviceGain float64

	// Generation counts PlayNote calls, letting a deferred stop (e.g. the
	// hold-note-in-sector grace timer) tag itself with the epoch in force
	// when it was scheduled and no-op if a fresh note has since started.
	Generation int
}

func (v *DeviceVoice) active() *VoiceSlot   { return v.Slots[v.ActiveIdx] }
func (v *DeviceVoice) inactive() *VoiceSlot { return v.Slots[1-v.ActiveIdx] }

// Mixer is the per-process voice allocator: it owns one DeviceVoice per
// registered device, drives ramps on a background worker, and exposes the
// play policy from §4.4 (play_note / set_level / stop_device).
type Mixer struct {
	engine Engine
	log    *log.Logger

	mu      sync.Mutex
	voices  map[int]*DeviceVoice
	stopCh  chan struct{}
	stopped bool
}

// NewMixer wraps a voice Engine with the crossfading slot allocator.
func NewMixer(engine Engine) *Mixer {
	return &Mixer{
		engine: engine,
		log:    log.With("component", "voice"),
		voices: make(map[int]*DeviceVoice),
		stopCh: make(chan struct{}),
	}
}

// Register assigns a device two fresh channels and loads its instrument.
func (m *Mixer) Register(deviceID int, cfg config.DeviceConfig, channelA, channelB int) error {
	key, err := m.engine.LoadInstrument(channelA, cfg.Instrument)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices[deviceID] = &DeviceVoice{
		Cfg:        cfg,
		DeviceGain: cfg.Gain,
		Slots: [2]*VoiceSlot{
			{Channel: channelA, ProgramKey: key, hasProgram: true},
			{Channel: channelB},
		},
	}
	return nil
}

// Run drives the ramp worker until Stop is called.
func (m *Mixer) Run() {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			m.tick(dt)
		}
	}
}

// Stop halts the ramp worker; per §5, all slots are ramped to 0 before
// note-off on shutdown.
func (m *Mixer) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	ids := make([]int, 0, len(m.voices))
	for id := range m.voices {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopDevice(id, 50)
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if m.allSilent() {
			break
		}
		time.Sleep(TickPeriod)
	}
	close(m.stopCh)
}

func (m *Mixer) allSilent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		for _, s := range v.Slots {
			if s.Note != nil {
				return false
			}
		}
	}
	return true
}

func (m *Mixer) tick(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for devID, v := range m.voices {
		for _, s := range v.Slots {
			m.rampSlot(devID, v, s, dt)
		}
	}
}

func (m *Mixer) rampSlot(devID int, v *DeviceVoice, s *VoiceSlot, dt time.Duration) {
	if s.Note == nil && s.Gain <= gainEpsilon && s.TargetGain <= gainEpsilon {
		return
	}
	step := s.rampStep(dt)
	if s.Gain < s.TargetGain {
		s.Gain += step
		if s.Gain > s.TargetGain {
			s.Gain = s.TargetGain
		}
	} else if s.Gain > s.TargetGain {
		s.Gain -= step
		if s.Gain < s.TargetGain {
			s.Gain = s.TargetGain
		}
	}

	cc7 := clampU8(s.Gain * v.DeviceGain * 127.0)
	if cc7 != s.LastCC7 {
		if err := m.engine.ControlChange(s.Channel, 7, cc7); err != nil {
			m.log.Error("cc7 failed", "op", "ramp", "device_id", devID, "cause", err)
		}
		s.LastCC7 = cc7
	}

	if s.Note != nil && s.Gain <= gainEpsilon && s.TargetGain <= gainEpsilon {
		note := *s.Note
		if err := m.engine.NoteOff(s.Channel, note); err != nil {
			m.log.Error("note_off failed", "op", "ramp", "device_id", devID, "cause", err)
		}
		s.Note = nil
	}
}

// PlayNote implements the §4.4 play policy for one device.
func (m *Mixer) PlayNote(deviceID int, note uint8, level float64, fadeMs int, vel uint8, retrigger bool, retriggerFloor float64, clearVoice bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[deviceID]
	if !ok {
		return
	}
	v.Generation++

	if clearVoice {
		m.hardNoteOffLocked(deviceID, v.Slots[0])
		m.hardNoteOffLocked(deviceID, v.Slots[1])
		v.Slots[0].Gain, v.Slots[0].TargetGain = 0, level
		v.Slots[0].FadeMs = fadeMs
		v.ActiveIdx = 0
		m.startNoteLocked(deviceID, v, v.Slots[0], note, vel)
		return
	}

	active := v.active()
	if active.Note != nil && *active.Note == note {
		shouldRetrigger := retrigger || (active.Gain <= retriggerFloor && active.TargetGain <= retriggerFloor && level > retriggerFloor)
		if shouldRetrigger {
			m.hardNoteOffLocked(deviceID, active)
			m.startNoteLocked(deviceID, v, active, note, vel)
		}
		active.TargetGain = level
		active.FadeMs = fadeMs
		return
	}

	inactive := v.inactive()
	m.hardNoteOffLocked(deviceID, inactive)
	inactive.Gain, inactive.TargetGain, inactive.FadeMs = 0, level, fadeMs
	m.startNoteLocked(deviceID, v, inactive, note, vel)

	active.TargetGain = 0
	active.FadeMs = fadeMs

	v.ActiveIdx = 1 - v.ActiveIdx
}

// SetLevel adjusts the active slot's target gain only (§4.4).
func (m *Mixer) SetLevel(deviceID int, level float64, fadeMs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[deviceID]
	if !ok {
		return
	}
	active := v.active()
	active.TargetGain = level
	active.FadeMs = fadeMs
}

// StopDevice ramps both slots' targets to 0 over releaseMs (§4.4).
func (m *Mixer) StopDevice(deviceID int, releaseMs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[deviceID]
	if !ok {
		return
	}
	m.stopDeviceLocked(v, releaseMs)
}

func (m *Mixer) stopDeviceLocked(v *DeviceVoice, releaseMs int) {
	for _, s := range v.Slots {
		s.TargetGain = 0
		s.FadeMs = releaseMs
	}
}

// CurrentEpoch returns deviceID's current play generation, -1 if the
// device isn't registered. A deferred stop (e.g. a hold-note-in-sector
// grace timer) should capture this when scheduled and pass it to
// StopDeviceIfCurrent so a PlayNote that starts a fresh note before the
// timer fires invalidates the stale stop instead of cutting the new note.
func (m *Mixer) CurrentEpoch(deviceID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[deviceID]
	if !ok {
		return -1
	}
	return v.Generation
}

// StopDeviceIfCurrent is StopDevice, but a no-op if deviceID's generation
// has advanced past epoch — i.e. a PlayNote has started a new note since
// the caller captured epoch via CurrentEpoch.
func (m *Mixer) StopDeviceIfCurrent(deviceID int, releaseMs int, epoch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[deviceID]
	if !ok || v.Generation != epoch {
		return
	}
	m.stopDeviceLocked(v, releaseMs)
}

func (m *Mixer) startNoteLocked(deviceID int, v *DeviceVoice, s *VoiceSlot, note uint8, vel uint8) {
	if err := m.selectProgramLocked(v, s); err != nil {
		m.log.Error("program_select failed", "op", "play_note", "device_id", deviceID, "cause", err)
	}
	n := note
	s.Note = &n
	if err := m.engine.NoteOn(s.Channel, note, vel); err != nil {
		m.log.Error("note_on failed", "op", "play_note", "device_id", deviceID, "cause", err)
	}
}

func (m *Mixer) hardNoteOffLocked(deviceID int, s *VoiceSlot) {
	if s.Note == nil {
		return
	}
	if err := m.engine.NoteOff(s.Channel, *s.Note); err != nil {
		m.log.Error("note_off failed", "op", "clear", "device_id", deviceID, "cause", err)
	}
	s.Note = nil
	s.Gain = 0
	s.TargetGain = 0
}

func (m *Mixer) selectProgramLocked(v *DeviceVoice, s *VoiceSlot) error {
	key, err := m.engine.LoadInstrument(s.Channel, v.Cfg.Instrument)
	if err != nil {
		return err
	}
	if s.hasProgram && s.ProgramKey == key {
		return nil
	}
	if err := m.engine.ProgramSelect(s.Channel, key); err != nil {
		return err
	}
	s.ProgramKey = key
	s.hasProgram = true
	return nil
}

// AnyActiveNotes reports whether any device currently holds a note.
// Nothing in this module calls it: BeatClock's idle reset looks only at
// the time since its previous NextBoundary call, not at held notes.
func (m *Mixer) AnyActiveNotes() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		for _, s := range v.Slots {
			if s.Note != nil {
				return true
			}
		}
	}
	return false
}
