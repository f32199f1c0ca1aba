// Package config loads and validates the two configuration surfaces from
// §6: the human-edited YAML device/global tree (default + user, merged,
// clamped, decoded once at startup into the typed structs below) and the
// persisted JSON device snapshot used for export/import.
package config

// Instrument selects one of the three voice-engine backends and its
// program (§4.4/§9: soundfont / raw MIDI / external DSP).
type Instrument struct {
	Type       string   `yaml:"type"`
	SoundFont  string   `yaml:"soundfont,omitempty"`
	Bank       uint8    `yaml:"bank"`
	Preset     uint8    `yaml:"preset"`
	MIDIPort   string   `yaml:"midi_port,omitempty"`
	DSPCommand []string `yaml:"dsp_command,omitempty"`
}

const (
	InstrumentSoundFont = "soundfont"
	InstrumentMIDI      = "midi"
	InstrumentDSP       = "dsp"
)

// GradientStopConfig is one LED gradient control point in human-editable
// form; Color is "#rrggbb" and is converted to rgb565 when applied.
type GradientStopConfig struct {
	Pos   uint8  `yaml:"pos"`
	Color string `yaml:"color"`
}

// LEDConfig is the per-device LED profile (§4.5).
type LEDConfig struct {
	BaseGradient     []GradientStopConfig `yaml:"base_gradient"`
	PlayGradient     []GradientStopConfig `yaml:"play_gradient,omitempty"`
	BaseSpeed        uint8                `yaml:"base_speed"`
	PlaySpeed        uint8                `yaml:"play_speed"`
	Brightness       uint8                `yaml:"brightness"`
	Length           uint16               `yaml:"length"`
	KeepaliveMs      int                  `yaml:"keepalive_ms"`
	CommandSpacingMs int                  `yaml:"command_spacing_ms"`
	SendRetries      int                  `yaml:"send_retries"`
	SimpleMode       bool                 `yaml:"simple_mode"`
}

// DeviceConfig is one device's full scheduling/voice/LED configuration
// (§6).
type DeviceConfig struct {
	DeviceID    int    `yaml:"device_id"`
	EventSource string `yaml:"event_source"`

	NoteMap []uint8 `yaml:"note_map"`
	Gain    float64 `yaml:"gain"`

	CrossfadeMs int `yaml:"crossfade_ms"`
	ReleaseMs   int `yaml:"release_ms"`

	IntensityFullScale float64 `yaml:"intensity_full_scale"`
	MinLevel           float64 `yaml:"min_level"`
	MaxLevel           float64 `yaml:"max_level"`
	DynamicsGamma      float64 `yaml:"dynamics_gamma"`
	VelocityMin        uint8   `yaml:"velocity_min"`
	VelocityMax        uint8   `yaml:"velocity_max"`

	KeyboardMode            bool `yaml:"keyboard_mode"`
	HoldNoteInSector        bool `yaml:"hold_note_in_sector"`
	HoldZeroGraceMs         int  `yaml:"hold_zero_grace_ms"`
	IntensityChangesEnabled bool `yaml:"intensity_changes_enabled"`
	ExcludeFromBeatQuantize bool `yaml:"exclude_from_beat_quantize"`
	FadeOutOnSectorChange   bool `yaml:"fade_out_on_sector_change"`
	NoteDurationMs          int  `yaml:"note_duration_ms"`

	Instrument Instrument `yaml:"instrument"`
	LED        LEDConfig  `yaml:"led"`
}

const (
	EventSourceHardware = "hardware"
	EventSourceSoftware = "software"
)

// GlobalConfig holds the scheduler-wide settings (§6).
type GlobalConfig struct {
	BPM              float64 `yaml:"bpm"`
	Channel          string  `yaml:"channel"`
	IdleResetS       float64 `yaml:"idle_reset_s"`
	IgnoreSectorZero bool    `yaml:"ignore_sector_zero"`
	BeatQuantize     bool    `yaml:"beat_quantize"`
}

// Root is the full decoded configuration tree.
type Root struct {
	Global  GlobalConfig   `yaml:"global"`
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceByID looks up one device's config, or false if absent.
func (r *Root) DeviceByID(id int) (DeviceConfig, bool) {
	for _, d := range r.Devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// clampRanges enforces the documented bounds from §3/§6, in place. This
// runs once at load time per §9's "decode once, clamp invalid ranges,
// never re-parse during the hot path".
func (r *Root) clampRanges() {
	if r.Global.BPM <= 0 {
		r.Global.BPM = 120
	}
	if r.Global.IdleResetS < 0 {
		r.Global.IdleResetS = 0
	}
	for i := range r.Devices {
		d := &r.Devices[i]
		if d.EventSource != EventSourceHardware && d.EventSource != EventSourceSoftware {
			d.EventSource = EventSourceSoftware
		}
		if d.Gain < 0 {
			d.Gain = 0
		}
		if d.Gain > 1 {
			d.Gain = 1
		}
		if d.MinLevel < 0 {
			d.MinLevel = 0
		}
		if d.MaxLevel > 1 {
			d.MaxLevel = 1
		}
		if d.MaxLevel < d.MinLevel {
			d.MaxLevel = d.MinLevel
		}
		if d.DynamicsGamma < 0.25 {
			d.DynamicsGamma = 0.25
		}
		if d.DynamicsGamma > 4 {
			d.DynamicsGamma = 4
		}
		if d.VelocityMax == 0 {
			d.VelocityMax = 127
		}
		if d.VelocityMax > 127 {
			d.VelocityMax = 127
		}
		if d.VelocityMin > d.VelocityMax {
			d.VelocityMin = d.VelocityMax
		}
		if d.CrossfadeMs <= 0 {
			d.CrossfadeMs = 120
		}
		if d.ReleaseMs <= 0 {
			d.ReleaseMs = 220
		}
		if len(d.NoteMap) == 0 {
			d.NoteMap = []uint8{60, 62, 64, 65, 67, 69}
		}
	}
}
