// Package voice implements the beat-quantized polyphonic scheduler and
// voice-engine abstraction from §4.4: a capability set any of three
// backends (soundfont synth, raw MIDI, external DSP process) can satisfy,
// a per-device two-slot crossfading voice allocator, and the beat clock
// that quantizes sector changes to a musical grid.
package voice

import (
	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
)

// Engine is the capability set §4.4/§9 asks every voice-engine backend to
// expose, regardless of how it actually makes sound: load instrument,
// program-select, note-on, note-off, channel CC, channel volume,
// channel-pressure, pitch-bend.
type Engine interface {
	// LoadInstrument prepares channel to play inst, returning the resolved
	// program key so the caller can skip redundant program-selects.
	LoadInstrument(channel int, inst config.Instrument) (ProgramKey, error)
	ProgramSelect(channel int, key ProgramKey) error
	NoteOn(channel int, note, velocity uint8) error
	NoteOff(channel int, note uint8) error
	ControlChange(channel int, cc, value uint8) error
	ChannelVolume(channel int, value uint8) error
	ChannelPressure(channel int, value uint8) error
	PitchBend(channel int, value int16) error
	Close() error
}

// EventSource abstracts where a device's Events come from, so a bench
// stand-in (e.g. a keyboard simulator driving synthetic sector changes)
// can sit behind the same interface as a real CAN device without the
// scheduler knowing the difference. Only the interface is defined here;
// no keyboard-capture implementation is part of this tree.
type EventSource interface {
	Events() <-chan frame.Event
}

// ProgramKey identifies a loaded instrument/bank/preset so a slot can skip
// re-selecting the program it already has loaded (§3: VoiceSlot.program_key).
type ProgramKey struct {
	SoundFontID int
	Bank        uint8
	Preset      uint8
}
