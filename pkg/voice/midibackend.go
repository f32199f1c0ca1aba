package voice

import (
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/canmagnet/magsensor/pkg/config"
)

// MIDIEngine is the Engine backend that forwards voice calls to a real or
// virtual MIDI output port via rtmididrv, for devices configured to drive
// an external synth/sequencer instead of the in-process soundfont player
// (§4.4/§9: "raw MIDI output as an alternate voice backend").
type MIDIEngine struct {
	mu  sync.Mutex
	drv *rtmididrv.Driver
	out midi.Sender
}

// NewMIDIEngine opens the named output port, matching substrings
// case-insensitively the way most MIDI utilities do when a port's exact
// name isn't known ahead of time.
func NewMIDIEngine(portName string) (*MIDIEngine, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("voice: open MIDI driver: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("voice: list MIDI outputs: %w", err)
	}
	var chosen midi.Out
	for _, o := range outs {
		if strings.Contains(strings.ToLower(o.String()), strings.ToLower(portName)) {
			chosen = o
			break
		}
	}
	if chosen == nil && len(outs) > 0 {
		chosen = outs[0]
	}
	if chosen == nil {
		drv.Close()
		return nil, fmt.Errorf("voice: no MIDI output ports available")
	}
	if err := chosen.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("voice: open MIDI port %s: %w", chosen.String(), err)
	}
	send, err := midi.SendTo(chosen)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("voice: bind MIDI sender: %w", err)
	}
	return &MIDIEngine{drv: drv, out: send}, nil
}

// LoadInstrument resolves bank/preset only; raw MIDI devices select
// programs with explicit bank-select + program-change messages.
func (e *MIDIEngine) LoadInstrument(channel int, inst config.Instrument) (ProgramKey, error) {
	return ProgramKey{Bank: inst.Bank, Preset: inst.Preset}, nil
}

func (e *MIDIEngine) ProgramSelect(channel int, key ProgramKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := midi.Channel(channel)
	if err := e.out.Send(ch.ControlChange(0, key.Bank)); err != nil {
		return err
	}
	return e.out.Send(ch.ProgramChange(key.Preset))
}

func (e *MIDIEngine) NoteOn(channel int, note, velocity uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Send(midi.Channel(channel).NoteOn(note, velocity))
}

func (e *MIDIEngine) NoteOff(channel int, note uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Send(midi.Channel(channel).NoteOff(note))
}

func (e *MIDIEngine) ControlChange(channel int, cc, value uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Send(midi.Channel(channel).ControlChange(cc, value))
}

func (e *MIDIEngine) ChannelVolume(channel int, value uint8) error {
	return e.ControlChange(channel, 7, value)
}

func (e *MIDIEngine) ChannelPressure(channel int, value uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Send(midi.Channel(channel).Aftertouch(value))
}

func (e *MIDIEngine) PitchBend(channel int, value int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Send(midi.Channel(channel).Pitchbend(value))
}

func (e *MIDIEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drv.Close()
}
