package voice

import (
	"sync"

	"github.com/canmagnet/magsensor/pkg/config"
)

type fakeEvent struct {
	op      string
	channel int
	a, b    int
}

type fakeEngine struct {
	mu     sync.Mutex
	events []fakeEvent
}

func (f *fakeEngine) record(op string, channel, a, b int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fakeEvent{op, channel, a, b})
}

func (f *fakeEngine) snapshot() []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeEngine) LoadInstrument(channel int, inst config.Instrument) (ProgramKey, error) {
	return ProgramKey{Bank: inst.Bank, Preset: inst.Preset}, nil
}

func (f *fakeEngine) ProgramSelect(channel int, key ProgramKey) error {
	f.record("program", channel, int(key.Bank), int(key.Preset))
	return nil
}

func (f *fakeEngine) NoteOn(channel int, note, velocity uint8) error {
	f.record("note_on", channel, int(note), int(velocity))
	return nil
}

func (f *fakeEngine) NoteOff(channel int, note uint8) error {
	f.record("note_off", channel, int(note), 0)
	return nil
}

func (f *fakeEngine) ControlChange(channel int, cc, value uint8) error {
	f.record("cc", channel, int(cc), int(value))
	return nil
}

func (f *fakeEngine) ChannelVolume(channel int, value uint8) error {
	f.record("volume", channel, int(value), 0)
	return nil
}

func (f *fakeEngine) ChannelPressure(channel int, value uint8) error {
	f.record("pressure", channel, int(value), 0)
	return nil
}

func (f *fakeEngine) PitchBend(channel int, value int16) error {
	f.record("bend", channel, int(value), 0)
	return nil
}

func (f *fakeEngine) Close() error { return nil }
