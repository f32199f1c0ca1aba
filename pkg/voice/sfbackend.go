package voice

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/canmagnet/magsensor/pkg/config"
)

// sampleRate matches the soundfont synth's render rate and the oto
// context's playback rate (§4.4: "one shared synthesizer instance,
// 16 MIDI channels, stereo float32 output").
const sampleRate = 44100

// SoundFontEngine is the Engine backend that renders polyphony in-process
// with go-meltysynth and streams it to the system's audio device with
// ebitengine/oto/v3 (grounded on the oto player-as-io.Reader pattern).
type SoundFontEngine struct {
	mu        sync.Mutex
	synth     *meltysynth.Synthesizer
	soundFont *meltysynth.SoundFont
	path      string

	ctx    *oto.Context
	player oto.Player
	left   []float32
	right  []float32
}

// NewSoundFontEngine loads sfPath and opens the default audio output.
func NewSoundFontEngine(sfPath string) (*SoundFontEngine, error) {
	f, err := os.Open(sfPath)
	if err != nil {
		return nil, fmt.Errorf("voice: open soundfont: %w", err)
	}
	defer f.Close()

	sf, err := meltysynth.NewSoundFont(f)
	if err != nil {
		return nil, fmt.Errorf("voice: parse soundfont: %w", err)
	}

	settings := meltysynth.NewSynthesizerSettings(sampleRate)
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("voice: create synthesizer: %w", err)
	}

	e := &SoundFontEngine{synth: synth, soundFont: sf, path: sfPath}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("voice: open audio output: %w", err)
	}
	<-ready
	e.ctx = ctx
	e.player = ctx.NewPlayer(e)
	e.player.Play()
	return e, nil
}

// Read implements io.Reader for the oto player by rendering fresh
// samples into buf on demand.
func (e *SoundFontEngine) Read(buf []byte) (int, error) {
	frames := len(buf) / 8
	if frames == 0 {
		return 0, nil
	}
	e.mu.Lock()
	if cap(e.left) < frames {
		e.left = make([]float32, frames)
		e.right = make([]float32, frames)
	}
	left := e.left[:frames]
	right := e.right[:frames]
	e.synth.Render(left, right)
	e.mu.Unlock()

	for i := 0; i < frames; i++ {
		putFloat32LE(buf[i*8:], left[i])
		putFloat32LE(buf[i*8+4:], right[i])
	}
	return frames * 8, nil
}

func putFloat32LE(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

// LoadInstrument resolves inst to a (bank, preset) pair; the soundfont
// backend addresses presets directly rather than by file path per
// channel, so every channel shares the one loaded SoundFont.
func (e *SoundFontEngine) LoadInstrument(channel int, inst config.Instrument) (ProgramKey, error) {
	return ProgramKey{SoundFontID: 1, Bank: inst.Bank, Preset: inst.Preset}, nil
}

func (e *SoundFontEngine) ProgramSelect(channel int, key ProgramKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synth.ProcessMidiMessage(int32(channel), 0xC0, int32(key.Preset), 0)
	e.synth.ProcessMidiMessage(int32(channel), 0xB0, 0x00, int32(key.Bank))
	return nil
}

func (e *SoundFontEngine) NoteOn(channel int, note, velocity uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synth.NoteOn(int32(channel), int32(note), int32(velocity))
	return nil
}

func (e *SoundFontEngine) NoteOff(channel int, note uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synth.NoteOff(int32(channel), int32(note))
	return nil
}

func (e *SoundFontEngine) ControlChange(channel int, cc, value uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synth.ProcessMidiMessage(int32(channel), 0xB0, int32(cc), int32(value))
	return nil
}

func (e *SoundFontEngine) ChannelVolume(channel int, value uint8) error {
	return e.ControlChange(channel, 7, value)
}

func (e *SoundFontEngine) ChannelPressure(channel int, value uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synth.ProcessMidiMessage(int32(channel), 0xD0, int32(value), 0)
	return nil
}

func (e *SoundFontEngine) PitchBend(channel int, value int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	bend := int32(value) + 8192
	e.synth.ProcessMidiMessage(int32(channel), 0xE0, bend&0x7F, (bend>>7)&0x7F)
	return nil
}

func (e *SoundFontEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player != nil {
		e.player.Close()
	}
	if e.ctx != nil {
		e.ctx.Suspend()
	}
	return nil
}
