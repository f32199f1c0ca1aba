package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/canmagnet/magsensor/pkg/config"
)

// DSPEngine is the Engine backend that drives an external DSP process
// (a Faust-style standalone synth) over its stdin with a compact
// line-oriented command protocol, for setups where the sound design
// lives outside this process entirely (§4.4/§9: "external process as a
// third voice-engine variant").
//
// Each line is "<op> <channel> <a> <b>\n" with op one of
// note_on|note_off|cc|program|volume|pressure|bend.
type DSPEngine struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	w    *bufio.Writer
	done chan struct{}
}

// NewDSPEngine launches argv[0] with argv[1:], wiring its stdin for
// commands; argv[0]'s stdout/stderr are left attached to this process's
// for operator visibility.
func NewDSPEngine(ctx context.Context, argv []string) (*DSPEngine, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("voice: dsp_command is empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("voice: open dsp stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("voice: start dsp process: %w", err)
	}
	e := &DSPEngine{cmd: cmd, w: bufio.NewWriter(stdin), done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(e.done)
	}()
	return e, nil
}

func (e *DSPEngine) send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := io.WriteString(e.w, line); err != nil {
		return err
	}
	return e.w.Flush()
}

// LoadInstrument is a no-op: the external process owns its own patch
// selection out of band (config file, its own CLI flags).
func (e *DSPEngine) LoadInstrument(channel int, inst config.Instrument) (ProgramKey, error) {
	return ProgramKey{Bank: inst.Bank, Preset: inst.Preset}, nil
}

func (e *DSPEngine) ProgramSelect(channel int, key ProgramKey) error {
	return e.send(fmt.Sprintf("program %d %d %d\n", channel, key.Bank, key.Preset))
}

func (e *DSPEngine) NoteOn(channel int, note, velocity uint8) error {
	return e.send(fmt.Sprintf("note_on %d %d %d\n", channel, note, velocity))
}

func (e *DSPEngine) NoteOff(channel int, note uint8) error {
	return e.send(fmt.Sprintf("note_off %d %d 0\n", channel, note))
}

func (e *DSPEngine) ControlChange(channel int, cc, value uint8) error {
	return e.send(fmt.Sprintf("cc %d %d %d\n", channel, cc, value))
}

func (e *DSPEngine) ChannelVolume(channel int, value uint8) error {
	return e.send(fmt.Sprintf("volume %d %d 0\n", channel, value))
}

func (e *DSPEngine) ChannelPressure(channel int, value uint8) error {
	return e.send(fmt.Sprintf("pressure %d %d 0\n", channel, value))
}

func (e *DSPEngine) PitchBend(channel int, value int16) error {
	return e.send(fmt.Sprintf("bend %d %d 0\n", channel, value))
}

func (e *DSPEngine) Close() error {
	if e.cmd.Process != nil {
		if err := e.cmd.Process.Kill(); err != nil {
			log.Debug("dsp process kill failed", "op", "close", "cause", err)
		}
	}
	<-e.done
	return nil
}
