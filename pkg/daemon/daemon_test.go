package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/canmagnet/magsensor/pkg/client"
	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/detector"
	"github.com/canmagnet/magsensor/pkg/frame"
	"github.com/canmagnet/magsensor/pkg/led"
	"github.com/canmagnet/magsensor/pkg/voice"
)

type fakeEngine struct{}

func (fakeEngine) LoadInstrument(int, config.Instrument) (voice.ProgramKey, error) {
	return voice.ProgramKey{}, nil
}
func (fakeEngine) ProgramSelect(int, voice.ProgramKey) error  { return nil }
func (fakeEngine) NoteOn(int, uint8, uint8) error             { return nil }
func (fakeEngine) NoteOff(int, uint8) error                   { return nil }
func (fakeEngine) ControlChange(int, uint8, uint8) error      { return nil }
func (fakeEngine) ChannelVolume(int, uint8) error             { return nil }
func (fakeEngine) ChannelPressure(int, uint8) error           { return nil }
func (fakeEngine) PitchBend(int, int16) error                 { return nil }
func (fakeEngine) Close() error                               { return nil }

func newTestDaemon(t *testing.T, devCfg config.DeviceConfig, withDetector bool) (*Daemon, frame.DeviceID) {
	t.Helper()
	id := frame.DeviceID(devCfg.DeviceID)

	mixer := voice.NewMixer(fakeEngine{})
	require := assert.New(t)
	require.NoError(mixer.Register(int(id), devCfg, 0, 1))

	scheduler := voice.NewScheduler(mixer, config.GlobalConfig{BPM: 120})
	scheduler.RegisterDevice(int(id), devCfg)

	ledCtl := led.NewController(map[int]*client.Client{})
	ledCtl.Register(int(id), devCfg.LED)

	dev := &Device{ID: id, Cfg: devCfg}
	if withDetector {
		dev.Detector = detector.New(detector.Config{NumSectors: 6, ZLimit: 0, DataRadius: 100}, 0)
	}

	d := New(nil, scheduler, mixer, ledCtl, config.GlobalConfig{}, map[frame.DeviceID]*Device{id: dev})
	return d, id
}

func TestHandleFrameRoutesHardwareEventToScheduler(t *testing.T) {
	devCfg := config.DeviceConfig{DeviceID: 5, EventSource: config.EventSourceHardware, NoteMap: []uint8{60, 62, 64}, MaxLevel: 1, MinLevel: 0.2, DynamicsGamma: 1}
	d, id := newTestDaemon(t, devCfg, false)

	f := frame.EncodeEvent(frame.Event{Type: frame.EventSectorActivated, P0: 2, P1: 100})
	d.handleFrame(id, f)

	snap := d.Stats()
	assert.Len(t, snap, 1)
	assert.Equal(t, uint64(1), snap[0].Counters["EVENT"])
}

func TestHandleFrameIgnoresHardwareEventFramesForSoftwareDevices(t *testing.T) {
	devCfg := config.DeviceConfig{DeviceID: 6, EventSource: config.EventSourceSoftware, NoteMap: []uint8{60}, MaxLevel: 1, MinLevel: 0.2, DynamicsGamma: 1}
	d, id := newTestDaemon(t, devCfg, true)

	// A stray hardware EVENT frame must not bypass the mirrored detector.
	f := frame.EncodeEvent(frame.Event{Type: frame.EventSectorActivated, P0: 2})
	assert.NotPanics(t, func() { d.handleFrame(id, f) })
}

func TestHandleFrameRoutesMagSamplesThroughDetector(t *testing.T) {
	devCfg := config.DeviceConfig{DeviceID: 7, EventSource: config.EventSourceSoftware, NoteMap: []uint8{60, 62}, MaxLevel: 1, MinLevel: 0.2, DynamicsGamma: 1}
	d, id := newTestDaemon(t, devCfg, true)

	f := frame.EncodeMag(frame.Sample3{X: 50, Y: 50, Z: 50})
	assert.NotPanics(t, func() {
		for i := 0; i < 8; i++ {
			d.handleFrame(id, f)
			time.Sleep(time.Millisecond)
		}
	})
}
