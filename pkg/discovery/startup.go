package discovery

import (
	"fmt"

	"github.com/canmagnet/magsensor/pkg/client"
	"github.com/canmagnet/magsensor/pkg/config"
	"github.com/canmagnet/magsensor/pkg/frame"
)

// lowIntervalMs is the "low interval" target (§4.6) used to prime the
// device's event source stream once the roster is known.
const lowIntervalMs = 20

// StartupReport is one device's outcome from Bring-up, surfaced so the
// supervisor can decide whether to register it with the scheduler/LED
// pipeline or hold it back as degraded.
type StartupReport struct {
	DeviceID    frame.DeviceID
	Calibration map[frame.CalibField]int16
	Streams     client.StatusResult
	HMC         frame.HMCConfig
	Err         error
}

// BringUp runs the ordered startup sequence for one device (§4.6): load
// calibration (required when the device is configured for software event
// detection), read stream configuration, read HMC config, and — when
// setupStreams is requested — set the device's event-source stream
// (mag for software detection, event for hardware detection) to the low
// interval so telemetry starts flowing immediately.
func BringUp(cl *client.Client, devCfg config.DeviceConfig, setupStreams bool) StartupReport {
	report := StartupReport{DeviceID: frame.DeviceID(devCfg.DeviceID)}

	if devCfg.EventSource == config.EventSourceSoftware {
		calib, err := cl.GetAllCalib()
		if err != nil {
			report.Err = fmt.Errorf("discovery: bring-up %s: calibration: %w", report.DeviceID, err)
			return report
		}
		report.Calibration = calib
	}

	status, err := cl.GetStatus()
	if err != nil {
		report.Err = fmt.Errorf("discovery: bring-up %s: status: %w", report.DeviceID, err)
		return report
	}
	report.Streams = status

	hmc, err := cl.GetHMCConfig()
	if err != nil {
		report.Err = fmt.Errorf("discovery: bring-up %s: hmc config: %w", report.DeviceID, err)
		return report
	}
	report.HMC = hmc

	if setupStreams {
		stream := frame.StreamMag
		if devCfg.EventSource == config.EventSourceHardware {
			stream = frame.StreamEvent
		}
		if _, err := cl.SetInterval(stream, lowIntervalMs); err != nil {
			report.Err = fmt.Errorf("discovery: bring-up %s: set interval: %w", report.DeviceID, err)
			return report
		}
		if err := cl.SetStreamEnable(stream, true); err != nil {
			report.Err = fmt.Errorf("discovery: bring-up %s: enable stream: %w", report.DeviceID, err)
			return report
		}
	}

	logger.Info("device brought up", "op", "bring_up", "device_id", report.DeviceID, "event_source", devCfg.EventSource)
	return report
}
