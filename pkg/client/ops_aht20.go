package client

import (
	"time"

	"github.com/canmagnet/magsensor/pkg/frame"
)

// AHT20ReadRetries bounds the retry policy for the environmental sensor,
// which occasionally returns ERR_SENSOR while the AHT20 is mid-conversion
// (§7: "AHT20_READ may be retried a small fixed number of times on
// ERR_SENSOR before surfacing the failure").
const AHT20ReadRetries = 3

// AHT20Read requests a fresh measurement, retrying on ERR_SENSOR.
func (c *Client) AHT20Read() (frame.AHT20Meas, error) {
	var lastErr error
	for attempt := 0; attempt < AHT20ReadRetries; attempt++ {
		if err := c.flushAndSend(frame.CmdAHT20Read()); err != nil {
			return frame.AHT20Meas{}, err
		}
		err := c.sess.WaitStatus("aht20_read", byte(frame.OpAHT20Read), c.Timeout)
		if err != nil {
			lastErr = err
			if isErrSensor(err) {
				time.Sleep(20 * time.Millisecond)
				continue
			}
			return frame.AHT20Meas{}, err
		}
		f, err := c.sess.WaitFrame("aht20_meas", c.Timeout, func(f frame.Frame) bool {
			return !f.IsStatus() && f.Subtype() == frame.SubtypeAHT20Meas
		})
		if err != nil {
			lastErr = err
			continue
		}
		return frame.DecodeAHT20Meas(f)
	}
	return frame.AHT20Meas{}, lastErr
}

// AHT20ReadRaw requests the uncorrected 20-bit counter pair, used by
// calibration tooling rather than normal telemetry consumers.
func (c *Client) AHT20ReadRaw() (frame.AHT20Raw, error) {
	if err := c.flushAndSend(frame.CmdAHT20Read()); err != nil {
		return frame.AHT20Raw{}, err
	}
	if err := c.sess.WaitStatus("aht20_read", byte(frame.OpAHT20Read), c.Timeout); err != nil {
		return frame.AHT20Raw{}, err
	}
	f, err := c.sess.WaitFrame("aht20_raw", c.Timeout, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeAHT20Raw
	})
	if err != nil {
		return frame.AHT20Raw{}, err
	}
	return frame.DecodeAHT20Raw(f)
}
