package client

import "github.com/canmagnet/magsensor/pkg/frame"

func (c *Client) GetHMCConfig() (frame.HMCConfig, error) {
	if err := c.flushAndSend(frame.CmdHMCGetConfig()); err != nil {
		return frame.HMCConfig{}, err
	}
	if err := c.sess.WaitStatus("hmc_get_config", byte(frame.OpHMCGetConfig), c.Timeout); err != nil {
		return frame.HMCConfig{}, err
	}
	f, err := c.sess.WaitFrame("hmc_config", c.Timeout, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeHMCConfig
	})
	if err != nil {
		return frame.HMCConfig{}, err
	}
	return frame.DecodeHMCConfig(f)
}

// SetHMCConfig validates each field against the device's documented ranges
// before sending.
func (c *Client) SetHMCConfig(rangeID, dataRate, samples, mode uint8) (frame.HMCConfig, error) {
	switch {
	case rangeID > frame.HMCMaxRange:
		return frame.HMCConfig{}, &ErrValidation{Op: "hmc_set_config", Reason: "range_id out of bounds"}
	case dataRate > frame.HMCMaxDataRate:
		return frame.HMCConfig{}, &ErrValidation{Op: "hmc_set_config", Reason: "data_rate out of bounds"}
	case samples > frame.HMCMaxSamples:
		return frame.HMCConfig{}, &ErrValidation{Op: "hmc_set_config", Reason: "samples out of bounds"}
	case mode > frame.HMCMaxMode:
		return frame.HMCConfig{}, &ErrValidation{Op: "hmc_set_config", Reason: "mode out of bounds"}
	}
	if err := c.flushAndSend(frame.CmdHMCSetConfig(rangeID, dataRate, samples, mode)); err != nil {
		return frame.HMCConfig{}, err
	}
	if err := c.sess.WaitStatus("hmc_set_config", byte(frame.OpHMCSetConfig), c.Timeout); err != nil {
		return frame.HMCConfig{}, err
	}
	f, err := c.sess.WaitFrame("hmc_config", c.Timeout, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeHMCConfig
	})
	if err != nil {
		return frame.HMCConfig{}, err
	}
	return frame.DecodeHMCConfig(f)
}
