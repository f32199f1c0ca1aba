package client

import "github.com/canmagnet/magsensor/pkg/frame"

// SetWSState toggles the strip on/off and sets brightness/base color.
func (c *Client) SetWSState(on bool, brightness uint8, colorRGB uint16) error {
	if err := c.flushAndSend(frame.CmdWSSetState(on, brightness, colorRGB)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_state", byte(frame.OpWSSetState), c.Timeout)
}

func (c *Client) GetWSState() (frame.WSState, error) {
	f, err := c.roundTripFrame("ws_get_state", frame.CmdWSGetState(), frame.OpWSGetState, frame.SubtypeWSState)
	if err != nil {
		return frame.WSState{}, err
	}
	return frame.DecodeWSState(f)
}

func (c *Client) GetWSAnim() (frame.WSAnim, error) {
	f, err := c.roundTripFrame("ws_get_anim", frame.CmdWSGetAnim(), frame.OpWSGetAnim, frame.SubtypeWSAnim)
	if err != nil {
		return frame.WSAnim{}, err
	}
	return frame.DecodeWSAnim(f)
}

func (c *Client) GetWSLength() (frame.WSLength, error) {
	f, err := c.roundTripFrame("ws_get_length", frame.CmdWSGetLength(), frame.OpWSGetLength, frame.SubtypeWSLength)
	if err != nil {
		return frame.WSLength{}, err
	}
	return frame.DecodeWSLength(f)
}

func (c *Client) GetWSBrightness() (frame.WSState, error) {
	f, err := c.roundTripFrame("ws_get_brightness", frame.CmdWSGetBrightness(), frame.OpWSGetBrightness, frame.SubtypeWSState)
	if err != nil {
		return frame.WSState{}, err
	}
	return frame.DecodeWSState(f)
}

func (c *Client) GetWSSectorColor(sector uint8) (frame.WSSectorColor, error) {
	if err := c.flushAndSend(frame.CmdWSGetSectorColor(sector)); err != nil {
		return frame.WSSectorColor{}, err
	}
	if err := c.sess.WaitStatus("ws_get_sector_color", sector, c.Timeout); err != nil {
		return frame.WSSectorColor{}, err
	}
	f, err := c.sess.WaitFrame("ws_sector_color", c.Timeout, func(f frame.Frame) bool {
		if f.IsStatus() || f.Subtype() != frame.SubtypeWSSectorColor {
			return false
		}
		sc, err := frame.DecodeWSSectorColor(f)
		return err == nil && sc.Sector == sector
	})
	if err != nil {
		return frame.WSSectorColor{}, err
	}
	return frame.DecodeWSSectorColor(f)
}

// SetWSAnim validates the animation mode and pushes it to the device.
func (c *Client) SetWSAnim(mode frame.AnimMode, speed uint8) error {
	if mode > frame.AnimPulse {
		return &ErrValidation{Op: "ws_set_anim", Reason: "unknown animation mode"}
	}
	if err := c.flushAndSend(frame.CmdWSSetAnim(mode, speed)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_anim", byte(frame.OpWSSetAnim), c.Timeout)
}

// SetWSGradientStop validates the stop index against the table size.
func (c *Client) SetWSGradientStop(index uint8, stop frame.GradientStop) error {
	if index >= frame.MaxGradientStops {
		return &ErrValidation{Op: "ws_set_gradient", Reason: "index out of range"}
	}
	if err := c.flushAndSend(frame.CmdWSSetGradient(index, stop)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_gradient", index, c.Timeout)
}

// GetWSGradient reads one stop (index > 0) or the whole table (index == 0,
// chunked collection up to MaxGradientStops entries).
func (c *Client) GetWSGradient(index uint8) ([]frame.WSGradient, error) {
	if err := c.flushAndSend(frame.CmdWSGetGradient(index)); err != nil {
		return nil, err
	}
	if err := c.sess.WaitStatus("ws_get_gradient", index, c.Timeout); err != nil {
		return nil, err
	}
	want := 1
	if index == 0 {
		want = frame.MaxGradientStops
	}
	frames, err := c.sess.CollectFrames("ws_get_gradient", c.Timeout, c.Quiescence, want, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == frame.SubtypeWSGradient
	})
	if err != nil {
		return nil, err
	}
	out := make([]frame.WSGradient, 0, len(frames))
	for _, f := range frames {
		g, err := frame.DecodeWSGradient(f)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (c *Client) SetWSSectorColor(sector uint8, colorRGB uint16) error {
	if err := c.flushAndSend(frame.CmdWSSetSectorColor(sector, colorRGB)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_sector_color", sector, c.Timeout)
}

func (c *Client) SetWSSectorMode(sector uint8, mode frame.AnimMode) error {
	if err := c.flushAndSend(frame.CmdWSSetSectorMode(sector, mode)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_sector_mode", sector, c.Timeout)
}

func (c *Client) SetWSSectorZone(sector uint8, first, last uint16) error {
	if first > last {
		return &ErrValidation{Op: "ws_set_sector_zone", Reason: "first_pixel must be <= last_pixel"}
	}
	if err := c.flushAndSend(frame.CmdWSSetSectorZone(sector, first, last)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_sector_zone", sector, c.Timeout)
}

func (c *Client) GetWSSectorZone(sector uint8) (frame.WSSectorZone, error) {
	if err := c.flushAndSend(frame.CmdWSGetSectorZone(sector)); err != nil {
		return frame.WSSectorZone{}, err
	}
	if err := c.sess.WaitStatus("ws_get_sector_zone", sector, c.Timeout); err != nil {
		return frame.WSSectorZone{}, err
	}
	f, err := c.sess.WaitFrame("ws_sector_zone", c.Timeout, func(f frame.Frame) bool {
		if f.IsStatus() || f.Subtype() != frame.SubtypeWSSectorZone {
			return false
		}
		z, err := frame.DecodeWSSectorZone(f)
		return err == nil && z.Sector == sector
	})
	if err != nil {
		return frame.WSSectorZone{}, err
	}
	return frame.DecodeWSSectorZone(f)
}

func (c *Client) SetWSLength(length uint16) error {
	if err := c.flushAndSend(frame.CmdWSSetLength(length)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_length", byte(frame.OpWSSetLength), c.Timeout)
}

func (c *Client) SetWSAll(colorRGB uint16) error {
	if err := c.flushAndSend(frame.CmdWSSetAll(colorRGB)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_all", byte(frame.OpWSSetAll), c.Timeout)
}

func (c *Client) SetWSActiveSector(sector uint8) error {
	if err := c.flushAndSend(frame.CmdWSSetActiveSector(sector)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_active_sector", sector, c.Timeout)
}

func (c *Client) SetWSBrightness(brightness uint8) error {
	if err := c.flushAndSend(frame.CmdWSSetBrightness(brightness)); err != nil {
		return err
	}
	return c.sess.WaitStatus("ws_set_brightness", byte(frame.OpWSSetBrightness), c.Timeout)
}

// roundTripFrame is a small helper for one-shot opcode round trips where
// the expected reply subtype carries no index to match against.
func (c *Client) roundTripFrame(op string, cmd frame.Command, tag frame.Opcode, want frame.Subtype) (frame.Frame, error) {
	if err := c.flushAndSend(cmd); err != nil {
		return frame.Frame{}, err
	}
	if err := c.sess.WaitStatus(op, byte(tag), c.Timeout); err != nil {
		return frame.Frame{}, err
	}
	return c.sess.WaitFrame(op, c.Timeout, func(f frame.Frame) bool {
		return !f.IsStatus() && f.Subtype() == want
	})
}
