package frame

import "fmt"

// Frame is one 8-byte CAN payload plus its 11-bit arbitration ID.
type Frame struct {
	ArbID uint32
	Data  [8]byte
}

// IsStatus reports whether this frame is a status reply rather than a
// typed frame. OK status replies share byte0==0x00 with every typed
// frame, so byte0 alone cannot discriminate them; mirroring the
// original's is_status_reply, a frame counts as a status reply only when
// byte0 is a recognized status code AND bytes 2..7 are all zero (a typed
// frame's subtype-specific fields occupying that range would only be
// all-zero by coincidence, and callers already know which arbitration ID
// they're reading from, so this is a tiebreaker, not the sole check).
func (f Frame) IsStatus() bool {
	if f.IsPong() {
		return false
	}
	if StatusCode(f.Data[0]) > StatusErrCRC {
		return false
	}
	for _, b := range f.Data[2:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// IsPong reports whether this frame carries the four-byte "PONG" marker
// in bytes 0..3, the one typed frame whose byte0 is not zero.
func (f Frame) IsPong() bool {
	return f.Data[0] == 'P' && f.Data[1] == 'O' && f.Data[2] == 'N' && f.Data[3] == 'G'
}

// Subtype returns the typed-frame subtype, valid only when !IsStatus().
func (f Frame) Subtype() Subtype {
	if f.IsPong() {
		return SubtypePong
	}
	return Subtype(f.Data[1])
}

// Status parses a status reply: {code, tag, 0,0,0,0,0,0}.
type Status struct {
	Code StatusCode
	Tag  uint8
}

func DecodeStatus(f Frame) Status {
	return Status{Code: StatusCode(f.Data[0]), Tag: f.Data[1]}
}

func EncodeStatus(s Status) Frame {
	var d [8]byte
	d[0] = byte(s.Code)
	d[1] = s.Tag
	return Frame{Data: d}
}

// Pong is the decoded handshake reply to PING.
type Pong struct {
	DeviceID DeviceID
	Proto    uint8
	Flags    uint8
}

func DecodePong(f Frame) (Pong, error) {
	if !f.IsPong() {
		return Pong{}, fmt.Errorf("frame: not a PONG frame")
	}
	return Pong{DeviceID: DeviceID(f.Data[4]), Proto: f.Data[5], Flags: f.Data[6]}, nil
}

func EncodePong(p Pong) Frame {
	var d [8]byte
	d[0], d[1], d[2], d[3] = 'P', 'O', 'N', 'G'
	d[4] = uint8(p.DeviceID)
	d[5] = p.Proto
	d[6] = p.Flags
	return Frame{Data: d}
}

// typedHeader sets byte0=0, byte1=subtype on a zeroed payload.
func typedHeader(s Subtype) [8]byte {
	var d [8]byte
	d[0] = 0x00
	d[1] = byte(s)
	return d
}
