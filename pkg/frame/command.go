package frame

import "encoding/binary"

// Command is a fully-formed host->device payload: opcode plus up to 7
// operand bytes. Encode* helpers below build the operand layout for each
// opcode that needs one; opcodes with no operands (PING,
// ENTER_BOOTLOADER, CALIB_SAVE/LOAD/RESET/CAPTURE_EARTH) just need the
// bare opcode.
type Command struct {
	Opcode Opcode
	Data   [7]byte
}

func (c Command) Payload() [8]byte {
	var d [8]byte
	d[0] = byte(c.Opcode)
	copy(d[1:], c.Data[:])
	return d
}

func bareCommand(op Opcode) Command { return Command{Opcode: op} }

func CmdPing() Command            { return bareCommand(OpPing) }
func CmdEnterBootloader() Command { return bareCommand(OpEnterBootloader) }
func CmdCalibSave() Command       { return bareCommand(OpCalibSave) }
func CmdCalibLoad() Command       { return bareCommand(OpCalibLoad) }
func CmdCalibReset() Command      { return bareCommand(OpCalibReset) }
func CmdCalibCaptureEarth() Command {
	return bareCommand(OpCalibCaptureEarth)
}

func CmdGetStatus() Command { return bareCommand(OpGetStatus) }
func CmdAHT20Read() Command { return bareCommand(OpAHT20Read) }

func CmdSetInterval(stream Stream, ms uint16) Command {
	var c Command
	c.Opcode = OpSetInterval
	c.Data[0] = byte(stream)
	binary.LittleEndian.PutUint16(c.Data[1:3], ms)
	return c
}

func CmdGetInterval(stream Stream) Command {
	var c Command
	c.Opcode = OpGetInterval
	c.Data[0] = byte(stream)
	return c
}

func CmdSetStreamEnable(stream Stream, enabled bool) Command {
	var c Command
	c.Opcode = OpSetStreamEnable
	c.Data[0] = byte(stream)
	if enabled {
		c.Data[1] = 1
	}
	return c
}

func CmdHMCGetConfig() Command { return bareCommand(OpHMCGetConfig) }

func CmdHMCSetConfig(rangeID, dataRate, samples, mode uint8) Command {
	var c Command
	c.Opcode = OpHMCSetConfig
	c.Data[0] = rangeID
	c.Data[1] = dataRate
	c.Data[2] = samples
	c.Data[3] = mode
	return c
}

func CmdCalibGet(field CalibField) Command {
	var c Command
	c.Opcode = OpCalibGet
	c.Data[0] = byte(field)
	return c
}

func CmdCalibSet(field CalibField, value int16) Command {
	var c Command
	c.Opcode = OpCalibSet
	c.Data[0] = byte(field)
	binary.LittleEndian.PutUint16(c.Data[1:3], uint16(value))
	return c
}

func CmdWSSetState(on bool, brightness uint8, colorRGB uint16) Command {
	var c Command
	c.Opcode = OpWSSetState
	if on {
		c.Data[0] = 1
	}
	c.Data[1] = brightness
	binary.LittleEndian.PutUint16(c.Data[2:4], colorRGB)
	return c
}

func CmdWSSetAnim(mode AnimMode, speed uint8) Command {
	var c Command
	c.Opcode = OpWSSetAnim
	c.Data[0] = byte(mode)
	c.Data[1] = speed
	return c
}

func CmdWSSetGradient(index uint8, stop GradientStop) Command {
	var c Command
	c.Opcode = OpWSSetGradient
	c.Data[0] = index
	c.Data[1] = stop.Pos
	binary.LittleEndian.PutUint16(c.Data[2:4], stop.ColorRGB)
	return c
}

func CmdWSGetGradient(index uint8) Command {
	var c Command
	c.Opcode = OpWSGetGradient
	c.Data[0] = index
	return c
}

func CmdWSGetState() Command { return bareCommand(OpWSGetState) }
func CmdWSGetAnim() Command  { return bareCommand(OpWSGetAnim) }
func CmdWSGetLength() Command { return bareCommand(OpWSGetLength) }
func CmdWSGetBrightness() Command { return bareCommand(OpWSGetBrightness) }

func CmdWSGetSectorColor(sector uint8) Command {
	var c Command
	c.Opcode = OpWSGetSectorColor
	c.Data[0] = sector
	return c
}

func CmdWSSetSectorColor(sector uint8, colorRGB uint16) Command {
	var c Command
	c.Opcode = OpWSSetSectorColor
	c.Data[0] = sector
	binary.LittleEndian.PutUint16(c.Data[1:3], colorRGB)
	return c
}

func CmdWSSetSectorMode(sector uint8, mode AnimMode) Command {
	var c Command
	c.Opcode = OpWSSetSectorMode
	c.Data[0] = sector
	c.Data[1] = byte(mode)
	return c
}

func CmdWSSetSectorZone(sector uint8, first, last uint16) Command {
	var c Command
	c.Opcode = OpWSSetSectorZone
	c.Data[0] = sector
	binary.LittleEndian.PutUint16(c.Data[1:3], first)
	binary.LittleEndian.PutUint16(c.Data[3:5], last)
	return c
}

func CmdWSGetSectorZone(sector uint8) Command {
	var c Command
	c.Opcode = OpWSGetSectorZone
	c.Data[0] = sector
	return c
}

func CmdWSSetLength(length uint16) Command {
	var c Command
	c.Opcode = OpWSSetLength
	binary.LittleEndian.PutUint16(c.Data[0:2], length)
	return c
}

func CmdWSSetAll(colorRGB uint16) Command {
	var c Command
	c.Opcode = OpWSSetAll
	binary.LittleEndian.PutUint16(c.Data[0:2], colorRGB)
	return c
}

func CmdWSSetActiveSector(sector uint8) Command {
	var c Command
	c.Opcode = OpWSSetActiveSector
	c.Data[0] = sector
	return c
}

func CmdWSSetBrightness(brightness uint8) Command {
	var c Command
	c.Opcode = OpWSSetBrightness
	c.Data[0] = brightness
	return c
}
