// Package frame implements the wire-level CAN codec for the magnet-sensor
// protocol: arbitration ID derivation, status replies, typed telemetry
// frames, and the host->device command opcodes. It performs no I/O.
package frame

import "fmt"

// DeviceID identifies one device on the shared CAN bus, in [0,127].
type DeviceID uint8

// MaxDeviceID is the highest addressable device id.
const MaxDeviceID = 127

// CommandBase and StatusBase are added to a DeviceID to derive the
// per-device arbitration IDs.
const (
	CommandBase uint32 = 0x600
	StatusBase  uint32 = 0x580
)

// StatusFilterMask / StatusFilterID select all devices' status frames for a
// multi-device telemetry listener (mask/ID pair for a CAN acceptance
// filter: ID 0x580 masked with 0x780 matches 0x580-0x5FF).
const (
	StatusFilterMask uint32 = 0x780
	StatusFilterID   uint32 = 0x580
)

// Valid reports whether id is an addressable device id.
func (id DeviceID) Valid() bool {
	return id <= MaxDeviceID
}

// CommandID returns the arbitration ID the host sends commands on.
func (id DeviceID) CommandID() uint32 {
	return CommandBase + uint32(id)
}

// StatusID returns the arbitration ID the device replies on.
func (id DeviceID) StatusID() uint32 {
	return StatusBase + uint32(id)
}

// DeviceIDFromStatusID recovers a DeviceID from a received status
// arbitration ID, or false if it is out of range.
func DeviceIDFromStatusID(arbID uint32) (DeviceID, bool) {
	if arbID < StatusBase || arbID > StatusBase+MaxDeviceID {
		return 0, false
	}
	return DeviceID(arbID - StatusBase), true
}

// DeviceIDFromCommandID recovers a DeviceID from a command arbitration ID.
func DeviceIDFromCommandID(arbID uint32) (DeviceID, bool) {
	if arbID < CommandBase || arbID > CommandBase+MaxDeviceID {
		return 0, false
	}
	return DeviceID(arbID - CommandBase), true
}

func (id DeviceID) String() string {
	return fmt.Sprintf("dev%d", uint8(id))
}
