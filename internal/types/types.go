package types

import (
	"fmt"
	"time"
)

const (
	// MaxDevices is the number of expansion modules a panel can carry.
	MaxDevices = 63
	// ZonesPerDevice is fixed by the panel hardware.
	ZonesPerDevice = 5
	// MaxZones is the highest global zone number.
	MaxZones = MaxDevices * ZonesPerDevice
)

// Zone is one addressable detection point on an expansion module.
type Zone struct {
	Number      int // global zone number, 1..315
	Device      int // module address, 1..63
	Index       int // zone within the module, 1..5
	Active      bool
	Alarm       bool
	Trouble     bool
	Description string
}

// Device is one expansion module with exactly five zones.
type Device struct {
	Address   int // 1..63
	Connected bool
	Bell      bool // bell relay confirmation observed in this frame
	Zones     [ZonesPerDevice]Zone
}

// HasAlarm reports whether any zone on the device is in alarm.
func (d Device) HasAlarm() bool {
	for _, z := range d.Zones {
		if z.Alarm {
			return true
		}
	}
	return false
}

// HasTrouble reports whether any zone on the device is in trouble.
func (d Device) HasTrouble() bool {
	for _, z := range d.Zones {
		if z.Trouble {
			return true
		}
	}
	return false
}

// Key is the zero-padded module address used to identify the device
// in bell confirmation tracking and on cloud topics.
func (d Device) Key() string {
	return DeviceKey(d.Address)
}

// DeviceKey formats a module address as a zero-padded device key.
func DeviceKey(address int) string {
	return fmt.Sprintf("%02d", address)
}

// ZoneNumber converts a module address and in-module zone index to the
// global zone number. The inverse of SplitZone.
func ZoneNumber(device, index int) int {
	return (device-1)*ZonesPerDevice + index
}

// SplitZone converts a global zone number to its module address and
// in-module zone index.
func SplitZone(number int) (device, index int) {
	device = (number-1)/ZonesPerDevice + 1
	index = (number-1)%ZonesPerDevice + 1
	return device, index
}

// ValidZone reports whether a global zone number is addressable.
func ValidZone(number int) bool {
	return number >= 1 && number <= MaxZones
}

// SystemFlag is a named panel-wide condition.
type SystemFlag int

const (
	FlagAlarm SystemFlag = iota
	FlagTrouble
	FlagDrill
	FlagSilenced
	FlagSupervisory
	FlagDisabled
)

func (f SystemFlag) String() string {
	switch f {
	case FlagAlarm:
		return "Alarm"
	case FlagTrouble:
		return "Trouble"
	case FlagDrill:
		return "Drill"
	case FlagSilenced:
		return "Silenced"
	case FlagSupervisory:
		return "Supervisory"
	case FlagDisabled:
		return "Disabled"
	default:
		return fmt.Sprintf("Unknown SystemFlag(%d)", int(f))
	}
}

// ParseSystemFlag resolves a flag name as used by the display layer.
func ParseSystemFlag(name string) (SystemFlag, error) {
	for _, f := range []SystemFlag{
		FlagAlarm, FlagTrouble, FlagDrill,
		FlagSilenced, FlagSupervisory, FlagDisabled,
	} {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown system flag: %q", name)
}

// StatusText is the single headline status shown to the operator.
type StatusText int

const (
	StatusNormal StatusText = iota
	StatusSupervisory
	StatusTrouble
	StatusAlarm
)

func (s StatusText) String() string {
	switch s {
	case StatusAlarm:
		return "ALARM"
	case StatusTrouble:
		return "TROUBLE"
	case StatusSupervisory:
		return "SUPERVISORY"
	case StatusNormal:
		return "NORMAL"
	default:
		return fmt.Sprintf("Unknown StatusText(%d)", int(s))
	}
}

// SystemStatus is the aggregate state produced by one decode cycle.
// It is replaced wholesale on every cycle, never mutated in place.
type SystemStatus struct {
	Alarm       bool
	Trouble     bool
	Supervisory bool
	Flags       map[SystemFlag]bool
	Devices     []Device
	Time        time.Time
}

// Text resolves the headline status. Precedence is fixed: ALARM before
// TROUBLE before SUPERVISORY, first match wins.
func (s SystemStatus) Text() StatusText {
	switch {
	case s.Alarm:
		return StatusAlarm
	case s.Trouble:
		return StatusTrouble
	case s.Supervisory:
		return StatusSupervisory
	default:
		return StatusNormal
	}
}

// Flag reads a named condition from the snapshot.
func (s SystemStatus) Flag(f SystemFlag) bool {
	return s.Flags[f]
}

// TransportMode selects which telemetry source is authoritative.
type TransportMode int

const (
	ModeCloud TransportMode = iota
	ModeLocal
)

func (m TransportMode) String() string {
	switch m {
	case ModeCloud:
		return "Cloud"
	case ModeLocal:
		return "Local"
	default:
		return fmt.Sprintf("Unknown TransportMode(%d)", int(m))
	}
}

// ParseTransportMode resolves a mode name from config or a user command.
func ParseTransportMode(name string) (TransportMode, error) {
	switch name {
	case "cloud", "Cloud":
		return ModeCloud, nil
	case "local", "Local":
		return ModeLocal, nil
	default:
		return 0, fmt.Errorf("unknown transport mode: %q", name)
	}
}

// ConnectionState is the lifecycle sub-state of the active transport.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (c ConnectionState) String() string {
	switch c {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown ConnectionState(%d)", int(c))
	}
}
