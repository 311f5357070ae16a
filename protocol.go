package backpack

import "time"

// Broadcast commands: special addresses sent over the wire instead of a
// real bus address.
const (
	// BroadcastEnumerate starts bus enumeration. The firmware's most
	// developed revision uses 0xAA; an earlier protocol.h disagreed and
	// published 0xFF. 0xAA is authoritative here (see DESIGN.md).
	BroadcastEnumerate byte = 0xAA
)

// Targeted commands: sent over the wire after a slave has been addressed.
const (
	CmdReadEeprom  byte = 0x01
	CmdWriteEeprom byte = 0x02
)

// FirstValidAddress is the lowest bus address enumeration can assign
// (spec.md §4.4: "bus_addr ← 0" on entering Enumerate).
const FirstValidAddress byte = 0x00

// UnassignedAddress is the sentinel bus address a slave holds before it
// has been enumerated.
const UnassignedAddress byte = 0xFF

// Store layout: the unique ID occupies a fixed, immutable prefix.
const (
	IDOffset uint8 = 0
	IDSize   uint8 = 4
)

// Tick is the bus's time unit: one count of the 75kHz timer the reference
// firmware derives from its prescaled CPU clock. Every wire timing is
// expressed in ticks so the ratios in spec.md §6 stay exact regardless of
// what clock a particular LineDriver actually runs on.
const TickRate = 75_000 // Hz

// TicksFor converts a microsecond duration to ticks at TickRate, rounding
// down the way the reference firmware's integer US_TO_CLOCKS macro does.
func TicksFor(us time.Duration) uint32 {
	return uint32(us.Microseconds() * TickRate / 1_000_000)
}

// Reference wire timings (spec.md §6). DataSample sits at half of
// DataWrite and ResetSample at roughly 2.3x DataWrite. The three values
// are written out as independent literals; the ratios hold because of
// the values chosen, not because one constant is computed from another.
const (
	DataWrite   = 600 * time.Microsecond
	DataSample  = 300 * time.Microsecond
	ResetSample = 1400 * time.Microsecond
)

// Tick-count forms of the above, ready to hand to a Timer implementation.
var (
	DataWriteTicks   = TicksFor(DataWrite)
	DataSampleTicks  = TicksFor(DataSample)
	ResetSampleTicks = TicksFor(ResetSample)
)
