package backpack

import (
	"fmt"
	"strings"
)

// Flags is a bit-set of the slave's protocol-local flags (spec.md §3).
// It is re-expressed here as a named integer type with a String method,
// the way the teacher's ModemLine renders its own bit-set for debugging.
type Flags uint8

const (
	// FlagMute suppresses driving or sampling on mute-aware actions.
	// Set only between a detected arbitration loss and the next
	// ACK/NACK boundary.
	FlagMute Flags = 1 << iota

	// FlagParity accumulates the running (odd) parity of bits sent or
	// received since the last byte boundary. Cleared at every ACK/NACK
	// edge.
	FlagParity

	// FlagEnumerated survives a bus reset; every other flag is cleared
	// on reset.
	FlagEnumerated

	// FlagCheckCollision enables arbitration: a high bit that reads
	// back low on the wire means another slave is driving low, and
	// this slave loses.
	FlagCheckCollision

	// FlagSend selects the Send side of the Ready phase; otherwise
	// Ready leads into Receive.
	FlagSend

	// FlagIdleAfterAck moves the engine to Idle once the current
	// Ack/Nack phase completes.
	FlagIdleAfterAck

	// FlagClearMuteAfterAck guarantees Mute is cleared exactly once,
	// at the Ack/Nack boundary that ends the current byte.
	FlagClearMuteAfterAck
)

var flagNames = [...]struct {
	bit  Flags
	name string
}{
	{FlagMute, "MUTE"},
	{FlagParity, "PARITY"},
	{FlagEnumerated, "ENUMERATED"},
	{FlagCheckCollision, "CHECK_COLLISION"},
	{FlagSend, "SEND"},
	{FlagIdleAfterAck, "IDLE_AFTER_ACK"},
	{FlagClearMuteAfterAck, "CLEAR_MUTE_AFTER_ACK"},
}

func (f Flags) String() string {
	var set []string
	for _, e := range flagNames {
		if f&e.bit != 0 {
			set = append(set, e.name)
		}
	}
	if len(set) == 0 {
		return "[]"
	}
	return fmt.Sprintf("[%s]", strings.Join(set, "|"))
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// resetFlags clears every flag except FlagEnumerated, which survives a
// bus reset per spec.md §3.
func (f Flags) resetFlags() Flags {
	return f & FlagEnumerated
}
