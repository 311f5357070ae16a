package sim

import (
	"fmt"

	backpack "github.com/daedaluz/backpackbus"
)

// Node is one slave attached to a simulated Bus: its Engine, Store and
// the Timer/Line pair that bind it to the shared Wire.
type Node struct {
	Engine *backpack.Engine
	Store  *backpack.MemStore

	id    int
	timer *FakeTimer
}

// masterID is the Wire participant id the Bus itself drives under;
// chosen outside the range AddSlave hands out (which starts at 1) so
// the two never collide.
const masterID = 0

// Bus is a software master plus N slave Nodes sharing one Wire. It
// drives the protocol bit-by-bit in a fixed phase order (edge, then
// sample, then release, then the next action decision) so that
// collision detection — which depends on a checked
// Send's sample observing a competing low driver before that driver
// has released — behaves the way real hardware would.
//
// Per-engine alarms fire in tick order within a bit window: ALARM_SAMPLE
// is scheduled DATA_SAMPLE (≈300µs, 22 ticks) after the edge and
// ALARM_RELEASE DATA_WRITE (≈600µs, 45 ticks) after it (spec.md §6), so
// in real time SAMPLE
// always precedes RELEASE. This sim fires them in that order rather
// than the inverted order spec.md §4.1/§5's prose suggests, because the
// inverted order would let a losing slave release before a collision
// check could observe it — see DESIGN.md.
type Bus struct {
	wire   *Wire
	nodes  []*Node
	nextID int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{wire: NewWire(), nextID: masterID + 1}
}

// AddSlave attaches a new slave with the given immutable ID and total
// addressable Store size, returning its Node for inspection (Store
// contents, assigned BusAddr, Enumerated state).
func (b *Bus) AddSlave(id []byte, storeSize uint8) *Node {
	nodeID := b.nextID
	b.nextID++
	store := backpack.NewMemStore(storeSize, id)
	timer := NewFakeTimer()
	line := b.wire.Line(nodeID)
	eng := backpack.NewEngine(line, timer, store, backpack.Config{})
	n := &Node{Engine: eng, Store: store, id: nodeID, timer: timer}
	b.nodes = append(b.nodes, n)
	return n
}

// Nodes returns every slave attached to the bus, in attachment order.
func (b *Bus) Nodes() []*Node { return b.nodes }

// Loopback builds a Bus with one slave per id sharing a single Wire —
// the software counterpart of the teacher's OpenPTY, generalized from
// a two-endpoint pairing to N participants on one medium. It is the
// constructor most tests and cmd/backpacksim scenarios start from.
func Loopback(ids [][]byte, storeSize uint8) (*Bus, []*Node) {
	b := NewBus()
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, b.AddSlave(id, storeSize))
	}
	return b, nodes
}

// clockBit runs one bit window across every attached Node. masterBit
// nil means this window belongs to whichever Send action a slave is
// currently running (the master only listens); non-nil means the
// master itself sources the bit (true releases immediately for a '1',
// false holds the line low for the bit period for a '0').
func (b *Bus) clockBit(masterBit *bool) backpack.Level {
	b.wire.drive(masterID, true)
	for _, n := range b.nodes {
		n.Engine.OnFallingEdge()
	}
	masterHolds := masterBit != nil && !*masterBit
	if !masterHolds {
		b.wire.drive(masterID, false)
	}

	for _, n := range b.nodes {
		if n.timer.SampleArmed() {
			n.Engine.OnAlarmSample()
		}
	}
	level := b.wire.Level()

	if masterHolds {
		b.wire.drive(masterID, false)
	}
	for _, n := range b.nodes {
		if n.timer.ReleaseArmed() {
			n.Engine.OnAlarmRelease()
		}
	}
	for _, n := range b.nodes {
		n.Engine.Service()
	}
	return level
}

func (b *Bus) sendBit(high bool) backpack.Level { return b.clockBit(&high) }
func (b *Bus) listenBit() backpack.Level { return b.clockBit(nil) }

// parityBit returns the bit value that makes the running XOR of
// value's 8 data bits plus this bit equal 1 (odd parity, spec.md §4.2).
func parityBit(value byte) bool {
	p := false
	for i := 0; i < 8; i++ {
		if value&(1<<uint(i)) != 0 {
			p = !p
		}
	}
	return !p
}

// readAckNack runs the Ready-phase stall-check bit (never stalling)
// followed by the two Ack/Nack bits, and reports whether the pattern
// was ACK (low, high) rather than NACK (high, low) or the simultaneous
// (low, low) a wired-AND collision between ACK and NACK collapses to.
func (b *Bus) readAckNack() bool {
	b.sendBit(true)
	bit1 := b.listenBit()
	bit2 := b.listenBit()
	return bit1 == backpack.LineLow && bit2 == backpack.LineHigh
}

// SendByte sends one master-originated byte (an address, command,
// offset, or write-data byte) and returns whether it was ACKed.
func (b *Bus) SendByte(value byte) bool {
	for i := 7; i >= 0; i-- {
		b.sendBit(value&(1<<uint(i)) != 0)
	}
	b.sendBit(parityBit(value))
	return b.readAckNack()
}

// ReadByte runs a full slave-originated byte transfer (an EEPROM read
// byte): 8 data bits + parity sent by the slave, the master only
// sampling, followed by the normal Ready/Ack exchange. It returns the
// received value and whether the slave ACKed (a NACK — e.g. past the
// Store's end — carries no further payload in value).
func (b *Bus) ReadByte() (value byte, ack bool) {
	for i := 0; i < 8; i++ {
		if b.listenBit() == backpack.LineHigh {
			value |= 1 << uint(7-i)
		}
	}
	b.listenBit() // parity, not independently checked by this master
	return value, b.readAckNack()
}

// ReceiveIDByte runs one ID byte of an enumeration round: 8 data bits
// + parity, all slave-driven, followed by the Ready/Ack exchange that
// closes every enumeration byte (spec.md §4.4's Enumerate transition,
// §8 scenario 1's "ACK after each"). Only unmuted participants drive
// the ack, so a round's losers stay silent through it.
func (b *Bus) ReceiveIDByte() (value byte, ack bool) {
	for i := 0; i < 8; i++ {
		if b.listenBit() == backpack.LineHigh {
			value |= 1 << uint(7-i)
		}
	}
	b.listenBit() // parity, not independently checked by this master
	return value, b.readAckNack()
}

// SendCorruptAddress sends addr as an address byte with its parity bit
// deliberately inverted, exercising spec.md §8 scenario 3. The caller
// resets the bus first so the slaves are actually listening for an
// address. It returns whether the byte was (wrongly) ACKed.
func (b *Bus) SendCorruptAddress(addr byte) bool {
	for i := 7; i >= 0; i-- {
		b.sendBit(addr&(1<<uint(i)) != 0)
	}
	b.sendBit(!parityBit(addr))
	return b.readAckNack()
}

// IdleWatchdogTwice delivers the reset watchdog's overflow event twice
// in a row with the wire released (high) between each, the simulated
// equivalent of the bus sitting idle for two full RESET_SAMPLE periods
// with no falling edge (spec.md §8 scenario 6). The first overflow
// moves every still-synced Node to deep sleep; the second is delivered
// for parity with real hardware, where nothing stops the watchdog from
// firing again while idle.
func (b *Bus) IdleWatchdogTwice() {
	for i := 0; i < 2; i++ {
		for _, n := range b.nodes {
			n.Engine.OnTimerOverflow()
		}
	}
}

// Reset drives a bus reset directly: every Node observes a sustained
// low line and its power/reset watchdog (spec.md §4.5) fires,
// resynchronizing it to ReceiveAddress regardless of prior State.
// Real hardware gets here by holding the line low for RESET_SAMPLE
// ticks with no intervening edge; the simulated master skips the wait
// and delivers the equivalent overflow event directly.
func (b *Bus) Reset() {
	b.wire.drive(masterID, true)
	for _, n := range b.nodes {
		n.Engine.OnTimerOverflow()
	}
	b.wire.drive(masterID, false)
}

// maxEnumerateRounds bounds Enumerate's loop so a wiring mistake (e.g.
// two nodes sharing an ID) shows up as an error instead of a hang.
const maxEnumerateRounds = 64

// Enumerate resets the bus and runs the broadcast enumerate command
// followed by as many acked ID-transmission rounds as it takes for
// every attached Node to claim a bus address, per the lowest-ID-wins
// algorithm in spec.md §4.4. It returns the number of rounds run.
func (b *Bus) Enumerate() (int, error) {
	b.Reset()
	b.SendByte(backpack.BroadcastEnumerate)
	rounds := 0
	for !b.allEnumerated() {
		rounds++
		if rounds > maxEnumerateRounds {
			return rounds, fmt.Errorf("sim: enumeration did not converge after %d rounds (duplicate IDs?)", rounds)
		}
		for i := uint8(0); i < backpack.IDSize; i++ {
			b.ReceiveIDByte()
		}
	}
	return rounds, nil
}

func (b *Bus) allEnumerated() bool {
	if len(b.nodes) == 0 {
		return true
	}
	for _, n := range b.nodes {
		if !n.Engine.Enumerated() {
			return false
		}
	}
	return true
}

// Address runs a targeted-command header against the given bus
// address: a bus reset (ReceiveAddress is only ever entered on reset,
// spec.md §4.4), the address byte itself (ACKed by the matching slave),
// then the command byte. It returns whether the command byte was ACKed.
func (b *Bus) Address(addr, cmd byte) bool {
	b.Reset()
	if !b.SendByte(addr) {
		return false
	}
	return b.SendByte(cmd)
}

// ReadEeprom addresses addr, issues CMD_READ_EEPROM at offset, and
// reads n bytes back, stopping early (with an error) on the first byte
// that is not ACKed — a NACK, or no response at all, which is what a
// read that runs past the Store's end gets.
func (b *Bus) ReadEeprom(addr, offset byte, n int) ([]byte, error) {
	if !b.Address(addr, backpack.CmdReadEeprom) {
		return nil, fmt.Errorf("sim: read command not acked")
	}
	if !b.SendByte(offset) {
		return nil, fmt.Errorf("sim: read offset not acked")
	}
	data := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		v, ack := b.ReadByte()
		if !ack {
			return data, fmt.Errorf("sim: read nacked after %d byte(s)", len(data))
		}
		data = append(data, v)
	}
	return data, nil
}

// WriteEeprom addresses addr, issues CMD_WRITE_EEPROM at offset, and
// writes data, stopping early (with an error) on the first NACK.
// Writes landing in the immutable ID range are still ACKed (spec.md
// §3) but silently not persisted — callers that care should read back.
func (b *Bus) WriteEeprom(addr, offset byte, data []byte) error {
	if !b.Address(addr, backpack.CmdWriteEeprom) {
		return fmt.Errorf("sim: write command not acked")
	}
	if !b.SendByte(offset) {
		return fmt.Errorf("sim: write offset not acked")
	}
	for i, v := range data {
		if !b.SendByte(v) {
			return fmt.Errorf("sim: write byte %d not acked", i)
		}
	}
	return nil
}
