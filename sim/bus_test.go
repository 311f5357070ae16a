package sim

import (
	"testing"

	backpack "github.com/daedaluz/backpackbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSingleNodeEnumerate is spec.md §8 scenario 1: one slave, its ID
// comes back byte for byte, and claims bus_addr 0.
func TestSingleNodeEnumerate(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	rounds, err := bus.Enumerate()
	require.NoError(t, err)
	assert.Equal(t, 1, rounds)

	node := nodes[0]
	assert.True(t, node.Engine.Enumerated())
	assert.Equal(t, backpack.FirstValidAddress, node.Engine.BusAddr())

	data, err := bus.ReadEeprom(node.Engine.BusAddr(), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, data)
}

// TestTwoNodeArbitration is spec.md §8 scenario 2: two IDs differing
// only in their last bit. The lower ID wins the first round outright;
// the loser claims the next address in a second, uncontested round.
func TestTwoNodeArbitration(t *testing.T) {
	bus, nodes := Loopback([][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0x01, 0x02, 0x03, 0x05},
	}, 16)
	rounds, err := bus.Enumerate()
	require.NoError(t, err)
	assert.Equal(t, 2, rounds)

	var winner, loser *Node
	for _, n := range nodes {
		if n.Store.ID()[3] == 0x04 {
			winner = n
		} else {
			loser = n
		}
	}
	require.NotNil(t, winner)
	require.NotNil(t, loser)
	assert.Equal(t, backpack.FirstValidAddress, winner.Engine.BusAddr())
	assert.Equal(t, backpack.FirstValidAddress+1, loser.Engine.BusAddr())
}

// TestEnumerationAcksEachIDByte walks scenario 1's wire exchange bit by
// bit: the broadcast byte and every ID byte each close with an ACK from
// the (sole, hence winning) slave, and the bytes read back off the wire
// are exactly the slave's ID.
func TestEnumerationAcksEachIDByte(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	bus.Reset()
	assert.True(t, bus.SendByte(backpack.BroadcastEnumerate), "broadcast byte must be acked")

	var got []byte
	for i := uint8(0); i < backpack.IDSize; i++ {
		v, ack := bus.ReceiveIDByte()
		assert.True(t, ack, "ID byte %d must be acked", i)
		got = append(got, v)
	}
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)
	assert.True(t, nodes[0].Engine.Enumerated())
	assert.Equal(t, backpack.FirstValidAddress, nodes[0].Engine.BusAddr())
}

// TestParityFault is spec.md §8 scenario 3: an address byte with
// inverted parity is NACKed and the slave goes silent until reset.
func TestParityFault(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	addr := nodes[0].Engine.BusAddr()

	bus.Reset()
	ack := bus.SendCorruptAddress(addr)

	assert.False(t, ack, "a bad-parity address byte must NACK")
	assert.Equal(t, backpack.StateIdle, nodes[0].Engine.State())

	// Idle persists: a subsequent command gets no response at all until
	// the next reset (spec.md §7).
	assert.False(t, bus.SendByte(backpack.CmdReadEeprom))
}

// TestIDRangeWriteRefused is spec.md §8 scenario 4: a write into the
// immutable ID range is ACKed but not persisted.
func TestIDRangeWriteRefused(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	addr := nodes[0].Engine.BusAddr()

	err = bus.WriteEeprom(addr, 0, []byte{0xFF})
	require.NoError(t, err)

	data, err := bus.ReadEeprom(addr, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), data[0], "ID byte must be unchanged")
}

// TestWritableRegionRoundTrip is the spec.md §8 round-trip property:
// bytes written anywhere past the ID prefix read back unchanged.
func TestWritableRegionRoundTrip(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	addr := nodes[0].Engine.BusAddr()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, bus.WriteEeprom(addr, backpack.IDOffset+backpack.IDSize, payload))

	data, err := bus.ReadEeprom(addr, backpack.IDOffset+backpack.IDSize, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

// TestReadPastStoreEndNacks documents the boundary behavior spec.md §8
// leaves implementation-defined: an out-of-range start offset is NACKed
// outright, while a stream that runs off the end delivers (and ACKs)
// every in-range byte and then goes silent — never wrapping around, and
// never panicking.
func TestReadPastStoreEndNacks(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 8)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	addr := nodes[0].Engine.BusAddr()

	_, err = bus.ReadEeprom(addr, 8, 1)
	assert.Error(t, err, "an offset at the store's end must be refused")

	data, err := bus.ReadEeprom(addr, 7, 2)
	assert.Error(t, err, "the second byte does not exist")
	assert.Equal(t, 1, len(data), "the last in-range byte is still delivered")

	// A read that stops exactly at the end succeeds in full.
	data, err = bus.ReadEeprom(addr, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, len(data))
}

// TestRepeatedEnumerationIsStable is a round-trip property from
// spec.md §8: re-running enumeration against an unchanged population
// yields identical address assignments.
func TestRepeatedEnumerationIsStable(t *testing.T) {
	bus, nodes := Loopback([][]byte{
		{0x01, 0x02, 0x03, 0x04},
		{0x01, 0x02, 0x03, 0x05},
		{0x01, 0x02, 0x03, 0x06},
	}, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	first := make([]byte, len(nodes))
	for i, n := range nodes {
		first[i] = n.Engine.BusAddr()
	}

	_, err = bus.Enumerate()
	require.NoError(t, err)
	for i, n := range nodes {
		assert.Equal(t, first[i], n.Engine.BusAddr())
	}
}

// TestEnumerationAssignsLowestIDFirst is the K-slave generalization of
// scenario 2: the resulting bus_addr order must match the sorted
// order of participant IDs.
func TestEnumerationAssignsLowestIDFirst(t *testing.T) {
	ids := [][]byte{
		{0x03, 0x00, 0x00, 0x00},
		{0x01, 0x00, 0x00, 0x00},
		{0x02, 0x00, 0x00, 0x00},
	}
	bus, nodes := Loopback(ids, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)

	byAddr := make(map[byte]*Node)
	for _, n := range nodes {
		byAddr[n.Engine.BusAddr()] = n
	}
	assert.Equal(t, byte(0x01), byAddr[backpack.FirstValidAddress].Store.ID()[0])
	assert.Equal(t, byte(0x02), byAddr[backpack.FirstValidAddress+1].Store.ID()[0])
	assert.Equal(t, byte(0x03), byAddr[backpack.FirstValidAddress+2].Store.ID()[0])
}

// TestReadyPhaseHeldLowStillTerminates is spec.md §8's boundary case
// for the interbyte stall: the master holds the Ready slot low for a
// few extra bit windows, the slave stays parked in Ready, and the
// frame still closes with a normal ACK once the line is released.
func TestReadyPhaseHeldLowStillTerminates(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	addr := nodes[0].Engine.BusAddr()

	bus.Reset()
	for i := 7; i >= 0; i-- {
		bus.sendBit(addr&(1<<uint(i)) != 0)
	}
	bus.sendBit(parityBit(addr))

	// Stretch the Ready slot: two bit windows held low by the master.
	bus.sendBit(false)
	bus.sendBit(false)

	bus.sendBit(true)
	bit1 := bus.listenBit()
	bit2 := bus.listenBit()
	assert.Equal(t, backpack.LineLow, bit1)
	assert.Equal(t, backpack.LineHigh, bit2)
	assert.Equal(t, backpack.StateReceiveCommand, nodes[0].Engine.State())
}

// TestResetMidFrameKeepsEnumeration is spec.md §8 scenario 5: a reset
// partway through a write command drops the in-flight frame but
// leaves ENUMERATED/bus_addr untouched.
func TestResetMidFrameKeepsEnumeration(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	addr := nodes[0].Engine.BusAddr()

	require.True(t, bus.Address(addr, backpack.CmdWriteEeprom))
	require.True(t, bus.SendByte(8)) // offset, data byte never arrives

	bus.Reset()

	assert.True(t, nodes[0].Engine.Enumerated())
	assert.Equal(t, addr, nodes[0].Engine.BusAddr())
	assert.Equal(t, backpack.StateReceiveAddress, nodes[0].Engine.State())
}

// TestQuiescenceThenWake is spec.md §8 scenario 6: two watchdog periods
// with the line released drop the slave into deep sleep, and the next
// enumeration round (which starts with a falling edge) still works.
func TestQuiescenceThenWake(t *testing.T) {
	bus, nodes := Loopback([][]byte{{0x01, 0x02, 0x03, 0x04}}, 16)
	_, err := bus.Enumerate()
	require.NoError(t, err)
	addr := nodes[0].Engine.BusAddr()

	bus.IdleWatchdogTwice()
	assert.Equal(t, backpack.StateIdle, nodes[0].Engine.State())

	rounds, err := bus.Enumerate()
	require.NoError(t, err)
	assert.Equal(t, 1, rounds)
	assert.Equal(t, addr, nodes[0].Engine.BusAddr())
}
