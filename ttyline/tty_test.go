package ttyline

import (
	"sync"
	"testing"
	"time"

	backpack "github.com/daedaluz/backpackbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort is a modemPort whose line states are set directly by the
// test instead of by a kernel ioctl, playing the role engine_test.go's
// fakeLine plays for the Engine: CTS is the wire, RTS records what the
// adapter drives, and WaitModemChange is fed from a channel of status
// snapshots standing in for TIOCMIWAIT wakeups.
type fakePort struct {
	mu     sync.Mutex
	lines  ModemLine
	getErr error

	waits  chan ModemLine
	closed bool
}

func newFakePort() *fakePort {
	// Idle bus: nothing drives, CTS reads high.
	return &fakePort{lines: TIOCM_CTS, waits: make(chan ModemLine, 16)}
}

func (p *fakePort) EnableModemLines(l ModemLine) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines |= l
	return nil
}

func (p *fakePort) DisableModemLines(l ModemLine) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines &^= l
	return nil
}

func (p *fakePort) GetModemLines() (ModemLine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return 0, p.getErr
	}
	return p.lines, nil
}

func (p *fakePort) WaitModemChange() (ModemLine, error) {
	l, ok := <-p.waits
	if !ok {
		return 0, ErrClosed
	}
	return l, nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) rts() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines&TIOCM_RTS != 0
}

func (p *fakePort) setCTS(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if high {
		p.lines |= TIOCM_CTS
	} else {
		p.lines &^= TIOCM_CTS
	}
}

func TestTTYDriveAndSample(t *testing.T) {
	port := newFakePort()
	tty := &TTY{port: port}

	assert.Equal(t, backpack.LineHigh, tty.Sample(), "an idle bus reads high")

	tty.DriveLow()
	assert.True(t, port.rts(), "DriveLow must assert RTS")
	tty.Release()
	assert.False(t, port.rts(), "Release must clear RTS")

	port.setCTS(false)
	assert.Equal(t, backpack.LineLow, tty.Sample())
}

func TestTTYSampleFallsBackToLastLevel(t *testing.T) {
	port := newFakePort()
	tty := &TTY{port: port}

	port.setCTS(false)
	require.Equal(t, backpack.LineLow, tty.Sample())

	port.getErr = ErrClosed
	assert.Equal(t, backpack.LineLow, tty.Sample(), "a failed ioctl returns the last good sample")

	port.getErr = nil
	port.setCTS(true)
	assert.Equal(t, backpack.LineHigh, tty.Sample())
}

func TestTTYCloseClosesPort(t *testing.T) {
	port := newFakePort()
	tty := &TTY{port: port}
	require.NoError(t, tty.Close())
	assert.True(t, port.closed)
}

// TestWatchEdgesTranslatesFallingEdges feeds watchEdges a sequence of
// modem-status snapshots and checks that only high-to-low transitions
// on CTS reach the edge callback: a wakeup that leaves the line where
// it was, or raises it, is not an edge.
func TestWatchEdgesTranslatesFallingEdges(t *testing.T) {
	port := newFakePort()
	tty := &TTY{port: port}

	for _, lines := range []ModemLine{
		TIOCM_CTS, // still high: no edge
		0,         // falling: edge
		0,         // still low: no edge
		TIOCM_CTS, // rising: no edge
		0,         // falling again: edge
	} {
		port.waits <- lines
	}
	close(port.waits)

	edges := 0
	tty.watchEdges(func() { edges++ })
	assert.Equal(t, 2, edges)
}

// TestBindEngineWiring stands up the full hardware wiring — Engine,
// WallTimer and edge watcher all bound to one (fake) port — and checks
// both directions of it: the Engine samples the bus through the TTY,
// and a CTS wakeup delivered to the watcher reaches the Engine as a
// falling edge whose bit-engine response drives the port back.
func TestBindEngineWiring(t *testing.T) {
	port := newFakePort()
	tty := &TTY{port: port}
	store := backpack.NewMemStore(16, []byte{0x01, 0x02, 0x03, 0x04})
	// A generous watchdog window keeps the real-time WallTimer from
	// firing a reset mid-assertion.
	eng := bindEngine(tty, store, backpack.Config{ResetTicks: 10 * backpack.TickRate})
	defer close(port.waits)

	// Engine → TTY: a watchdog overflow with the wire held low is a bus
	// reset, observed through the TTY's CTS sampling.
	port.setCTS(false)
	eng.OnTimerOverflow()
	assert.Equal(t, backpack.StateReceiveAddress, eng.State())

	// TTY → Engine: the reset left the bit engine receiving, so the
	// next falling edge makes it release the line and schedule a
	// sample. Drive RTS first so the release is observable.
	tty.DriveLow()
	port.waits <- 0
	assert.Eventually(t, func() bool { return !port.rts() },
		time.Second, time.Millisecond,
		"the falling edge must reach the Engine and release the line")
}
