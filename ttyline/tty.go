// Package ttyline adapts a USB-serial adapter's RTS/CTS modem-control
// lines into the backpack.LineDriver and backpack.Timer interfaces, the
// way the teacher's serial package turns a raw tty fd into a Port: RTS
// asserted pulls the shared bus wire low, and CTS reflects the wire's
// instantaneous level. There is no interrupt line available from
// userspace, so edge detection is polled via TIOCMIWAIT instead.
package ttyline

import (
	"sync"
	"time"

	backpack "github.com/daedaluz/backpackbus"
)

// modemPort is the slice of Port the TTY adapter actually drives,
// split out so the edge-translation and sampling logic can be
// exercised against a fake port in tests.
type modemPort interface {
	EnableModemLines(ModemLine) error
	DisableModemLines(ModemLine) error
	GetModemLines() (ModemLine, error)
	WaitModemChange() (ModemLine, error)
	Close() error
}

// TTY is a backpack.LineDriver backed by a Port's RTS (drive) and CTS
// (sample) modem-control lines.
type TTY struct {
	port modemPort

	mu      sync.Mutex
	level   ModemLine // last known CTS state, valid once sampled is true
	sampled bool
}

// OpenTTY opens name as a raw-mode TTY and wraps it for bus bit-banging.
// RTS begins released (idle bus is high); the first Sample call blocks
// on the hardware just like any other.
func OpenTTY(name string) (*TTY, error) {
	port, err := Open(name, NewOptions())
	if err != nil {
		return nil, err
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		return nil, err
	}
	if err := port.DisableModemLines(TIOCM_RTS); err != nil {
		port.Close()
		return nil, err
	}
	return &TTY{port: port}, nil
}

func (t *TTY) DriveLow() {
	_ = t.port.EnableModemLines(TIOCM_RTS)
}

func (t *TTY) Release() {
	_ = t.port.DisableModemLines(TIOCM_RTS)
}

func (t *TTY) Sample() backpack.Level {
	lines, err := t.port.GetModemLines()
	if err != nil {
		t.mu.Lock()
		sampled := t.sampled
		last := t.level
		t.mu.Unlock()
		if sampled {
			return levelOf(last)
		}
		return backpack.LineHigh
	}
	t.mu.Lock()
	t.level = lines
	t.sampled = true
	t.mu.Unlock()
	return levelOf(lines)
}

func levelOf(lines ModemLine) backpack.Level {
	if lines&TIOCM_CTS != 0 {
		return backpack.LineHigh
	}
	return backpack.LineLow
}

// Close releases the underlying Port.
func (t *TTY) Close() error {
	return t.port.Close()
}

// watchEdges runs as a background goroutine for the lifetime of the
// TTY, translating TIOCMIWAIT wakeups on CTS into calls to onEdge
// (normally Engine.OnFallingEdge). It is started by NewHardwareEngine,
// not by OpenTTY, since only the caller knows which Engine to notify.
func (t *TTY) watchEdges(onEdge func()) {
	var wasLow bool
	for {
		lines, err := t.port.WaitModemChange()
		if err != nil {
			return
		}
		low := lines&TIOCM_CTS == 0
		if low && !wasLow {
			onEdge()
		}
		wasLow = low
	}
}

// NewHardwareEngine opens name, builds a backpack.Engine bound to it
// (both as LineDriver and, via a WallTimer, as Timer), and starts the
// background goroutine that feeds the Engine's falling edges from
// TIOCMIWAIT wakeups. This is the only supported way to stand up a
// hardware-backed Engine: Engine, TTY and WallTimer must all reference
// the same physical port, which piecing the three constructors together
// by hand would risk getting wrong.
func NewHardwareEngine(name string, store backpack.Store, cfg backpack.Config) (*backpack.Engine, *TTY, error) {
	t, err := OpenTTY(name)
	if err != nil {
		return nil, nil, err
	}
	return bindEngine(t, store, cfg), t, nil
}

// bindEngine does NewHardwareEngine's wiring against an already-open
// TTY: Engine, WallTimer and edge watcher all bound to the same port.
func bindEngine(t *TTY, store backpack.Store, cfg backpack.Config) *backpack.Engine {
	timer := NewWallTimer()
	eng := backpack.NewEngine(t, timer, store, cfg)
	timer.Bind(eng)
	go t.watchEdges(eng.OnFallingEdge)
	return eng
}

// SleepIdle parks the Engine's foreground loop briefly between Service
// calls. A hosted tty has no suspend instruction to issue; edge
// delivery keeps running in watchEdges regardless, so a short sleep is
// all "idle" means here.
func (t *TTY) SleepIdle() {
	time.Sleep(time.Millisecond)
}

// SleepDeep behaves identically to SleepIdle on a hosted tty: there is
// no lower-power state to drop into, only a coarser poll interval while
// waiting for the bus to go low again.
func (t *TTY) SleepDeep() {
	time.Sleep(5 * time.Millisecond)
}

func (t *TTY) WakeLevelTriggered() {}
func (t *TTY) WakeEdgeTriggered() {}
