// Package sim provides an in-process, virtual-time simulation of the
// backpack bus: an open-drain shared Wire any number of participants
// can drive, and a Bus/master driver that sequences whole byte and
// enumeration transfers against it. It exists so the engine's
// collision arbitration, framing and FSM can be exercised and tested
// without real hardware or real wall-clock timing, the way the
// teacher's pty_linux.go pairs two endpoints of one medium for
// loopback testing — generalized here to N participants and driven
// bit-by-bit instead of byte-stream-by-byte-stream.
package sim

import (
	"sync"

	backpack "github.com/daedaluz/backpackbus"
)

// Wire is a shared open-drain line: its level reads low whenever any
// registered participant is currently driving it low, high otherwise
// (the physical wired-AND behavior spec.md §4.2 relies on for
// collision detection).
type Wire struct {
	mu      sync.Mutex
	drivers map[int]bool
}

// NewWire creates an idle (released, high) Wire.
func NewWire() *Wire {
	return &Wire{drivers: make(map[int]bool)}
}

func (w *Wire) drive(id int, low bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if low {
		w.drivers[id] = true
	} else {
		delete(w.drivers, id)
	}
}

// Level reports the wire's instantaneous level.
func (w *Wire) Level() backpack.Level {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, low := range w.drivers {
		if low {
			return backpack.LineLow
		}
	}
	return backpack.LineHigh
}

// Line returns a backpack.LineDriver bound to participant id on this
// Wire. Sleep*/Wake* are no-ops: Bus drives every Engine synchronously,
// bit window by bit window, so there is never an idle goroutine for
// them to suspend or wake.
func (w *Wire) Line(id int) *Line {
	return &Line{wire: w, id: id}
}

// Line is one participant's view of a shared Wire.
type Line struct {
	wire *Wire
	id   int
}

func (l *Line) DriveLow() { l.wire.drive(l.id, true) }
func (l *Line) Release() { l.wire.drive(l.id, false) }
func (l *Line) Sample() backpack.Level { return l.wire.Level() }
func (l *Line) SleepIdle() {}
func (l *Line) SleepDeep() {}
func (l *Line) WakeLevelTriggered() {}
func (l *Line) WakeEdgeTriggered() {}
