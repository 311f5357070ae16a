package ttyline

import (
	"sync"
	"time"

	backpack "github.com/daedaluz/backpackbus"
)

// WallTimer implements backpack.Timer over time.AfterFunc, converting
// tick counts to wall-clock durations via backpack.TickRate. Each alarm
// is independently cancellable, matching the hardware compare-register
// semantics the Engine expects: arming one alarm never disturbs another.
//
// A Timer is a required constructor argument to backpack.NewEngine, but
// its callbacks are the very Engine methods NewEngine returns — there is
// no value of *backpack.Engine to close over until after construction.
// NewWallTimer defers that wiring to Bind, called once the Engine it
// belongs to exists (see NewHardwareEngine).
type WallTimer struct {
	mu sync.Mutex

	release  *time.Timer
	sample   *time.Timer
	watchdog *time.Timer

	onRelease  func()
	onSample   func()
	onOverflow func()
}

// NewWallTimer creates a Timer with no alarms armed and no callbacks
// bound. Bind must be called before any Schedule*/Arm* method fires an
// alarm for the first time.
func NewWallTimer() *WallTimer {
	return &WallTimer{}
}

// Bind attaches the Engine this Timer drives. Must be called exactly
// once, before the Engine it was constructed with ever calls a
// Schedule*/Arm* method.
func (w *WallTimer) Bind(eng *backpack.Engine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRelease = eng.OnAlarmRelease
	w.onSample = eng.OnAlarmSample
	w.onOverflow = eng.OnTimerOverflow
}

func ticksToDuration(ticks uint32) time.Duration {
	return time.Duration(ticks) * time.Second / backpack.TickRate
}

func (w *WallTimer) ScheduleRelease(ticks uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.release != nil {
		w.release.Stop()
	}
	w.release = time.AfterFunc(ticksToDuration(ticks), w.onRelease)
}

func (w *WallTimer) ScheduleSample(ticks uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sample != nil {
		w.sample.Stop()
	}
	w.sample = time.AfterFunc(ticksToDuration(ticks), w.onSample)
}

// ArmResetWatchdog re-seeds the overflow alarm on every falling edge, so
// it only ever actually fires once no edge has arrived for the full
// watchdog window.
func (w *WallTimer) ArmResetWatchdog(ticks uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchdog != nil {
		w.watchdog.Stop()
	}
	w.watchdog = time.AfterFunc(ticksToDuration(ticks), w.onOverflow)
}

func (w *WallTimer) CancelSample() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sample != nil {
		w.sample.Stop()
		w.sample = nil
	}
}

func (w *WallTimer) CancelRelease() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.release != nil {
		w.release.Stop()
		w.release = nil
	}
}
