package sim

import "sync"

// FakeTimer is a backpack.Timer whose alarms are armed and disarmed
// instantly and fired only when Bus's bit clock decides to, rather
// than via real time.AfterFunc callbacks. This is what lets an entire
// multi-round enumeration run in a handful of function calls instead
// of real microseconds, while still honoring the same arm/cancel
// contract a hardware Timer would.
type FakeTimer struct {
	mu           sync.Mutex
	sampleArmed  bool
	releaseArmed bool
}

// NewFakeTimer creates a Timer with no alarms armed.
func NewFakeTimer() *FakeTimer { return &FakeTimer{} }

func (t *FakeTimer) ScheduleRelease(uint32) {
	t.mu.Lock()
	t.releaseArmed = true
	t.mu.Unlock()
}

func (t *FakeTimer) ScheduleSample(uint32) {
	t.mu.Lock()
	t.sampleArmed = true
	t.mu.Unlock()
}

// ArmResetWatchdog is a no-op: Bus delivers OnTimerOverflow directly
// (Reset, IdleWatchdogTwice) rather than racing a real watchdog window,
// so there is no armed/disarmed state to track here.
func (t *FakeTimer) ArmResetWatchdog(uint32) {}

func (t *FakeTimer) CancelSample() {
	t.mu.Lock()
	t.sampleArmed = false
	t.mu.Unlock()
}

func (t *FakeTimer) CancelRelease() {
	t.mu.Lock()
	t.releaseArmed = false
	t.mu.Unlock()
}

// SampleArmed reports whether ScheduleSample has been called since the
// last CancelSample/OnAlarmSample delivery.
func (t *FakeTimer) SampleArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampleArmed
}

// ReleaseArmed reports whether ScheduleRelease has been called since
// the last CancelRelease/OnAlarmRelease delivery.
func (t *FakeTimer) ReleaseArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.releaseArmed
}
