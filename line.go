package backpack

// Level is an instantaneous read of the shared wire.
type Level bool

const (
	LineLow  Level = false
	LineHigh Level = true
)

// LineDriver is the hardware (or simulated) collaborator described in
// spec.md §4.1. It is deliberately out of scope for the protocol engine
// itself: the Engine only ever calls these seven operations, never reaches
// for a GPIO register directly.
type LineDriver interface {
	// DriveLow pulls the shared line low. Idempotent.
	DriveLow()

	// Release stops driving the line (high-impedance input). Idempotent
	// and safe to call from a release-alarm callback even if nothing is
	// currently being driven.
	Release()

	// Sample reads the line's instantaneous level.
	Sample() Level

	// SleepIdle suspends until the next falling edge. Requires an
	// edge-triggered wake source.
	SleepIdle()

	// SleepDeep suspends until the line goes low. Requires a
	// level-triggered wake source; the caller is responsible for
	// switching the wake trigger mode before calling this (Engine does
	// so via WakeEdgeTriggered/WakeLevelTriggered below).
	SleepDeep()

	// WakeLevelTriggered arms the wake interrupt to fire on a low
	// level, ahead of entering SleepDeep.
	WakeLevelTriggered()

	// WakeEdgeTriggered restores edge-triggered wake, done on leaving
	// deep sleep or whenever normal bit reception resumes.
	WakeEdgeTriggered()
}

// AlarmKind distinguishes the Timer's two independent one-shot alarms.
type AlarmKind int

const (
	AlarmRelease AlarmKind = iota
	AlarmSample
)

// Timer models the free-running counter with two one-shot compare
// outputs and an overflow event described in spec.md §4.1. Ticks are in
// units of TickRate (protocol.go).
//
// Ordering guarantee, preserved by every Timer implementation: if both
// alarms are scheduled within one bit window, AlarmSample fires before
// AlarmRelease (DataSampleTicks < DataWriteTicks, protocol.go), and the
// overflow (if it fires at all this window) fires after both. A checked
// Send's collision sample must observe a competing driver before that
// driver releases, so sample-before-release is load-bearing, not
// incidental — see DESIGN.md.
type Timer interface {
	// ScheduleRelease arms AlarmRelease to fire `ticks` after the
	// current falling edge.
	ScheduleRelease(ticks uint32)

	// ScheduleSample arms AlarmSample to fire `ticks` after the current
	// falling edge.
	ScheduleSample(ticks uint32)

	// ArmResetWatchdog (re)seeds the overflow alarm to fire `ticks`
	// after the current falling edge, unless a new edge arrives first.
	// The falling-edge handler calls this on every edge; only the
	// absence of a subsequent edge lets it actually fire.
	ArmResetWatchdog(ticks uint32)

	// CancelSample / CancelRelease disarm a still-pending alarm, used
	// once the bit window's decision no longer needs it.
	CancelSample()
	CancelRelease()
}
