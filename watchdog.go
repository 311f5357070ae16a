package backpack

// watchdog.go implements the power/reset watchdog described in spec.md
// §4.5: the Timer's reset-watchdog alarm fires RESET_SAMPLE ticks after
// the last falling edge unless a new edge re-armed it first (engine.go's
// OnFallingEdge does that re-arming). Whether this is a bus reset or a
// quiescent bus depends only on the line's level at the moment it fires.

// handleWatchdog runs when OnTimerOverflow delivers the reset-watchdog
// alarm. A line still low this long after the last edge is a bus reset;
// a line that has gone high means the bus has gone idle and the slave
// should drop to its lowest power state until the next low level wakes
// it.
func (e *Engine) handleWatchdog() {
	if e.line.Sample() == LineLow {
		e.resetLocked()
		return
	}
	e.line.WakeLevelTriggered()
	e.deepAsleep = true
}

// resetLocked performs the bus reset spec.md §4.5 mandates: the
// in-flight frame is dropped unconditionally and every flag except
// ENUMERATED is cleared, so a slave that was already addressed keeps its
// bus address across the reset but loses all partial-transaction state.
// Called with e.mu already held.
func (e *Engine) resetLocked() {
	e.flags = e.flags.resetFlags()
	e.state = StateReceiveAddress
	e.action = actionReceive
	e.byteBuf = 0
	e.nextBit = 0x80
	e.awaitingParity = false
	e.deepAsleep = false
}
