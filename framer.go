package backpack

// framer.go implements the Ready/Ack1/Ack2/Nack1/Nack2 phases that
// close out every byte (spec.md §4.2, §4.3) — the most developed of the
// firmware's revisions, taken as authoritative per DESIGN.md. Ready
// samples a one-bit stall check; a non-stalled Ready resolves to a
// two-bit ACK (low, high) or NACK (high, low) chosen by the byte's
// current parity flag, and the second bit of that pair hands the frame
// back to whatever the Transaction FSM asked for next.

// armFramerBit handles the "on falling edge" column for Ready, Ack1,
// Ack2, Nack1 and Nack2.
func (e *Engine) armFramerBit() {
	switch e.action.Kind {
	case KindReady:
		e.line.Release()
		e.timer.ScheduleSample(e.cfg.SampleTicks)
	case KindAck1:
		e.armOrSettle(actionAck1, e.enterAck2)
	case KindAck2:
		e.armOrSettle(actionAck2, func() { e.finishByte() })
	case KindNack1:
		e.armOrSettle(actionNack1, e.enterNack2)
	case KindNack2:
		e.armOrSettle(actionNack2, func() { e.finishByte() })
	}
}

// armOrSettle performs variant's physical edge effect. If, after mute
// suppression, it needs no alarm at all, there is no future hardware
// event that would otherwise run its completion, so settle runs right
// away instead.
func (e *Engine) armOrSettle(variant Action, settle func()) {
	variant = variant.muted(e.flags.Has(FlagMute))
	e.action = variant
	switch {
	case variant.DriveLow:
		e.line.DriveLow()
		e.timer.ScheduleRelease(e.cfg.WriteTicks)
	case variant.Sample:
		e.line.Release()
		e.timer.ScheduleSample(e.cfg.SampleTicks)
	default:
		e.line.Release()
		settle()
	}
}

func (e *Engine) enterAck2() { e.action = actionAck2 }
func (e *Engine) enterNack2() { e.action = actionNack2 }

// framerSample handles ALARM_SAMPLE for Ready: the stall check.
func (e *Engine) framerSample() {
	if e.action.Kind != KindReady {
		return
	}
	if e.line.Sample() == LineLow {
		// Held low: remain stalled in Ready, the next real edge repeats
		// the stall check.
		return
	}
	if e.flags.Has(FlagParity) {
		e.action = actionAck1
	} else {
		e.action = actionNack1
	}
}

// framerReleaseComplete handles ALARM_RELEASE completion for Ack1 and
// Nack2, the two driven bits of the Ack/Nack pair.
func (e *Engine) framerReleaseComplete() {
	switch e.action.Kind {
	case KindAck1:
		e.enterAck2()
	case KindNack2:
		e.finishByte()
	}
}

// finishByte runs at the second bit of the Ack/Nack pair, clearing the
// per-byte parity state and handing control to whatever the Transaction
// FSM requested via flags before it set the engine back to Ready
// (spec.md §4.3's "reading the FSM-supplied directive").
func (e *Engine) finishByte() {
	e.flags &^= FlagParity
	e.nextBit = 0x80
	e.awaitingParity = false

	if e.flags.Has(FlagClearMuteAfterAck) {
		e.flags &^= FlagMute | FlagClearMuteAfterAck
	}

	switch {
	case e.flags.Has(FlagIdleAfterAck):
		e.flags &^= FlagIdleAfterAck
		e.byteBuf = 0
		e.action = actionIdle
		e.state = StateIdle
	case e.flags.Has(FlagSend):
		e.action = actionSend()
	default:
		e.byteBuf = 0
		e.action = actionReceive
	}
}
