package backpack

// bitengine.go implements the bit layer described in spec.md §4.2: data
// bit transmission/reception, the trailing parity bit, and collision
// detection during a checked Send. The Ready/Ack/Nack phases that follow
// a completed byte live in framer.go; this file only ever deals with
// ActionKind Send and Receive, plus handing off once a frame's 9 bits
// (8 data + 1 parity) are done.

// dispatchEdge runs once per real falling edge: it resolves what this
// bit period must physically do, and — when that requires no timer
// alarm at all — also performs that bit's completion bookkeeping
// immediately, since no alarm will ever fire to do it. It only ever
// looks one step ahead: the next action's own physical effect (drive,
// release, schedule) always waits for a genuine future event.
func (e *Engine) dispatchEdge() {
	switch e.action.Kind {
	case KindIdle:
		return
	case KindStall:
		// Stall persists until the foreground FSM clears it; reassert
		// the drive in case a spurious edge arrived while stalled.
		e.line.DriveLow()
		return
	case KindSend:
		e.armSendBit()
		return
	case KindReceive:
		e.line.Release()
		e.timer.ScheduleSample(e.cfg.SampleTicks)
		return
	}
	e.armFramerBit()
}

// dispatchSample runs when ALARM_SAMPLE fires mid-bit: either a Receive
// sampling a data/parity bit, a checked Send sampling for collision, or
// (handled in framer.go) a Ready phase sampling for a stall.
func (e *Engine) dispatchSample() {
	switch e.action.Kind {
	case KindReceive:
		e.completeReceiveBit()
	case KindSend:
		e.completeCheckedSendBit()
	default:
		e.framerSample()
	}
}

// dispatchReleaseComplete runs when ALARM_RELEASE fires mid-bit, after
// Engine.OnAlarmRelease has already released the line.
func (e *Engine) dispatchReleaseComplete() {
	switch e.action.Kind {
	case KindSend:
		e.completeLowSendBit()
	default:
		e.framerReleaseComplete()
	}
}

// currentBitHigh reports the value of the bit about to be sent: a data
// bit from byteBuf while nextBit is still a live mask, or — once all 8
// data bits are gone — whichever parity value forces the completed
// frame's running XOR to land on odd (spec.md §6's "odd parity"), i.e.
// the complement of the parity accumulated so far.
func (e *Engine) currentBitHigh() bool {
	if e.awaitingParity {
		return !e.flags.Has(FlagParity)
	}
	return e.byteBuf&e.nextBit != 0
}

// armSendBit decides, at the edge that starts this bit's period, which
// of the three Send variants applies, and performs its "on falling
// edge" effect.
func (e *Engine) armSendBit() {
	high := e.currentBitHigh()
	var variant Action
	switch {
	case !high:
		variant = actionSendLow
	case e.flags.Has(FlagCheckCollision):
		variant = actionSendHighCheckCollision
	default:
		variant = actionSendHigh
	}
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
		// Muted, or a plain high bit with nothing further to do this
		// window: release and settle immediately, there is no future
		// alarm that would otherwise do it.
		e.line.Release()
		e.advanceSendCursor()
	}
}

// completeLowSendBit finishes a driven-low Send bit once it has been
// released.
func (e *Engine) completeLowSendBit() {
	e.advanceSendCursor()
}

// completeCheckedSendBit finishes a collision-checked Send bit: a low
// reading means some other slave is still driving, so this slave lost
// arbitration and mutes itself until the next Ack/Nack boundary.
func (e *Engine) completeCheckedSendBit() {
	if e.line.Sample() == LineLow {
		e.flags |= FlagMute
	}
	e.advanceSendCursor()
}

// advanceSendCursor shifts the bit cursor, folds the just-sent bit into
// the running parity (data bits and the parity bit alike, so a correctly
// sent frame always ends with FlagParity set), and either moves on to the
// parity bit or hands the frame to the Ready phase.
func (e *Engine) advanceSendCursor() {
	if e.awaitingParity {
		if e.currentBitHigh() {
			e.flags ^= FlagParity
		}
		e.awaitingParity = false
		e.action = actionStall
		return
	}
	if e.currentBitHigh() {
		e.flags ^= FlagParity
	}
	e.nextBit >>= 1
	if e.nextBit == 0 {
		e.awaitingParity = true
	}
	e.action = actionSend() // generic: re-decided fresh at the next edge
}

// actionSend is the "not yet decided for this bit" Send sentinel.
func actionSend() Action { return Action{Kind: KindSend, MuteAware: true} }

// completeReceiveBit finishes a Receive bit: fold the sampled value into
// byte_buf (data bits) or check it against the running parity (the
// parity bit), and decide what follows.
func (e *Engine) completeReceiveBit() {
	high := e.line.Sample() == LineHigh
	if !e.awaitingParity {
		if high {
			e.byteBuf |= e.nextBit
			e.flags ^= FlagParity
		}
		e.nextBit >>= 1
		if e.nextBit == 0 {
			e.awaitingParity = true
		}
		e.action = actionReceive
		return
	}

	// This is the parity bit itself.
	if high {
		e.flags ^= FlagParity
	}
	e.awaitingParity = false
	if e.flags.Has(FlagParity) {
		// Odd parity checked out: hand the byte to the Transaction FSM.
		e.action = actionStall
		return
	}
	// Bad parity: NACK immediately, bypassing the FSM entirely.
	e.flags |= FlagIdleAfterAck
	e.action = actionReady
}
