package backpack

// fsm.go implements the Transaction FSM (spec.md §4.4): the foreground
// half of the engine, invoked only when the bit engine has stalled
// after receiving or sending a full, parity-good byte. It inspects
// byte_buf, updates state/flags/Store, and always leaves the engine
// either back in the Ready phase (to ack the byte just processed and
// chain into whatever comes next) or, for a handful of terminal cases,
// directly in Idle.
//
// Only runForeground touches Store; the bit engine never does, which is
// why Store writes are allowed to block (spec.md §4.1).

// runForeground is called with the engine mutex held and
// e.action.Kind == KindStall. It must leave e.action set to something
// other than KindStall before returning.
func (e *Engine) runForeground() {
	switch e.state {
	case StateReceiveAddress:
		e.fsmReceiveAddress()
	case StateEnumerate:
		e.fsmEnumerate()
	case StateReceiveCommand:
		e.fsmReceiveCommand()
	case StateReadEepromReceiveAddr:
		e.fsmReadEepromReceiveAddr()
	case StateReadEepromSendData:
		e.fsmReadEepromSendData()
	case StateWriteEepromReceiveAddr:
		e.fsmWriteEepromReceiveAddr()
	case StateWriteEepromReceiveData:
		e.fsmWriteEepromReceiveData()
	default:
		// Nothing should reach Stall in StateIdle; recover defensively
		// rather than leave the bit engine wedged.
		e.action = actionIdle
	}
}

// fsmReceiveAddress runs immediately after a bus reset, on the first
// good-parity byte received. A BroadcastEnumerate address begins
// enumeration for every still-unmuted slave; a match against this
// slave's own address moves on to command reception; anything else
// drops this slave straight to Idle with no handshake at all, per
// spec.md §4.4 ("Action ← Idle (drop off the bus until next reset)") —
// an unaddressed slave must stay silent, not join in acking a byte that
// wasn't meant for it.
func (e *Engine) fsmReceiveAddress() {
	addr := e.byteBuf
	switch {
	case addr == BroadcastEnumerate:
		e.beginEnumerate()
	case e.flags.Has(FlagEnumerated) && addr == e.busAddr:
		e.state = StateReceiveCommand
		e.flags &^= FlagSend
		e.action = actionReady
	default:
		e.action = actionIdle
	}
}

// beginEnumerate sets up ID transmission: every participating slave now
// streams its own ID, most significant byte first, with collision
// checking enabled so the lowest ID wins arbitration (spec.md §4.4).
// Enumerated is cleared — a broadcast re-enumerates the whole bus — and
// busAddr restarts at FirstValidAddress, advancing one round per losing
// slave, so the slave left unmuted at the end of a round claims whatever
// address that round reached. The firmware stayed stalled here and let
// the next foreground iteration load the first ID byte; calling
// fsmEnumerate directly is the same thing without the extra loop trip.
func (e *Engine) beginEnumerate() {
	e.state = StateEnumerate
	e.nextByte = IDOffset
	e.busAddr = FirstValidAddress
	e.flags &^= FlagEnumerated
	e.flags |= FlagCheckCollision | FlagSend
	e.fsmEnumerate()
}

// fsmEnumerate runs once per ID byte sent, each byte closed out by a
// normal Ready/Ack pair (which also acks the byte that got us into this
// round). Once a full ID has gone out, a still-muted slave lost this
// round: it re-arms for the next round at the next candidate address,
// with FlagClearMuteAfterAck deferring the unmute to the ack boundary so
// it stays silent while the winner acks. An unmuted slave has won: it
// claims the address it is currently holding and drops off the bus after
// one final acked byte, staying silent until the next reset.
func (e *Engine) fsmEnumerate() {
	if e.nextByte == IDOffset+IDSize {
		if e.flags.Has(FlagMute) {
			e.nextByte = IDOffset
			e.busAddr++
			e.flags |= FlagClearMuteAfterAck
		} else {
			e.flags &^= FlagCheckCollision
			e.flags |= FlagIdleAfterAck | FlagEnumerated
			e.state = StateIdle
			e.action = actionReady
			return
		}
	}
	// spec.md §9: the source's fallthrough from Enumerate into
	// ReadEepromSendData is reimplemented as this explicit shared
	// helper instead.
	e.loadNextIDOrStoreByte()
}

// loadNextIDOrStoreByte loads Store[nextByte] into byte_buf, advances
// the byte cursor, and arms the Ready phase that acks the byte just
// completed before the loaded one goes out. A muted slave that is not
// about to unmute skips the Store read: it already lost this round and
// only consumes the wire, so byte_buf keeps its previous content, which
// the MuteAware send variants never drive. The cursor still advances
// either way, keeping the loser byte-synced with the round.
func (e *Engine) loadNextIDOrStoreByte() {
	if !e.flags.Has(FlagMute) || e.flags.Has(FlagClearMuteAfterAck) {
		if b, err := e.store.ReadByte(e.nextByte); err == nil {
			e.byteBuf = b
		}
	}
	e.nextByte++
	e.action = actionReady
}

// fsmReceiveCommand dispatches the command byte addressed to this slave.
// An unrecognized command goes straight to Idle with no ACK or NACK at
// all (spec.md §4.4, §7: "the master sees NO_ACK_OR_NACK").
func (e *Engine) fsmReceiveCommand() {
	switch e.byteBuf {
	case CmdReadEeprom:
		e.state = StateReadEepromReceiveAddr
		e.flags &^= FlagSend
		e.action = actionReady
	case CmdWriteEeprom:
		e.state = StateWriteEepromReceiveAddr
		e.flags &^= FlagSend
		e.action = actionReady
	default:
		e.action = actionIdle
	}
}

// fsmReadEepromReceiveAddr stores the requested start offset and begins
// streaming Store bytes back, starting immediately with the first one
// (the firmware's stay-stalled trick again, expressed as a direct call).
func (e *Engine) fsmReadEepromReceiveAddr() {
	e.nextByte = e.byteBuf
	e.state = StateReadEepromSendData
	e.flags |= FlagSend
	if e.nextByte >= e.store.Size() {
		// The offset itself is past the Store's end: NACK it outright
		// (spec.md §8's "implementation-defined NACK" for an
		// out-of-range read) instead of wrapping around.
		e.flags &^= FlagParity
		e.flags |= FlagIdleAfterAck
		e.action = actionReady
		return
	}
	e.loadNextIDOrStoreByte()
}

// fsmReadEepromSendData runs once per streamed byte: load the next one
// and keep streaming. Once the stream has delivered the Store's last
// byte there is nothing left to prefetch, so that byte is acked
// normally and the slave drops off the bus; a master that clocks
// further reads anyway sees no response at all until the next reset.
func (e *Engine) fsmReadEepromSendData() {
	if e.nextByte >= e.store.Size() {
		e.flags |= FlagIdleAfterAck
		e.action = actionReady
		return
	}
	e.loadNextIDOrStoreByte()
}

// fsmWriteEepromReceiveAddr stores the requested start offset and moves
// on to receiving the data bytes to write there.
func (e *Engine) fsmWriteEepromReceiveAddr() {
	e.nextByte = e.byteBuf
	e.state = StateWriteEepromReceiveData
	e.flags &^= FlagSend
	e.action = actionReady
}

// fsmWriteEepromReceiveData commits each received byte to the Store and
// keeps receiving. A write into the immutable ID range is silently
// refused but still ACKed — the byte was received fine, it simply isn't
// persisted (spec.md §3). A write past the Store's end is a genuine
// boundary error and NACKs instead.
func (e *Engine) fsmWriteEepromReceiveData() {
	offset := e.nextByte
	value := e.byteBuf
	if offset >= e.store.Size() {
		e.flags &^= FlagParity
		e.flags |= FlagIdleAfterAck
		e.action = actionReady
		return
	}
	inIDRange := offset >= IDOffset && offset < IDOffset+IDSize
	if !inIDRange {
		if err := e.store.WriteByte(offset, value); err != nil {
			e.flags &^= FlagParity
			e.flags |= FlagIdleAfterAck
			e.action = actionReady
			return
		}
	}
	e.nextByte++
	e.action = actionReady
}
