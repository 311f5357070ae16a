// Package backpack implements the slave-side protocol engine for a
// single-wire, master-arbitrated bus used to enumerate, identify and
// exchange small payloads with resource-constrained peripheral nodes.
//
// The Engine owns two cooperating state machines: a bit-layer engine
// that samples and drives the wire one bit at a time (bitengine.go,
// framer.go) and a byte/transaction-layer state machine that sequences
// bus reset, addressing, enumeration and EEPROM-style read/write
// commands (fsm.go). Physical line control and persistent storage are
// supplied by the caller through the LineDriver and Store interfaces;
// the Engine never touches hardware or a filesystem directly.
package backpack

import "sync"

// Config carries construction-time parameters for an Engine.
type Config struct {
	// ResetTicks, SampleTicks and WriteTicks override the reference
	// timing constants (protocol.go) in units of Timer ticks. Zero
	// means "use the reference default".
	ResetTicks  uint32
	SampleTicks uint32
	WriteTicks  uint32
}

func (c Config) withDefaults() Config {
	if c.ResetTicks == 0 {
		c.ResetTicks = ResetSampleTicks
	}
	if c.SampleTicks == 0 {
		c.SampleTicks = DataSampleTicks
	}
	if c.WriteTicks == 0 {
		c.WriteTicks = DataWriteTicks
	}
	return c
}

// Engine is a single slave's protocol state, as described in spec.md §3.
// All exported On*/Service methods are safe to call concurrently; they
// serialize through a single mutex, modeling the reference firmware's
// single-threaded interrupt + foreground-loop concurrency model (spec.md
// §5) in a way that is idiomatic for a hosted Go program instead of a
// register-starved microcontroller.
type Engine struct {
	mu sync.Mutex

	line  LineDriver
	timer Timer
	store Store
	cfg   Config

	flags  Flags
	action Action
	state  State

	byteBuf        byte
	nextBit        byte // one-hot MSB-first cursor; 0 once all 8 data bits are done
	awaitingParity bool // true while the 9th (parity) bit of the frame is in flight

	busAddr  byte
	nextByte uint8

	deepAsleep bool
}

// NewEngine creates a slave Engine bound to the given collaborators. The
// Store's addressable range must be at least IDOffset+IDSize bytes.
func NewEngine(line LineDriver, timer Timer, store Store, cfg Config) *Engine {
	e := &Engine{
		line:  line,
		timer: timer,
		store: store,
		cfg:   cfg.withDefaults(),
	}
	e.powerOnReset()
	return e
}

// powerOnReset establishes the initial state described in spec.md §3:
// unassigned address, every flag clear, idle action and state.
func (e *Engine) powerOnReset() {
	e.busAddr = UnassignedAddress
	e.flags = 0
	e.action = actionIdle
	e.state = StateIdle
	e.byteBuf = 0
	e.nextBit = 0x80
	e.awaitingParity = false
}

// State exposes the current transaction state for inspection (tests,
// the simulator's logging). Not part of the wire protocol.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// BusAddr returns the slave's currently assigned address. It is only
// meaningful once Enumerated reports true.
func (e *Engine) BusAddr() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busAddr
}

// Enumerated reports whether the slave currently holds a valid address.
func (e *Engine) Enumerated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags.Has(FlagEnumerated)
}

// Flags exposes the current flag word, for tests and diagnostics.
func (e *Engine) Flags() Flags {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags
}

// Service runs the foreground loop body once (spec.md §4.4/§5): if a
// byte is waiting (Action==Stall), the Transaction FSM processes it;
// otherwise the engine asks its LineDriver to sleep. The check-and-sleep
// step happens while still holding the engine's mutex, which plays the
// role of the reference firmware's "disable interrupts, check, sleep"
// atomic dance — no OnFallingEdge call can slip in and set Stall between
// the check and the sleep request.
func (e *Engine) Service() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.action.Kind == KindStall {
		e.runForeground()
		return
	}
	if e.deepAsleep {
		e.line.SleepDeep()
		return
	}
	e.line.SleepIdle()
}

// OnFallingEdge is delivered once per master-driven falling edge. It
// re-seeds the reset watchdog (spec.md §4.1's "handler may preload the
// counter") and then dispatches the bit engine for the bit period that
// is now starting.
func (e *Engine) OnFallingEdge() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deepAsleep = false
	e.line.WakeEdgeTriggered()
	e.timer.ArmResetWatchdog(e.cfg.ResetTicks)
	e.dispatchEdge()
}

// OnAlarmSample is delivered when the Timer's ALARM_SAMPLE fires.
func (e *Engine) OnAlarmSample() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timer.CancelSample()
	e.dispatchSample()
}

// OnAlarmRelease is delivered when the Timer's ALARM_RELEASE fires.
func (e *Engine) OnAlarmRelease() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timer.CancelRelease()
	e.line.Release()
	e.dispatchReleaseComplete()
}

// OnTimerOverflow is delivered when the reset watchdog fires, i.e. no
// falling edge occurred for cfg.ResetTicks after the last one
// (spec.md §4.5).
func (e *Engine) OnTimerOverflow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handleWatchdog()
}
