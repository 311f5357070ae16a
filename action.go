package backpack

// ActionKind is the primary action the Bit Engine is performing for the
// current bit window. spec.md §3 specifies Action as a tagged value
// combining a kind with independent flags; the original firmware packed
// those flags into the same byte as the kind (an optimization, not a
// semantic — see spec.md §9). Action below keeps the kind and its flags
// as separate fields instead.
type ActionKind int

const (
	KindIdle ActionKind = iota
	KindSend
	KindReceive
	KindAck1
	KindAck2
	KindNack1
	KindNack2
	KindReady
	KindStall
)

func (k ActionKind) String() string {
	switch k {
	case KindIdle:
		return "Idle"
	case KindSend:
		return "Send"
	case KindReceive:
		return "Receive"
	case KindAck1:
		return "Ack1"
	case KindAck2:
		return "Ack2"
	case KindNack1:
		return "Nack1"
	case KindNack2:
		return "Nack2"
	case KindReady:
		return "Ready"
	case KindStall:
		return "Stall"
	default:
		return "Unknown"
	}
}

// Action is exactly one live value at a time; transitions happen only at
// bit boundaries or, when Kind is KindStall, from the foreground FSM.
type Action struct {
	Kind ActionKind

	// DriveLow means this phase pulls the line low for the bit period.
	DriveLow bool

	// Sample means this phase samples the line at ALARM_SAMPLE.
	Sample bool

	// CheckCollision means a high-bit Send phase must also sample, and
	// treat a low reading as a lost arbitration (sets FlagMute).
	CheckCollision bool

	// MuteAware means this action must neither drive nor sample while
	// FlagMute is set (spec.md §4.2 mute discipline). Receive and Ready
	// are never mute-aware: a muted slave still tracks the frame.
	MuteAware bool
}

var (
	actionIdle  = Action{Kind: KindIdle}
	actionStall = Action{Kind: KindStall, DriveLow: true}
	actionReady = Action{Kind: KindReady, Sample: true}

	actionReceive = Action{Kind: KindReceive, Sample: true}

	actionSendHigh               = Action{Kind: KindSend, MuteAware: true}
	actionSendLow                = Action{Kind: KindSend, DriveLow: true, MuteAware: true}
	actionSendHighCheckCollision = Action{Kind: KindSend, Sample: true, CheckCollision: true, MuteAware: true}

	actionAck1  = Action{Kind: KindAck1, DriveLow: true, MuteAware: true}
	actionAck2  = Action{Kind: KindAck2, MuteAware: true}
	actionNack1 = Action{Kind: KindNack1, MuteAware: true}
	actionNack2 = Action{Kind: KindNack2, DriveLow: true, MuteAware: true}
)

// muted returns a copy of a with DriveLow/Sample suppressed if it is
// mute-aware and the engine is currently muted, per spec.md §4.2.
func (a Action) muted(isMuted bool) Action {
	if !a.MuteAware || !isMuted {
		return a
	}
	a.DriveLow = false
	a.Sample = false
	a.CheckCollision = false
	return a
}
