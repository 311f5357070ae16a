package backpack

// State is the transaction layer's current high-level state (spec.md §3).
type State int

const (
	StateIdle State = iota
	StateReceiveAddress
	StateEnumerate
	StateReceiveCommand
	StateReadEepromReceiveAddr
	StateReadEepromSendData
	StateWriteEepromReceiveAddr
	StateWriteEepromReceiveData
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateReceiveAddress:
		return "ReceiveAddress"
	case StateEnumerate:
		return "Enumerate"
	case StateReceiveCommand:
		return "ReceiveCommand"
	case StateReadEepromReceiveAddr:
		return "ReadEepromReceiveAddr"
	case StateReadEepromSendData:
		return "ReadEepromSendData"
	case StateWriteEepromReceiveAddr:
		return "WriteEepromReceiveAddr"
	case StateWriteEepromReceiveData:
		return "WriteEepromReceiveData"
	default:
		return "Unknown"
	}
}
