package backpack

// Error wraps an inner error with an optional message, the way the
// teacher's serial.Error does for ioctl/syscall failures. Here it wraps
// the slave's own system-boundary failures: a Store access outside its
// addressable range, or a FileStore open/read/write failure.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		msg := e.msg
		if e.err != nil {
			msg += ": " + e.err.Error()
		}
		return msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

func wrapErr(msg string, e error) error {
	if e == nil {
		return nil
	}
	return Error{msg: msg, err: e}
}

// ErrOffsetOutOfRange is returned by a Store implementation when a read
// or write targets an offset past its addressable end. The Transaction
// FSM turns this into a NACK rather than propagating it (spec.md §8
// documents this as the slave's boundary behavior for an out-of-range
// read).
var ErrOffsetOutOfRange = Error{msg: "store: offset out of range"}
