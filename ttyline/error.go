package ttyline

import "syscall"

// Error wraps a syscall/ioctl failure with the operation that triggered
// it, the way the teacher's serial.Error does for its own tty ioctls.
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
	return Error{
		msg: msg,
		err: e,
	}
}

// ErrClosed is returned by any Port operation after Close.
var ErrClosed = Error{"port already closed", syscall.EBADF}
