package ttyline

// ioctl constants trimmed from the teacher's full termios ioctl table
// down to the ones port_linux.go actually issues: getting/setting termios
// attributes and getting/setting/waiting-on modem control lines.

var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)

	tiocmget = uintptr(0x5415) // get status
	tiocmbis = uintptr(0x5416) // set indicated bits
	tiocmbic = uintptr(0x5417) // clear indicated bits
	tiocmset = uintptr(0x5418) // set status

	// tiocmiwait blocks the calling thread until one of the modem lines
	// named in its argument bitmask changes state. There is no portable
	// POSIX equivalent; this is Linux-specific, matching the build tag
	// on this file.
	tiocmiwait = uintptr(0x545C)
)
