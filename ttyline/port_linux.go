package ttyline

// port_linux.go is a trimmed, repurposed copy of the teacher's own
// termios/ioctl tty driver (port_linux.go in the teacher repo): raw-mode
// setup and modem-control-line access survive because ttyline.TTY needs
// exactly those two things to bit-bang a single-wire bus over a serial
// port's RTS/CTS pins. Baud-rate/RS485/break/flow-control plumbing the
// teacher carries for general serial use has no role here and is not
// reproduced (see DESIGN.md).

import (
	"fmt"
	ioctl "github.com/daedaluz/goioctl"
	"strings"
	"sync/atomic"
	"syscall"
	"unsafe"
)

type Termios struct {
	Iflag IFlag      /* input mode flags */
	Oflag OFlag      /* output mode flags */
	Cflag CFlag      /* control mode flags */
	Lflag LFlag      /* local mode flags */
	Line  Discipline /* line discipline */
	Cc    [19]byte   /* control characters */
}

type IFlag uint32

// Input flags
const (
	IGNBRK = IFlag(0000001)
	BRKINT = IFlag(0000002)
	IGNPAR = IFlag(0000004)
	PARMRK = IFlag(0000010)
	INPCK  = IFlag(0000020)
	ISTRIP = IFlag(0000040)
	INLCR  = IFlag(0000100)
	IGNCR  = IFlag(0000200)
	ICRNL  = IFlag(0000400)
	IXON   = IFlag(0002000)
)

type OFlag uint32

// Output flags
const (
	OPOST = OFlag(0000001)
)

type CFlag uint32

// Control flags
const (
	CBAUD  = CFlag(0010017)
	B0     = CFlag(0000000)
	B1200  = CFlag(0000011)
	B2400  = CFlag(0000013)
	B4800  = CFlag(0000014)
	B9600  = CFlag(0000015)
	B19200 = CFlag(0000016)
	B38400 = CFlag(0000017)

	CSIZE = CFlag(0000060)
	CS5   = CFlag(0000000)
	CS6   = CFlag(0000020)
	CS7   = CFlag(0000040)
	CS8   = CFlag(0000060)

	CSTOPB = CFlag(0000100)
	CREAD  = CFlag(0000200)
	PARENB = CFlag(0000400)
	PARODD = CFlag(0001000)
	HUPCL  = CFlag(0002000)
	CLOCAL = CFlag(0004000)

	// CRTSCTS (not in POSIX) Enable RTS/CTS (hardware) flow control.
	// ttyline always leaves this unset: it drives RTS/CTS itself as the
	// bus's pull-low/sample signals, not as UART flow control.
	CRTSCTS = CFlag(020000000000)
)

type LFlag uint32

// Line flags
const (
	ISIG   = LFlag(0000001)
	ICANON = LFlag(0000002)
	ECHO   = LFlag(0000010)
	ECHONL = LFlag(0000100)
	IEXTEN = LFlag(0100000)
)

type Action int

const (
	// TCSANOW the change occurs immediately.
	TCSANOW = Action(iota)
	TCSADRAIN
	TCSAFLUSH
)

// ModemLine is a bit-set of RS-232 modem control/status signals.
type ModemLine int

const (
	TIOCM_LE  = ModemLine(0x001)
	TIOCM_DTR = ModemLine(0x002)
	// TIOCM_RTS (request to send) is the bus's drive-low output in the
	// ttyline wiring: asserted RTS pulls the shared wire low.
	TIOCM_RTS = ModemLine(0x004)
	TIOCM_ST  = ModemLine(0x008)
	TIOCM_SR  = ModemLine(0x010)
	// TIOCM_CTS (clear to send) is the bus's sample input: the wire
	// reads high exactly when CTS is asserted.
	TIOCM_CTS  = ModemLine(0x020)
	TIOCM_CAR  = ModemLine(0x040)
	TIOCM_CD   = TIOCM_CAR
	TIOCM_RNG  = ModemLine(0x080)
	TIOCM_RI   = TIOCM_RNG
	TIOCM_DSR  = ModemLine(0x100)
	TIOCM_OUT1 = ModemLine(0x2000)
	TIOCM_OUT2 = ModemLine(0x4000)
	TIOCM_LOOP = ModemLine(0x8000)
)

func (m ModemLine) String() string {
	flags := make([]string, 0, len(modemLineStrings))
	for i := 1; i <= int(TIOCM_LOOP); i <<= 1 {
		if int(m)&i > 0 {
			if flag, ok := modemLineStrings[ModemLine(i)]; ok {
				flags = append(flags, flag)
			} else {
				flags = append(flags, fmt.Sprintf("Unknown(%x)", i))
			}
		}
	}
	return fmt.Sprintf("[%s]", strings.Join(flags, "|"))
}

var modemLineStrings = map[ModemLine]string{
	TIOCM_LE:   "LE",
	TIOCM_DTR:  "DTR",
	TIOCM_RTS:  "RTS",
	TIOCM_ST:   "ST",
	TIOCM_SR:   "SR",
	TIOCM_CTS:  "CTS",
	TIOCM_CAR:  "CAR",
	TIOCM_RNG:  "RNG",
	TIOCM_DSR:  "DSR",
	TIOCM_OUT1: "OUT1",
	TIOCM_OUT2: "OUT2",
	TIOCM_LOOP: "LOOP",
}

type Discipline byte

const (
	N_TTY = Discipline(iota)
)

type Options struct {
	OpenMode int
}

func NewOptions() *Options {
	return &Options{OpenMode: syscall.O_RDWR | syscall.O_NOCTTY}
}

// Port is a raw-mode tty file descriptor, trimmed to the operations
// ttyline.TTY needs: opening the device, putting it in raw mode, and
// reading/setting its modem-control lines. The tty's byte-stream data
// path is deliberately absent: the bus never travels over TX/RX, only
// over RTS/CTS.
type Port struct {
	closed atomic.Bool
	f      int
}

func Open(name string, opts *Options) (*Port, error) {
	if opts == nil {
		opts = NewOptions()
	}
	fd, err := syscall.Open(name, opts.OpenMode, 0)
	if err != nil {
		return nil, wrapErr("open", err)
	}
	return &Port{
		f: fd,
	}, nil
}

func (p *Port) Close() error {
	if !p.closed.Swap(true) {
		fd := p.f
		p.f = -1
		return syscall.Close(fd)
	}
	return ErrClosed
}

func (p *Port) GetAttr() (*Termios, error) {
	attrs := &Termios{}
	err := ioctl.Ioctl(uintptr(p.f), tcgets, uintptr(unsafe.Pointer(attrs)))
	if err != nil {
		return nil, wrapErr("get attr", err)
	}
	return attrs, nil
}

func (p *Port) SetAttr(when Action, attrs *Termios) error {
	return wrapErr("set attr", ioctl.Ioctl(uintptr(p.f), tcsets+uintptr(when), uintptr(unsafe.Pointer(attrs))))
}

// MakeRaw sets the Port to a "raw" mode: no line discipline processing,
// no echo, 8 data bits. ttyline never actually transfers byte payloads
// over the tty's TX/RX path, but raw mode also suppresses any line
// driver interference with the modem-control lines this package does use.
func (p *Port) MakeRaw() error {
	attrs, err := p.GetAttr()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	return p.SetAttr(TCSANOW, attrs)
}

// SetModemLines sets the status of modem bits.
func (p *Port) SetModemLines(line ModemLine) error {
	return wrapErr("set modem lines", ioctl.Ioctl(uintptr(p.f), tiocmset, uintptr(unsafe.Pointer(&line))))
}

// GetModemLines gets the status of modem bits.
func (p *Port) GetModemLines() (ModemLine, error) {
	var line ModemLine
	err := ioctl.Ioctl(uintptr(p.f), tiocmget, uintptr(unsafe.Pointer(&line)))
	if err != nil {
		return 0, wrapErr("get modem lines", err)
	}
	return line, nil
}

// EnableModemLines sets the indicated modem bits.
func (p *Port) EnableModemLines(line ModemLine) error {
	return wrapErr("enable modem lines", ioctl.Ioctl(uintptr(p.f), tiocmbis, uintptr(unsafe.Pointer(&line))))
}

// DisableModemLines clears the indicated modem bits.
func (p *Port) DisableModemLines(line ModemLine) error {
	return wrapErr("disable modem lines", ioctl.Ioctl(uintptr(p.f), tiocmbic, uintptr(unsafe.Pointer(&line))))
}

// WaitModemChange blocks until the CTS line changes state, then
// returns the new modem status. This is ttyline's only source of
// falling-edge notification: there is no interrupt line on a
// USB-serial adapter, so TIOCMIWAIT — which blocks in the kernel until
// a signal transition occurs — is the closest real equivalent to the
// reference firmware's edge interrupt.
func (p *Port) WaitModemChange() (ModemLine, error) {
	if err := ioctl.Ioctl(uintptr(p.f), tiocmiwait, uintptr(TIOCM_CTS)); err != nil {
		return 0, wrapErr("wait modem change", err)
	}
	return p.GetModemLines()
}

func (attrs *Termios) MakeRaw() {
	attrs.Iflag &= ^(IGNBRK | BRKINT | PARMRK | ISTRIP | INLCR | IGNCR | ICRNL | IXON)
	attrs.Oflag &= ^(OPOST)
	attrs.Lflag &= ^(ECHO | ECHONL | ICANON | ISIG | IEXTEN)
	attrs.Cflag &= ^(CSIZE | PARENB)
	attrs.Cflag |= CS8
}

func (attrs *Termios) SetSpeed(speed CFlag) {
	attrs.Cflag &= ^(CBAUD)
	attrs.Cflag |= speed
}
