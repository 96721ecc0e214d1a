// Package ttyctl adapts the teacher's serial-port termios/ioctl control
// (github.com/daedaluz/goserial's port_linux.go) to terminal control for
// pv's cursor coordinator and display formatter: raw-mode toggling around
// the cursor-position query (spec.md section 4.3), window-size queries
// (spec.md section 3's "explicit width/height" presentation option), and
// single-fd readiness-wait wrappers over github.com/daedaluz/fdev/poll
// (the cursor-position query and --wait). The transfer engine's
// source/sink wait uses golang.org/x/sys/unix.Poll instead.
package ttyctl

import (
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// Termios mirrors the kernel's struct termios layout; only the flag words
// MakeRaw touches are given named bit constants below (the teacher's
// enumeration covered the full POSIX flag set for serial-line
// configuration, most of which pv never touches).
type Termios struct {
	Iflag uint32
	Oflag uint32
	Cflag uint32
	Lflag uint32
	Line  byte
	Cc    [19]byte
}

const (
	ignbrk = 0000001
	brkint = 0000002
	parmrk = 0000010
	istrip = 0000040
	inlcr  = 0000100
	igncr  = 0000200
	icrnl  = 0000400
	ixon   = 0002000

	opost = 0000001

	csize  = 0000060
	cs8    = 0000060
	parenb = 0000400

	isig   = 0000001
	icanon = 0000002
	echo   = 0000010
	echonl = 0000100
	iexten = 0100000
)

// MakeRaw clears the flags canonical-mode terminal line discipline sets, in
// the same combination the teacher's Termios.MakeRaw uses for a serial
// line: no signal generation, no canonical processing, no echo, 8-bit
// clean, no output post-processing.
func (t *Termios) MakeRaw() {
	t.Iflag &^= ignbrk | brkint | parmrk | istrip | inlcr | igncr | icrnl | ixon
	t.Oflag &^= opost
	t.Lflag &^= echo | echonl | icanon | isig | iexten
	t.Cflag &^= csize | parenb
	t.Cflag |= cs8
}

// Winsize mirrors struct winsize from <sys/ioctl.h>.
type Winsize struct {
	Rows    uint16
	Cols    uint16
	Xpixel  uint16
	Ypixel  uint16
}

// Device wraps an already-open file descriptor (conventionally the
// diagnostic stream, or whatever fd ttyname(3) resolved for the cursor
// coordinator) for termios and window-size control. Unlike the teacher's
// Port, a Device never opens or closes the underlying fd: pv observes an
// fd the rest of the program owns.
type Device struct {
	fd int
}

// NewDevice wraps fd for termios/winsize control.
func NewDevice(fd int) *Device { return &Device{fd: fd} }

// GetAttr reads the current termios state.
func (d *Device) GetAttr() (*Termios, error) {
	attrs := &Termios{}
	if err := ioctl.Ioctl(uintptr(d.fd), tcgets, uintptr(unsafe.Pointer(attrs))); err != nil {
		return nil, err
	}
	return attrs, nil
}

// SetAttr applies attrs immediately (TCSANOW semantics).
func (d *Device) SetAttr(attrs *Termios) error {
	return ioctl.Ioctl(uintptr(d.fd), tcsets, uintptr(unsafe.Pointer(attrs)))
}

// MakeRaw reads the current attributes, clears canonical/echo/signal
// processing, applies them, and returns the original attributes so the
// caller can restore them afterwards. This is used only around the
// cursor-position escape-sequence query (spec.md section 4.3 step 3) —
// pv never leaves the user's terminal in raw mode between ticks.
func (d *Device) MakeRaw() (restore *Termios, err error) {
	orig, err := d.GetAttr()
	if err != nil {
		return nil, err
	}
	raw := *orig
	raw.MakeRaw()
	if err := d.SetAttr(&raw); err != nil {
		return nil, err
	}
	return orig, nil
}

// GetWinSize issues TIOCGWINSZ.
func (d *Device) GetWinSize() (*Winsize, error) {
	ws := &Winsize{}
	if err := ioctl.Ioctl(uintptr(d.fd), tiocgwinsz, uintptr(unsafe.Pointer(ws))); err != nil {
		return nil, err
	}
	return ws, nil
}

// WaitReadable waits up to timeout for the fd to become readable. It wraps
// github.com/daedaluz/fdev/poll the same way the teacher's Port.readTimeout
// does, generalized to any fd rather than just an open serial port.
func WaitReadable(fd int, timeout time.Duration) error {
	return poll.WaitInput(fd, timeout)
}

// WaitWritable waits up to timeout for the fd to become writable.
func WaitWritable(fd int, timeout time.Duration) error {
	return poll.WaitOutput(fd, timeout)
}
