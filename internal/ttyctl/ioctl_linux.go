package ttyctl

// ioctl request numbers, trimmed from the teacher's much larger serial-port
// enumeration (ioctl_linux.go covered break handling, RS485, modem lines,
// and three separate termios generations) down to the two pv's terminal
// control actually issues: get/set termios for raw-mode toggling around the
// cursor-position query, and get/set window size for the display
// formatter's width/height query.
var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)

	tiocgwinsz = uintptr(0x5413)
	tiocswinsz = uintptr(0x5414)
)
