package ttyctl

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether fd refers to a terminal, using the standard
// golang.org/x/term helper rather than hand-rolled ioctl probing — the
// idiomatic choice for this one check in a Go CLI tool (see DESIGN.md).
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// Size returns (columns, rows) for fd. It prefers the Device's own
// TIOCGWINSZ (consistent with the rest of this package's ioctl-based
// control) and falls back to golang.org/x/term.GetSize if that ioctl
// fails for any reason.
func Size(fd int) (cols, rows int, err error) {
	if ws, werr := NewDevice(fd).GetWinSize(); werr == nil && ws.Cols > 0 {
		return int(ws.Cols), int(ws.Rows), nil
	}
	return term.GetSize(fd)
}

// Name resolves the path of the terminal device backing fd, for use as the
// cursor coordinator's lockfile/shared-memory key (spec.md section 4.3
// step 1). On Linux this reads the /proc/self/fd/<n> symlink, the
// portable-within-Linux equivalent of ttyname(3).
func Name(fd int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
}
