// Package cursor implements the cursor coordinator described in spec.md
// section 4.3: it lets several sibling pv instances writing to the same
// terminal agree on non-overlapping display rows, by combining a
// terminal-name-derived lockfile (mutual exclusion for the negotiation
// itself) with a System-V shared integer (the published row of the
// topmost active instance).
package cursor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/icetee/pv/internal/pverr"
	"github.com/icetee/pv/internal/sysvipc"
	"github.com/icetee/pv/internal/ttyctl"
)

// projID salts the ftok-equivalent keys derived from the lockfile path so the
// cursor coordinator's shared integer never collides with an unrelated
// System-V object keyed off the same path (spec.md section 6's "Wire/IPC
// formats").
const projID = 'c'

// Coordinator negotiates a display row with sibling instances attached to
// the same terminal.
type Coordinator struct {
	ttyFD   int
	ttyPath string
	lock    *os.File
	shared  *sysvipc.SharedInt
	created bool
	row     int
	height  int
}

// Open resolves ttyFD's controlling terminal, acquires the lockfile, and
// attaches the shared row counter. ttyFD is conventionally the diagnostic
// stream (stderr) the display is writing to; Open returns
// pverr.ErrCursorUnavailable if ttyFD is not a terminal, matching spec.md
// section 4.3's "disabled automatically (not an error)" fallback — callers
// should render a plain, non-positioned status line in that case rather
// than treating the error as fatal.
func Open(ttyFD int) (*Coordinator, error) {
	if !ttyctl.IsTerminal(ttyFD) {
		return nil, pverr.ErrCursorUnavailable
	}
	name, err := ttyctl.Name(ttyFD)
	if err != nil || name == "" {
		return nil, pverr.ErrCursorUnavailable
	}

	lockPath, err := lockfilePath(name)
	if err != nil {
		return nil, pverr.Wrap("cursor lockfile path", err)
	}
	lock, err := acquireLock(lockPath)
	if err != nil {
		return nil, pverr.Wrap("cursor lockfile", err)
	}

	key, err := keyFor(lockPath)
	if err != nil {
		lock.Close()
		return nil, pverr.Wrap("cursor shared memory key", err)
	}
	shared, created, err := sysvipc.GetSharedInt(key, 0o600)
	if err != nil {
		lock.Close()
		return nil, pverr.Wrap("cursor shared memory", err)
	}
	if created {
		shared.Set(0)
	}

	c := &Coordinator{ttyFD: ttyFD, ttyPath: name, lock: lock, shared: shared, created: created}
	if _, h, err := ttyctl.Size(ttyFD); err == nil {
		c.height = h
	}
	return c, nil
}

// lockfilePath reproduces the original pv's naming scheme: {tmpdir}/pv-{basename(ttyname)}-{euid}.lock.
func lockfilePath(ttyName string) (string, error) {
	base := filepath.Base(ttyName)
	base = strings.ReplaceAll(base, "/", "_")
	tmp := os.TempDir()
	return filepath.Join(tmp, fmt.Sprintf("pv-%s-%d.lock", base, os.Geteuid())), nil
}

// acquireLock opens (creating if needed) the lockfile with O_NOFOLLOW, so a
// symlink planted at the lockfile's path cannot redirect us onto an
// arbitrary file, and takes an advisory exclusive lock.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|syscall.O_NOFOLLOW, 0o600)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func keyFor(path string) (sysvipc.Key, error) {
	return sysvipc.Ftok(path, projID)
}

// Acquire claims a display row: the shared counter holds the number of
// rows already claimed by active siblings, and this instance's row is the
// next one down. Rows count from the top line of the terminal window; the
// terminal's current cursor position is not queried. The lockfile
// serializes this read-modify-write across processes.
func (c *Coordinator) Acquire() (row int, err error) {
	if err := syscall.Flock(int(c.lock.Fd()), syscall.LOCK_EX); err != nil {
		return 0, err
	}
	defer syscall.Flock(int(c.lock.Fd()), syscall.LOCK_UN)

	row = int(c.shared.Get())
	c.shared.Set(int32(row + 1))
	c.row = row
	return row, nil
}

// Release gives back this instance's row, decrementing the shared counter
// so a sibling opened later reuses it.
func (c *Coordinator) Release() error {
	if err := syscall.Flock(int(c.lock.Fd()), syscall.LOCK_EX); err != nil {
		return err
	}
	defer syscall.Flock(int(c.lock.Fd()), syscall.LOCK_UN)

	n := c.shared.Get()
	if n > 0 {
		c.shared.Set(n - 1)
	}
	return nil
}

// Close detaches from the shared segment (destroying it if this was the
// last attached instance) and releases the lockfile. Determining "last
// attached" is approximated by the post-release counter reaching zero,
// matching the original's destroy-on-last-detach teardown (spec.md
// section 4.3's "Teardown" paragraph); a sibling racing in between simply
// recreates the segment, which GetSharedInt already tolerates.
func (c *Coordinator) Close() error {
	last := c.shared.Get() == 0
	if err := c.shared.Detach(); err != nil {
		c.lock.Close()
		return err
	}
	if last {
		c.shared.Destroy()
	}
	return c.lock.Close()
}

// QueryPosition asks the terminal for the cursor's current row via the
// DSR (device status report) escape sequence, per spec.md section 4.3 step
// 3: put the terminal in raw mode, write "\x1b[6n", and parse the
// "\x1b[row;colR" reply from the same fd.
func QueryPosition(fd int, timeout time.Duration) (row, col int, err error) {
	dev := ttyctl.NewDevice(fd)
	orig, err := dev.MakeRaw()
	if err != nil {
		return 0, 0, pverr.Wrap("cursor query raw mode", err)
	}
	defer dev.SetAttr(orig)

	if _, err := syscall.Write(fd, []byte("\x1b[6n")); err != nil {
		return 0, 0, pverr.Wrap("cursor query write", err)
	}

	if err := ttyctl.WaitReadable(fd, timeout); err != nil {
		return 0, 0, pverr.ErrCursorUnavailable
	}

	buf := make([]byte, 32)
	n, err := syscall.Read(fd, buf)
	if err != nil || n == 0 {
		return 0, 0, pverr.ErrCursorUnavailable
	}
	return parseDSR(buf[:n])
}

// parseDSR parses "\x1b[<row>;<col>R".
func parseDSR(b []byte) (row, col int, err error) {
	s := string(b)
	start := strings.IndexByte(s, '[')
	end := strings.IndexByte(s, 'R')
	if start < 0 || end < 0 || end < start {
		return 0, 0, pverr.ErrCursorUnavailable
	}
	body := s[start+1 : end]
	parts := strings.SplitN(body, ";", 2)
	if len(parts) != 2 {
		return 0, 0, pverr.ErrCursorUnavailable
	}
	row, rerr := strconv.Atoi(parts[0])
	col, cerr := strconv.Atoi(parts[1])
	if rerr != nil || cerr != nil {
		return 0, 0, pverr.ErrCursorUnavailable
	}
	return row, col, nil
}

// Reposition writes the escape sequence that moves the cursor to the
// coordinator's claimed row, scrolling the terminal first if the row would
// otherwise run past the bottom of the window (spec.md section 4.3's
// scroll-handling note).
func (c *Coordinator) Reposition(w *os.File) {
	if c.height > 0 && c.row >= c.height {
		fmt.Fprintf(w, "\x1b[%dS", c.row-c.height+1)
		c.row = c.height - 1
	}
	fmt.Fprintf(w, "\x1b[%d;1H", c.row+1)
}
