// Package transfer implements the transfer engine described in spec.md
// section 4.1: a single-threaded, non-blocking read/write step over one
// shared buffer, with a zero-copy fast path, rate limiting, line-mode
// counting, and an error-skip state machine for unrecoverable reads on
// seekable sources.
//
// The readiness wait (spec.md: "Waits up to 90 milliseconds for one of:
// source readable, sink writable, timeout") is implemented with
// golang.org/x/sys/unix.Poll over both descriptors at once, rather than
// the teacher's single-fd github.com/daedaluz/fdev/poll.WaitInput (kept
// and reused in internal/ttyctl for the cursor coordinator's single-fd
// waits, where only one side is ever relevant).
package transfer

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/icetee/pv/internal/zerocopy"
)

const readyTimeout = 90 * time.Millisecond

// writeRetryBudget bounds how many times Engine retries a short write
// before yielding the remainder to the next tick (spec.md: "retry the
// remainder immediately up to a short retry budget").
const writeRetryBudget = 3

// Engine owns the single shared transfer buffer (spec.md section 3's "Live
// state": transfer buffer, read-offset, write-offset) and the state
// machines layered on top of it.
type Engine struct {
	buf  []byte
	r, w int // 0 <= w <= r <= len(buf)

	LineMode      bool
	NullDelimited bool
	NoZeroCopy    bool
	SkipReadErrors bool

	StopAtSize   bool
	DeclaredSize int64 // 0 = unknown

	EchoWidth int // last-output echo width N; 0 disables

	totalBytes int64
	totalLines int64

	zcRejected    *zerocopy.RejectSet
	usedZeroCopy  bool

	skip skipState

	echo     []byte
	echoFull bool

	// pendingSize is a requested smaller buffer size, applied once
	// w==r==0 (spec.md section 9's Open Question (a)); Resize applies a
	// grow immediately.
	pendingSize int
}

// skipState tracks the error-skip machine described in spec.md section
// 4.1: last source fd, consecutive-errors-in-a-row, and whether the
// one-shot warning has already been shown.
type skipState struct {
	lastFD        int
	errorsInARow  int
	warningShown  bool
}

// New allocates an Engine with an L-byte buffer (spec.md: "allocated
// lazily on the first tick" — callers are free to call New lazily
// themselves; Engine does not self-defer allocation).
func New(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 400 * 1024
	}
	return &Engine{
		buf:        make([]byte, bufferSize),
		zcRejected: zerocopy.NewRejectSet(),
		EchoWidth:  0,
	}
}

// Resize requests the buffer grow (or shrink) to newSize. Per spec.md
// section 9's Open Question (a), a shrink is deferred until both offsets
// are zero; a grow is applied immediately since it cannot violate
// 0<=w<=r<=L.
func (e *Engine) Resize(newSize int) {
	if newSize <= len(e.buf) {
		e.pendingSize = newSize
		e.applyPendingResize()
		return
	}
	grown := make([]byte, newSize)
	copy(grown, e.buf[:e.r])
	e.buf = grown
}

func (e *Engine) applyPendingResize() {
	if e.pendingSize == 0 || e.pendingSize == len(e.buf) {
		return
	}
	if e.w == 0 && e.r == 0 {
		e.buf = make([]byte, e.pendingSize)
		e.pendingSize = 0
	}
}

// TotalBytes and TotalLines are the monotonic counters from spec.md
// section 3's invariants.
func (e *Engine) TotalBytes() int64 { return e.totalBytes }
func (e *Engine) TotalLines() int64 { return e.totalLines }

// UsedZeroCopyLastTick reports whether the most recent Tick call moved
// bytes via the zero-copy fast path — the display formatter renders the
// buffer-fill component as "{----}" in that case (spec.md section 4.2).
func (e *Engine) UsedZeroCopyLastTick() bool { return e.usedZeroCopy }

// BufferFillPercent returns 100*r/L, for the %T display component.
func (e *Engine) BufferFillPercent() int {
	if len(e.buf) == 0 {
		return 0
	}
	return int(100 * int64(e.r) / int64(len(e.buf)))
}

// EchoSnapshot returns the last up-to-N bytes written, non-printables left
// as-is (the display formatter is responsible for the '.' substitution),
// or nil if zero-copy was used this tick (spec.md section 9's "Last-output
// echo vs. zero-copy" note: the bytes never entered our buffer).
func (e *Engine) EchoSnapshot() []byte {
	if e.usedZeroCopy {
		return nil
	}
	return e.echo
}

// Result is returned by Tick.
type Result struct {
	Moved        int64 // bytes (or, in line mode, bytes — lines are reported separately)
	LinesMoved   int64
	EOFIn        bool
	EOFOut       bool
	Err          error // non-transient error, if any
}

// Tick runs one iteration of the transfer step: the contract is
// `transfer(state, source, &eof_in, &eof_out, budget, &lines_written)` from
// spec.md section 4.1, adapted to Go's multi-value returns via Result.
// srcFD/dstFD are raw descriptors; budget is the number of bytes (or
// lines, in line mode — though the buffer discipline itself always moves
// bytes) this call may move, from the rate limiter's current allowance. A
// budget of 0 or less places no limit on this call.
func (e *Engine) Tick(srcFD, dstFD int, srcEOF bool, budget int64) Result {
	var res Result

	if e.StopAtSize && e.DeclaredSize > 0 {
		remaining := e.DeclaredSize - e.totalBytes
		if remaining <= 0 {
			res.EOFIn, res.EOFOut = true, true
			return res
		}
		if remaining < budget {
			budget = remaining
		}
	}

	e.usedZeroCopy = false

	if !e.NoZeroCopy && !e.LineMode && zerocopy.Capable() && !srcEOF && !e.zcRejected.Rejected(srcFD) {
		zcBudget := budget
		if zcBudget <= 0 {
			zcBudget = int64(len(e.buf) - e.r)
		}
		if zcBudget > int64(len(e.buf)-e.r) && len(e.buf)-e.r > 0 {
			// Unlimited (rate-limiting inactive): cap at remaining
			// buffer capacity per spec.md's budget formula.
			zcBudget = int64(len(e.buf) - e.r)
		}
		if zcBudget > 0 {
			n, err := zerocopy.Move(dstFD, srcFD, int(zcBudget))
			switch {
			case errors.Is(err, zerocopy.ErrNotCapable):
				e.zcRejected.Reject(srcFD)
			case err != nil:
				res.Err = err
				return res
			case n > 0:
				e.usedZeroCopy = true
				e.totalBytes += int64(n)
				res.Moved = int64(n)
				return res
			default:
				// n == 0, err == nil: transient EAGAIN, do nothing
				// further this tick.
				return res
			}
		}
	}

	readReady, writeReady, perr := pollBoth(srcFD, !srcEOF && e.r < len(e.buf), dstFD, e.w < e.r)
	if perr != nil {
		if isTransient(perr) {
			return res
		}
		res.Err = perr
		return res
	}

	if readReady && e.r < len(e.buf) {
		n, rerr := unix.Read(srcFD, e.buf[e.r:])
		if rerr != nil {
			if isTransient(rerr) {
				time.Sleep(10 * time.Millisecond)
				return res
			}
			e.handleReadError(srcFD, rerr, &res)
			return res
		}
		if n == 0 {
			res.EOFIn = true
		} else {
			e.r += n
			e.skip.errorsInARow = 0 // a successful read ends the run of errors
		}
	}

	if writeReady && e.w < e.r {
		allowed := e.r - e.w
		if budget > 0 && budget < int64(allowed) {
			allowed = int(budget)
		}
		end := e.w + allowed
		if end > e.r {
			end = e.r
		}

		if e.LineMode {
			term := byte('\n')
			if e.NullDelimited {
				term = 0
			}
			aligned := lastIndexByte(e.buf[e.w:end], term)
			if aligned < 0 {
				if !srcEOF {
					end = e.w // nothing to write yet; wait for more input
				}
				// on final EOF with no trailing terminator, fall through
				// and write the remainder as-is.
			} else {
				end = e.w + aligned + 1
			}
		}

		if end > e.w {
			written, werr := writeRetrying(dstFD, e.buf[e.w:end])
			if werr != nil {
				if errors.Is(werr, unix.EPIPE) {
					res.EOFIn, res.EOFOut = true, true
					return res
				}
				if isTransient(werr) {
					time.Sleep(10 * time.Millisecond)
					return res
				}
				res.Err = werr
				res.EOFOut = true
				return res
			}
			chunk := e.buf[e.w : e.w+written]
			if e.LineMode {
				term := byte('\n')
				if e.NullDelimited {
					term = 0
				}
				res.LinesMoved = int64(countByte(chunk, term))
				e.totalLines += res.LinesMoved
			}
			e.totalBytes += int64(written)
			res.Moved += int64(written)
			e.recordEcho(chunk)
			e.w += written
		}
	}

	if e.w == e.r {
		e.w, e.r = 0, 0
		e.applyPendingResize()
	} else if e.w > 0 {
		// Buffer-fill maximization (spec.md section 4.1): compact the
		// unwritten tail to the front so the next read can fill as much
		// of the buffer as possible.
		copy(e.buf, e.buf[e.w:e.r])
		e.r -= e.w
		e.w = 0
	}

	if srcEOF && e.r == e.w {
		res.EOFIn = true
	}
	return res
}

func (e *Engine) recordEcho(chunk []byte) {
	if e.EchoWidth <= 0 {
		return
	}
	if len(chunk) >= e.EchoWidth {
		e.echo = append([]byte(nil), chunk[len(chunk)-e.EchoWidth:]...)
		return
	}
	combined := append(e.echo, chunk...)
	if len(combined) > e.EchoWidth {
		combined = combined[len(combined)-e.EchoWidth:]
	}
	e.echo = combined
}

// handleReadError implements spec.md section 4.1's error-skip state
// machine for a non-transient read error on srcFD.
func (e *Engine) handleReadError(srcFD int, rerr error, res *Result) {
	if srcFD != e.skip.lastFD {
		e.skip = skipState{lastFD: srcFD}
	}
	if !e.SkipReadErrors {
		res.Err = rerr
		res.EOFIn = true
		return
	}
	if !e.skip.warningShown {
		e.skip.warningShown = true
		res.Err = warningReadErrors{}
	}
	e.skip.errorsInARow++

	step := skipStep(e.skip.errorsInARow)
	cur, serr := unix.Seek(srcFD, 0, unix.SEEK_CUR)
	if serr != nil {
		res.EOFIn = true
		return
	}
	target := cur + int64(step)
	target -= target % int64(step)

	if _, serr := unix.Seek(srcFD, target, unix.SEEK_SET); serr != nil {
		if errors.Is(serr, unix.EINVAL) {
			res.EOFIn = true
			return
		}
		res.Err = serr
		res.EOFIn = true
		return
	}

	gap := int(target - cur)
	if gap > len(e.buf)-e.r {
		gap = len(e.buf) - e.r
	}
	if gap > 0 {
		for i := e.r; i < e.r+gap; i++ {
			e.buf[i] = 0
		}
		e.r += gap
	}
}

// warningReadErrors is a sentinel error type the main loop recognizes to
// emit spec.md section 4.1's one-shot "warning: read errors detected"
// diagnostic without treating it as fatal.
type warningReadErrors struct{}

func (warningReadErrors) Error() string { return "warning: read errors detected" }

// skipStep implements spec.md section 4.1's skip-distance schedule: 1 for
// the first 4 errors, 2 for errors 5-9, 2^(k-9) for errors 10-19 capped at
// 512.
func skipStep(errorsInARow int) int {
	switch {
	case errorsInARow <= 4:
		return 1
	case errorsInARow <= 9:
		return 2
	case errorsInARow <= 19:
		shift := errorsInARow - 9
		if shift > 9 {
			shift = 9
		}
		return 1 << uint(shift)
	default:
		return 512
	}
}

func pollBoth(srcFD int, wantRead bool, dstFD int, wantWrite bool) (readReady, writeReady bool, err error) {
	var fds []unix.PollFd
	var idxRead, idxWrite = -1, -1
	if wantRead {
		idxRead = len(fds)
		fds = append(fds, unix.PollFd{Fd: int32(srcFD), Events: unix.POLLIN})
	}
	if wantWrite {
		idxWrite = len(fds)
		fds = append(fds, unix.PollFd{Fd: int32(dstFD), Events: unix.POLLOUT})
	}
	if len(fds) == 0 {
		time.Sleep(readyTimeout)
		return false, false, nil
	}
	n, err := unix.Poll(fds, int(readyTimeout/time.Millisecond))
	if err != nil {
		return false, false, err
	}
	if n == 0 {
		return false, false, nil
	}
	if idxRead >= 0 && fds[idxRead].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
		readReady = true
	}
	if idxWrite >= 0 && fds[idxWrite].Revents&(unix.POLLOUT|unix.POLLERR) != 0 {
		writeReady = true
	}
	return readReady, writeReady, nil
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// writeRetrying writes buf to fd, retrying a short write up to
// writeRetryBudget times (spec.md: "if only a prefix was accepted, retry
// the remainder immediately up to a short retry budget").
func writeRetrying(fd int, buf []byte) (int, error) {
	written := 0
	for attempt := 0; attempt < writeRetryBudget && written < len(buf); attempt++ {
		n, err := unix.Write(fd, buf[written:])
		written += n
		if err != nil {
			if written > 0 {
				return written, nil
			}
			return 0, err
		}
		if n == 0 {
			break
		}
	}
	return written, nil
}

func lastIndexByte(b []byte, c byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func countByte(b []byte, c byte) int {
	n := 0
	for _, v := range b {
		if v == c {
			n++
		}
	}
	return n
}
