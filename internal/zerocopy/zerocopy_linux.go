// Package zerocopy implements the kernel-assisted fast path described in
// spec.md section 4.1 ("Zero-copy fast path") and design note "Zero-copy
// fallback" in section 9: move bytes between two descriptors without
// copying through user space, track per-source-fd capability, and fall
// back to the buffered path on EINVAL.
//
// The retry shape (attempt, and on EAGAIN wait for whichever side isn't
// ready before retrying) follows the algorithm documented in
// other_examples/2cccd807_acln0-zerocopy__zerocopy_linux.go.go, simplified
// to pv's single-attempt-per-tick model: the transfer engine already has
// its own up-to-90ms readiness wait, so Move itself never blocks — it
// returns immediately on EAGAIN and lets the caller's readiness wait do the
// blocking.
package zerocopy

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNotCapable is returned when the kernel refuses the transfer with
// EINVAL, meaning this source fd cannot participate in a splice(2)/tee(2)
// pipeline (e.g. it is a regular file opened without O_DIRECT on some
// filesystems, or the destination is not a pipe). The caller should record
// the fd as rejected and never retry it (spec.md section 4.1).
var ErrNotCapable = errors.New("zerocopy: descriptor not splice-capable")

// Capable reports whether this platform offers a zero-copy path at all.
// Always true on Linux.
func Capable() bool { return true }

const spliceFlags = unix.SPLICE_F_NONBLOCK | unix.SPLICE_F_MOVE

// Move attempts to transfer up to max bytes from src to dst without
// copying through a user-space buffer, via splice(2). It returns
// (0, nil) on a transient EAGAIN (caller should wait and retry next tick),
// (0, ErrNotCapable) on EINVAL (caller should fall back to buffered copy
// for this source and never retry zero-copy on it), and (n, nil) on
// partial or complete success.
func Move(dst, src int, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	n, err := unix.Splice(src, nil, dst, nil, max, spliceFlags)
	if err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN):
			return 0, nil
		case errors.Is(err, unix.EINVAL):
			return 0, ErrNotCapable
		default:
			return 0, err
		}
	}
	return int(n), nil
}

// rejected tracks, per source fd, whether a prior Move call already
// reported ErrNotCapable — "a per-run set of fds that have refused" per
// spec.md section 9's design note. Probing only non-rejected fds avoids
// repeating the same doomed splice(2) call every tick.
type RejectSet struct {
	mu   sync.Mutex
	fds  map[int]bool
}

func NewRejectSet() *RejectSet { return &RejectSet{fds: make(map[int]bool)} }

func (r *RejectSet) Rejected(fd int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fds[fd]
}

func (r *RejectSet) Reject(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fds[fd] = true
}

// Forget clears a fd's rejection, used when a new input (a new fd number
// that happens to be reused by the OS) takes its place.
func (r *RejectSet) Forget(fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fds, fd)
}
