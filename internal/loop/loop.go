// Package loop composes the clock, signal dispatcher, transfer engine,
// input sequencer, display formatter, cursor coordinator, remote-control
// channel, process watcher, and metrics exporter into the single-threaded
// event loop described in spec.md section 5: one suspension point per
// iteration, signals and remote messages checked at the top of the loop,
// the display updated no more often than the configured interval, and a
// final flush on abort or end-of-input.
package loop

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/icetee/pv/internal/clock"
	"github.com/icetee/pv/internal/cursor"
	"github.com/icetee/pv/internal/display"
	"github.com/icetee/pv/internal/input"
	"github.com/icetee/pv/internal/metrics"
	"github.com/icetee/pv/internal/procwatch"
	"github.com/icetee/pv/internal/pvconfig"
	"github.com/icetee/pv/internal/pvdebug"
	"github.com/icetee/pv/internal/pvsignal"
	"github.com/icetee/pv/internal/remote"
	"github.com/icetee/pv/internal/transfer"
	"github.com/icetee/pv/internal/ttyctl"
)

// Exit bits, per spec.md section 6/7's exit-status bitmask.
const (
	ExitOK                     = 0
	ExitTransferError          = 16
	ExitInputOpenFailure       = 2
	ExitInputIsOutputCollision = 4
	ExitRemoteFailure          = 8
	ExitSignalAbort            = 32
)

// Loop owns every long-lived collaborator for one pv invocation.
type Loop struct {
	cfg *pvconfig.Config
	out *os.File
	diag *os.File

	seq     *input.Sequencer
	cur     *input.Descriptor
	engine  *transfer.Engine
	clk     *clock.Clock
	rate    *clock.RateLimiter
	sig     *pvsignal.Dispatcher
	fmtr    *display.Formatter
	cursorC *cursor.Coordinator
	recv    *remote.Receiver
	watcher *procwatch.Watcher
	exp     *metrics.Exporter

	totalSize  int64
	sizeFixed  bool // cfg.Size was given explicitly; never re-derive from inputs
	sizeAcc    input.TotalSize
	exitBits   int

	watchBytes int64 // absolute position reported by l.watcher, watch mode only

	lastDisplay     time.Time
	lastBytesMark   int64
	lastMarkAt      time.Time
	avgStart        time.Time
}

// New builds a Loop ready to Run. inputPaths is the list of input
// arguments ("-" for stdin); out is the already-opened output file.
func New(cfg *pvconfig.Config, inputPaths []string, out *os.File, outPath string) (*Loop, error) {
	seq, err := input.New(inputPaths, outPath)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		cfg: cfg,
		out: out,
		diag: os.Stderr,
		seq:  seq,
	}

	l.engine = transfer.New(cfg.BufferSize)
	l.engine.LineMode = cfg.LineMode
	l.engine.NullDelimited = cfg.NullDelimited
	l.engine.NoZeroCopy = cfg.NoZeroCopy
	l.engine.SkipReadErrors = cfg.SkipReadErrors
	l.engine.StopAtSize = cfg.StopAtSize
	l.engine.DeclaredSize = cfg.Size
	l.engine.EchoWidth = cfg.LastOutputN

	if cfg.Size > 0 {
		l.totalSize = cfg.Size
		l.sizeFixed = true
	}

	l.clk = &clock.Clock{}
	l.rate = clock.NewRateLimiter(cfg.RateLimit)

	l.sig = pvsignal.Init(l.onStop, l.onResume)

	fmtr, err := display.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	l.fmtr = fmtr

	if cfg.Cursor && !cfg.Quiet {
		if c, err := cursor.Open(int(l.diag.Fd())); err == nil {
			if _, err := c.Acquire(); err != nil {
				pvdebug.Log("cursor row negotiation failed: %v", err)
				c.Close()
			} else {
				l.cursorC = c
			}
		} else {
			pvdebug.Log("cursor coordinator unavailable: %v", err)
		}
	}

	if r, err := remote.OpenReceiver(); err == nil {
		l.recv = r
	} else {
		pvdebug.Log("remote-control channel unavailable: %v", err)
	}

	if cfg.WatchPID != 0 {
		l.watcher = procwatch.New(cfg.WatchPID, cfg.WatchFD)
	}

	if cfg.MetricsAddr != "" {
		l.exp = metrics.New()
		if err := l.exp.Serve(cfg.MetricsAddr); err != nil {
			pvdebug.Log("metrics exporter unavailable: %v", err)
			l.exp = nil
		}
	}

	return l, nil
}

func (l *Loop) onStop()   { l.clk.Suspend() }
func (l *Loop) onResume() { l.clk.Resume(); l.rate.ResetAcrossSuspend() }

// Run drives the loop to completion and returns the exit-status bitmask.
func (l *Loop) Run() int {
	defer l.teardown()

	l.clk.Start()
	l.avgStart = time.Now()
	l.lastMarkAt = l.avgStart

	if l.cfg.DelayStart > 0 {
		time.Sleep(l.cfg.DelayStart)
	}

	if l.watcher != nil {
		return l.runWatch()
	}

	if l.seq.OnOpenError == nil {
		l.seq.OnOpenError = func(path string, err error) {
			fmt.Fprintf(l.diag, "pv: %s: %v\n", path, err)
			l.exitBits |= ExitInputOpenFailure
		}
	}
	if l.seq.OnCollision == nil {
		l.seq.OnCollision = func(path string) {
			fmt.Fprintf(l.diag, "pv: %s: same file as output\n", path)
			l.exitBits |= ExitInputIsOutputCollision
		}
	}
	var err error
	l.cur, err = l.seq.Next()
	if err != nil || l.cur == nil {
		return l.exitBits
	}
	l.accountSize(l.cur)

	if l.cfg.WaitForFirstByte {
		ttyctl.WaitReadable(int(l.cur.File.Fd()), 0)
		l.clk.Start()
		l.avgStart = time.Now()
		l.lastMarkAt = l.avgStart
	}

	for {
		if l.sig.Aborted() {
			l.exitBits |= ExitSignalAbort
			break
		}
		if l.sig.ConsumeResize() {
			l.requerySize()
		}
		l.pollRemote()

		if l.sig.Backgrounded() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if l.cur == nil {
			break
		}

		now := time.Now()
		l.rate.Refill(now)
		budget := l.rate.Allowance()
		if budget <= 0 {
			// The rate limit's allowance is spent until the next refill,
			// and Tick reads a zero budget as "no limit": wait instead.
			time.Sleep(10 * time.Millisecond)
			l.maybeDisplay(now)
			continue
		}

		srcFD := int(l.cur.File.Fd())
		dstFD := int(l.out.Fd())

		res := l.engine.Tick(srcFD, dstFD, false, budget)
		if res.Moved > 0 {
			if l.cfg.LineMode {
				l.rate.Consume(res.LinesMoved)
			} else {
				l.rate.Consume(res.Moved)
			}
		}
		if res.Err != nil {
			fmt.Fprintf(l.diag, "pv: %v\n", res.Err)
			if !l.cfg.SkipReadErrors {
				l.exitBits |= ExitTransferError
				break
			}
		}

		// res.EOFOut marks the whole run as finished independent of
		// SkipReadErrors, which spec.md section 7 ties only to read
		// errors: a non-transient write error or --stop-at-size being
		// reached ends the run after this tick's final display, rather
		// than looping on the same failing write or advancing to the
		// next input file.
		if res.EOFOut {
			break
		}

		if res.EOFIn {
			l.cur.File.Close()
			next, nerr := l.seq.Next()
			if nerr != nil {
				l.exitBits |= ExitInputOpenFailure
			}
			l.cur = next
			if l.cur != nil {
				l.accountSize(l.cur)
			}
		}

		l.maybeDisplay(now)

		if l.cur == nil && res.EOFIn {
			break
		}
	}

	l.flushDisplay(time.Now())
	return l.exitBits
}

// runWatch drives the loop from internal/procwatch instead of
// internal/input+internal/transfer, per SPEC_FULL.md section 3.5:
// --watch-pid-and-fd reports another process's descriptor progress rather
// than copying bytes itself.
func (l *Loop) runWatch() int {
	for {
		if l.sig.Aborted() {
			l.exitBits |= ExitSignalAbort
			break
		}
		l.pollRemote()

		if l.sig.Backgrounded() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, pos, exited, err := l.watcher.Poll()
		if err != nil {
			fmt.Fprintf(l.diag, "pv: watch: %v\n", err)
			l.exitBits |= ExitTransferError
			break
		}
		l.watchBytes = pos

		now := time.Now()
		l.maybeDisplay(now)

		if exited {
			break
		}
		time.Sleep(l.cfg.Interval)
	}

	l.flushDisplay(time.Now())
	return l.exitBits
}

// accountSize folds d into the running total-size estimate, per spec.md
// section 3's "zero if any input is of unknown size" rule, unless the
// caller gave an explicit --size override.
func (l *Loop) accountSize(d *input.Descriptor) {
	if l.sizeFixed {
		return
	}
	l.sizeAcc.Add(d)
	l.totalSize = l.sizeAcc.Total()
}

func (l *Loop) requerySize() {
	if l.cfg.Width != 0 || l.cfg.Height != 0 {
		return // explicit dimensions override terminal queries
	}
	// The formatter derives width from whatever Render is called with
	// each tick; nothing to cache here beyond letting the next
	// maybeDisplay call re-measure the terminal.
}

func (l *Loop) pollRemote() {
	if l.recv == nil {
		return
	}
	for {
		msg, ok, err := l.recv.Poll()
		if err != nil {
			pvdebug.Log("remote poll error: %v", err)
			return
		}
		if !ok {
			return
		}
		if msg.Apply(l.cfg) {
			if f, err := display.NewFromConfig(l.cfg); err == nil {
				l.fmtr = f
			}
		}
		l.engine.DeclaredSize = l.cfg.Size
		l.rate = clock.NewRateLimiter(l.cfg.RateLimit)
	}
}

func (l *Loop) maybeDisplay(now time.Time) {
	if l.cfg.Quiet {
		return
	}
	if !l.lastDisplay.IsZero() && now.Sub(l.lastDisplay) < l.cfg.Interval {
		return
	}
	l.lastDisplay = now
	l.renderOnce(now, false)
}

// flushDisplay renders the final status line. A negative delta (spec.md
// section 4.2) signals this final flush: the instantaneous rate is
// replaced by the average rate and the ETA component is blanked.
func (l *Loop) flushDisplay(now time.Time) {
	if l.cfg.Quiet {
		return
	}
	l.renderOnce(now, true)
	fmt.Fprintln(l.diag)
}

func (l *Loop) currentBytes() int64 {
	if l.watcher != nil {
		return l.watchBytes
	}
	return l.engine.TotalBytes()
}

func (l *Loop) renderOnce(now time.Time, final bool) {
	elapsed := l.clk.Elapsed()
	bytesNow := l.currentBytes()

	instantRate := 0.0
	if d := now.Sub(l.lastMarkAt); d > 0 {
		instantRate = float64(bytesNow-l.lastBytesMark) / d.Seconds()
	}
	l.lastBytesMark = bytesNow
	l.lastMarkAt = now

	avgRate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		avgRate = float64(bytesNow) / secs
	}

	st := display.State{
		Name:          l.currentName(),
		Bytes:         bytesNow,
		Size:          l.totalSize,
		Elapsed:       elapsed,
		InstantRate:   instantRate,
		AverageRate:   avgRate,
		Backgrounded:  l.sig.Backgrounded(),
		Final:         final,
	}
	if l.watcher == nil {
		st.Lines = l.engine.TotalLines()
		st.LineMode = l.cfg.LineMode
		st.BufferPercent = l.engine.BufferFillPercent()
		st.ZeroCopy = l.engine.UsedZeroCopyLastTick()
		st.Echo = l.engine.EchoSnapshot()
		st.EchoWidth = l.cfg.LastOutputN
	}

	if l.exp != nil {
		l.exp.Observe(bytesNow, instantRate, st.BufferPercent)
	}

	if l.cfg.NumericOnly {
		fmt.Fprintln(l.diag, display.NumericLine(st))
		return
	}

	width := l.cfg.Width
	if width == 0 {
		if w, _, err := ttyctl.Size(int(l.diag.Fd())); err == nil {
			width = w
		} else {
			width = 80
		}
	}

	line := l.fmtr.Render(st, now, width)

	if l.cursorC != nil {
		l.cursorC.Reposition(l.diag)
		fmt.Fprint(l.diag, "\r"+line+"\x1b[K")
	} else {
		fmt.Fprint(l.diag, "\r"+line)
	}
}

func (l *Loop) currentName() string {
	if l.cfg.Name != "" {
		return l.cfg.Name
	}
	if l.cur != nil {
		return l.cur.Name
	}
	return ""
}

func (l *Loop) teardown() {
	if l.cursorC != nil {
		l.cursorC.Release()
		l.cursorC.Close()
	}
	if l.recv != nil {
		l.recv.Close()
	}
	if l.exp != nil {
		l.exp.Shutdown(context.Background())
	}
	l.sig.Close()
}
