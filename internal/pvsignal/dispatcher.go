// Package pvsignal is the signal dispatcher described in spec.md's
// component table (section 2) and design notes (section 9): a per-process
// singleton that turns asynchronous OS signals into flags the main loop
// polls at the top of each iteration. Only one instance of the core runs
// per process, so a package-level singleton is an accurate model rather
// than a shortcut.
package pvsignal

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Dispatcher exposes the flags spec.md section 5 describes: termination,
// resize, background/foreground, stop/continue, and pipe-closed. Every
// field is set only from the goroutine draining the underlying signal
// channel (the Go-runtime equivalent of "async-signal-safe write to a
// word-sized flag" — no locks, no allocation on the hot path) and read by
// the main loop via the accessor methods.
type Dispatcher struct {
	abort      atomic.Bool
	resized    atomic.Bool
	background atomic.Bool
	stopped    atomic.Bool
	pipeClosed atomic.Bool

	onStop    func()
	onResume  func()
	closeOnce sync.Once
	stopCh    chan os.Signal
}

var (
	singleton     *Dispatcher
	singletonOnce sync.Once
)

// Init installs the process-wide signal dispatcher exactly once. onStop
// and onResume are invoked (synchronously, from the dispatcher's own
// goroutine) when SIGTSTP/SIGCONT are observed, so the caller's Clock can
// record and later account for the suspended interval.
func Init(onStop, onResume func()) *Dispatcher {
	singletonOnce.Do(func() {
		d := &Dispatcher{onStop: onStop, onResume: onResume}
		d.stopCh = make(chan os.Signal, 16)
		signal.Notify(d.stopCh,
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT,
			syscall.SIGWINCH,
			syscall.SIGTSTP, syscall.SIGCONT,
			syscall.SIGTTIN, syscall.SIGTTOU,
			syscall.SIGPIPE,
		)
		go d.run()
		singleton = d
	})
	return singleton
}

func (d *Dispatcher) run() {
	for sig := range d.stopCh {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT:
			d.abort.Store(true)
		case syscall.SIGWINCH:
			d.resized.Store(true)
		case syscall.SIGTSTP:
			d.background.Store(true)
			d.stopped.Store(true)
			if d.onStop != nil {
				d.onStop()
			}
			// Re-raise ourselves with the default disposition so the
			// shell's job control actually suspends the process; Go's
			// runtime intercepts SIGTSTP for delivery, so we must ask
			// again for the real stop.
			signal.Reset(syscall.SIGTSTP)
			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTSTP)
			signal.Notify(d.stopCh, syscall.SIGTSTP)
		case syscall.SIGCONT:
			if d.stopped.Load() {
				d.stopped.Store(false)
				d.background.Store(false)
				if d.onResume != nil {
					d.onResume()
				}
			}
		case syscall.SIGTTIN, syscall.SIGTTOU:
			d.background.Store(true)
		case syscall.SIGPIPE:
			d.pipeClosed.Store(true)
		}
	}
}

// Aborted reports whether a termination signal has been observed. The main
// loop checks this at the top of every iteration and, if true, exits after
// one final display flush (spec.md section 5, exit bit 32 in section 6).
func (d *Dispatcher) Aborted() bool { return d.abort.Load() }

// ConsumeResize reports and clears the resize flag: the main loop
// re-queries the terminal on the tick it observes this true.
func (d *Dispatcher) ConsumeResize() bool { return d.resized.Swap(false) }

// Backgrounded reports whether output should currently be redirected to the
// null device (spec.md section 5's background-write handling).
func (d *Dispatcher) Backgrounded() bool { return d.background.Load() }

// PipeClosed reports whether SIGPIPE has been observed; per spec.md section
// 5 this signal itself is ignored (the broken-pipe write error is what
// actually ends the run), so this flag exists for diagnostics only.
func (d *Dispatcher) PipeClosed() bool { return d.pipeClosed.Load() }

// HeartbeatRestore runs fn once a second for as long as the dispatcher
// remains backgrounded, matching spec.md section 5's "heartbeat every
// second re-attempts to restore the original diagnostic stream once
// foregrounded". fn should check Backgrounded() itself and restore the
// stream when it goes false; HeartbeatRestore just supplies the ticking.
func (d *Dispatcher) HeartbeatRestore(stop <-chan struct{}, fn func()) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			fn()
		}
	}
}

// Close stops delivering signals to this dispatcher. Safe to call multiple
// times.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		signal.Stop(d.stopCh)
		close(d.stopCh)
	})
}
