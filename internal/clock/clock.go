// Package clock implements the monotonic elapsed-time accountant and the
// token-bucket rate limiter described in spec.md section 4.1 and the
// "Clock & rate accountant" row of section 2's component table.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock tracks elapsed wall time since Start, with a suspension offset that
// is advanced across a stop/continue cycle (spec.md section 5) so ETA and
// rate do not spike when the process is paused and resumed.
type Clock struct {
	start      time.Time
	suspendAt  time.Time
	suspended  atomic.Bool
	offset     time.Duration // total time spent suspended, excluded from Elapsed
}

// Start begins the clock. Call once, from the main loop, before the first
// tick.
func (c *Clock) Start() {
	c.start = time.Now()
}

// Elapsed returns time.Since(start) minus any time spent suspended.
func (c *Clock) Elapsed() time.Duration {
	if c.start.IsZero() {
		return 0
	}
	elapsed := time.Since(c.start) - c.offset
	if c.suspended.Load() {
		elapsed -= time.Since(c.suspendAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Suspend records the wall-clock time at which a stop signal paused the
// process. Idempotent.
func (c *Clock) Suspend() {
	if c.suspended.CompareAndSwap(false, true) {
		c.suspendAt = time.Now()
	}
}

// Resume advances the suspension offset by however long the process was
// stopped, so Elapsed continues from where it left off.
func (c *Clock) Resume() {
	if c.suspended.CompareAndSwap(true, false) {
		c.offset += time.Since(c.suspendAt)
	}
}

// RateLimiter is a token bucket replenished at a 100ms granularity, per
// spec.md section 4.1: every 100ms the accumulator grows by rateLimit*0.1;
// the per-tick allowance is the accumulator floored to an integer, and the
// accumulator is decremented by bytes (or lines, in line mode) actually
// moved.
//
// Per SPEC_FULL.md 5(b), the accumulator resets to zero across pause/resume
// rather than continuing to accrue while suspended, since the clock's own
// suspension offset already keeps elapsed time from including the paused
// interval.
type RateLimiter struct {
	rate        int64 // units/sec; 0 means unlimited
	accumulator float64
	lastRefill  time.Time
}

// NewRateLimiter constructs a limiter for the given rate (units per
// second). A rate of 0 means unlimited: Allowance always returns
// unlimitedAllowance (1<<62).
func NewRateLimiter(rate int64) *RateLimiter {
	return &RateLimiter{rate: rate, lastRefill: time.Now()}
}

const unlimitedAllowance = int64(1) << 62

// Refill advances the accumulator by rate*0.1 for every complete 100ms
// elapsed since the last refill. Call once per tick before computing the
// allowance.
func (r *RateLimiter) Refill(now time.Time) {
	if r.rate <= 0 {
		return
	}
	elapsed := now.Sub(r.lastRefill)
	if elapsed < 100*time.Millisecond {
		return
	}
	ticks := elapsed / (100 * time.Millisecond)
	r.accumulator += float64(ticks) * (float64(r.rate) * 0.1)
	r.lastRefill = r.lastRefill.Add(ticks * 100 * time.Millisecond)
}

// Allowance returns the current accumulator floored to an integer. If the
// limiter is unlimited it returns a very large sentinel so callers can
// treat it uniformly as "budget available this tick".
func (r *RateLimiter) Allowance() int64 {
	if r.rate <= 0 {
		return unlimitedAllowance
	}
	if r.accumulator < 0 {
		return 0
	}
	return int64(r.accumulator)
}

// Consume decrements the accumulator by the number of units actually moved
// this tick. A no-op when unlimited.
func (r *RateLimiter) Consume(units int64) {
	if r.rate <= 0 {
		return
	}
	r.accumulator -= float64(units)
}

// ResetAcrossSuspend zeroes the accumulator. Call when the clock transitions
// out of Suspend, per the Open Question resolution in spec.md section 9(b).
func (r *RateLimiter) ResetAcrossSuspend() {
	r.accumulator = 0
	r.lastRefill = time.Now()
}
