package display

import "time"

// State is the per-tick snapshot the transfer loop hands to a Formatter.
// It mirrors spec.md section 3's "Live state" fields that feed the status
// line: current input name, byte/line counters, elapsed time, rates,
// buffer fill, and the last-output echo.
type State struct {
	Name          string
	Bytes         int64
	Lines         int64
	LineMode      bool
	Size          int64 // 0 = unknown
	Elapsed       time.Duration
	InstantRate   float64 // bytes/sec
	AverageRate   float64 // bytes/sec
	BufferPercent int     // 0-100
	ZeroCopy      bool    // last tick moved bytes via the zero-copy path
	Echo          []byte
	EchoWidth     int
	Backgrounded  bool

	// Final marks a flush rendered after a negative-delta tick (spec.md
	// section 4.2): the instantaneous rate is replaced by the average
	// rate and the ETA component is blanked rather than shown as 0:00:00.
	Final bool
}

// FractionDone returns Bytes/Size in [0,1], or -1 if Size is unknown (the
// progress bar renders a bouncing indicator in that case).
func (s State) FractionDone() float64 {
	if s.Size <= 0 {
		return -1
	}
	f := float64(s.Bytes) / float64(s.Size)
	if f > 1 {
		f = 1
	}
	if f < 0 {
		f = 0
	}
	return f
}

// ETA estimates remaining time from the instantaneous rate, or -1 if size
// or rate is unknown/zero.
func (s State) ETA() time.Duration {
	if s.Size <= 0 || s.InstantRate <= 0 {
		return -1
	}
	remaining := float64(s.Size - s.Bytes)
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining/s.InstantRate) * time.Second
}
