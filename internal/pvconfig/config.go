// Package pvconfig holds the flat configuration record that the external
// driver (cmd/pv) builds once and hands to the core. The core treats every
// field as immutable for its lifetime except where the remote-control
// channel is explicitly allowed to overwrite a live copy (see
// internal/remote).
package pvconfig

import "time"

// Config is the aggregate of display toggles, transfer options, and
// presentation options described in spec.md section 3. It is copied by
// value wherever a live snapshot is needed; string fields are treated as
// immutable for the config's lifetime.
type Config struct {
	// Display toggles.
	Progress       bool
	Timer          bool
	ElapsedETA     bool
	WallClockETA   bool
	Rate           bool
	AverageRate    bool
	Bytes          bool
	BufferFill     bool
	LastOutputN    int // 0 disables the echo component, >=1 enables it with that width
	NumericOnly    bool
	Quiet          bool

	// Transfer options.
	RateLimit      int64 // bytes/sec, 0 = unlimited
	BufferSize     int
	Size           int64 // declared total size, 0 = unknown
	StopAtSize     bool
	SkipReadErrors bool
	NoZeroCopy     bool
	LineMode       bool
	NullDelimited  bool
	DelayStart     time.Duration
	Interval       time.Duration
	WaitForFirstByte bool

	// Presentation options.
	Force     bool // display even when diagnostic stream is not a tty
	Cursor    bool
	Width     int // 0 = query terminal
	Height    int // 0 = query terminal
	Name      string
	Format    string // user-supplied format string; empty = synthesize default

	// Process-watching collaborator (spec.md section 6).
	WatchPID int
	WatchFD  int

	// Ambient additions (SPEC_FULL.md sections 1, 3.6).
	PidFile     string
	RemoteTarget int // pid of a sibling to receive a remote-control message (send side)
	MetricsAddr string
}

// Default returns a Config with the teacher-style "sane zero value"
// defaults: no limits, default buffer size, one-second display interval.
func Default() *Config {
	return &Config{
		BufferSize: 400 * 1024,
		Interval:   time.Second,
	}
}
