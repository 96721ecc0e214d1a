package display

import (
	"strconv"
	"strings"
	"time"

	"github.com/icetee/pv/internal/pvconfig"
)

// DefaultFormat assembles a format string from the individual display
// toggles in cfg, in the conventional left-to-right order: name, progress
// bar, timer, bytes/lines, rate, average rate, buffer fill, ETA, echo.
// Used whenever cfg.Format is empty (spec.md section 4.2).
func DefaultFormat(cfg *pvconfig.Config) string {
	var b strings.Builder
	if cfg.Name != "" {
		b.WriteString("%N ")
	}
	if cfg.Progress {
		b.WriteString("%p ")
	}
	if cfg.Timer {
		b.WriteString("%t ")
	}
	if cfg.Bytes {
		b.WriteString("%b ")
	}
	if cfg.Rate {
		b.WriteString("%r ")
	}
	if cfg.AverageRate {
		b.WriteString("%a ")
	}
	if cfg.BufferFill {
		b.WriteString("%T ")
	}
	if cfg.ElapsedETA || cfg.WallClockETA {
		b.WriteString("%e ")
	}
	if cfg.LastOutputN > 0 {
		b.WriteString("%" + strconv.Itoa(cfg.LastOutputN) + "I ")
	}
	return strings.TrimRight(b.String(), " ")
}

// NumericLine renders the -n/--numeric output: a single number per update
// (percentage done if size is known, else bytes transferred), with no
// other formatting (spec.md section 4.2's "numeric-only mode").
func NumericLine(s State) string {
	if s.Size > 0 {
		return strconv.FormatInt(int64(s.FractionDone()*100), 10)
	}
	return strconv.FormatInt(s.Bytes, 10)
}

// NewFromConfig builds a Formatter using cfg.Format if set, else the
// synthesized default.
func NewFromConfig(cfg *pvconfig.Config) (*Formatter, error) {
	format := cfg.Format
	if format == "" {
		format = DefaultFormat(cfg)
	}
	return Parse(format, false)
}

// Now is passed to Render calls; kept as a thin wrapper so callers do not
// import time solely to call time.Now (and so tests can substitute a fixed
// instant without a build tag).
func Now() time.Time { return time.Now() }
