package display

import "time"

// bounceGlyphs holds the glyphs of a "<=>" bouncing indicator. renderBar
// does not use it: its unknown-size indicator is a run of '=' characters.
var bounceGlyphs = [...]byte{'<', '=', '=', '>', ' '}

func renderBar(width int, frac float64, tick int64) string {
	if width < 3 {
		width = 3
	}
	inner := width - 2
	buf := make([]byte, inner)

	if frac < 0 {
		// Bouncing indicator: a short run of '=' sweeps back and forth.
		runLen := inner / 4
		if runLen < 1 {
			runLen = 1
		}
		span := inner - runLen
		if span < 1 {
			span = 1
		}
		period := int64(span * 2)
		pos := int(tick % period)
		if pos >= span {
			pos = int(period) - pos
		}
		for i := range buf {
			buf[i] = ' '
		}
		for i := 0; i < runLen && pos+i < inner; i++ {
			buf[pos+i] = '='
		}
	} else {
		filled := int(frac * float64(inner))
		for i := range buf {
			switch {
			case i < filled:
				buf[i] = '='
			case i == filled:
				buf[i] = '>'
			default:
				buf[i] = ' '
			}
		}
	}
	return "[" + string(buf) + "]"
}

// bounceTick derives a coarse animation tick from wall time so the
// bouncing indicator advances independent of the display update interval.
func bounceTick(now time.Time) int64 {
	return now.UnixMilli() / 200
}
