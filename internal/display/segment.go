package display

import (
	"strconv"
	"strings"
	"time"
)

// Kind classifies a parsed format segment per spec.md section 4.2's
// segment model: literal text, a fixed-width rendered component, or an
// elastic component (the progress bar) that absorbs whatever width is
// left over after every fixed segment has been rendered.
type Kind int

const (
	KindLiteral Kind = iota
	KindFixed
	KindElastic
)

type segment struct {
	kind    Kind
	literal string
	width   int // %I echo width override; 0 = use State.EchoWidth
	render  func(s State, now time.Time) string
	renderElastic func(s State, now time.Time, width int) string
}

// Formatter renders a parsed format string against a State snapshot.
type Formatter struct {
	segments  []segment
	iec       bool
	numericOnly bool
}

// Parse compiles a format string into a Formatter. The token set follows
// spec.md section 4.2:
//
//	%N   current input name
//	%b   bytes transferred
//	%T   buffer fill percentage ("{----}" while the zero-copy path is active)
//	%t   elapsed time
//	%r   instantaneous rate
//	%a   average rate
//	%p   progress bar (elastic)
//	%e   ETA
//	%I   last-output echo (optional leading width, e.g. %16I)
//	%%   literal percent
func Parse(format string, iec bool) (*Formatter, error) {
	f := &Formatter{iec: iec}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			f.segments = append(f.segments, segment{kind: KindLiteral, literal: lit.String()})
			lit.Reset()
		}
	}

	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '%' {
			lit.WriteRune(c)
			continue
		}
		i++
		if i >= len(runes) {
			lit.WriteRune('%')
			break
		}
		digits := ""
		for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
			digits += string(runes[i])
			i++
		}
		if i >= len(runes) {
			lit.WriteRune('%')
			lit.WriteString(digits)
			break
		}
		verb := runes[i]
		width, _ := strconv.Atoi(digits)
		switch verb {
		case '%':
			lit.WriteRune('%')
		case 'N':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, render: renderName})
		case 'b':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, render: f.renderBytes})
		case 'T':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, render: renderBufferFill})
		case 't':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, render: renderElapsed})
		case 'r':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, render: f.renderRate})
		case 'a':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, render: f.renderAvgRate})
		case 'e':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, render: renderETA})
		case 'I':
			flush()
			f.segments = append(f.segments, segment{kind: KindFixed, width: width, render: renderEcho(width)})
		case 'p':
			flush()
			f.segments = append(f.segments, segment{kind: KindElastic, renderElastic: renderBarSegment})
		default:
			lit.WriteRune('%')
			lit.WriteString(digits)
			lit.WriteRune(verb)
		}
	}
	flush()
	return f, nil
}

// Render produces the full status line, truncated to width columns; a
// shorter line is not padded.
// Elastic segments (the progress bar) share whatever width remains after
// every fixed and literal segment has been measured.
func (f *Formatter) Render(s State, now time.Time, width int) string {
	rendered := make([]string, len(f.segments))
	fixedWidth := 0
	var elastic []int
	for i, seg := range f.segments {
		switch seg.kind {
		case KindLiteral:
			rendered[i] = seg.literal
			fixedWidth += len([]rune(seg.literal))
		case KindFixed:
			rendered[i] = seg.render(s, now)
			fixedWidth += len([]rune(rendered[i]))
		case KindElastic:
			elastic = append(elastic, i)
		}
	}
	if len(elastic) > 0 && width > 0 {
		remaining := width - fixedWidth
		share := remaining / len(elastic)
		for _, i := range elastic {
			if share < 0 {
				share = 0
			}
			rendered[i] = f.segments[i].renderElastic(s, now, share)
		}
	} else {
		for _, i := range elastic {
			rendered[i] = f.segments[i].renderElastic(s, now, 20)
		}
	}

	var out strings.Builder
	for _, r := range rendered {
		out.WriteString(r)
	}
	line := out.String()
	if width > 0 && len([]rune(line)) > width {
		runes := []rune(line)
		line = string(runes[:width])
	}
	return line
}

// nameWidth is spec.md section 4.2's fixed width for the %N field: the
// name right-justified to 9 characters, colon-terminated.
const nameWidth = 9

func renderName(s State, _ time.Time) string {
	if s.Name == "" {
		return ""
	}
	name := s.Name
	if pad := nameWidth - len([]rune(name)); pad > 0 {
		name = strings.Repeat(" ", pad) + name
	}
	return name + ":"
}

func (f *Formatter) renderBytes(s State, _ time.Time) string {
	if s.LineMode {
		return strconv.FormatInt(s.Lines, 10)
	}
	return FormatBytes(s.Bytes, f.iec)
}

func renderBufferFill(s State, _ time.Time) string {
	if s.ZeroCopy {
		return "{----}"
	}
	return "{" + strconv.Itoa(s.BufferPercent) + "%}"
}

func renderElapsed(s State, _ time.Time) string {
	return FormatDuration(int64(s.Elapsed.Seconds()))
}

func (f *Formatter) renderRate(s State, _ time.Time) string {
	if s.Final {
		return FormatRate(s.AverageRate, f.iec)
	}
	return FormatRate(s.InstantRate, f.iec)
}

func (f *Formatter) renderAvgRate(s State, _ time.Time) string {
	return FormatRate(s.AverageRate, f.iec)
}

func renderETA(s State, _ time.Time) string {
	eta := s.ETA()
	var rendered string
	if eta < 0 {
		rendered = "ETA --:--"
	} else {
		rendered = "ETA " + FormatDuration(int64(eta.Seconds()))
	}
	if s.Final {
		return strings.Repeat(" ", len([]rune(rendered)))
	}
	return rendered
}

func renderEcho(width int) func(State, time.Time) string {
	return func(s State, _ time.Time) string {
		w := width
		if w <= 0 {
			w = s.EchoWidth
		}
		if w <= 0 || len(s.Echo) == 0 {
			return ""
		}
		b := s.Echo
		if len(b) > w {
			b = b[len(b)-w:]
		}
		out := make([]byte, len(b))
		for i, c := range b {
			if c < 0x20 || c >= 0x7f {
				out[i] = '.'
			} else {
				out[i] = c
			}
		}
		return string(out)
	}
}

func renderBarSegment(s State, now time.Time, width int) string {
	return renderBar(width, s.FractionDone(), bounceTick(now))
}
