package display

import (
	"strings"
	"testing"
	"time"
)

func TestParseLiteralAndPercent(t *testing.T) {
	f, err := Parse("rate: %r (100%%)", true)
	if err != nil {
		t.Fatal(err)
	}
	s := State{InstantRate: 2048}
	line := f.Render(s, time.Now(), 0)
	if !strings.Contains(line, "100%") {
		t.Errorf("expected literal %%%% to render as a single %%, got %q", line)
	}
	if !strings.Contains(line, "2.00KiB/s") {
		t.Errorf("expected rate component rendered, got %q", line)
	}
}

func TestParseNameRightJustified(t *testing.T) {
	f, err := Parse("%N", false)
	if err != nil {
		t.Fatal(err)
	}
	s := State{Name: "N"}
	if got := f.Render(s, time.Now(), 0); got != "        N:" {
		t.Errorf("Parse(%%N) with Name=%q = %q, want %q", s.Name, got, "        N:")
	}
}

func TestParseFinalFlushBlanksETA(t *testing.T) {
	f, err := Parse("%e", false)
	if err != nil {
		t.Fatal(err)
	}
	s := State{Size: 100, Bytes: 50, InstantRate: 10, Final: true}
	got := f.Render(s, time.Now(), 0)
	if strings.TrimSpace(got) != "" {
		t.Errorf("expected ETA blanked on final flush, got %q", got)
	}
	nonFinal := f.Render(State{Size: 100, Bytes: 50, InstantRate: 10}, time.Now(), 0)
	if len([]rune(got)) != len([]rune(nonFinal)) {
		t.Errorf("blanked ETA length %d != rendered ETA length %d", len([]rune(got)), len([]rune(nonFinal)))
	}
}

func TestParseBufferFillZeroCopy(t *testing.T) {
	f, err := Parse("%T", false)
	if err != nil {
		t.Fatal(err)
	}
	s := State{ZeroCopy: true}
	if got := f.Render(s, time.Now(), 0); got != "{----}" {
		t.Errorf("expected zero-copy placeholder, got %q", got)
	}
}

func TestParseEchoWidth(t *testing.T) {
	f, err := Parse("%4I", false)
	if err != nil {
		t.Fatal(err)
	}
	s := State{Echo: []byte("hello\x01world")}
	got := f.Render(s, time.Now(), 0)
	if got != "orld" {
		t.Errorf("expected last 4 bytes echoed, got %q", got)
	}
}

func TestParseBarIsElastic(t *testing.T) {
	f, err := Parse("[%p]", false)
	if err != nil {
		t.Fatal(err)
	}
	s := State{Size: 100, Bytes: 50}
	line := f.Render(s, time.Now(), 20)
	if len([]rune(line)) > 20 {
		t.Errorf("rendered line exceeds requested width: %q", line)
	}
}

func TestNumericLine(t *testing.T) {
	s := State{Size: 200, Bytes: 50}
	if got := NumericLine(s); got != "25" {
		t.Errorf("NumericLine with known size = %q, want %q", got, "25")
	}
	s2 := State{Bytes: 1234}
	if got := NumericLine(s2); got != "1234" {
		t.Errorf("NumericLine with unknown size = %q, want %q", got, "1234")
	}
}
