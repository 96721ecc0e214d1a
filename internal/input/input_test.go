package input

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSequencerSkipsOpenFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	if err := os.WriteFile(good, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "does-not-exist.txt")

	var failed []string
	s, err := New([]string{missing, good}, "")
	if err != nil {
		t.Fatal(err)
	}
	s.OnOpenError = func(path string, err error) { failed = append(failed, path) }

	d, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Name != good {
		t.Fatalf("expected to land on %q, got %+v", good, d)
	}
	if len(failed) != 1 || failed[0] != missing {
		t.Fatalf("expected one recorded failure for %q, got %v", missing, failed)
	}
}

func TestSequencerDetectsOutputCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "same.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var collided []string
	s, err := New([]string{path}, path)
	if err != nil {
		t.Fatal(err)
	}
	s.OnCollision = func(p string) { collided = append(collided, p) }

	d, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected collision to exhaust the sequencer, got %+v", d)
	}
	if len(collided) != 1 {
		t.Fatalf("expected one collision recorded, got %v", collided)
	}
}

func TestSequencerExhausted(t *testing.T) {
	s, err := New(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	d, err := s.Next()
	if err != nil || d != nil {
		t.Fatalf("expected (nil, nil) for an empty sequencer, got (%+v, %v)", d, err)
	}
}

func TestTotalSizeUnknownPoisonsTotal(t *testing.T) {
	var ts TotalSize
	ts.Add(&Descriptor{Kind: KindRegular, Size: 100})
	ts.Add(&Descriptor{Kind: KindFIFO, Size: 0})
	if got := ts.Total(); got != 0 {
		t.Fatalf("expected 0 when any input has unknown size, got %d", got)
	}
}

func TestTotalSizeSumsKnownSizes(t *testing.T) {
	var ts TotalSize
	ts.Add(&Descriptor{Kind: KindRegular, Size: 100})
	ts.Add(&Descriptor{Kind: KindRegular, Size: 50})
	if got := ts.Total(); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
}
