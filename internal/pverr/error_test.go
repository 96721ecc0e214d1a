package pverr

import (
	"errors"
	"testing"
)

func TestWrapNilIsNil(t *testing.T) {
	if Wrap("x", nil) != nil {
		t.Fatal("expected Wrap(_, nil) to return nil")
	}
}

func TestWrapUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := Wrap("reading input", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to see through Wrap, got %v", err)
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	if errors.Is(ErrClosed, ErrNoSuchInput) {
		t.Fatal("sentinel errors should not compare equal")
	}
}
