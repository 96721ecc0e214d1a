package remote

import (
	"testing"
	"time"

	"github.com/icetee/pv/internal/pvconfig"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := Message{
		Present:   fieldRateLimit | fieldFormat,
		RateLimit: 4096,
		Format:    "%p %t",
	}
	got, err := Decode(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.Present != m.Present || got.RateLimit != m.RateLimit || got.Format != m.Format {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestEncodeDecodeRoundTripNameAndDimensions(t *testing.T) {
	m := Message{
		Present:    fieldName | fieldBufferSize | fieldWidth | fieldHeight,
		Name:       "X",
		BufferSize: 65536,
		Width:      100,
		Height:     40,
	}
	got, err := Decode(m.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != m.Name || got.BufferSize != m.BufferSize || got.Width != m.Width || got.Height != m.Height {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestApplyName(t *testing.T) {
	cfg := pvconfig.Default()
	cfg.Name = "old"
	m := Message{Present: fieldName, Name: "X"}
	m.Apply(cfg)
	if cfg.Name != "X" {
		t.Fatalf("expected name updated to X, got %q", cfg.Name)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a too-short buffer")
	}
}

func TestFromConfigOnlyMarksSetFields(t *testing.T) {
	cfg := pvconfig.Default()
	cfg.RateLimit = 123
	m := FromConfig(cfg)
	if m.Present&fieldRateLimit == 0 {
		t.Fatal("expected rate limit field marked present")
	}
	if m.Present&fieldSize != 0 {
		t.Fatal("size should not be marked present when unset")
	}
}

func TestApplyMergesOnlyPresentFields(t *testing.T) {
	cfg := pvconfig.Default()
	cfg.RateLimit = 10
	cfg.Format = "old"

	m := Message{Present: fieldFormat, Format: "new"}
	changed := m.Apply(cfg)

	if !changed {
		t.Fatal("expected format change to be reported")
	}
	if cfg.Format != "new" {
		t.Fatalf("expected format updated, got %q", cfg.Format)
	}
	if cfg.RateLimit != 10 {
		t.Fatalf("expected rate limit untouched, got %d", cfg.RateLimit)
	}
}

func TestApplyInterval(t *testing.T) {
	cfg := pvconfig.Default()
	m := Message{Present: fieldInterval, Interval: int64(2 * time.Second)}
	m.Apply(cfg)
	if cfg.Interval != 2*time.Second {
		t.Fatalf("expected interval updated to 2s, got %v", cfg.Interval)
	}
}
