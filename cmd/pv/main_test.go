package main

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100", 100},
		{"4k", 4000},
		{"4K", 4096},
		{"2M", 2 * 1024 * 1024},
		{"1g", 1_000_000_000},
	}
	for _, c := range cases {
		got, err := parseSize(c.in)
		if err != nil {
			t.Fatalf("parseSize(%q) returned error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("parseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSizeEmpty(t *testing.T) {
	got, err := parseSize("")
	if err != nil || got != 0 {
		t.Fatalf("parseSize(\"\") = (%d, %v), want (0, nil)", got, err)
	}
}
