package display

import "testing"

func TestFormatBytesSI(t *testing.T) {
	cases := []struct {
		n    int64
		iec  bool
		want string
	}{
		{512, false, "512B"},
		{1500, false, "1.50kB"},
		{1500000, false, "1.50MB"},
		{1024, true, "1.00KiB"},
		{1048576, true, "1.00MiB"},
	}
	for _, c := range cases {
		if got := FormatBytes(c.n, c.iec); got != c.want {
			t.Errorf("FormatBytes(%d, %v) = %q, want %q", c.n, c.iec, got, c.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		secs int64
		want string
	}{
		{0, "0:00:00"},
		{59, "0:00:59"},
		{61, "0:01:01"},
		{3661, "1:01:01"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.secs); got != c.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", c.secs, got, c.want)
		}
	}
}

func TestFormatRateNegativeKeepsSign(t *testing.T) {
	got := FormatRate(-100, false)
	if got[0] != '-' {
		t.Errorf("expected a leading sign for negative rate, got %q", got)
	}
}
