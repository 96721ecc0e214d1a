package display

import "fmt"

// siSuffixes and iecSuffixes implement spec.md section 4.2's "SI/IEC number
// formatting": a letter sequence resolved to whichever range is practical
// for byte counts and rates (bytes, kilo/kibi through exa/exbi).
var siSuffixes = [...]string{"", "k", "M", "G", "T", "P", "E"}
var iecSuffixes = [...]string{"", "Ki", "Mi", "Gi", "Ti", "Pi", "Ei"}

// FormatBytes renders n bytes as a fixed-width-ish human string, e.g.
// "1.23MiB" or "512B". iec selects 1024-based suffixes; otherwise 1000-based.
func FormatBytes(n int64, iec bool) string {
	return formatUnit(n, iec, "B")
}

// FormatRate renders a bytes-per-second rate, e.g. "4.50MiB/s".
func FormatRate(bytesPerSec float64, iec bool) string {
	return formatUnitFloat(bytesPerSec, iec, "B/s")
}

func formatUnit(n int64, iec bool, unit string) string {
	if n < 0 {
		return "-" + formatUnit(-n, iec, unit)
	}
	base := 1000.0
	suffixes := &siSuffixes
	if iec {
		base = 1024.0
		suffixes = &iecSuffixes
	}
	v := float64(n)
	idx := 0
	for v >= base && idx < len(suffixes)-1 {
		v /= base
		idx++
	}
	if idx == 0 {
		return fmt.Sprintf("%d%s", n, unit)
	}
	return fmt.Sprintf("%.2f%s%s", v, suffixes[idx], unit)
}

func formatUnitFloat(n float64, iec bool, unit string) string {
	neg := n < 0
	if neg {
		n = -n
	}
	base := 1000.0
	suffixes := &siSuffixes
	if iec {
		base = 1024.0
		suffixes = &iecSuffixes
	}
	idx := 0
	for n >= base && idx < len(suffixes)-1 {
		n /= base
		idx++
	}
	sign := ""
	if neg {
		sign = "-"
	}
	if idx == 0 {
		return fmt.Sprintf("%s%.2f%s", sign, n, unit)
	}
	return fmt.Sprintf("%s%.2f%s%s", sign, n, suffixes[idx], unit)
}

// FormatDuration renders elapsed/ETA time as H:MM:SS, growing the leftmost
// field as needed (spec.md section 4.2's timer/ETA components).
func FormatDuration(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
