package procwatch

import (
	"os"
	"testing"
)

func TestParsePIDFD(t *testing.T) {
	pid, fd, err := ParsePIDFD("1234:5")
	if err != nil {
		t.Fatal(err)
	}
	if pid != 1234 || fd != 5 {
		t.Fatalf("got pid=%d fd=%d, want 1234/5", pid, fd)
	}
}

func TestParsePIDFDInvalid(t *testing.T) {
	cases := []string{"", "1234", "abc:5", "1234:xyz"}
	for _, c := range cases {
		if _, _, err := ParsePIDFD(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}

func TestPollSelfFD(t *testing.T) {
	// /proc/<own pid>/fdinfo/0 should be readable, and the first poll of
	// this process's own fd should not report exited.
	w := New(os.Getpid(), 0)
	_, _, exited, err := w.Poll()
	if err != nil {
		t.Skipf("fdinfo not available in this environment: %v", err)
	}
	if exited {
		t.Fatalf("did not expect the current process's own fd to report exited")
	}
}
