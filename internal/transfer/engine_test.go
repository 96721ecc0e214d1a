package transfer

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestSkipStepSchedule(t *testing.T) {
	cases := []struct {
		errs int
		want int
	}{
		{1, 1}, {4, 1},
		{5, 2}, {9, 2},
		{10, 2}, {11, 4}, {19, 512},
		{20, 512}, {100, 512},
	}
	for _, c := range cases {
		if got := skipStep(c.errs); got != c.want {
			t.Errorf("skipStep(%d) = %d, want %d", c.errs, got, c.want)
		}
	}
}

func TestLastIndexByte(t *testing.T) {
	if got := lastIndexByte([]byte("ab\ncd\n"), '\n'); got != 5 {
		t.Errorf("lastIndexByte = %d, want 5", got)
	}
	if got := lastIndexByte([]byte("abcd"), '\n'); got != -1 {
		t.Errorf("lastIndexByte with no match = %d, want -1", got)
	}
}

func TestCountByte(t *testing.T) {
	if got := countByte([]byte("a\nb\nc\n"), '\n'); got != 3 {
		t.Errorf("countByte = %d, want 3", got)
	}
}

func TestTickMovesBytesOverPipe(t *testing.T) {
	srcR, srcW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer srcR.Close()
	defer srcW.Close()

	dstR, dstW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer dstR.Close()
	defer dstW.Close()

	if err := unix.SetNonblock(int(srcR.Fd()), true); err != nil {
		t.Fatal(err)
	}
	if err := unix.SetNonblock(int(dstW.Fd()), true); err != nil {
		t.Fatal(err)
	}

	if _, err := srcW.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}

	e := New(64)
	e.NoZeroCopy = true

	var res Result
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		res = e.Tick(int(srcR.Fd()), int(dstW.Fd()), false, 0)
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if e.TotalBytes() >= 11 {
			break
		}
	}
	if e.TotalBytes() != 11 {
		t.Fatalf("expected 11 bytes transferred, got %d", e.TotalBytes())
	}

	out := make([]byte, 11)
	if err := unix.SetNonblock(int(dstR.Fd()), false); err != nil {
		t.Fatal(err)
	}
	n, err := dstR.Read(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "hello world" {
		t.Fatalf("got %q, want %q", out[:n], "hello world")
	}
}

func TestTickRespectsStopAtSize(t *testing.T) {
	srcR, srcW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer srcR.Close()
	defer srcW.Close()
	dstR, dstW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer dstR.Close()
	defer dstW.Close()

	e := New(64)
	e.NoZeroCopy = true
	e.StopAtSize = true
	e.DeclaredSize = 0
	e.totalBytes = 0
	e.StopAtSize = true
	e.DeclaredSize = 5
	e.totalBytes = 5

	res := e.Tick(int(srcR.Fd()), int(dstW.Fd()), false, 0)
	if !res.EOFIn || !res.EOFOut {
		t.Fatalf("expected immediate EOF once declared size reached, got %+v", res)
	}
}
