package sysvipc

import (
	"os"
	"testing"
)

func TestFtokIsStableForSamePathAndID(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ftok")
	if err != nil {
		t.Fatal(err)
	}
	path := f.Name()
	f.Close()

	k1, err := Ftok(path, 'x')
	if err != nil {
		t.Fatal(err)
	}
	k2, err := Ftok(path, 'x')
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatalf("expected stable key for repeated Ftok calls, got %d and %d", k1, k2)
	}
}

func TestFtokDiffersByProjID(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ftok")
	if err != nil {
		t.Fatal(err)
	}
	path := f.Name()
	f.Close()

	k1, err := Ftok(path, 'a')
	if err != nil {
		t.Fatal(err)
	}
	k2, err := Ftok(path, 'b')
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Fatalf("expected different keys for different project ids, got %d for both", k1)
	}
}

func TestFtokMissingPath(t *testing.T) {
	if _, err := Ftok("/nonexistent/path/for/pv/tests", 'x'); err == nil {
		t.Fatal("expected an error for a nonexistent path")
	}
}
