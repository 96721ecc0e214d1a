package zerocopy

import "testing"

func TestRejectSet(t *testing.T) {
	r := NewRejectSet()
	if r.Rejected(5) {
		t.Fatal("fd should not start rejected")
	}
	r.Reject(5)
	if !r.Rejected(5) {
		t.Fatal("expected fd 5 to be rejected")
	}
	if r.Rejected(6) {
		t.Fatal("rejecting fd 5 should not affect fd 6")
	}
	r.Forget(5)
	if r.Rejected(5) {
		t.Fatal("expected Forget to clear rejection")
	}
}

func TestMoveZeroMaxIsNoop(t *testing.T) {
	n, err := Move(1, 0, 0)
	if n != 0 || err != nil {
		t.Fatalf("Move with max=0 should be a no-op, got (%d, %v)", n, err)
	}
}
