package chat

import (
	"testing"
	"time"
)

func TestGuardSuppressesStaleCountInsideWindow(t *testing.T) {
	g := NewGuard(100 * time.Millisecond)
	t0 := time.Now()

	g.MarkRead("A", t0)
	// Stale pre-write delivery still reports the old count.
	if got := g.Reconcile("A", 3, t0.Add(10*time.Millisecond)); got != 0 {
		t.Errorf("count inside window = %d, want 0", got)
	}
}

func TestGuardReleasesOnServerZero(t *testing.T) {
	g := NewGuard(100 * time.Millisecond)
	t0 := time.Now()

	g.MarkRead("A", t0)
	if got := g.Reconcile("A", 0, t0.Add(10*time.Millisecond)); got != 0 {
		t.Errorf("confirmed count = %d, want 0", got)
	}
	// Back to stable: a later non-zero count is genuinely new.
	if got := g.Reconcile("A", 2, t0.Add(20*time.Millisecond)); got != 2 {
		t.Errorf("post-confirm count = %d, want 2", got)
	}
}

func TestGuardTrustsServerAfterWindow(t *testing.T) {
	g := NewGuard(100 * time.Millisecond)
	t0 := time.Now()

	g.MarkRead("A", t0)
	if got := g.Reconcile("A", 1, t0.Add(200*time.Millisecond)); got != 1 {
		t.Errorf("count after window = %d, want 1", got)
	}
}

func TestGuardIsPerPartner(t *testing.T) {
	g := NewGuard(100 * time.Millisecond)
	t0 := time.Now()

	g.MarkRead("A", t0)
	if got := g.Reconcile("B", 4, t0); got != 4 {
		t.Errorf("partner B count = %d, want 4 (guard must not leak across partners)", got)
	}
}
