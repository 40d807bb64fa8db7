package chat

import (
	"sync"
	"time"
)

// DefaultGuardWindow bounds how long an optimistic zero outlives the write
// that caused it before server counts are trusted again.
const DefaultGuardWindow = 5 * time.Second

// Guard holds the per-partner optimistic mark-read state. After MarkRead the
// partner's unread count reads as zero; a stale pre-write count re-delivered
// by the subscription within the guard window is suppressed instead of
// regressing the display. Once the window elapses, or the server confirms
// zero, server values win again.
type Guard struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // partner id -> optimistic-zero start
}

// NewGuard creates a guard with the given window; zero means the default.
func NewGuard(window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultGuardWindow
	}
	return &Guard{
		window:  window,
		pending: make(map[string]time.Time),
	}
}

// MarkRead enters the optimistic-zero state for a partner.
func (g *Guard) MarkRead(partnerID string, now time.Time) {
	g.mu.Lock()
	g.pending[partnerID] = now
	g.mu.Unlock()
}

// Reconcile folds a freshly computed server-side count through the guard and
// returns the count to display. Server confirmation of zero, or expiry of
// the window, returns the partner to the stable state.
func (g *Guard) Reconcile(partnerID string, serverCount int, now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	since, ok := g.pending[partnerID]
	if !ok {
		return serverCount
	}
	if serverCount == 0 {
		delete(g.pending, partnerID)
		return 0
	}
	if now.Sub(since) < g.window {
		// Stale pre-write delivery; hold the optimistic zero.
		return 0
	}
	// Window elapsed and the server still reports unread: genuinely new
	// messages arrived after the mark, so trust the server again.
	delete(g.pending, partnerID)
	return serverCount
}
