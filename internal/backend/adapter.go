// Package backend ties the REST client, the realtime client and the derived
// chat/notification views together into one logged-in session lifecycle.
package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minhbui/trovia/internal/blob"
	"github.com/minhbui/trovia/internal/bus"
	"github.com/minhbui/trovia/internal/chat"
	"github.com/minhbui/trovia/internal/config"
	"github.com/minhbui/trovia/internal/notify"
	"github.com/minhbui/trovia/internal/realtime"
	"github.com/minhbui/trovia/internal/rest"
	"github.com/minhbui/trovia/internal/session"
	"github.com/minhbui/trovia/internal/status"
	"github.com/minhbui/trovia/internal/store"
	"go.uber.org/zap"
)

// Adapter owns the per-session connection to the Trovia services. While a
// user is logged in it runs the realtime client plus the aggregator and
// notifier on top of it; on logout or session expiry it tears them down and
// returns the state machine to AUTH_REQUIRED.
type Adapter struct {
	cfg      *config.Config
	sessions session.Store
	rest     *rest.Client
	db       *store.DB
	bus      *bus.Bus
	machine  *status.Machine
	logger   *zap.Logger

	mu       sync.Mutex
	rt       *realtime.Client
	agg      *chat.Aggregator
	notifier *notify.Notifier
	cancel   context.CancelFunc
}

// NewAdapter wires the REST pipeline and registers the session-expired
// handler. The realtime side starts on Connect.
func NewAdapter(cfg *config.Config, sessions session.Store, db *store.DB, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Adapter {
	a := &Adapter{
		cfg:      cfg,
		sessions: sessions,
		rest:     rest.New(cfg.API, sessions, logger),
		db:       db,
		bus:      b,
		machine:  machine,
		logger:   logger,
	}
	a.rest.SetSessionExpiredHandler(a.onSessionExpired)
	return a
}

// Rest exposes the authenticated REST client for profile, favorites and
// address lookups.
func (a *Adapter) Rest() *rest.Client { return a.rest }

// IsLoggedIn reports whether a persisted session with a token exists.
func (a *Adapter) IsLoggedIn() bool {
	st, err := a.sessions.Load()
	return err == nil && st.AccessToken != ""
}

// CurrentUser returns the persisted user, or nil when logged out.
func (a *Adapter) CurrentUser() *session.User {
	st, err := a.sessions.Load()
	if err != nil {
		return nil
	}
	return st.User
}

// Login authenticates against the backend and, on success, brings the
// realtime side up for the new user.
func (a *Adapter) Login(ctx context.Context, username, password string) (*session.User, error) {
	_ = a.machine.Transition(status.Authenticating)
	user, err := a.rest.Login(ctx, username, password)
	if err != nil {
		_ = a.machine.Transition(status.AuthRequired)
		return nil, err
	}
	if err := a.Connect(); err != nil {
		return nil, err
	}
	return user, nil
}

// Connect starts the realtime client, the aggregator and the notifier for
// the persisted user. The machine moves READY once the first recompute
// lands.
func (a *Adapter) Connect() error {
	st, err := a.sessions.Load()
	if err != nil || st.User == nil {
		return fmt.Errorf("no persisted user to connect")
	}
	selfID := st.User.ID

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rt != nil {
		return nil // already connected
	}

	_ = a.machine.Transition(status.Connecting)

	token := func() string {
		st, err := a.sessions.Load()
		if err != nil {
			return ""
		}
		return st.AccessToken
	}
	rt := realtime.NewClient(a.cfg.Realtime, token, a.logger)
	rt.SetConnHandler(a.onConnState)
	ctx, cancel := context.WithCancel(context.Background())

	// The recompute listener attaches before anything starts so the very
	// first recompute cannot slip past it.
	sub := a.bus.Subscribe("chat.updated", 1)
	go a.watchSync(ctx, sub)

	rt.Start(ctx)

	var uploads chat.Uploads
	if a.cfg.Storage.Endpoint != "" {
		up, err := blob.New(a.cfg.Storage)
		if err != nil {
			a.logger.Warn("blob storage unavailable, image messages disabled", zap.Error(err))
		} else {
			uploads = up
		}
	}

	guardWindow := time.Duration(a.cfg.ReadGuardMS) * time.Millisecond
	agg := chat.New(selfID, rt, a.rest, uploads, a.db, a.bus, guardWindow, a.logger)
	if err := agg.Start(); err != nil {
		cancel()
		rt.Close()
		_ = a.machine.Transition(status.Error)
		return err
	}

	notifier := notify.New(selfID, rt, a.db, a.bus, a.logger)
	if err := notifier.Start(); err != nil {
		agg.Stop()
		cancel()
		rt.Close()
		_ = a.machine.Transition(status.Error)
		return err
	}

	a.rt = rt
	a.agg = agg
	a.notifier = notifier
	a.cancel = cancel

	_ = a.machine.Transition(status.Syncing)

	a.logger.Info("connected", zap.String("user", selfID))
	return nil
}

// watchSync flips SYNCING to READY whenever a recompute lands. It stays
// attached for the lifetime of the connection, however long the first sync
// takes, and also recovers READY after a reconnect resync.
func (a *Adapter) watchSync(ctx context.Context, sub *bus.Subscription) {
	defer sub.Detach()
	for {
		select {
		case <-sub.C():
			if a.machine.Current() == status.Syncing {
				_ = a.machine.Transition(status.Ready)
			}
		case <-ctx.Done():
			return
		}
	}
}

// onConnState mirrors realtime connectivity into the state machine: a
// dropped link parks READY or SYNCING on RECONNECTING; a successful redial
// walks back to SYNCING until the resync recompute restores READY.
func (a *Adapter) onConnState(connected bool) {
	if connected {
		if a.machine.Current() == status.Reconnecting {
			_ = a.machine.Transition(status.Connecting)
			_ = a.machine.Transition(status.Syncing)
		}
		return
	}
	switch a.machine.Current() {
	case status.Ready, status.Syncing:
		a.logger.Warn("realtime connection lost")
		_ = a.machine.Transition(status.Reconnecting)
	}
}

// Logout tears the realtime side down and clears the persisted session.
func (a *Adapter) Logout() error {
	a.Disconnect()
	if err := a.rest.Logout(); err != nil {
		return err
	}
	_ = a.machine.Transition(status.AuthRequired)
	return nil
}

// Disconnect stops the realtime client and derived views. Idempotent.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rt == nil {
		return
	}
	a.notifier.Stop()
	a.agg.Stop()
	a.cancel()
	a.rt.Close()
	a.rt, a.agg, a.notifier, a.cancel = nil, nil, nil, nil
	a.logger.Info("disconnected")
}

// Aggregator returns the live aggregator, or nil when logged out.
func (a *Adapter) Aggregator() *chat.Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.agg
}

// Notifier returns the live notifier, or nil when logged out.
func (a *Adapter) Notifier() *notify.Notifier {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notifier
}

// onSessionExpired fires once per terminal refresh failure: the pipeline has
// already cleared the session store.
func (a *Adapter) onSessionExpired() {
	a.logger.Warn("session expired, forcing logout")
	a.Disconnect()
	_ = a.machine.Transition(status.AuthRequired)
	a.bus.Publish(bus.Event{Kind: "session.expired", Timestamp: time.Now()})
}
