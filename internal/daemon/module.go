package daemon

import (
	"context"

	"github.com/minhbui/trovia/internal/api"
	"github.com/minhbui/trovia/internal/backend"
	"github.com/minhbui/trovia/internal/bus"
	"github.com/minhbui/trovia/internal/config"
	"github.com/minhbui/trovia/internal/lock"
	"github.com/minhbui/trovia/internal/logging"
	"github.com/minhbui/trovia/internal/session"
	"github.com/minhbui/trovia/internal/status"
	"github.com/minhbui/trovia/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSessionStore,
			provideAdapter,
			provideSessionService,
			provideChatService,
			provideMessageService,
			provideNotifyService,
			provideProfileService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig() *config.Config {
	return config.LoadOrDefault(session.ConfigPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSessionStore(p Params) session.Store {
	return session.NewFileStore(session.AuthStatePath(p.SessionName))
}

func provideAdapter(cfg *config.Config, sessions session.Store, db *store.DB, b *bus.Bus, m *status.Machine, logger *zap.Logger) *backend.Adapter {
	return backend.NewAdapter(cfg, sessions, db, b, m, logger)
}

func provideSessionService(p Params, m *status.Machine, adapter *backend.Adapter, b *bus.Bus, db *store.DB) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, adapter, b, db)
}

func provideChatService(db *store.DB, adapter *backend.Adapter, b *bus.Bus) *api.ChatService {
	return api.NewChatService(db, adapter, b)
}

func provideMessageService(adapter *backend.Adapter, b *bus.Bus) *api.MessageService {
	return api.NewMessageService(adapter, b)
}

func provideNotifyService(db *store.DB, adapter *backend.Adapter) *api.NotifyService {
	return api.NewNotifyService(db, adapter)
}

func provideProfileService(adapter *backend.Adapter) *api.ProfileService {
	return api.NewProfileService(adapter)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, adapter *backend.Adapter, db *store.DB, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the control server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			// Resume the persisted session, if any.
			if adapter.IsLoggedIn() {
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
					}
				}()
			} else {
				logger.Info("no credentials found, auth required")
				_ = machine.Transition(status.AuthRequired)
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			adapter.Disconnect()
			srv.Stop(ctx)
			_ = db.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
