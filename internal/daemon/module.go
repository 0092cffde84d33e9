// Package daemon composes the application: storage, telemetry ingestion,
// reconciliation, and mode control wired together behind fx lifecycle hooks.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/karlfish/fishlog/internal/bus"
	"github.com/karlfish/fishlog/internal/config"
	"github.com/karlfish/fishlog/internal/identity"
	"github.com/karlfish/fishlog/internal/lock"
	"github.com/karlfish/fishlog/internal/logging"
	"github.com/karlfish/fishlog/internal/mode"
	"github.com/karlfish/fishlog/internal/paths"
	"github.com/karlfish/fishlog/internal/remote"
	"github.com/karlfish/fishlog/internal/status"
	"github.com/karlfish/fishlog/internal/store"
	intsync "github.com/karlfish/fishlog/internal/sync"
	"github.com/karlfish/fishlog/internal/telemetry"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideDB,
			provideIdentity,
			provideLocal,
			provideClock,
			provideRemote,
			provideSyncEngine,
			provideModeController,
			provideIngestor,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.LoadOrDefault(paths.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(paths.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := paths.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(paths.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideDB(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.DBPath(p.Profile)
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

func provideIdentity(cfg *config.Config) identity.Provider {
	if cfg.UserID != "" {
		return identity.Static{Owner: identity.Authenticated(cfg.UserID)}
	}
	return identity.Static{Owner: identity.AnonymousLocal()}
}

func provideLocal(db *store.DB, ident identity.Provider, b *bus.Bus, logger *zap.Logger) *store.Local {
	return store.NewLocal(db, ident, b, logger)
}

func provideClock(local *store.Local) *intsync.Clock {
	return intsync.NewClock(local)
}

func provideRemote(cfg *config.Config) remote.Store {
	return remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey)
}

func provideSyncEngine(cfg *config.Config, local *store.Local, backend remote.Store, clock *intsync.Clock, ident identity.Provider, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	opts := intsync.Options{
		DuplicateEpsilon: cfg.Sync.DuplicateEpsilon,
		CallTimeout:      time.Duration(cfg.Sync.CallTimeoutSec) * time.Second,
	}
	return intsync.NewEngine(local, backend, clock, ident, b, logger, opts)
}

func provideModeController(local *store.Local, ident identity.Provider, b *bus.Bus, logger *zap.Logger) *mode.Controller {
	return mode.NewController(local, ident, nil, b, logger)
}

func provideIngestor(local *store.Local, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *telemetry.Ingestor {
	return telemetry.NewIngestor(local, machine, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, lk *lock.Lock, controller *mode.Controller, engine *intsync.Engine, ingestor *telemetry.Ingestor, b *bus.Bus, logger *zap.Logger) {
	var unsubscribe func()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := controller.Startup(); err != nil {
				return err
			}

			// Lifting offline mode is the cue to reconcile.
			events, unsub := b.Subscribe("mode.", 16)
			unsubscribe = unsub
			go func() {
				for ev := range events {
					change, ok := ev.Payload.(mode.Change)
					if !ok || change.Offline {
						continue
					}
					if _, err := engine.RunPass(context.Background()); err != nil {
						logger.Warn("post-online sync pass failed", zap.Error(err))
					}
				}
			}()

			// Initial pass, when the mode allows one.
			go func() {
				should, err := controller.ShouldSync()
				if err != nil || !should {
					return
				}
				if _, err := engine.RunPass(context.Background()); err != nil {
					logger.Warn("startup sync pass failed", zap.Error(err))
				}
			}()

			if cfg.Telemetry.Autoconnect {
				t := cfg.Telemetry
				go func() {
					if err := ingestor.Connect(t.Address, t.Port, t.Simulated); err != nil {
						logger.Error("telemetry auto-connect failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			ingestor.Disconnect()
			if unsubscribe != nil {
				unsubscribe()
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
