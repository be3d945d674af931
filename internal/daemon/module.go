// Package daemon composes the serve-mode process out of the individual
// components via fx.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmartins/wamirror/internal/api"
	"github.com/mmartins/wamirror/internal/bus"
	"github.com/mmartins/wamirror/internal/config"
	"github.com/mmartins/wamirror/internal/ingest"
	"github.com/mmartins/wamirror/internal/lock"
	"github.com/mmartins/wamirror/internal/logging"
	"github.com/mmartins/wamirror/internal/paths"
	"github.com/mmartins/wamirror/internal/status"
	"github.com/mmartins/wamirror/internal/store"
	"github.com/mmartins/wamirror/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved runtime configuration passed to the fx module.
type Params struct {
	DataDir string
}

// Module returns the fx module for the mirror daemon.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			provideReconciler,
			provideEngine,
			provideSupervisor,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := paths.EnsureDataDir(p.DataDir); err != nil {
		return nil, err
	}
	return config.Load(paths.ConfigPath(p.DataDir))
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(paths.LogPath(p.DataDir), cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired", zap.String("data_dir", p.DataDir))
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.MirrorDBPath(p.DataDir)
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
	logger.Info("mirror store opened", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.DataDir, logger)
}

func provideReconciler(db *store.DB, logger *zap.Logger) *ingest.Reconciler {
	return ingest.NewReconciler(db, logger)
}

func provideEngine(rec *ingest.Reconciler, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(rec, b, logger)
}

func provideSupervisor(p Params, adapter *wa.Adapter, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *wa.Supervisor {
	return wa.NewSupervisor(adapter, b, machine, logger, p.DataDir)
}

func provideServer(cfg *config.Config, db *store.DB, machine *status.Machine, adapter *wa.Adapter, logger *zap.Logger) *api.Server {
	return api.NewServer(cfg.HTTP.Addr, db, machine, adapter, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	srv *api.Server,
	lk *lock.Lock,
	adapter *wa.Adapter,
	supervisor *wa.Supervisor,
	engine *ingest.Engine,
	machine *status.Machine,
	b *bus.Bus,
	logger *zap.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !adapter.IsLoggedIn() {
				return fmt.Errorf("no paired session found; run with --auth to pair this device first")
			}

			// Engine first so no event published during connect is lost.
			engine.Start(runCtx)

			handler := wa.NewEventHandler(b, machine, logger)
			adapter.RegisterEventHandler(handler.Handle)

			go func() {
				err := supervisor.Run(runCtx)
				if errors.Is(err, wa.ErrLoggedOut) {
					logger.Error("session revoked by phone, shutting down")
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			engine.Stop()
			adapter.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
