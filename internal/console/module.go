// Package console wires the backend client, caches, job runner, and local
// history into an fx application shared by tgrag and tgragctl.
package console

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/config"
	"github.com/matheus3301/tgrag/internal/history"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/lock"
	"github.com/matheus3301/tgrag/internal/logging"
	"github.com/matheus3301/tgrag/internal/profile"
	"github.com/matheus3301/tgrag/internal/search"
	"github.com/matheus3301/tgrag/internal/store"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile string
	// Exclusive takes the profile lock so only one console runs per profile.
	Exclusive bool
	// Interactive keeps log output off stderr.
	Interactive bool
	// ConfigPath overrides profile.ConfigPath(); BaseDir overrides the
	// per-profile directory root. Both are for tests.
	ConfigPath string
	BaseDir    string
}

// Paths are the per-profile filesystem locations.
type Paths struct {
	Dir     string
	LogPath string
	DBPath  string
}

// Module returns the fx module for a console process.
func Module(p Params) fx.Option {
	return fx.Module("console",
		fx.Supply(p),
		fx.Provide(
			providePaths,
			provideConfig,
			provideLogger,
			provideBus,
			provideClient,
			provideCache,
			provideStore,
			provideRecorder,
			provideJobRunner,
			provideSearchRunner,
			provideLock,
		),
		fx.Invoke(registerLifecycle),
	)
}

// WithLogger routes fx's own events into the console logger.
func WithLogger() fx.Option {
	return fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger.Named("fx")}
	})
}

func providePaths(p Params) (Paths, error) {
	if p.BaseDir == "" {
		if err := profile.EnsureDir(p.Profile); err != nil {
			return Paths{}, err
		}
		return Paths{
			Dir:     profile.Dir(p.Profile),
			LogPath: profile.LogPath(p.Profile),
			DBPath:  profile.HistoryDBPath(p.Profile),
		}, nil
	}
	return Paths{
		Dir:     p.BaseDir,
		LogPath: filepath.Join(p.BaseDir, "logs", "tgrag.log"),
		DBPath:  filepath.Join(p.BaseDir, "history.db"),
	}, nil
}

func provideConfig(p Params) (config.Profile, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return config.Profile{}, err
	}
	return cfg.Profile(p.Profile), nil
}

func provideLogger(p Params, paths Paths, cfg config.Profile) (*zap.Logger, error) {
	return logging.New(paths.LogPath, p.Profile, logging.Options{
		Level:  cfg.LogLevel,
		Stderr: !p.Interactive,
	})
}

func provideBus(logger *zap.Logger) *bus.Bus {
	return bus.New(logger)
}

func provideClient(cfg config.Profile, logger *zap.Logger) *backend.Client {
	return backend.New(cfg.BackendURL, cfg.RequestTimeout.Duration, logger)
}

func provideCache(c *backend.Client, cfg config.Profile, b *bus.Bus, logger *zap.Logger) (*cache.EntityCache, cache.Store) {
	ec := cache.New(c, cfg.CacheTTL.Duration, b, logger)
	return ec, ec
}

func provideStore(paths Paths, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(paths.DBPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", paths.DBPath, err)
	}
	if result.Changed() {
		logger.Info("history schema migrated", zap.Uint("from", result.From), zap.Uint("to", result.To))
	} else {
		logger.Debug("history schema up to date", zap.Uint("version", result.To))
	}
	return db, nil
}

func provideRecorder(db *store.DB, b *bus.Bus, ec *cache.EntityCache, logger *zap.Logger) *history.Recorder {
	return history.NewRecorder(db, b, ec, logger)
}

func provideJobRunner(c *backend.Client, b *bus.Bus, logger *zap.Logger) *job.Runner {
	return job.NewRunner(c, b, logger)
}

func provideSearchRunner(c *backend.Client, logger *zap.Logger) *search.Runner {
	return search.NewRunner(c, logger)
}

// provideLock yields a nil lock for non-exclusive processes.
func provideLock(p Params, paths Paths, logger *zap.Logger) (*lock.Lock, error) {
	if !p.Exclusive {
		return nil, nil
	}
	l, err := lock.Acquire(paths.Dir)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Profile, err)
	}
	logger.Info("profile lock acquired", zap.String("dir", paths.Dir))
	return l, nil
}

func registerLifecycle(lc fx.Lifecycle, p Params, cfg config.Profile, rec *history.Recorder, runner *job.Runner, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			rec.Start(context.Background())
			logger.Info("console started",
				zap.String("backend", cfg.BackendURL),
				zap.Bool("interactive", p.Interactive),
			)
			return nil
		},
		OnStop: func(_ context.Context) error {
			runner.Cancel()
			rec.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing history store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("console stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
