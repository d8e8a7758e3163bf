package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/internal/config"
	"github.com/aretw0/sluice/pkg/adapters/file"
	"github.com/aretw0/sluice/pkg/adapters/memory"
	"github.com/aretw0/sluice/pkg/adapters/redis"
	"github.com/aretw0/sluice/pkg/dsl"
	"github.com/aretw0/sluice/pkg/observability"
	"github.com/aretw0/sluice/pkg/persistence"
	"github.com/aretw0/sluice/pkg/persistence/middleware"
	"github.com/aretw0/sluice/pkg/ports"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore builds the snapshot store named by the configuration, wrapped in
// the redaction and encryption middleware it asks for. A nil store means
// persistence is off.
func openStore(cfg config.Store, logger *slog.Logger) (ports.StateStore, []persistence.Option, io.Closer, error) {
	var (
		store  ports.StateStore
		opts   []persistence.Option
		closer io.Closer = nopCloser{}
	)
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil, closer, nil
	case config.BackendMemory:
		store = memory.NewStore()
	case config.BackendFile:
		store = file.New(cfg.Path)
	case config.BackendRedis:
		rs := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		store, closer = rs, rs
		opts = append(opts, persistence.WithLocker(redis.NewLocker(rs.Client(), cfg.Redis.Prefix)))
	default:
		return nil, nil, closer, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if cfg.LockTTL > 0 {
		opts = append(opts, persistence.WithLockTTL(cfg.LockTTL))
	}

	// Redaction runs before encryption so masked values never reach the cipher.
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		mws = append(mws, middleware.NewRedactMiddleware(cfg.Redact))
	}
	if cfg.EncryptionKey != "" {
		key, err := cfg.Key()
		if err != nil {
			return nil, nil, closer, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	logger.Debug("snapshot store opened", "backend", cfg.Backend, "middleware", len(mws))
	return middleware.Chain(store, mws...), opts, closer, nil
}

// createEngine initializes an engine with standard CLI conventions.
func createEngine(name string, cfg config.Config, logger *slog.Logger) (*sluice.Engine, *observability.Metrics, io.Closer, error) {
	engineOpts := []sluice.Option{
		sluice.WithName(name),
		sluice.WithLogger(logger),
		sluice.WithThreading(cfg.Engine.Threading),
		sluice.WithGrouping(cfg.Engine.Grouping),
	}

	var metrics *observability.Metrics
	if cfg.Monitor.Metrics {
		metrics = observability.NewMetrics()
		engineOpts = append(engineOpts, sluice.WithMetrics(metrics))
	}

	store, storeOpts, closer, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error opening snapshot store: %w", err)
	}
	if store != nil {
		engineOpts = append(engineOpts, sluice.WithStore(store, storeOpts...))
	}
	return sluice.New(engineOpts...), metrics, closer, nil
}

// applyDefaults fills in what the definition leaves to the configuration.
func applyDefaults(def *dsl.Definition, cfg config.Config) {
	for i := range def.Nodes {
		if def.Nodes[i].Mode == "" {
			def.Nodes[i].Mode = cfg.Engine.Mode
		}
	}
}
