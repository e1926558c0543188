package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"endorser/internal/chain"
	"endorser/internal/claims/metrics"
	"endorser/internal/claims/ports"
	"endorser/internal/claims/store/memory"
	"endorser/internal/claims/store/postgres"
	"endorser/internal/network"
	"endorser/internal/platform/config"
	"endorser/internal/platform/redis"
	"endorser/pkg/platform/audit/publisher"
	auditmemory "endorser/pkg/platform/audit/store/memory"
	"endorser/pkg/platform/circuit"
)

// deps are the long-lived resources both commands build from config.
type deps struct {
	db      *sql.DB
	redis   *redis.Client
	store   ports.Store
	network ports.NetworkRecorder
	locker  chain.Locker
	audit   *publisher.Publisher
	metrics *metrics.Metrics
	closers []func() error
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{metrics: metrics.New()}

	if cfg.Database.URL != "" {
		db, err := sql.Open("pgx", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		d.closers = append(d.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		pg := postgres.New(db)
		if err := pg.Migrate(ctx); err != nil {
			d.Close()
			return nil, err
		}
		d.db, d.store = db, pg
		logger.InfoContext(ctx, "using postgres claim store")
	} else {
		d.store = memory.NewInMemoryStore()
		logger.WarnContext(ctx, "no database configured, claims are kept in memory")
	}

	rc, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		d.Close()
		return nil, err
	}
	if rc != nil {
		d.redis = rc
		d.closers = append(d.closers, rc.Close)
		guarded := network.NewGuarded(network.NewRedis(rc.Client), circuit.New("redis-network"),
			network.WithGuardLogger(logger))
		d.network = network.NewCached(guarded, cfg.Claims.NetworkCacheTTL)
		d.locker = chain.NewRedisLocker(rc.Client, chain.DefaultLeaseKey, cfg.Chain.LeaseTTL)
	} else {
		d.network = network.NewMemory()
		d.locker = &chain.MutexLocker{}
	}

	d.audit = publisher.NewPublisher(auditmemory.NewInMemoryStore(),
		publisher.WithAsyncBuffer(cfg.Claims.AuditBuffer),
		publisher.WithLogger(logger),
	)
	d.closers = append(d.closers, func() error {
		d.audit.Close()
		return nil
	})
	return d, nil
}

// Health reports whether the configured backends answer.
func (d *deps) Health(ctx context.Context) error {
	var errs []error
	if d.db != nil {
		if err := d.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if d.redis != nil {
		if err := d.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *deps) chainRunner(cfg *config.Config, logger *slog.Logger) (*chain.Runner, error) {
	return chain.NewRunner(d.store,
		chain.WithLogger(logger),
		chain.WithMetrics(d.metrics),
		chain.WithAuditPublisher(d.audit),
		chain.WithLocker(d.locker),
		chain.WithBatchSize(cfg.Chain.BatchSize),
	)
}
