package chain

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"endorser/internal/claims/metrics"
	"endorser/internal/claims/models"
	"endorser/internal/claims/ports"
	"endorser/pkg/platform/audit"
	"endorser/pkg/platform/sentinel"
)

const DefaultBatchSize = 500

// Runner extends the stored chain over rows that have no chain values yet.
type Runner struct {
	store          ports.ChainStore
	locker         Locker
	batchSize      int
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(r *Runner) {
		r.auditPublisher = publisher
	}
}

// WithLocker replaces the in-process MutexLocker, e.g. with a RedisLocker
// when several processes share one database.
func WithLocker(locker Locker) Option {
	return func(r *Runner) {
		r.locker = locker
	}
}

func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRunner(store ports.ChainStore, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, errors.New("chain store is required")
	}
	r := &Runner{
		store:     store,
		locker:    &MutexLocker{},
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		tracer:    otel.Tracer("endorser/chain"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunOnce links every unchained row and returns how many it linked. It
// returns 0 without error when another writer holds the lock.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "chain.RunOnce")
	defer span.End()
	start := time.Now()

	release, ok, err := r.locker.TryLock(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		return 0, err
	}
	if !ok {
		r.logger.DebugContext(ctx, "chain writer busy")
		return 0, nil
	}
	defer release()

	linked, err := r.linkAll(ctx)
	r.metrics.AddChainLinked(linked)
	r.metrics.ObserveChainRun(start)
	span.SetAttributes(attribute.Int("chain.linked", linked))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "link")
		return linked, err
	}
	if linked > 0 {
		ports.LogAudit(ctx, r.logger, r.auditPublisher, audit.EventChainAdvanced,
			"reason", strconv.Itoa(linked)+" rows linked")
	}
	return linked, nil
}

func (r *Runner) linkAll(ctx context.Context) (int, error) {
	seed, err := r.loadSeed(ctx)
	if err != nil {
		return 0, err
	}
	linked := 0
	for {
		if err := ctx.Err(); err != nil {
			return linked, err
		}
		rows, err := r.store.ListUnchainedClaims(ctx, r.batchSize)
		if err != nil {
			return linked, err
		}
		if len(rows) == 0 {
			return linked, nil
		}
		if err := r.loadIssuers(ctx, &seed, rows); err != nil {
			return linked, err
		}
		links, next, err := Build(seed, rows)
		if err != nil {
			return linked, err
		}
		for _, l := range links {
			if err := r.store.SetChainValues(ctx, l.RowID, l.Values); err != nil {
				// A row chained behind our back means the seed is stale;
				// the next run starts again from the stored values.
				return linked, err
			}
			linked++
		}
		seed = next
	}
}

// loadSeed reads the global values of the row at the highest chain position.
func (r *Runner) loadSeed(ctx context.Context) (Seed, error) {
	seed := Seed{Issuers: map[string]IssuerLink{}}
	last, err := r.store.LastChain(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return seed, nil
	}
	if err != nil {
		return seed, err
	}
	seed.Position = last.Position
	seed.Global = last.Global
	seed.NoncedGlobal = last.NoncedGlobal
	return seed, nil
}

// loadIssuers adds the stored issuer chain values of issuers not in seed yet.
func (r *Runner) loadIssuers(ctx context.Context, seed *Seed, rows []*models.ClaimRow) error {
	for _, row := range rows {
		if _, ok := seed.Issuers[row.Issuer]; ok {
			continue
		}
		last, err := r.store.LastIssuerChain(ctx, row.Issuer)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			seed.Issuers[row.Issuer] = IssuerLink{}
		case err != nil:
			return err
		default:
			seed.Issuers[row.Issuer] = IssuerLink{Chain: last.Issuer, Nonced: last.NoncedIssuer}
		}
	}
	return nil
}

// Run calls RunOnce every interval, and whenever wake fires, until ctx is
// cancelled. wake may be nil.
func (r *Runner) Run(ctx context.Context, interval time.Duration, wake <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "chain run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// Report is the outcome of verifying the stored chain.
type Report struct {
	Checked  int       `json:"checked"`
	Mismatch *Mismatch `json:"mismatch,omitempty"`
}

// Verify recomputes the whole stored chain from the first position.
func (r *Runner) Verify(ctx context.Context) (*Report, error) {
	report := &Report{}
	seed := Seed{}
	var after int64
	for {
		rows, err := r.store.ListChainedClaims(ctx, after, r.batchSize)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return report, nil
		}
		mismatch, next, err := Verify(seed, rows)
		if err != nil {
			return nil, err
		}
		if mismatch != nil {
			for _, row := range rows {
				if row.ID == mismatch.RowID {
					break
				}
				report.Checked++
			}
			report.Mismatch = mismatch
			r.metrics.IncrementChainMismatch()
			ports.LogAudit(ctx, r.logger, r.auditPublisher, audit.EventChainMismatch,
				"claim_row_id", mismatch.RowID,
				"reason", mismatch.Field,
			)
			return report, nil
		}
		report.Checked += len(rows)
		seed = next
		after = rows[len(rows)-1].Chain.Position
	}
}
