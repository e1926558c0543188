package network

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"endorser/internal/claims/ports"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/circuit"
)

// Guarded stops calling a failing recorder. While the breaker is open, calls
// fail fast with CodeUnavailable except for one probe per probeEvery, whose
// result feeds the breaker.
type Guarded struct {
	next       ports.NetworkRecorder
	breaker    *circuit.Breaker
	probeEvery time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

type GuardOption func(*Guarded)

func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		g.logger = logger
	}
}

func WithProbeInterval(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.probeEvery = d
		}
	}
}

func withClock(now func() time.Time) GuardOption {
	return func(g *Guarded) {
		g.now = now
	}
}

func NewGuarded(next ports.NetworkRecorder, breaker *circuit.Breaker, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:       next,
		breaker:    breaker,
		probeEvery: 5 * time.Second,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) RecordSees(ctx context.Context, viewer string, subjects []string) ([]string, error) {
	var added []string
	err := g.call(ctx, func() error {
		var err error
		added, err = g.next.RecordSees(ctx, viewer, subjects)
		return err
	})
	return added, err
}

func (g *Guarded) CanSee(ctx context.Context, viewer string) ([]string, error) {
	var subjects []string
	err := g.call(ctx, func() error {
		var err error
		subjects, err = g.next.CanSee(ctx, viewer)
		return err
	})
	return subjects, err
}

func (g *Guarded) call(ctx context.Context, fn func() error) error {
	if g.breaker.IsOpen() && !g.takeProbe() {
		return dErrors.Newf(dErrors.CodeUnavailable, "%s circuit open", g.breaker.Name())
	}
	err := fn()
	if err != nil {
		// the caller giving up says nothing about the backend
		if ctx.Err() != nil {
			return err
		}
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.mu.Lock()
			g.lastProbe = g.now()
			g.mu.Unlock()
			g.logger.WarnContext(ctx, "circuit opened", "circuit", g.breaker.Name(), "error", err)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "circuit closed", "circuit", g.breaker.Name())
	}
	return nil
}

func (g *Guarded) takeProbe() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if now.Sub(g.lastProbe) < g.probeEvery {
		return false
	}
	g.lastProbe = now
	return true
}
