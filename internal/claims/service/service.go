// Package service orchestrates claim ingestion: verification, identity
// resolution, quota, confirmation pre-checks, persistence, materialization
// and visibility side effects. It also serves the read side of the ledger.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"endorser/internal/claims/confirm"
	"endorser/internal/claims/identity"
	"endorser/internal/claims/materialize"
	"endorser/internal/claims/metrics"
	"endorser/internal/claims/models"
	"endorser/internal/claims/ports"
	"endorser/internal/claims/quota"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/audit"
	"endorser/pkg/platform/sentinel"
)

// Service accepts signed claims and answers ledger queries.
type Service struct {
	store          ports.Store
	verifier       ports.Verifier
	network        ports.NetworkRecorder
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	handlePrefix string
	limits       quota.Limits

	resolver   *identity.Resolver
	gate       *quota.Gate
	matcher    *confirm.Matcher
	dispatcher *materialize.Dispatcher
	locks      targetLocks
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithNetwork records "sees" relations for accepted claims.
func WithNetwork(network ports.NetworkRecorder) Option {
	return func(s *Service) {
		s.network = network
	}
}

// WithHandlePrefix overrides identity.DefaultHandlePrefix.
func WithHandlePrefix(prefix string) Option {
	return func(s *Service) {
		s.handlePrefix = prefix
	}
}

// WithLimits overrides the default quotas.
func WithLimits(limits quota.Limits) Option {
	return func(s *Service) {
		s.limits = limits
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New wires the engine components over store.
func New(store ports.Store, verifier ports.Verifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("claim store is required")
	}
	if verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	s := &Service{
		store:    store,
		verifier: verifier,
		logger:   slog.Default(),
		tracer:   otel.Tracer("endorser/claims"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.resolver, err = identity.NewResolver(store, identity.NewHandles(s.handlePrefix)); err != nil {
		return nil, err
	}
	if s.gate, err = quota.New(store, s.limits); err != nil {
		return nil, err
	}
	if s.matcher, err = confirm.New(store, s.resolver, confirm.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	if s.dispatcher, err = materialize.New(store, s.resolver, s.matcher, materialize.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	return s, nil
}

// Handles exposes the handle rules in use.
func (s *Service) Handles() identity.Handles {
	return s.resolver.Handles()
}

// Claim returns a stored claim row.
func (s *Service) Claim(ctx context.Context, rowID string) (*models.ClaimRow, error) {
	row, err := s.store.GetClaim(ctx, rowID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "claim %s not found", rowID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	return row, nil
}

// Confirmations lists the confirmations recorded against a stored claim.
func (s *Service) Confirmations(ctx context.Context, rowID string) ([]*models.Confirmation, error) {
	if _, err := s.Claim(ctx, rowID); err != nil {
		return nil, err
	}
	list, err := s.store.ListConfirmations(ctx, rowID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list confirmations")
	}
	return list, nil
}

// ProjectionView is a projection with its provider rows.
type ProjectionView struct {
	Projection models.Projection `json:"projection"`
	Providers  []models.Provider `json:"providers"`
}

// Projection returns the current projection of handle for kind.
func (s *Service) Projection(ctx context.Context, kindName, handle string) (*ProjectionView, error) {
	kind, ok := models.ParseProjectionKind(kindName)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown projection kind %q", kindName)
	}
	handle = s.resolver.Handles().Canonical(handle)
	p, err := s.store.FindProjectionByHandle(ctx, kind, handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no %s projection for %s", kind, handle)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load projection")
	}
	providers, err := s.store.ListProviders(ctx, kind, handle)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load providers")
	}
	return &ProjectionView{Projection: p, Providers: providers}, nil
}

// BootstrapAdmins registers dids that are not registered yet, so a fresh
// ledger has issuers able to register others.
func (s *Service) BootstrapAdmins(ctx context.Context, dids []string, now time.Time) (int, error) {
	added := 0
	for _, did := range dids {
		_, err := s.store.GetRegistration(ctx, did)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return added, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up registration")
		}
		err = s.store.InsertRegistration(ctx, &models.Registration{DID: did, RegisteredBy: did, RegisteredAt: now})
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		if err != nil {
			return added, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register admin")
		}
		added++
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRegistrationRecorded, "issuer", did, "reason", "bootstrap")
	}
	return added, nil
}
