// Package ports defines the interfaces the claim engine needs from its
// collaborators: signature verification, storage, the visibility network and
// audit publishing. Store methods return sentinel.ErrNotFound for missing rows.
package ports

//go:generate mockgen -destination=mocks/mocks.go -package=mocks endorser/internal/claims/ports Verifier,NetworkRecorder,AuditPublisher

import (
	"context"
	"log/slog"
	"time"

	"endorser/internal/claims/models"
	"endorser/pkg/platform/audit"
	"endorser/pkg/requestcontext"
)

// Verifier checks a signed token and returns its verified payload.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.VerifiedToken, error)
}

// ClaimStore holds claim envelopes.
type ClaimStore interface {
	// InsertClaim stores row and assigns row.Seq.
	InsertClaim(ctx context.Context, row *models.ClaimRow) error
	GetClaim(ctx context.Context, id string) (*models.ClaimRow, error)
	// GetLatestByHandle returns the most recent revision of handle.
	GetLatestByHandle(ctx context.Context, handle string) (*models.ClaimRow, error)
	// FindClaimByContentHash returns the most recent row with that content hash.
	FindClaimByContentHash(ctx context.Context, hash string) (*models.ClaimRow, error)
	// CountClaimsByIssuerSince counts rows of issuer created at or after since.
	CountClaimsByIssuerSince(ctx context.Context, issuer string, since time.Time) (int, error)
}

// ProjectionStore holds materialized projections and their provider sub-rows.
type ProjectionStore interface {
	// UpsertProjection inserts or replaces the projection keyed by (kind, handle).
	UpsertProjection(ctx context.Context, p models.Projection) error
	FindProjectionByHandle(ctx context.Context, kind models.ProjectionKind, handle string) (models.Projection, error)
	FindProjectionByMatchKey(ctx context.Context, kind models.ProjectionKind, key string) (models.Projection, error)
	// ReplaceProviders clears and rewrites the providers of (kind, handle).
	ReplaceProviders(ctx context.Context, kind models.ProjectionKind, handle string, providers []models.Provider) error
	ListProviders(ctx context.Context, kind models.ProjectionKind, handle string) ([]models.Provider, error)
}

// ConfirmationStore holds confirmation records.
type ConfirmationStore interface {
	// InsertConfirmation returns sentinel.ErrConflict when (issuer, target) exists.
	InsertConfirmation(ctx context.Context, c *models.Confirmation) error
	FindConfirmation(ctx context.Context, issuer, targetKey string) (*models.Confirmation, error)
	ListConfirmations(ctx context.Context, confirmedRowID string) ([]*models.Confirmation, error)
}

// RegistrationStore holds issuer registrations.
type RegistrationStore interface {
	GetRegistration(ctx context.Context, did string) (*models.Registration, error)
	// InsertRegistration returns sentinel.ErrConflict when did is registered.
	InsertRegistration(ctx context.Context, r *models.Registration) error
	// CountRegistrationsByIssuerSince counts registrations made by issuer at or after since.
	CountRegistrationsByIssuerSince(ctx context.Context, issuer string, since time.Time) (int, error)
}

// ChainStore is what the hash-chain runner reads and writes.
type ChainStore interface {
	// ListUnchainedClaims returns up to limit rows without chain values, in insertion order.
	ListUnchainedClaims(ctx context.Context, limit int) ([]*models.ClaimRow, error)
	// ListChainedClaims returns chained rows with a chain position above
	// afterPosition, in position order.
	ListChainedClaims(ctx context.Context, afterPosition int64, limit int) ([]*models.ClaimRow, error)
	// LastChain returns the chain values at the highest position.
	LastChain(ctx context.Context) (*models.ChainValues, error)
	// LastIssuerChain returns the chain values of issuer's highest-positioned row.
	LastIssuerChain(ctx context.Context, issuer string) (*models.ChainValues, error)
	// SetChainValues writes the values only if the row has none and the
	// position is free (sentinel.ErrAlreadyChained otherwise).
	SetChainValues(ctx context.Context, rowID string, v models.ChainValues) error
}

// Store is the full storage surface.
type Store interface {
	ClaimStore
	ProjectionStore
	ConfirmationStore
	RegistrationStore
	ChainStore
	// RunInTx runs fn atomically. Store calls made with the ctx passed to fn
	// join the transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NetworkRecorder records which identities each issuer can see.
type NetworkRecorder interface {
	// RecordSees adds viewer->subject relations and returns the subjects that were new.
	RecordSees(ctx context.Context, viewer string, subjects []string) ([]string, error)
	CanSee(ctx context.Context, viewer string) ([]string, error)
}

// AuditPublisher emits audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit writes a structured audit line and, when a publisher is set,
// emits the matching audit event. Attributes "issuer", "claim_row_id",
// "handle" and "reason" are copied into the event.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.AuditEvent, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", string(event), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(event), args...)
	}
	if publisher == nil {
		return
	}
	e := audit.Event{
		Category:   event.Category(),
		Timestamp:  requestcontext.Now(ctx),
		Action:     string(event),
		Subject:    attrString(attrs, "issuer"),
		ClaimRowID: attrString(attrs, "claim_row_id"),
		Handle:     attrString(attrs, "handle"),
		Reason:     attrString(attrs, "reason"),
		RequestID:  requestID,
	}
	if err := publisher.Emit(ctx, e); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

func attrString(attrs []any, key string) string {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			if v, ok := attrs[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}
