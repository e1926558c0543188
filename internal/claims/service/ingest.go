package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"endorser/internal/claims/confirm"
	"endorser/internal/claims/identity"
	"endorser/internal/claims/materialize"
	"endorser/internal/claims/models"
	"endorser/internal/claims/ports"
	"endorser/pkg/canon"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/audit"
	"endorser/pkg/platform/strings"
	"endorser/pkg/requestcontext"
)

// nonceBytes is the size of the per-row nonce mixed into the nonced chain.
const nonceBytes = 16

// Outcome is the result of one token of a batch.
type Outcome struct {
	Result *models.IngestResult `json:"result,omitempty"`
	Error  *dErrors.Error       `json:"error,omitempty"`
}

// Ingest verifies and records one signed claim. Every client error is
// returned before a row is written; anything that fails after the row is
// stored is reported inside the result instead.
func (s *Service) Ingest(ctx context.Context, token string) (*models.IngestResult, error) {
	return s.ingest(ctx, identity.NewArena(), token)
}

// IngestBatch ingests tokens in order with one shared arena, so a claim may
// reference a claim accepted earlier in the same batch. A rejected token
// does not stop the batch.
func (s *Service) IngestBatch(ctx context.Context, tokens []string) []Outcome {
	ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))
	arena := identity.NewArena()
	out := make([]Outcome, 0, len(tokens))
	for _, token := range tokens {
		res, err := s.ingest(ctx, arena, token)
		if err != nil {
			out = append(out, Outcome{Error: dErrors.From(err)})
			continue
		}
		out = append(out, Outcome{Result: res})
	}
	return out
}

func (s *Service) ingest(ctx context.Context, arena *identity.Arena, token string) (*models.IngestResult, error) {
	ctx, span := s.tracer.Start(ctx, "claims.Ingest")
	defer span.End()
	start := time.Now()

	res, err := s.verifyAndAccept(ctx, arena, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("claim.row_id", res.ClaimRowID),
		attribute.String("claim.shape", res.EmbeddedResults.Shape),
	)
	s.metrics.ObserveIngestLatency(start)
	return res, nil
}

func (s *Service) verifyAndAccept(ctx context.Context, arena *identity.Arena, token string) (*models.IngestResult, error) {
	verified, err := s.verify(ctx, token)
	if err != nil {
		s.reject(ctx, "", err)
		return nil, err
	}
	ctx = requestcontext.WithIssuer(ctx, verified.Issuer)
	res, err := s.accept(ctx, arena, verified)
	if err != nil {
		s.reject(ctx, verified.Issuer, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) accept(ctx context.Context, arena *identity.Arena, verified *models.VerifiedToken) (*models.IngestResult, error) {
	now := requestcontext.Now(ctx)
	doc, err := verified.ClaimDoc()
	if err != nil {
		return nil, err
	}
	claim, err := models.ParseClaim(doc)
	if err != nil {
		return nil, err
	}
	shape := claim.Shape()

	rowID, err := uuid.NewV7()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate claim id")
	}
	resolution, err := s.resolver.Resolve(ctx, arena, verified.Issuer, claim)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.ResolveNested(ctx, arena, claim); err != nil {
		return nil, err
	}
	if _, err := s.gate.Check(ctx, verified.Issuer, now, shape == models.ShapeRegisterAction); err != nil {
		return nil, err
	}

	var plan *confirm.Plan
	if shape.IsConfirmation() {
		if plan, err = s.matcher.Prepare(ctx, arena, verified.Issuer, claim); err != nil {
			return nil, err
		}
		unlock, err := s.locks.Lock(ctx, plan.Keys())
		if err != nil {
			return nil, err
		}
		defer unlock()
		if err := s.matcher.CheckDuplicates(ctx, plan); err != nil {
			return nil, err
		}
	}

	row, err := s.newRow(rowID.String(), verified, claim, resolution, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertClaim(ctx, row); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store claim")
	}
	arena.Remember(row)

	embedded := s.dispatcher.Dispatch(ctx, arena, materialize.Input{
		Row:        row,
		Claim:      claim,
		Resolution: resolution,
		Plan:       plan,
	})
	effects := s.recordSees(ctx, row.Issuer, claim.Doc)

	s.accepted(ctx, row, embedded)
	return &models.IngestResult{
		ClaimRowID:         row.ID,
		Handle:             row.Handle,
		HashNonce:          row.HashNonce,
		EmbeddedResults:    embedded,
		NetworkSideEffects: effects,
	}, nil
}

func (s *Service) verify(ctx context.Context, token string) (*models.VerifiedToken, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "jwtEncoded is required")
	}
	verified, err := s.verifier.Verify(ctx, token)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token verification failed")
	}
	if verified.Issuer == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no issuer")
	}
	return verified, nil
}

// newRow builds the envelope stored for an accepted claim.
func (s *Service) newRow(id string, verified *models.VerifiedToken, claim *models.Claim, resolution *identity.Resolution, now time.Time) (*models.ClaimRow, error) {
	content := models.ContentDoc(claim.Doc, claim.Context)
	body, err := canon.Canonicalize(content)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "claim is not canonicalizable")
	}
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate hash nonce")
	}
	handle := resolution.Handle
	if resolution.MintNew {
		handle = s.resolver.Handles().Mint(id)
	}
	return &models.ClaimRow{
		ID:          id,
		Handle:      handle,
		Issuer:      verified.Issuer,
		IssuedAt:    verified.IssuedAt,
		Context:     claim.Context,
		Type:        claim.Type,
		Claim:       body,
		ContentHash: canon.HexDigest(body),
		Token:       verified.Token,
		HashNonce:   hex.EncodeToString(nonce),
		Agent:       models.AgentOf(claim.Shape(), claim.Doc),
		CreatedAt:   now,
	}, nil
}

// recordSees lets the issuer see every DID its claim mentions. The claim is
// already stored, so failures are logged and yield no effects.
func (s *Service) recordSees(ctx context.Context, issuer string, doc models.Doc) []models.NetworkEffect {
	effects := []models.NetworkEffect{}
	if s.network == nil {
		return effects
	}
	subjects := strings.Without(models.ExtractDIDs(doc), issuer)
	if len(subjects) == 0 {
		return effects
	}
	added, err := s.network.RecordSees(ctx, issuer, subjects)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record network visibility", "issuer", issuer, "error", err)
		return effects
	}
	for _, subject := range added {
		effects = append(effects, models.NetworkEffect{Viewer: issuer, Subject: subject})
	}
	return effects
}

func (s *Service) accepted(ctx context.Context, row *models.ClaimRow, res models.EmbeddedResult) {
	s.metrics.IncrementIngested(res.Shape)
	s.metrics.AddEmbeddedErrors(res.Shape, len(res.Errors))
	s.metrics.AddConfirmations(len(res.Confirmations))

	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventClaimAccepted,
		"issuer", row.Issuer,
		"claim_row_id", row.ID,
		"handle", row.Handle,
		"shape", res.Shape,
	)
	for _, c := range res.Confirmations {
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventConfirmationRecorded,
			"issuer", row.Issuer,
			"claim_row_id", row.ID,
			"handle", c.ConfirmedHandle,
		)
	}
	if res.ProjectionKind == models.KindRegistration && res.Created {
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventRegistrationRecorded,
			"issuer", row.Issuer,
			"claim_row_id", row.ID,
		)
	}
}

func (s *Service) reject(ctx context.Context, issuer string, err error) {
	code := dErrors.CodeOf(err)
	s.metrics.IncrementRejected(string(code))
	if !code.IsClientError() {
		s.logger.ErrorContext(ctx, "claim ingestion failed", "error", err)
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.EventClaimRejected,
		"issuer", issuer,
		"reason", string(code),
	)
}
