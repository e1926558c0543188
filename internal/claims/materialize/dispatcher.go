// Package materialize turns accepted claims into the typed projections the
// read side queries. Each shape has one materializer; failures are reported
// as embedded errors and never undo the stored claim.
package materialize

import (
	"context"
	"errors"
	"log/slog"

	"endorser/internal/claims/confirm"
	"endorser/internal/claims/identity"
	"endorser/internal/claims/models"
	"endorser/pkg/platform/sentinel"
)

// Store is the storage materializers write.
type Store interface {
	identity.Lookup
	FindProjectionByHandle(ctx context.Context, kind models.ProjectionKind, handle string) (models.Projection, error)
	UpsertProjection(ctx context.Context, p models.Projection) error
	ReplaceProviders(ctx context.Context, kind models.ProjectionKind, handle string, providers []models.Provider) error
	GetRegistration(ctx context.Context, did string) (*models.Registration, error)
	InsertRegistration(ctx context.Context, r *models.Registration) error
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Input is an accepted claim and what ingestion learned about it.
type Input struct {
	Row        *models.ClaimRow
	Claim      *models.Claim
	Resolution *identity.Resolution
	Plan       *confirm.Plan // set for confirmation shapes
}

type materializer func(ctx context.Context, d *Dispatcher, arena *identity.Arena, in Input, res *models.EmbeddedResult) error

var materializers = map[models.Shape]materializer{
	models.ShapeAgreeAction:        applyConfirmation,
	models.ShapeLegacyConfirmation: applyConfirmation,
	models.ShapeGiveAction:         materializeGive,
	models.ShapeOffer:              materializeOffer,
	models.ShapePlanAction:         materializePlan,
	models.ShapeProject:            materializeProject,
	models.ShapeTenure:             materializeTenure,
	models.ShapeJoinAction:         materializeAction,
	models.ShapeOrganizationRole:   materializeOrgRole,
	models.ShapeVoteAction:         materializeVote,
	models.ShapeRegisterAction:     materializeRegistration,
}

// Dispatcher routes accepted claims to their materializer.
type Dispatcher struct {
	store    Store
	resolver *identity.Resolver
	matcher  *confirm.Matcher
	logger   *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func New(store Store, resolver *identity.Resolver, matcher *confirm.Matcher, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("projection store is required")
	}
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if matcher == nil {
		return nil, errors.New("confirmation matcher is required")
	}
	d := &Dispatcher{store: store, resolver: resolver, matcher: matcher, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch materializes in.Row. Unknown shapes produce a bare result.
func (d *Dispatcher) Dispatch(ctx context.Context, arena *identity.Arena, in Input) models.EmbeddedResult {
	shape := in.Claim.Shape()
	res := models.EmbeddedResult{Shape: shape.String(), ProjectionKind: shape.ProjectionKind()}
	fn, ok := materializers[shape]
	if !ok {
		return res
	}
	if err := fn(ctx, d, arena, in, &res); err != nil {
		d.logger.WarnContext(ctx, "materialization failed",
			"claim_row_id", in.Row.ID,
			"shape", shape.String(),
			"error", err,
		)
		res.AddError(err)
	}
	return res
}

func applyConfirmation(ctx context.Context, d *Dispatcher, _ *identity.Arena, in Input, res *models.EmbeddedResult) error {
	if in.Plan == nil {
		return errors.New("confirmation accepted without a plan")
	}
	d.matcher.Apply(ctx, in.Plan, in.Row, res)
	return nil
}

// header builds the common projection header and reports whether a prior
// projection exists for the handle.
func (d *Dispatcher) header(ctx context.Context, kind models.ProjectionKind, row *models.ClaimRow) (models.Header, models.Projection, error) {
	h := models.Header{
		Kind:       kind,
		Handle:     row.Handle,
		ClaimRowID: row.ID,
		Issuer:     row.Issuer,
		IssuedAt:   row.IssuedAt,
	}
	prior, err := d.store.FindProjectionByHandle(ctx, kind, row.Handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		return h, nil, nil
	}
	if err != nil {
		return h, nil, err
	}
	h.ConfirmedCount = prior.Head().ConfirmedCount
	return h, prior, nil
}

// save upserts p and, when providers is non-nil, re-derives the provider
// rows in the same transaction.
func (d *Dispatcher) save(ctx context.Context, p models.Projection, prior models.Projection, providers []models.Provider, res *models.EmbeddedResult) error {
	h := p.Head()
	err := d.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := d.store.UpsertProjection(ctx, p); err != nil {
			return err
		}
		if providers == nil {
			return nil
		}
		return d.store.ReplaceProviders(ctx, h.Kind, h.Handle, providers)
	})
	if err != nil {
		return err
	}
	res.Handle = h.Handle
	res.Created = prior == nil
	return nil
}

func orIssuer(did, issuer string) string {
	if did == "" {
		return issuer
	}
	return did
}
