// Package confirm records confirmations of earlier claims. Matching runs in
// two phases: Prepare resolves every confirmed object and rejects the claim
// before anything is written, Apply records the confirmations once the
// confirming row is stored and updates the confirmed projections.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"endorser/internal/claims/identity"
	"endorser/internal/claims/models"
	"endorser/pkg/canon"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/sentinel"
	"endorser/pkg/platform/strings"
)

// Store is the storage the matcher reads and writes.
type Store interface {
	identity.Lookup
	FindClaimByContentHash(ctx context.Context, hash string) (*models.ClaimRow, error)
	FindProjectionByHandle(ctx context.Context, kind models.ProjectionKind, handle string) (models.Projection, error)
	FindProjectionByMatchKey(ctx context.Context, kind models.ProjectionKind, key string) (models.Projection, error)
	UpsertProjection(ctx context.Context, p models.Projection) error
	InsertConfirmation(ctx context.Context, c *models.Confirmation) error
	FindConfirmation(ctx context.Context, issuer, targetKey string) (*models.Confirmation, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Target is one confirmed object. Row is nil when nothing stored matched and
// the confirmation is recorded against ContentHash.
type Target struct {
	Row         *models.ClaimRow
	Handle      string
	ContentHash string
	Kind        models.ProjectionKind

	// Quantity is the amount the confirming object names, if any.
	Quantity    float64
	HasQuantity bool

	// Stale is set when Row is an older revision of its handle.
	Stale bool
}

// Key identifies the target for duplicate detection and locking.
func (t *Target) Key() string {
	if t.Row != nil {
		return models.TargetKey(t.Row.ID, "")
	}
	return models.TargetKey("", t.ContentHash)
}

// Plan is the outcome of Prepare.
type Plan struct {
	Issuer   string
	Targets  []*Target
	Warnings []string
}

// Keys returns the sorted target keys, the order locks are taken in.
func (p *Plan) Keys() []string {
	keys := make([]string, 0, len(p.Targets))
	for _, t := range p.Targets {
		keys = append(keys, t.Key())
	}
	return strings.SortedUnique(keys)
}

func (p *Plan) warn(format string, args ...any) {
	p.Warnings = append(p.Warnings, fmt.Sprintf(format, args...))
}

type Matcher struct {
	store    Store
	resolver *identity.Resolver
	logger   *slog.Logger
}

type Option func(*Matcher)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

func New(store Store, resolver *identity.Resolver, opts ...Option) (*Matcher, error) {
	if store == nil {
		return nil, errors.New("confirmation store is required")
	}
	if resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	m := &Matcher{store: store, resolver: resolver, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ConfirmedObjects returns the objects a confirmation claim confirms.
func ConfirmedObjects(claim *models.Claim) models.RefList {
	if claim.Shape() == models.ShapeLegacyConfirmation {
		refs := models.Refs(claim.Doc["originalClaims"], models.SchemaContext)
		return append(refs, models.Refs(claim.Doc["originalClaim"], models.SchemaContext)...)
	}
	return models.Refs(claim.Doc["object"], claim.Context)
}

// Prepare resolves each confirmed object in order. It fails with
// UnrecordedReference when an exact-match object has no record and with
// DuplicateConfirmation when the claim names the same target twice.
// Stored confirmations are checked separately by CheckDuplicates.
func (m *Matcher) Prepare(ctx context.Context, arena *identity.Arena, issuer string, claim *models.Claim) (*Plan, error) {
	objects := ConfirmedObjects(claim)
	if len(objects) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "confirmation has no object")
	}
	plan := &Plan{Issuer: issuer}
	seen := map[string]struct{}{}
	for i, obj := range objects {
		target, err := m.resolveObject(ctx, arena, plan, obj)
		if err != nil {
			return nil, err
		}
		if target == nil {
			continue
		}
		key := target.Key()
		if _, dup := seen[key]; dup {
			return nil, dErrors.Newf(dErrors.CodeDuplicateConfirmation,
				"object %d confirms the same claim as an earlier object", i)
		}
		seen[key] = struct{}{}
		plan.Targets = append(plan.Targets, target)
	}
	return plan, nil
}

func (m *Matcher) resolveObject(ctx context.Context, arena *identity.Arena, plan *Plan, obj models.Ref) (*Target, error) {
	if obj.Addressed() {
		resolved, err := m.resolver.ResolveRef(ctx, arena, obj)
		if err != nil {
			return nil, err
		}
		if resolved.Row != nil {
			return m.rowTarget(ctx, arena, plan, obj, resolved.Row)
		}
	}

	shape := obj.Shape()
	if shape.IsConfirmation() {
		plan.warn("confirmations of confirmations are not recorded")
		return nil, nil
	}

	if shape.RequiresExactMatch() {
		key, ok := models.MatchKey(shape, obj.Doc, "")
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeUnrecordedReference, "no recorded %s matches the confirmed object", shape)
		}
		proj, err := m.store.FindProjectionByMatchKey(ctx, shape.ProjectionKind(), key)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUnrecordedReference, "no recorded %s matches the confirmed object", shape)
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up projection")
		}
		row, err := m.resolver.Row(ctx, arena, proj.Head().ClaimRowID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load matched claim")
		}
		return m.rowTarget(ctx, arena, plan, obj, row)
	}

	hash, err := canon.ContentHash(models.ContentDoc(obj.Doc, obj.Context))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "confirmed object is not valid JSON")
	}
	row, err := m.store.FindClaimByContentHash(ctx, hash)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		plan.warn("no recorded claim matches a confirmed %s; the confirmation is recorded by content", shape)
		target := &Target{ContentHash: hash, Kind: shape.ProjectionKind()}
		target.Quantity, target.HasQuantity = quantity(shape, obj.Doc)
		return target, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up confirmed content")
	}
	return m.rowTarget(ctx, arena, plan, obj, row)
}

func (m *Matcher) rowTarget(ctx context.Context, arena *identity.Arena, plan *Plan, obj models.Ref, row *models.ClaimRow) (*Target, error) {
	shape := row.Shape()
	if shape.IsConfirmation() {
		plan.warn("claim %s is itself a confirmation and is not recorded", row.ID)
		return nil, nil
	}
	target := &Target{
		Row:         row,
		Handle:      row.Handle,
		ContentHash: row.ContentHash,
		Kind:        shape.ProjectionKind(),
	}
	target.Quantity, target.HasQuantity = quantity(shape, obj.Doc)

	if shape.RequiresExactMatch() {
		_, err := m.store.FindProjectionByHandle(ctx, target.Kind, row.Handle)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUnrecordedReference, "claim %s has no recorded %s", row.ID, shape)
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up projection")
		}
	}

	latest, err := m.resolver.Latest(ctx, arena, row.Handle)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load latest revision")
	}
	if latest != nil && latest.ID != row.ID {
		target.Stale = true
		plan.warn("claim %s is not the latest revision of %s; totals were not updated", row.ID, row.Handle)
	}
	return target, nil
}

// quantity reads the amount an inline give or offer names.
func quantity(shape models.Shape, doc models.Doc) (float64, bool) {
	switch shape {
	case models.ShapeGiveAction:
		return doc.Sub("object").Num("amountOfThisGood")
	case models.ShapeOffer:
		return doc.Sub("includesObject").Num("amountOfThisGood")
	}
	return 0, false
}

// CheckDuplicates rejects the plan when the issuer already confirmed one of
// its targets. Callers hold the target locks from here through Apply.
func (m *Matcher) CheckDuplicates(ctx context.Context, plan *Plan) error {
	for _, t := range plan.Targets {
		_, err := m.store.FindConfirmation(ctx, plan.Issuer, t.Key())
		if err == nil {
			return dErrors.Newf(dErrors.CodeDuplicateConfirmation, "%s already confirmed %s", plan.Issuer, describe(t))
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check confirmations")
		}
	}
	return nil
}

func describe(t *Target) string {
	if t.Row != nil {
		return "claim " + t.Row.ID
	}
	return "content " + t.ContentHash
}

// Apply records the confirmations of plan made by the stored row and updates
// the confirmed projections. Failures are reported in res.
func (m *Matcher) Apply(ctx context.Context, plan *Plan, row *models.ClaimRow, res *models.EmbeddedResult) {
	for _, w := range plan.Warnings {
		res.Warn(w)
	}
	for _, t := range plan.Targets {
		var conf *models.Confirmation
		err := m.store.RunInTx(ctx, func(ctx context.Context) error {
			c, err := m.record(ctx, t, row)
			if err != nil {
				return err
			}
			conf = c
			return m.updateProjection(ctx, t, row.Issuer)
		})
		if err != nil {
			m.logger.WarnContext(ctx, "confirmation not recorded",
				"claim_row_id", row.ID, "target", t.Key(), "error", err)
			res.AddError(err)
			continue
		}
		res.Confirmations = append(res.Confirmations, models.ConfirmationResult{
			ConfirmationID:       conf.ID,
			ConfirmedRowID:       conf.ConfirmedRowID,
			ConfirmedContentHash: conf.ConfirmedContentHash,
			ConfirmedHandle:      conf.ConfirmedHandle,
			ProjectionKind:       conf.ProjectionKind,
		})
	}
}

func (m *Matcher) record(ctx context.Context, t *Target, row *models.ClaimRow) (*models.Confirmation, error) {
	conf := &models.Confirmation{
		ID:                   uuid.NewString(),
		ClaimRowID:           row.ID,
		Issuer:               row.Issuer,
		ConfirmedContentHash: t.ContentHash,
		ConfirmedHandle:      t.Handle,
		ProjectionKind:       t.Kind,
		CreatedAt:            row.CreatedAt,
	}
	if t.Row != nil {
		conf.ConfirmedRowID = t.Row.ID
	}
	if err := m.store.InsertConfirmation(ctx, conf); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeDuplicateConfirmation, "%s already confirmed %s", row.Issuer, describe(t))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record confirmation")
	}
	return conf, nil
}

func (m *Matcher) updateProjection(ctx context.Context, t *Target, issuer string) error {
	if t.Row == nil || t.Stale || t.Kind == "" || t.Kind == models.KindRegistration {
		return nil
	}
	proj, err := m.store.FindProjectionByHandle(ctx, t.Kind, t.Handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load confirmed projection")
	}

	switch p := proj.(type) {
	case *models.Give:
		if issuer == p.Recipient || m.isPlanAuthority(ctx, p.FulfillsPlanHandle, issuer) {
			p.AmountConfirmed = confirmAmount(p.Amount, p.AmountConfirmed, t)
		} else {
			p.ConfirmedCount++
		}
		if !p.FulfillsLinkConfirmed && p.FulfillsHandle != "" && m.isIssuerOf(ctx, p.FulfillsHandle, issuer) {
			p.FulfillsLinkConfirmed = true
		}
	case *models.Offer:
		if issuer == p.Recipient || m.isPlanAuthority(ctx, p.FulfillsPlanHandle, issuer) {
			p.AmountConfirmed = confirmAmount(p.Amount, p.AmountConfirmed, t)
		} else {
			p.ConfirmedCount++
		}
	default:
		proj.Head().ConfirmedCount++
	}

	if err := m.store.UpsertProjection(ctx, proj); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update confirmed projection")
	}
	return nil
}

// confirmAmount adds the confirmed quantity, never beyond the total.
func confirmAmount(total, confirmed float64, t *Target) float64 {
	q := total
	if t.HasQuantity {
		q = t.Quantity
	}
	return min(total, confirmed+q)
}

// isPlanAuthority reports whether issuer owns or acts for the plan or project.
func (m *Matcher) isPlanAuthority(ctx context.Context, planHandle, issuer string) bool {
	if planHandle == "" {
		return false
	}
	for _, kind := range []models.ProjectionKind{models.KindPlan, models.KindProject} {
		proj, err := m.store.FindProjectionByHandle(ctx, kind, planHandle)
		if err != nil {
			continue
		}
		switch p := proj.(type) {
		case *models.Plan:
			return p.Issuer == issuer || p.Agent == issuer
		case *models.Project:
			return p.Issuer == issuer || p.Agent == issuer
		}
	}
	return false
}

// isIssuerOf reports whether issuer issued, or is the agent of, the latest
// revision of handle.
func (m *Matcher) isIssuerOf(ctx context.Context, handle, issuer string) bool {
	row, err := m.store.GetLatestByHandle(ctx, handle)
	if err != nil {
		return false
	}
	return row.Issuer == issuer || (row.Agent != "" && row.Agent == issuer)
}
