package materialize

import (
	"context"
	"time"

	"endorser/internal/claims/identity"
	"endorser/internal/claims/models"
)

// maxParentDepth bounds the walk from a give or offer up to its plan.
const maxParentDepth = 5

// parentFields are the fields that point from a claim to its parent, in
// priority order.
var parentFields = map[models.Shape][]string{
	models.ShapeGiveAction: {"fulfills"},
	models.ShapeOffer:      {"itemOffered.isPartOf", "fulfills"},
	models.ShapePlanAction: {"fulfills", "isPartOf"},
	models.ShapeProject:    {"fulfills", "isPartOf"},
}

func materializeGive(ctx context.Context, d *Dispatcher, arena *identity.Arena, in Input, res *models.EmbeddedResult) error {
	row, doc := in.Row, in.Claim.Doc
	h, prior, err := d.header(ctx, models.KindGive, row)
	if err != nil {
		return err
	}
	object := doc.Sub("object")
	amount, _ := object.Num("amountOfThisGood")
	give := &models.Give{
		Header:      h,
		Agent:       orIssuer(doc.Identifier("agent"), row.Issuer),
		Recipient:   doc.Identifier("recipient"),
		Description: doc.Str("description"),
		Unit:        object.Str("unitCode"),
		Amount:      amount,
	}

	fulfills := models.Refs(doc["fulfills"], in.Claim.Context)
	if len(fulfills) > 1 {
		res.Warn("only the first fulfills reference of a give is recorded")
	}
	if ref, ok := fulfills.First(); ok {
		parent, err := d.resolver.ResolveRef(ctx, arena, ref)
		if err != nil {
			return err
		}
		if parent != nil {
			give.FulfillsHandle = parent.Handle
			if parent.Row != nil {
				give.FulfillsType = parent.Row.Type
				give.FulfillsLinkConfirmed = actsFor(parent.Row, row.Issuer)
			}
			give.FulfillsPlanHandle = d.enclosingPlan(ctx, arena, parent, map[string]struct{}{row.Handle: {}}, 0)
		}
	}

	switch {
	case row.Issuer == give.Recipient || d.isPlanAuthority(ctx, arena, give.FulfillsPlanHandle, row.Issuer):
		give.AmountConfirmed = give.Amount
	case prior != nil:
		if p, ok := prior.(*models.Give); ok {
			give.AmountConfirmed = min(p.AmountConfirmed, give.Amount)
			give.FulfillsLinkConfirmed = give.FulfillsLinkConfirmed ||
				(p.FulfillsLinkConfirmed && p.FulfillsHandle == give.FulfillsHandle)
		}
	}

	providers, err := d.providers(ctx, arena, models.KindGive, row.Handle, doc, in.Claim.Context)
	if err != nil {
		return err
	}
	return d.save(ctx, give, prior, providers, res)
}

func materializeOffer(ctx context.Context, d *Dispatcher, arena *identity.Arena, in Input, res *models.EmbeddedResult) error {
	row, doc := in.Row, in.Claim.Doc
	h, prior, err := d.header(ctx, models.KindOffer, row)
	if err != nil {
		return err
	}
	object := doc.Sub("includesObject")
	amount, _ := object.Num("amountOfThisGood")
	offer := &models.Offer{
		Header:      h,
		OfferedBy:   orIssuer(doc.Identifier("offeredBy"), row.Issuer),
		Recipient:   doc.Identifier("recipient"),
		Description: doc.Str("description"),
		Unit:        object.Str("unitCode"),
		Amount:      amount,
		ItemHandle:  d.resolver.Handles().Canonical(doc.Sub("itemOffered").Str("identifier")),
	}
	if t, ok := parseTime(doc.Str("validThrough")); ok {
		offer.ValidThrough = &t
	}

	parent, err := d.parent(ctx, arena, models.ShapeOffer, doc, in.Claim.Context)
	if err != nil {
		return err
	}
	if parent != nil {
		offer.FulfillsPlanHandle = d.enclosingPlan(ctx, arena, parent, map[string]struct{}{row.Handle: {}}, 0)
	}

	switch {
	case row.Issuer == offer.Recipient || d.isPlanAuthority(ctx, arena, offer.FulfillsPlanHandle, row.Issuer):
		offer.AmountConfirmed = offer.Amount
	case prior != nil:
		if p, ok := prior.(*models.Offer); ok {
			offer.AmountConfirmed = min(p.AmountConfirmed, offer.Amount)
		}
	}
	return d.save(ctx, offer, prior, nil, res)
}

// parent resolves the first parent reference of doc for shape.
func (d *Dispatcher) parent(ctx context.Context, arena *identity.Arena, shape models.Shape, doc models.Doc, claimContext string) (*identity.Target, error) {
	for _, path := range parentFields[shape] {
		ref, ok := models.PathRefs(doc, path, claimContext).First()
		if !ok || !ref.Addressed() {
			continue
		}
		return d.resolver.ResolveRef(ctx, arena, ref)
	}
	return nil, nil
}

// enclosingPlan walks parent links from target until it reaches a plan or
// project and returns its handle, or "" when there is none.
func (d *Dispatcher) enclosingPlan(ctx context.Context, arena *identity.Arena, target *identity.Target, visited map[string]struct{}, depth int) string {
	if target == nil || target.Row == nil || depth > maxParentDepth {
		return ""
	}
	if _, seen := visited[target.Handle]; seen {
		return ""
	}
	visited[target.Handle] = struct{}{}

	shape := target.Row.Shape()
	if shape == models.ShapePlanAction || shape == models.ShapeProject {
		return target.Handle
	}
	doc, err := target.Row.Doc()
	if err != nil {
		return ""
	}
	next, err := d.parent(ctx, arena, shape, doc, target.Row.Context)
	if err != nil {
		d.logger.DebugContext(ctx, "parent lookup failed", "handle", target.Handle, "error", err)
		return ""
	}
	return d.enclosingPlan(ctx, arena, next, visited, depth+1)
}

// isPlanAuthority reports whether issuer issued, or is the agent of, the plan.
func (d *Dispatcher) isPlanAuthority(ctx context.Context, arena *identity.Arena, planHandle, issuer string) bool {
	if planHandle == "" {
		return false
	}
	plan, err := d.resolver.Latest(ctx, arena, planHandle)
	if err != nil {
		return false
	}
	return actsFor(plan, issuer)
}

// actsFor reports whether issuer issued row or is its recorded agent.
func actsFor(row *models.ClaimRow, issuer string) bool {
	return row.Issuer == issuer || (row.Agent != "" && row.Agent == issuer)
}

// providers resolves the provider list of a give, plan or project.
func (d *Dispatcher) providers(ctx context.Context, arena *identity.Arena, kind models.ProjectionKind, handle string, doc models.Doc, claimContext string) ([]models.Provider, error) {
	out := []models.Provider{}
	seen := map[string]struct{}{}
	for _, ref := range models.Refs(doc["provider"], claimContext) {
		target, err := d.resolver.ResolveRef(ctx, arena, ref)
		if err != nil {
			return nil, err
		}
		if target == nil {
			continue
		}
		if _, dup := seen[target.Handle]; dup {
			continue
		}
		seen[target.Handle] = struct{}{}
		p := models.Provider{Kind: kind, Handle: handle, ProviderHandle: target.Handle}
		if target.Row != nil {
			p.ProviderRowID = target.Row.ID
		}
		out = append(out, p)
	}
	return out, nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
