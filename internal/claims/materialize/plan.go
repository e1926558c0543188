package materialize

import (
	"context"

	"endorser/internal/claims/identity"
	"endorser/internal/claims/models"
)

func materializePlan(ctx context.Context, d *Dispatcher, arena *identity.Arena, in Input, res *models.EmbeddedResult) error {
	h, prior, err := d.header(ctx, models.KindPlan, in.Row)
	if err != nil {
		return err
	}
	details, err := d.planDetails(ctx, arena, models.ShapePlanAction, in)
	if err != nil {
		return err
	}
	providers, err := d.providers(ctx, arena, models.KindPlan, in.Row.Handle, in.Claim.Doc, in.Claim.Context)
	if err != nil {
		return err
	}
	return d.save(ctx, &models.Plan{Header: h, PlanDetails: details}, prior, providers, res)
}

func materializeProject(ctx context.Context, d *Dispatcher, arena *identity.Arena, in Input, res *models.EmbeddedResult) error {
	h, prior, err := d.header(ctx, models.KindProject, in.Row)
	if err != nil {
		return err
	}
	details, err := d.planDetails(ctx, arena, models.ShapeProject, in)
	if err != nil {
		return err
	}
	providers, err := d.providers(ctx, arena, models.KindProject, in.Row.Handle, in.Claim.Doc, in.Claim.Context)
	if err != nil {
		return err
	}
	return d.save(ctx, &models.Project{Header: h, PlanDetails: details}, prior, providers, res)
}

func (d *Dispatcher) planDetails(ctx context.Context, arena *identity.Arena, shape models.Shape, in Input) (models.PlanDetails, error) {
	doc := in.Claim.Doc
	details := models.PlanDetails{
		Agent:       doc.Identifier("agent"),
		Name:        doc.Str("name"),
		Description: doc.Str("description"),
		URL:         doc.Str("url"),
		Image:       doc.Str("image"),
	}
	if t, ok := parseTime(doc.Str("startTime")); ok {
		details.StartTime = &t
	}
	if t, ok := parseTime(doc.Str("endTime")); ok {
		details.EndTime = &t
	}
	geo := doc.Sub("location").Sub("geo")
	if lat, ok := geo.Num("latitude"); ok {
		if lon, ok := geo.Num("longitude"); ok {
			details.Latitude, details.Longitude = &lat, &lon
		}
	}

	parent, err := d.parent(ctx, arena, shape, doc, in.Claim.Context)
	if err != nil {
		return details, err
	}
	if parent != nil {
		details.FulfillsHandle = parent.Handle
		details.FulfillsPlanHandle = d.enclosingPlan(ctx, arena, parent, map[string]struct{}{in.Row.Handle: {}}, 0)
	}
	return details, nil
}
