package materialize

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"endorser/internal/claims/identity"
	"endorser/internal/claims/models"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/sentinel"
)

func materializeTenure(ctx context.Context, d *Dispatcher, _ *identity.Arena, in Input, res *models.EmbeddedResult) error {
	row, doc := in.Row, in.Claim.Doc
	h, prior, err := d.header(ctx, models.KindTenure, row)
	if err != nil {
		return err
	}
	h.MatchKey, _ = models.MatchKey(models.ShapeTenure, doc, row.Issuer)
	polygon := strings.Join(strings.Fields(doc.Sub("spatialUnit").Sub("geo").Str("polygon")), " ")
	tenure := &models.Tenure{
		Header:  h,
		Party:   orIssuer(doc.Identifier("party"), row.Issuer),
		Polygon: polygon,
	}
	if polygon != "" {
		box, err := BoundingBox(polygon)
		if err != nil {
			res.Warn(err.Error())
		} else {
			tenure.BBox = box
		}
	}
	return d.save(ctx, tenure, prior, nil, res)
}

// BoundingBox parses a polygon of space-separated "lat,lon" points.
func BoundingBox(polygon string) (*models.BBox, error) {
	var box *models.BBox
	for _, point := range strings.Fields(polygon) {
		lat, lon, ok := strings.Cut(point, ",")
		if !ok {
			return nil, errors.New("polygon point " + point + " is not lat,lon")
		}
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return nil, errors.New("polygon latitude " + lat + " is not a number")
		}
		lo, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return nil, errors.New("polygon longitude " + lon + " is not a number")
		}
		if box == nil {
			box = &models.BBox{MinLat: la, MaxLat: la, MinLon: lo, MaxLon: lo}
			continue
		}
		box.MinLat, box.MaxLat = min(box.MinLat, la), max(box.MaxLat, la)
		box.MinLon, box.MaxLon = min(box.MinLon, lo), max(box.MaxLon, lo)
	}
	if box == nil {
		return nil, errors.New("polygon has no points")
	}
	return box, nil
}

func materializeAction(ctx context.Context, d *Dispatcher, _ *identity.Arena, in Input, res *models.EmbeddedResult) error {
	row, doc := in.Row, in.Claim.Doc
	h, prior, err := d.header(ctx, models.KindAction, row)
	if err != nil {
		return err
	}
	h.MatchKey, _ = models.MatchKey(models.ShapeJoinAction, doc, row.Issuer)
	event := doc.Sub("event")
	return d.save(ctx, &models.Action{
		Header:         h,
		Agent:          orIssuer(doc.Identifier("agent"), row.Issuer),
		EventOrgName:   event.Sub("organizer").Str("name"),
		EventName:      event.Str("name"),
		EventStartTime: event.Str("startTime"),
	}, prior, nil, res)
}

func materializeOrgRole(ctx context.Context, d *Dispatcher, _ *identity.Arena, in Input, res *models.EmbeddedResult) error {
	row, doc := in.Row, in.Claim.Doc
	h, prior, err := d.header(ctx, models.KindOrgRole, row)
	if err != nil {
		return err
	}
	h.MatchKey, _ = models.MatchKey(models.ShapeOrganizationRole, doc, row.Issuer)
	member := doc.Sub("member")
	return d.save(ctx, &models.OrgRole{
		Header:    h,
		OrgName:   doc.Str("name"),
		RoleName:  member.Str("roleName"),
		Member:    member.Identifier("member"),
		StartDate: member.Str("startDate"),
		EndDate:   member.Str("endDate"),
	}, prior, nil, res)
}

func materializeVote(ctx context.Context, d *Dispatcher, _ *identity.Arena, in Input, res *models.EmbeddedResult) error {
	row, doc := in.Row, in.Claim.Doc
	h, prior, err := d.header(ctx, models.KindVote, row)
	if err != nil {
		return err
	}
	candidate := doc.Identifier("candidate")
	if candidate == "" {
		candidate = doc.Sub("candidate").Str("name")
	}
	event := doc.Sub("object").Sub("event")
	if event == nil {
		event = doc.Sub("event")
	}
	return d.save(ctx, &models.Vote{
		Header:         h,
		Agent:          orIssuer(doc.Identifier("agent"), row.Issuer),
		ActionOption:   doc.Str("actionOption"),
		Candidate:      candidate,
		EventName:      event.Str("name"),
		EventStartTime: event.Str("startTime"),
	}, prior, nil, res)
}

// materializeRegistration registers the participant on behalf of the issuer.
func materializeRegistration(ctx context.Context, d *Dispatcher, _ *identity.Arena, in Input, res *models.EmbeddedResult) error {
	row := in.Row
	did := in.Claim.Doc.Identifier("participant")
	if did == "" {
		return dErrors.New(dErrors.CodeValidation, "registration has no participant identifier")
	}
	res.Handle = row.Handle

	_, err := d.store.GetRegistration(ctx, did)
	switch {
	case err == nil:
		res.Warn(did + " is already registered")
		return nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up registration")
	}

	err = d.store.InsertRegistration(ctx, &models.Registration{
		DID:          did,
		RegisteredBy: row.Issuer,
		RegisteredAt: row.CreatedAt,
		ClaimRowID:   row.ID,
	})
	if errors.Is(err, sentinel.ErrConflict) {
		res.Warn(did + " is already registered")
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record registration")
	}
	res.Created = true
	return nil
}
