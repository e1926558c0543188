// Package identity resolves the references a claim makes to earlier claims,
// by revision pointer (lastClaimId) or by handle (identifier), and enforces
// who may edit an existing entity.
package identity

import (
	"context"
	"errors"
	"fmt"

	"endorser/internal/claims/models"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/sentinel"
)

// Resolution is the identity of a claim being ingested.
type Resolution struct {
	// Handle is empty when MintNew is set; the caller mints it from the new row id.
	Handle   string
	Previous *models.ClaimRow
	// PreviousIssuer is the issuer of Previous, if any.
	PreviousIssuer string
	First          bool
	MintNew        bool
}

// Target is a resolved nested reference. Row is nil for a foreign
// identifier not seen before.
type Target struct {
	Row      *models.ClaimRow
	Handle   string
	External bool
}

// nestedFields lists the reference fields resolved for each shape before the
// claim is accepted. Confirmed objects are resolved by the confirmation matcher.
var nestedFields = map[models.Shape][]string{
	models.ShapeGiveAction: {"fulfills", "provider"},
	models.ShapeOffer:      {"itemOffered.isPartOf", "fulfills"},
	models.ShapePlanAction: {"fulfills", "isPartOf", "provider"},
	models.ShapeProject:    {"fulfills", "isPartOf", "provider"},
}

// NestedFields returns the reference paths checked for shape.
func NestedFields(s models.Shape) []string {
	return nestedFields[s]
}

type Resolver struct {
	store   Lookup
	handles Handles
}

func NewResolver(store Lookup, handles Handles) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("claim lookup store is required")
	}
	return &Resolver{store: store, handles: handles}, nil
}

// Handles exposes the handle rules in use.
func (r *Resolver) Handles() Handles {
	return r.handles
}

// Resolve determines which entity the claim describes and checks that issuer
// may write it.
func (r *Resolver) Resolve(ctx context.Context, arena *Arena, issuer string, claim *models.Claim) (*Resolution, error) {
	if last := claim.LastClaimID(); last != "" {
		prev, err := arena.row(ctx, r.store, last)
		if err != nil {
			return nil, r.lookupError(err, "lastClaimId", last)
		}
		if !prev.SameKind(claim.Context, claim.Type) {
			return nil, dErrors.Newf(dErrors.CodeTypeMismatch,
				"claim %s is a %s, not a %s", last, prev.Type, claim.Type)
		}
		if ident := claim.Identifier(); ident != "" && r.handles.Canonical(ident) != prev.Handle {
			return nil, dErrors.Newf(dErrors.CodeTypeMismatch,
				"identifier %s does not match the handle of claim %s", ident, last)
		}
		if !prev.CanEdit(issuer) {
			return nil, dErrors.Newf(dErrors.CodeForbidden, "%s may not edit claim %s", issuer, last)
		}
		return &Resolution{Handle: prev.Handle, Previous: prev, PreviousIssuer: prev.Issuer}, nil
	}

	ident := claim.Identifier()
	if ident == "" {
		return &Resolution{First: true, MintNew: true}, nil
	}

	handle := r.handles.Canonical(ident)
	prev, err := arena.latest(ctx, r.store, handle)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if r.handles.IsLocal(ident) {
			return nil, dErrors.Newf(dErrors.CodeForbidden, "identifier %s was not assigned by this server", ident)
		}
		if r.handles.IsSystem(handle) {
			return nil, dErrors.Newf(dErrors.CodeUnknownReference, "no claim has handle %s", handle)
		}
		return &Resolution{Handle: handle, First: true}, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up handle")
	}

	if !prev.SameKind(claim.Context, claim.Type) {
		return nil, dErrors.Newf(dErrors.CodeTypeMismatch,
			"handle %s names a %s, not a %s", handle, prev.Type, claim.Type)
	}
	if !prev.CanEdit(issuer) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "%s may not edit %s", issuer, handle)
	}
	return &Resolution{Handle: handle, Previous: prev, PreviousIssuer: prev.Issuer}, nil
}

// ResolveRef resolves a nested reference without the edit permission rule.
// An unaddressed ref resolves to nil.
func (r *Resolver) ResolveRef(ctx context.Context, arena *Arena, ref models.Ref) (*Target, error) {
	if ref.LastClaimID != "" {
		row, err := arena.row(ctx, r.store, ref.LastClaimID)
		if err != nil {
			return nil, r.lookupError(err, "lastClaimId", ref.LastClaimID)
		}
		if ref.Type != "" && !row.SameKind(ref.Context, ref.Type) {
			return nil, dErrors.Newf(dErrors.CodeTypeMismatch,
				"referenced claim %s is a %s, not a %s", ref.LastClaimID, row.Type, ref.Type)
		}
		return &Target{Row: row, Handle: row.Handle}, nil
	}
	if ref.Identifier == "" {
		return nil, nil
	}
	handle := r.handles.Canonical(ref.Identifier)
	row, err := arena.latest(ctx, r.store, handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		if r.handles.IsSystem(handle) {
			return nil, dErrors.Newf(dErrors.CodeUnknownReference, "no claim has handle %s", handle)
		}
		return &Target{Handle: handle, External: true}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up handle")
	}
	return &Target{Row: row, Handle: handle}, nil
}

// ResolveNested resolves every nested reference of the claim so that a bad
// reference rejects the claim before anything is written.
func (r *Resolver) ResolveNested(ctx context.Context, arena *Arena, claim *models.Claim) error {
	for _, path := range NestedFields(claim.Shape()) {
		for _, ref := range models.PathRefs(claim.Doc, path, claim.Context) {
			if _, err := r.ResolveRef(ctx, arena, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

// Latest returns the current revision of handle through the arena.
func (r *Resolver) Latest(ctx context.Context, arena *Arena, handle string) (*models.ClaimRow, error) {
	return arena.latest(ctx, r.store, handle)
}

// Row returns a stored row through the arena.
func (r *Resolver) Row(ctx context.Context, arena *Arena, id string) (*models.ClaimRow, error) {
	return arena.row(ctx, r.store, id)
}

func (r *Resolver) lookupError(err error, field, value string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeUnknownReference, fmt.Sprintf("no claim matches %s %s", field, value))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up claim")
}
