package models

import (
	"strings"

	dErrors "endorser/pkg/domain-errors"
)

const (
	SchemaContext   = "https://schema.org"
	EndorserContext = "https://endorser.ch"
)

// NormalizeContext folds equivalent context spellings together so that
// http/https and trailing-slash variants dispatch the same way.
func NormalizeContext(ctx string) string {
	c := strings.TrimSuffix(strings.TrimSpace(ctx), "/")
	switch c {
	case "", "http://schema.org", SchemaContext:
		return SchemaContext
	case "http://endorser.ch", EndorserContext:
		return EndorserContext
	}
	return c
}

// Claim is a typed claim document with its normalized context.
type Claim struct {
	Context string
	Type    string
	Doc     Doc
}

// ParseClaim validates the top-level claim document.
func ParseClaim(v any) (*Claim, error) {
	doc, ok := AsDoc(v)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "claim must be a JSON object")
	}
	typ := doc.Str("@type")
	if typ == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "claim has no @type")
	}
	return &Claim{Context: NormalizeContext(doc.Str("@context")), Type: typ, Doc: doc}, nil
}

// LastClaimID is the revision pointer, if any.
func (c *Claim) LastClaimID() string {
	return strings.TrimSpace(c.Doc.Str("lastClaimId"))
}

// Identifier is the handle the claim declares, if any.
func (c *Claim) Identifier() string {
	return strings.TrimSpace(c.Doc.Str("identifier"))
}

// Shape dispatches the claim.
func (c *Claim) Shape() Shape {
	return ShapeOf(c.Context, c.Type, c.Doc)
}

// ContentDoc is the document as stored and hashed: the claim body with its
// normalized @context made explicit.
func ContentDoc(doc Doc, context string) Doc {
	out := doc.Clone()
	out["@context"] = NormalizeContext(context)
	return out
}
