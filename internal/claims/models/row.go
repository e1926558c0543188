package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClaimRow is one accepted claim envelope. Rows are written once; only the
// chain values are filled in later by the chain builder.
type ClaimRow struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Handle      string          `json:"handle"`
	Issuer      string          `json:"issuer"`
	IssuedAt    time.Time       `json:"issuedAt"`
	Context     string          `json:"context"`
	Type        string          `json:"type"`
	Claim       json.RawMessage `json:"claim"`
	ContentHash string          `json:"contentHash"`
	Token       string          `json:"jwtEncoded,omitempty"`
	HashNonce   string          `json:"-"`
	Agent       string          `json:"agent,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Chain       *ChainValues    `json:"chain,omitempty"`
}

// ChainValues are the hash-chain columns of a row. Position is the row's
// place in the chain, which follows the order rows were linked in and may
// differ from Seq when inserts commit out of order.
type ChainValues struct {
	Position     int64  `json:"position"`
	Global       string `json:"global"`
	Issuer       string `json:"issuer"`
	NoncedHash   string `json:"noncedHash"`
	NoncedGlobal string `json:"noncedGlobal"`
	NoncedIssuer string `json:"noncedIssuer"`
}

// Doc decodes the stored claim body.
func (r *ClaimRow) Doc() (Doc, error) {
	var doc Doc
	if err := json.Unmarshal(r.Claim, &doc); err != nil {
		return nil, fmt.Errorf("decode claim %s: %w", r.ID, err)
	}
	return doc, nil
}

// Shape dispatches the stored claim.
func (r *ClaimRow) Shape() Shape {
	doc, err := r.Doc()
	if err != nil {
		return ShapeUnknown
	}
	return ShapeOf(r.Context, r.Type, doc)
}

// SameKind reports whether c has the row's context and type.
func (r *ClaimRow) SameKind(context, typ string) bool {
	return NormalizeContext(r.Context) == NormalizeContext(context) && r.Type == typ
}

// CanEdit is the edit permission rule: the original issuer, the entity the
// handle names, or the agent recorded on the revision.
func (r *ClaimRow) CanEdit(issuer string) bool {
	if issuer == "" {
		return false
	}
	return issuer == r.Issuer || issuer == r.Handle || (r.Agent != "" && issuer == r.Agent)
}
