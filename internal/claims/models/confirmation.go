package models

import "time"

// Confirmation links a confirming claim to the claim it confirms. When no
// stored row matched, ConfirmedContentHash identifies the target instead.
type Confirmation struct {
	ID                   string         `json:"id"`
	ClaimRowID           string         `json:"claimRowId"`
	Issuer               string         `json:"issuer"`
	ConfirmedRowID       string         `json:"confirmedRowId,omitempty"`
	ConfirmedContentHash string         `json:"confirmedContentHash,omitempty"`
	ConfirmedHandle      string         `json:"confirmedHandle,omitempty"`
	ProjectionKind       ProjectionKind `json:"projectionKind,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
}

// TargetKey identifies what was confirmed. (Issuer, TargetKey) is unique.
func (c *Confirmation) TargetKey() string {
	return TargetKey(c.ConfirmedRowID, c.ConfirmedContentHash)
}

// TargetKey builds the key for a row id or, failing that, a content hash.
func TargetKey(rowID, contentHash string) string {
	if rowID != "" {
		return "row:" + rowID
	}
	return "hash:" + contentHash
}

// Registration permits an issuer to submit claims. Zero limits mean the
// configured defaults apply.
type Registration struct {
	DID                      string    `json:"did"`
	RegisteredBy             string    `json:"registeredBy"`
	RegisteredAt             time.Time `json:"registeredAt"`
	ClaimRowID               string    `json:"claimRowId,omitempty"`
	MaxClaimsPerWeek         int       `json:"maxClaimsPerWeek,omitempty"`
	MaxRegistrationsPerMonth int       `json:"maxRegistrationsPerMonth,omitempty"`
}
