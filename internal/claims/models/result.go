package models

import dErrors "endorser/pkg/domain-errors"

// ConfirmationResult reports one confirmation recorded by a claim.
type ConfirmationResult struct {
	ConfirmationID       string         `json:"confirmationId"`
	ConfirmedRowID       string         `json:"confirmedRowId,omitempty"`
	ConfirmedContentHash string         `json:"confirmedContentHash,omitempty"`
	ConfirmedHandle      string         `json:"confirmedHandle,omitempty"`
	ProjectionKind       ProjectionKind `json:"projectionKind,omitempty"`
}

// EmbeddedResult is the per-shape outcome of materializing an accepted claim.
// Errors here never undo the stored envelope.
type EmbeddedResult struct {
	Shape          string               `json:"shape"`
	ProjectionKind ProjectionKind       `json:"projectionKind,omitempty"`
	Handle         string               `json:"handle,omitempty"`
	Created        bool                 `json:"created,omitempty"`
	Confirmations  []ConfirmationResult `json:"confirmations,omitempty"`
	Errors         []*dErrors.Error     `json:"errors,omitempty"`
	Warnings       []string             `json:"warnings,omitempty"`
}

// AddError records a non-fatal failure.
func (r *EmbeddedResult) AddError(err error) {
	r.Errors = append(r.Errors, dErrors.From(err))
}

// Warn records an informational note.
func (r *EmbeddedResult) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// NetworkEffect is one new "sees" relation created by a claim.
type NetworkEffect struct {
	Viewer  string `json:"viewer"`
	Subject string `json:"subject"`
}

// IngestResult is returned for every accepted claim.
type IngestResult struct {
	ClaimRowID         string          `json:"claimRowId"`
	Handle             string          `json:"handle"`
	HashNonce          string          `json:"hashNonce"`
	EmbeddedResults    EmbeddedResult  `json:"embeddedResults"`
	NetworkSideEffects []NetworkEffect `json:"networkSideEffects"`
}
