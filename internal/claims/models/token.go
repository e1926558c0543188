package models

import (
	"time"

	dErrors "endorser/pkg/domain-errors"
)

// VerifiedToken is what the signature verifier hands the engine. The engine
// trusts Issuer and Payload as given.
type VerifiedToken struct {
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt *time.Time
	Token     string
	Payload   map[string]any
}

// ClaimDoc extracts the embedded claim: "claim" for plain tokens,
// vc.credentialSubject for verifiable-credential tokens.
func (t *VerifiedToken) ClaimDoc() (Doc, error) {
	if doc, ok := AsDoc(t.Payload["claim"]); ok {
		return doc, nil
	}
	if vc, ok := AsDoc(t.Payload["vc"]); ok {
		if doc, ok := AsDoc(vc["credentialSubject"]); ok {
			return doc, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, "token carries no claim")
}
