// Package audit records what the claim engine did, independently of the
// claim ledger itself: acceptances, rejections, confirmations and chain runs.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryLedger covers events that changed the claim ledger.
	CategoryLedger EventCategory = "ledger"
	// CategorySecurity covers rejected submissions (signature, permission, quota).
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers background jobs.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventClaimAccepted        AuditEvent = "claim_accepted"
	EventClaimRejected        AuditEvent = "claim_rejected"
	EventConfirmationRecorded AuditEvent = "confirmation_recorded"
	EventRegistrationRecorded AuditEvent = "registration_recorded"
	EventChainAdvanced        AuditEvent = "chain_advanced"
	EventChainMismatch        AuditEvent = "chain_mismatch"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventClaimAccepted:        CategoryLedger,
	EventConfirmationRecorded: CategoryLedger,
	EventRegistrationRecorded: CategoryLedger,
	EventClaimRejected:        CategorySecurity,
	EventChainMismatch:        CategorySecurity,
	EventChainAdvanced:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic. Subject is the DID the event is about
// (usually the issuer); ClaimRowID is empty for rejections.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	Action     string
	Subject    string
	ClaimRowID string
	Handle     string
	Reason     string
	RequestID  string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
