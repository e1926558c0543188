// Package quota enforces per-issuer weekly claim limits and monthly
// registration limits. Counts are read at request start, so truly concurrent
// submissions by one issuer can each pass the check.
package quota

import (
	"context"
	"errors"
	"time"

	"endorser/internal/claims/models"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/sentinel"
)

const (
	DefaultClaimsPerWeek         = 100
	DefaultRegistrationsPerMonth = 10
)

// Store is the storage the gate reads.
type Store interface {
	GetRegistration(ctx context.Context, did string) (*models.Registration, error)
	CountClaimsByIssuerSince(ctx context.Context, issuer string, since time.Time) (int, error)
	CountRegistrationsByIssuerSince(ctx context.Context, issuer string, since time.Time) (int, error)
}

// Limits are the defaults used when a registration has no override.
type Limits struct {
	ClaimsPerWeek         int
	RegistrationsPerMonth int
}

type Gate struct {
	store  Store
	limits Limits
}

func New(store Store, limits Limits) (*Gate, error) {
	if store == nil {
		return nil, errors.New("quota store is required")
	}
	if limits.ClaimsPerWeek <= 0 {
		limits.ClaimsPerWeek = DefaultClaimsPerWeek
	}
	if limits.RegistrationsPerMonth <= 0 {
		limits.RegistrationsPerMonth = DefaultRegistrationsPerMonth
	}
	return &Gate{store: store, limits: limits}, nil
}

// Check admits one more claim from issuer at now. registering marks a
// RegisterAction, which is subject to the registration rules as well.
func (g *Gate) Check(ctx context.Context, issuer string, now time.Time, registering bool) (*models.Registration, error) {
	reg, err := g.store.GetRegistration(ctx, issuer)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeUnregisteredIssuer, "%s is not registered", issuer)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}

	weekLimit := g.limits.ClaimsPerWeek
	if reg.MaxClaimsPerWeek > 0 {
		weekLimit = reg.MaxClaimsPerWeek
	}
	count, err := g.store.CountClaimsByIssuerSince(ctx, issuer, StartOfWeek(now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count claims")
	}
	if count >= weekLimit {
		return nil, dErrors.Newf(dErrors.CodeOverClaimLimit,
			"%s has reached the limit of %d claims this week", issuer, weekLimit)
	}

	if registering {
		if err := g.checkRegistration(ctx, reg, now); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (g *Gate) checkRegistration(ctx context.Context, reg *models.Registration, now time.Time) error {
	if StartOfDay(reg.RegisteredAt).Equal(StartOfDay(now)) {
		return dErrors.New(dErrors.CodeOverRegistrationLimit,
			"cannot register others on the day you were registered")
	}

	if now.Before(reg.RegisteredAt.UTC().AddDate(0, 1, 0)) {
		today, err := g.store.CountRegistrationsByIssuerSince(ctx, reg.DID, StartOfDay(now))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count registrations")
		}
		if today >= 1 {
			return dErrors.New(dErrors.CodeOverRegistrationLimit,
				"only one registration per day is allowed during the first month")
		}
	}

	monthLimit := g.limits.RegistrationsPerMonth
	if reg.MaxRegistrationsPerMonth > 0 {
		monthLimit = reg.MaxRegistrationsPerMonth
	}
	month, err := g.store.CountRegistrationsByIssuerSince(ctx, reg.DID, StartOfMonth(now))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count registrations")
	}
	if month >= monthLimit {
		return dErrors.Newf(dErrors.CodeOverRegistrationLimit,
			"%s has reached the limit of %d registrations this month", reg.DID, monthLimit)
	}
	return nil
}

// StartOfDay is midnight UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek is the Monday 00:00 UTC on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// StartOfMonth is the first of t's month, 00:00 UTC.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
