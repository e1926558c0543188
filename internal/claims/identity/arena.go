package identity

import (
	"context"
	"errors"

	"endorser/internal/claims/models"
	"endorser/pkg/platform/sentinel"
)

// Lookup is the storage the resolver reads.
type Lookup interface {
	GetClaim(ctx context.Context, id string) (*models.ClaimRow, error)
	GetLatestByHandle(ctx context.Context, handle string) (*models.ClaimRow, error)
}

// Arena caches resolved rows for one ingestion batch, including lookups that
// found nothing, so each reference costs at most one storage round-trip and
// later claims in a batch can reference rows inserted by earlier ones.
// An Arena is not safe for concurrent use.
type Arena struct {
	byID          map[string]*models.ClaimRow
	byHandle      map[string]*models.ClaimRow
	missingID     map[string]struct{}
	missingHandle map[string]struct{}
	lookups       int
}

func NewArena() *Arena {
	return &Arena{
		byID:          map[string]*models.ClaimRow{},
		byHandle:      map[string]*models.ClaimRow{},
		missingID:     map[string]struct{}{},
		missingHandle: map[string]struct{}{},
	}
}

// Remember records a row inserted during the batch as the latest revision of its handle.
func (a *Arena) Remember(row *models.ClaimRow) {
	a.byID[row.ID] = row
	delete(a.missingID, row.ID)
	if row.Handle != "" {
		a.byHandle[row.Handle] = row
		delete(a.missingHandle, row.Handle)
	}
}

// Lookups is the number of storage round-trips made through the arena.
func (a *Arena) Lookups() int {
	return a.lookups
}

func (a *Arena) row(ctx context.Context, store Lookup, id string) (*models.ClaimRow, error) {
	if row, ok := a.byID[id]; ok {
		return row, nil
	}
	if _, ok := a.missingID[id]; ok {
		return nil, sentinel.ErrNotFound
	}
	a.lookups++
	row, err := store.GetClaim(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		a.missingID[id] = struct{}{}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	a.byID[id] = row
	return row, nil
}

func (a *Arena) latest(ctx context.Context, store Lookup, handle string) (*models.ClaimRow, error) {
	if row, ok := a.byHandle[handle]; ok {
		return row, nil
	}
	if _, ok := a.missingHandle[handle]; ok {
		return nil, sentinel.ErrNotFound
	}
	a.lookups++
	row, err := store.GetLatestByHandle(ctx, handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		a.missingHandle[handle] = struct{}{}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	a.byHandle[handle] = row
	a.byID[row.ID] = row
	return row, nil
}
