// Package memory is an in-process implementation of the claim store, used by
// tests and by the server when no database is configured.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"endorser/internal/claims/models"
	"endorser/pkg/platform/sentinel"
)

type txKey struct{}

// memTx journals undo steps so RunInTx can roll back on error.
type memTx struct {
	undo []func()
}

type projectionKey struct {
	kind   models.ProjectionKind
	handle string
}

type InMemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	seq      int64
	rows     map[string]*models.ClaimRow
	ordered  []*models.ClaimRow
	chained  []*models.ClaimRow // by chain position
	byHandle map[string]*models.ClaimRow
	byHash   map[string]*models.ClaimRow

	projections map[projectionKey][]byte
	matchIndex  map[projectionKey]string
	providers   map[projectionKey][]models.Provider

	confirmations []*models.Confirmation
	confByTarget  map[string]*models.Confirmation

	registrations map[string]*models.Registration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rows:          make(map[string]*models.ClaimRow),
		byHandle:      make(map[string]*models.ClaimRow),
		byHash:        make(map[string]*models.ClaimRow),
		projections:   make(map[projectionKey][]byte),
		matchIndex:    make(map[projectionKey]string),
		providers:     make(map[projectionKey][]models.Provider),
		confByTarget:  make(map[string]*models.Confirmation),
		registrations: make(map[string]*models.Registration),
	}
}

// RunInTx serializes transactions and undoes their writes when fn fails.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(txKey{}).(*memTx); nested {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// journal records an undo step when called inside RunInTx. Callers hold s.mu.
func journal(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func cloneRow(r *models.ClaimRow) *models.ClaimRow {
	c := *r
	if r.Chain != nil {
		v := *r.Chain
		c.Chain = &v
	}
	return &c
}

// =============================================================================
// Claims
// =============================================================================

func (s *InMemoryStore) InsertClaim(ctx context.Context, row *models.ClaimRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[row.ID]; exists {
		return fmt.Errorf("insert claim %s: %w", row.ID, sentinel.ErrConflict)
	}
	s.seq++
	row.Seq = s.seq
	stored := cloneRow(row)
	prevHandle := s.byHandle[row.Handle]
	prevHash := s.byHash[row.ContentHash]

	s.rows[row.ID] = stored
	s.ordered = append(s.ordered, stored)
	s.byHandle[row.Handle] = stored
	s.byHash[row.ContentHash] = stored

	journal(ctx, func() {
		delete(s.rows, row.ID)
		s.ordered = slices.DeleteFunc(s.ordered, func(r *models.ClaimRow) bool { return r == stored })
		restore(s.byHandle, row.Handle, prevHandle)
		restore(s.byHash, row.ContentHash, prevHash)
	})
	return nil
}

func restore(m map[string]*models.ClaimRow, key string, prev *models.ClaimRow) {
	if prev == nil {
		delete(m, key)
		return
	}
	m[key] = prev
}

func (s *InMemoryStore) GetClaim(_ context.Context, id string) (*models.ClaimRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRow(row), nil
}

func (s *InMemoryStore) GetLatestByHandle(_ context.Context, handle string) (*models.ClaimRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.byHandle[handle]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRow(row), nil
}

func (s *InMemoryStore) FindClaimByContentHash(_ context.Context, hash string) (*models.ClaimRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRow(row), nil
}

func (s *InMemoryStore) CountClaimsByIssuerSince(_ context.Context, issuer string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.ordered {
		if row.Issuer == issuer && !row.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Projections
// =============================================================================

func (s *InMemoryStore) UpsertProjection(ctx context.Context, p models.Projection) error {
	h := p.Head()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s projection: %w", h.Kind, err)
	}
	key := projectionKey{kind: h.Kind, handle: h.Handle}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev := s.projections[key]
	var prevMatch string
	if hadPrev {
		if old, err := models.DecodeProjection(h.Kind, prev); err == nil && old.Head().MatchKey != "" {
			prevMatch = old.Head().MatchKey
			delete(s.matchIndex, projectionKey{kind: h.Kind, handle: prevMatch})
		}
	}
	s.projections[key] = data
	if h.MatchKey != "" {
		s.matchIndex[projectionKey{kind: h.Kind, handle: h.MatchKey}] = h.Handle
	}

	journal(ctx, func() {
		if h.MatchKey != "" {
			delete(s.matchIndex, projectionKey{kind: h.Kind, handle: h.MatchKey})
		}
		if !hadPrev {
			delete(s.projections, key)
			return
		}
		s.projections[key] = prev
		if prevMatch != "" {
			s.matchIndex[projectionKey{kind: h.Kind, handle: prevMatch}] = h.Handle
		}
	})
	return nil
}

func (s *InMemoryStore) FindProjectionByHandle(_ context.Context, kind models.ProjectionKind, handle string) (models.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.projections[projectionKey{kind: kind, handle: handle}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return models.DecodeProjection(kind, data)
}

func (s *InMemoryStore) FindProjectionByMatchKey(ctx context.Context, kind models.ProjectionKind, key string) (models.Projection, error) {
	s.mu.RLock()
	handle, ok := s.matchIndex[projectionKey{kind: kind, handle: key}]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindProjectionByHandle(ctx, kind, handle)
}

func (s *InMemoryStore) ReplaceProviders(ctx context.Context, kind models.ProjectionKind, handle string, providers []models.Provider) error {
	key := projectionKey{kind: kind, handle: handle}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.providers[key]
	if len(providers) == 0 {
		delete(s.providers, key)
	} else {
		s.providers[key] = slices.Clone(providers)
	}
	journal(ctx, func() {
		if had {
			s.providers[key] = prev
		} else {
			delete(s.providers, key)
		}
	})
	return nil
}

func (s *InMemoryStore) ListProviders(_ context.Context, kind models.ProjectionKind, handle string) ([]models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.providers[projectionKey{kind: kind, handle: handle}]), nil
}

// =============================================================================
// Confirmations
// =============================================================================

func confirmationKey(issuer, targetKey string) string {
	return issuer + "|" + targetKey
}

func (s *InMemoryStore) InsertConfirmation(ctx context.Context, c *models.Confirmation) error {
	key := confirmationKey(c.Issuer, c.TargetKey())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.confByTarget[key]; exists {
		return fmt.Errorf("insert confirmation: %w", sentinel.ErrConflict)
	}
	stored := *c
	s.confByTarget[key] = &stored
	s.confirmations = append(s.confirmations, &stored)
	journal(ctx, func() {
		delete(s.confByTarget, key)
		s.confirmations = slices.DeleteFunc(s.confirmations, func(x *models.Confirmation) bool { return x == &stored })
	})
	return nil
}

func (s *InMemoryStore) FindConfirmation(_ context.Context, issuer, targetKey string) (*models.Confirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.confByTarget[confirmationKey(issuer, targetKey)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *InMemoryStore) ListConfirmations(_ context.Context, confirmedRowID string) ([]*models.Confirmation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Confirmation
	for _, c := range s.confirmations {
		if c.ConfirmedRowID == confirmedRowID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// =============================================================================
// Registrations
// =============================================================================

func (s *InMemoryStore) GetRegistration(_ context.Context, did string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrations[did]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *InMemoryStore) InsertRegistration(ctx context.Context, r *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registrations[r.DID]; exists {
		return fmt.Errorf("insert registration %s: %w", r.DID, sentinel.ErrConflict)
	}
	stored := *r
	s.registrations[r.DID] = &stored
	journal(ctx, func() { delete(s.registrations, r.DID) })
	return nil
}

func (s *InMemoryStore) CountRegistrationsByIssuerSince(_ context.Context, issuer string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.registrations {
		if r.RegisteredBy == issuer && !r.RegisteredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Hash chain
// =============================================================================

func (s *InMemoryStore) ListUnchainedClaims(_ context.Context, limit int) ([]*models.ClaimRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ClaimRow
	for _, row := range s.ordered {
		if row.Chain != nil {
			continue
		}
		out = append(out, cloneRow(row))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListChainedClaims(_ context.Context, afterPosition int64, limit int) ([]*models.ClaimRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ClaimRow
	for _, row := range s.chained {
		if row.Chain.Position <= afterPosition {
			continue
		}
		out = append(out, cloneRow(row))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) LastChain(_ context.Context) (*models.ChainValues, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.chained) == 0 {
		return nil, sentinel.ErrNotFound
	}
	v := *s.chained[len(s.chained)-1].Chain
	return &v, nil
}

func (s *InMemoryStore) LastIssuerChain(_ context.Context, issuer string) (*models.ChainValues, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.chained) - 1; i >= 0; i-- {
		row := s.chained[i]
		if row.Issuer == issuer {
			v := *row.Chain
			return &v, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) SetChainValues(_ context.Context, rowID string, v models.ChainValues) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[rowID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if row.Chain != nil {
		return sentinel.ErrAlreadyChained
	}
	i, taken := slices.BinarySearchFunc(s.chained, v.Position, func(r *models.ClaimRow, pos int64) int {
		return cmp.Compare(r.Chain.Position, pos)
	})
	if taken {
		return sentinel.ErrAlreadyChained
	}
	row.Chain = &v
	s.chained = slices.Insert(s.chained, i, row)
	return nil
}
