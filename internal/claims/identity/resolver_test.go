package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"endorser/internal/claims/models"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/sentinel"
)

const (
	alice = "did:ethr:0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "did:ethr:0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	carol = "did:ethr:0xcccccccccccccccccccccccccccccccccccccccc"
)

// stubLookup is a map-backed Lookup that counts round-trips.
type stubLookup struct {
	rows  map[string]*models.ClaimRow
	calls int
	fail  error
}

func (s *stubLookup) GetClaim(_ context.Context, id string) (*models.ClaimRow, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	if row, ok := s.rows[id]; ok {
		return row, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *stubLookup) GetLatestByHandle(_ context.Context, handle string) (*models.ClaimRow, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	var latest *models.ClaimRow
	for _, row := range s.rows {
		if row.Handle == handle && (latest == nil || row.Seq > latest.Seq) {
			latest = row
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest, nil
}

// Justification for unit tests: the resolver's branches (pointer vs handle,
// system vs foreign vs local identifiers, permission rule) are pure decisions
// over stored rows, so a map-backed lookup exercises every path.
type ResolverSuite struct {
	suite.Suite
	store    *stubLookup
	resolver *Resolver
	handles  Handles
	ctx      context.Context
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = context.Background()
	s.handles = NewHandles("")
	s.store = &stubLookup{rows: map[string]*models.ClaimRow{
		"01PLAN": {
			ID: "01PLAN", Seq: 1, Handle: s.handles.Mint("01PLAN"), Issuer: alice, Agent: bob,
			Context: models.SchemaContext, Type: "PlanAction",
		},
		"02PLAN": {
			ID: "02PLAN", Seq: 2, Handle: s.handles.Mint("01PLAN"), Issuer: alice, Agent: bob,
			Context: models.SchemaContext, Type: "PlanAction",
		},
		"03FOREIGN": {
			ID: "03FOREIGN", Seq: 3, Handle: "https://example.org/plans/7", Issuer: carol,
			Context: models.SchemaContext, Type: "PlanAction",
		},
	}}
	var err error
	s.resolver, err = NewResolver(s.store, s.handles)
	s.Require().NoError(err)
}

func (s *ResolverSuite) claim(doc map[string]any) *models.Claim {
	if _, ok := doc["@type"]; !ok {
		doc["@type"] = "PlanAction"
	}
	c, err := models.ParseClaim(doc)
	s.Require().NoError(err)
	return c
}

func (s *ResolverSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

// =============================================================================
// Revision pointer
// =============================================================================

func (s *ResolverSuite) TestRevisionPointer() {
	s.Run("original issuer may edit", func() {
		res, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"lastClaimId": "01PLAN"}))
		s.Require().NoError(err)
		s.Equal(s.handles.Mint("01PLAN"), res.Handle)
		s.Equal(alice, res.PreviousIssuer)
		s.False(res.First)
	})

	s.Run("recorded agent may edit", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), bob, s.claim(map[string]any{"lastClaimId": "01PLAN"}))
		s.NoError(err)
	})

	s.Run("third party is forbidden", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), carol, s.claim(map[string]any{"lastClaimId": "01PLAN"}))
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("missing row is an unknown reference", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"lastClaimId": "99NOPE"}))
		s.requireCode(err, dErrors.CodeUnknownReference)
	})

	s.Run("different type is a mismatch", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"@type": "Project", "lastClaimId": "01PLAN"}))
		s.requireCode(err, dErrors.CodeTypeMismatch)
	})

	s.Run("different context is a mismatch", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"@context": "https://example.com", "lastClaimId": "01PLAN"}))
		s.requireCode(err, dErrors.CodeTypeMismatch)
	})

	s.Run("identifier disagreeing with pointer is a mismatch", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{
			"lastClaimId": "01PLAN",
			"identifier":  "https://example.org/plans/7",
		}))
		s.requireCode(err, dErrors.CodeTypeMismatch)
	})

	s.Run("storage failure is internal", func() {
		failing := &stubLookup{fail: errors.New("db down")}
		r, err := NewResolver(failing, s.handles)
		s.Require().NoError(err)
		_, err = r.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"lastClaimId": "01PLAN"}))
		s.requireCode(err, dErrors.CodeInternal)
	})
}

// =============================================================================
// Handle addressing
// =============================================================================

func (s *ResolverSuite) TestHandle() {
	s.Run("no reference mints a new handle", func() {
		res, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{}))
		s.Require().NoError(err)
		s.True(res.MintNew)
		s.True(res.First)
		s.Empty(res.Handle)
	})

	s.Run("existing system handle resolves to latest revision", func() {
		res, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"identifier": s.handles.Mint("01PLAN")}))
		s.Require().NoError(err)
		s.Equal("02PLAN", res.Previous.ID)
	})

	s.Run("unknown system handle is an unknown reference", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"identifier": s.handles.Mint("NOPE")}))
		s.requireCode(err, dErrors.CodeUnknownReference)
	})

	s.Run("unseen foreign identifier is a first revision", func() {
		res, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"identifier": "https://example.org/plans/8"}))
		s.Require().NoError(err)
		s.True(res.First)
		s.False(res.MintNew)
		s.Equal("https://example.org/plans/8", res.Handle)
	})

	s.Run("seen foreign identifier follows the permission rule", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"identifier": "https://example.org/plans/7"}))
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("self-assigned local identifier is forbidden", func() {
		_, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"identifier": "my-own-id"}))
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("local identifier of a minted handle is accepted", func() {
		res, err := s.resolver.Resolve(s.ctx, NewArena(), alice, s.claim(map[string]any{"identifier": "01PLAN"}))
		s.Require().NoError(err)
		s.Equal(s.handles.Mint("01PLAN"), res.Handle)
	})
}

// =============================================================================
// Nested references and the arena
// =============================================================================

func (s *ResolverSuite) TestNested() {
	s.Run("unknown fulfills pointer rejects the claim", func() {
		c := s.claim(map[string]any{"@type": "GiveAction", "fulfills": map[string]any{"lastClaimId": "404"}})
		s.requireCode(s.resolver.ResolveNested(s.ctx, NewArena(), c), dErrors.CodeUnknownReference)
	})

	s.Run("foreign and inline references are accepted", func() {
		c := s.claim(map[string]any{
			"@type":    "GiveAction",
			"fulfills": []any{map[string]any{"identifier": "https://example.org/x"}, map[string]any{"@type": "PlanAction"}},
			"provider": map[string]any{"identifier": bob},
		})
		s.NoError(s.resolver.ResolveNested(s.ctx, NewArena(), c))
	})

	s.Run("arena caches hits and misses", func() {
		arena := NewArena()
		before := s.store.calls
		for range 3 {
			_, _ = s.resolver.ResolveRef(s.ctx, arena, models.Ref{LastClaimID: "01PLAN"})
			_, _ = s.resolver.ResolveRef(s.ctx, arena, models.Ref{LastClaimID: "404"})
		}
		s.Equal(2, s.store.calls-before)
		s.Equal(2, arena.Lookups())
	})

	s.Run("rows remembered in the arena resolve without storage", func() {
		arena := NewArena()
		sibling := &models.ClaimRow{ID: "05NEW", Handle: s.handles.Mint("05NEW"), Issuer: alice, Context: models.SchemaContext, Type: "PlanAction"}
		arena.Remember(sibling)

		target, err := s.resolver.ResolveRef(s.ctx, arena, models.Ref{Identifier: s.handles.Mint("05NEW")})
		s.Require().NoError(err)
		s.Same(sibling, target.Row)
		s.Zero(arena.Lookups())
	})

	s.Run("remember clears a cached miss", func() {
		arena := NewArena()
		_, err := s.resolver.ResolveRef(s.ctx, arena, models.Ref{LastClaimID: "06LATE"})
		s.requireCode(err, dErrors.CodeUnknownReference)

		arena.Remember(&models.ClaimRow{ID: "06LATE", Handle: s.handles.Mint("06LATE")})
		target, err := s.resolver.ResolveRef(s.ctx, arena, models.Ref{LastClaimID: "06LATE"})
		s.Require().NoError(err)
		s.Equal("06LATE", target.Row.ID)
	})

	s.Run("unaddressed ref resolves to nothing", func() {
		target, err := s.resolver.ResolveRef(s.ctx, NewArena(), models.Ref{Type: "GiveAction"})
		s.NoError(err)
		s.Nil(target)
	})
}

func TestHandles(t *testing.T) {
	h := NewHandles("https://endorser.test/entity/")
	if !h.IsGlobal("did:ethr:0x1") || !h.IsGlobal("https://x") || h.IsGlobal("01ABC") {
		t.Fatal("scheme detection")
	}
	if h.Canonical("01ABC") != "https://endorser.test/entity/01ABC" {
		t.Fatal("local identifiers map to system handles")
	}
	if h.Canonical("did:ethr:0x1") != "did:ethr:0x1" {
		t.Fatal("global identifiers are unchanged")
	}
}
