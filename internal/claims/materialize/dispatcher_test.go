package materialize

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"endorser/internal/claims/confirm"
	"endorser/internal/claims/identity"
	"endorser/internal/claims/models"
	"endorser/internal/claims/store/memory"
	"endorser/pkg/canon"
	dErrors "endorser/pkg/domain-errors"
)

const (
	alice = "did:ethr:0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "did:ethr:0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	carol = "did:ethr:0xcccccccccccccccccccccccccccccccccccccccc"
)

// Justification for unit tests: each materializer derives projection fields
// and confirmation state from the claim body and its parents; the in-memory
// store lets the tests read the resulting projections back.
type DispatcherSuite struct {
	suite.Suite
	ctx        context.Context
	store      *memory.InMemoryStore
	handles    identity.Handles
	arena      *identity.Arena
	dispatcher *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewInMemoryStore()
	s.handles = identity.NewHandles("")
	s.arena = identity.NewArena()
	resolver, err := identity.NewResolver(s.store, s.handles)
	s.Require().NoError(err)
	matcher, err := confirm.New(s.store, resolver)
	s.Require().NoError(err)
	s.dispatcher, err = New(s.store, resolver, matcher)
	s.Require().NoError(err)
}

// accept stores doc the way ingestion does and materializes it.
func (s *DispatcherSuite) accept(issuer string, doc map[string]any) (*models.ClaimRow, models.EmbeddedResult) {
	claim, err := models.ParseClaim(doc)
	s.Require().NoError(err)
	content := models.ContentDoc(claim.Doc, claim.Context)
	raw, err := canon.Canonicalize(map[string]any(content))
	s.Require().NoError(err)

	id := uuid.Must(uuid.NewV7()).String()
	handle := s.handles.Mint(id)
	if last := claim.LastClaimID(); last != "" {
		prev, err := s.store.GetClaim(s.ctx, last)
		s.Require().NoError(err)
		handle = prev.Handle
	}
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	row := &models.ClaimRow{
		ID: id, Handle: handle, Issuer: issuer, IssuedAt: now, Context: claim.Context, Type: claim.Type,
		Claim: raw, ContentHash: canon.HexDigest(raw), Agent: models.AgentOf(claim.Shape(), claim.Doc), CreatedAt: now,
	}
	s.Require().NoError(s.store.InsertClaim(s.ctx, row))
	s.arena.Remember(row)
	return row, s.dispatcher.Dispatch(s.ctx, s.arena, Input{Row: row, Claim: claim})
}

func (s *DispatcherSuite) projection(kind models.ProjectionKind, handle string) models.Projection {
	p, err := s.store.FindProjectionByHandle(s.ctx, kind, handle)
	s.Require().NoError(err)
	return p
}

func give(recipient string, amount float64) map[string]any {
	return map[string]any{
		"@context":  "https://schema.org",
		"@type":     "GiveAction",
		"recipient": map[string]any{"identifier": recipient},
		"object":    map[string]any{"amountOfThisGood": amount, "unitCode": "HUR"},
	}
}

// =============================================================================
// Gives and offers
// =============================================================================

func (s *DispatcherSuite) TestGiveByGiverIsUnconfirmed() {
	row, res := s.accept(alice, give(bob, 3))
	s.Empty(res.Errors)
	s.True(res.Created)
	s.Equal(models.KindGive, res.ProjectionKind)

	g := s.projection(models.KindGive, row.Handle).(*models.Give)
	s.Equal(alice, g.Agent)
	s.Equal(bob, g.Recipient)
	s.Equal(3.0, g.Amount)
	s.Equal(0.0, g.AmountConfirmed)
}

func (s *DispatcherSuite) TestGiveRecordedByRecipientIsConfirmed() {
	doc := give(bob, 3)
	doc["agent"] = map[string]any{"identifier": alice}
	row, _ := s.accept(bob, doc)

	g := s.projection(models.KindGive, row.Handle).(*models.Give)
	s.Equal(alice, g.Agent)
	s.Equal(3.0, g.AmountConfirmed)
}

func (s *DispatcherSuite) TestGiveToPlanConfirmedByPlanOwner() {
	plan, _ := s.accept(carol, map[string]any{"@context": "https://schema.org", "@type": "PlanAction", "name": "Garden"})
	offer, _ := s.accept(alice, map[string]any{
		"@context":    "https://schema.org",
		"@type":       "Offer",
		"itemOffered": map[string]any{"isPartOf": map[string]any{"identifier": plan.Handle}},
	})

	doc := give(bob, 2)
	doc["fulfills"] = []any{
		map[string]any{"@type": "Offer", "identifier": offer.Handle},
		map[string]any{"identifier": plan.Handle},
	}
	row, res := s.accept(carol, doc)
	s.Require().Len(res.Warnings, 1)

	g := s.projection(models.KindGive, row.Handle).(*models.Give)
	s.Equal(offer.Handle, g.FulfillsHandle)
	s.Equal("Offer", g.FulfillsType)
	s.Equal(plan.Handle, g.FulfillsPlanHandle)
	s.Equal(2.0, g.AmountConfirmed)
	s.False(g.FulfillsLinkConfirmed)

	o := s.projection(models.KindOffer, offer.Handle).(*models.Offer)
	s.Equal(plan.Handle, o.FulfillsPlanHandle)
}

func (s *DispatcherSuite) TestGiveLinkConfirmedByParentIssuer() {
	plan, _ := s.accept(carol, map[string]any{"@context": "https://schema.org", "@type": "PlanAction"})
	doc := give(bob, 1)
	doc["fulfills"] = map[string]any{"identifier": plan.Handle}
	row, _ := s.accept(carol, doc)

	g := s.projection(models.KindGive, row.Handle).(*models.Give)
	s.True(g.FulfillsLinkConfirmed)
}

func (s *DispatcherSuite) TestRevisionKeepsCountsAndReplacesProviders() {
	first := give(bob, 5)
	first["provider"] = []any{map[string]any{"identifier": "did:ethr:0xd1"}, "did:ethr:0xd2"}
	row, _ := s.accept(alice, first)

	g := s.projection(models.KindGive, row.Handle).(*models.Give)
	g.ConfirmedCount = 2
	s.Require().NoError(s.store.UpsertProjection(s.ctx, g))

	revised := give(bob, 4)
	revised["lastClaimId"] = row.ID
	revised["provider"] = "did:ethr:0xd3"
	_, res := s.accept(alice, revised)
	s.False(res.Created)

	g = s.projection(models.KindGive, row.Handle).(*models.Give)
	s.Equal(4.0, g.Amount)
	s.Equal(2, g.ConfirmedCount)

	providers, err := s.store.ListProviders(s.ctx, models.KindGive, row.Handle)
	s.Require().NoError(err)
	s.Require().Len(providers, 1)
	s.Equal("did:ethr:0xd3", providers[0].ProviderHandle)
}

func (s *DispatcherSuite) TestOfferFields() {
	row, _ := s.accept(bob, map[string]any{
		"@context":       "https://schema.org",
		"@type":          "Offer",
		"recipient":      map[string]any{"identifier": bob},
		"offeredBy":      map[string]any{"identifier": alice},
		"includesObject": map[string]any{"amountOfThisGood": 7, "unitCode": "HUR"},
		"validThrough":   "2024-12-31",
	})

	o := s.projection(models.KindOffer, row.Handle).(*models.Offer)
	s.Equal(alice, o.OfferedBy)
	s.Equal(7.0, o.AmountConfirmed)
	s.Require().NotNil(o.ValidThrough)
	s.Equal(2024, o.ValidThrough.Year())
}

func (s *DispatcherSuite) TestOfferToPlanConfirmedByPlanOwner() {
	plan, _ := s.accept(carol, map[string]any{"@context": "https://schema.org", "@type": "PlanAction", "name": "Garden"})
	row, res := s.accept(carol, map[string]any{
		"@context":       "https://schema.org",
		"@type":          "Offer",
		"recipient":      map[string]any{"identifier": bob},
		"includesObject": map[string]any{"amountOfThisGood": 4, "unitCode": "HUR"},
		"itemOffered":    map[string]any{"isPartOf": map[string]any{"identifier": plan.Handle}},
	})
	s.Empty(res.Errors)

	o := s.projection(models.KindOffer, row.Handle).(*models.Offer)
	s.Equal(plan.Handle, o.FulfillsPlanHandle)
	s.Equal(4.0, o.Amount)
	s.Equal(4.0, o.AmountConfirmed)

	s.Run("an unrelated issuer leaves it unconfirmed", func() {
		row, _ := s.accept(alice, map[string]any{
			"@context":       "https://schema.org",
			"@type":          "Offer",
			"recipient":      map[string]any{"identifier": bob},
			"includesObject": map[string]any{"amountOfThisGood": 4, "unitCode": "HUR"},
			"itemOffered":    map[string]any{"isPartOf": map[string]any{"identifier": plan.Handle}},
		})
		o := s.projection(models.KindOffer, row.Handle).(*models.Offer)
		s.Equal(0.0, o.AmountConfirmed)
	})
}

// =============================================================================
// Plans and exact-match records
// =============================================================================

func (s *DispatcherSuite) TestPlanDetails() {
	row, _ := s.accept(alice, map[string]any{
		"@context":  "https://schema.org",
		"@type":     "PlanAction",
		"agent":     map[string]any{"identifier": bob},
		"name":      "Community garden",
		"startTime": "2024-06-01T09:00:00Z",
		"location":  map[string]any{"geo": map[string]any{"latitude": 40.88, "longitude": -111.86}},
	})

	p := s.projection(models.KindPlan, row.Handle).(*models.Plan)
	s.Equal(bob, p.Agent)
	s.Equal("Community garden", p.Name)
	s.Require().NotNil(p.StartTime)
	s.Require().NotNil(p.Latitude)
	s.InDelta(40.88, *p.Latitude, 1e-9)
}

func (s *DispatcherSuite) TestJoinActionMatchKey() {
	doc := map[string]any{
		"@context": "https://schema.org",
		"@type":    "JoinAction",
		"event":    map[string]any{"name": "Saturday Meeting", "startTime": "2024-05-18T08:00:00Z"},
	}
	row, _ := s.accept(alice, doc)

	a := s.projection(models.KindAction, row.Handle).(*models.Action)
	s.Equal(alice, a.Agent)
	s.NotEmpty(a.MatchKey)

	withAgent := map[string]any{"agent": map[string]any{"identifier": alice}, "event": doc["event"]}
	key, ok := models.MatchKey(models.ShapeJoinAction, withAgent, "")
	s.Require().True(ok)
	s.Equal(key, a.MatchKey)
}

func (s *DispatcherSuite) TestTenureBoundingBox() {
	row, res := s.accept(alice, map[string]any{
		"@context":    "https://endorser.ch",
		"@type":       "Tenure",
		"spatialUnit": map[string]any{"geo": map[string]any{"polygon": "40.1,-111.2 40.3,-111.0  40.2,-111.4"}},
	})
	s.Empty(res.Warnings)

	t := s.projection(models.KindTenure, row.Handle).(*models.Tenure)
	s.Equal(alice, t.Party)
	s.Require().NotNil(t.BBox)
	s.Equal(models.BBox{MinLat: 40.1, MinLon: -111.4, MaxLat: 40.3, MaxLon: -111.0}, *t.BBox)
}

func (s *DispatcherSuite) TestOrganizationRole() {
	row, _ := s.accept(alice, map[string]any{
		"@context": "https://schema.org",
		"@type":    "Organization",
		"name":     "Cottonwood Cryptography Club",
		"member": map[string]any{
			"@type":    "OrganizationRole",
			"member":   map[string]any{"identifier": bob},
			"roleName": "President",
		},
	})

	r := s.projection(models.KindOrgRole, row.Handle).(*models.OrgRole)
	s.Equal(bob, r.Member)
	s.Equal("President", r.RoleName)
	s.NotEmpty(r.MatchKey)
}

func (s *DispatcherSuite) TestVote() {
	row, _ := s.accept(alice, map[string]any{
		"@context":     "https://schema.org",
		"@type":        "VoteAction",
		"actionOption": "yes",
		"candidate":    map[string]any{"name": "Measure 7"},
		"object":       map[string]any{"event": map[string]any{"name": "Election", "startTime": "2024-11-05"}},
	})

	v := s.projection(models.KindVote, row.Handle).(*models.Vote)
	s.Equal("yes", v.ActionOption)
	s.Equal("Measure 7", v.Candidate)
	s.Equal("Election", v.EventName)
}

// =============================================================================
// Registrations and unknown shapes
// =============================================================================

func (s *DispatcherSuite) TestRegistration() {
	doc := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "RegisterAction",
		"agent":       map[string]any{"identifier": alice},
		"participant": map[string]any{"identifier": carol},
	}
	row, res := s.accept(alice, doc)
	s.Empty(res.Errors)
	s.True(res.Created)

	reg, err := s.store.GetRegistration(s.ctx, carol)
	s.Require().NoError(err)
	s.Equal(alice, reg.RegisteredBy)
	s.Equal(row.ID, reg.ClaimRowID)

	s.Run("registering again only warns", func() {
		_, res := s.accept(alice, doc)
		s.Empty(res.Errors)
		s.Len(res.Warnings, 1)
	})

	s.Run("missing participant is an embedded error", func() {
		_, res := s.accept(alice, map[string]any{"@context": "https://schema.org", "@type": "RegisterAction"})
		s.Require().Len(res.Errors, 1)
		s.Equal(dErrors.CodeValidation, res.Errors[0].Code)
	})
}

func (s *DispatcherSuite) TestUnknownShapeIsBare() {
	_, res := s.accept(alice, map[string]any{"@context": "https://schema.org", "@type": "Person", "name": "Alice"})
	s.Equal("Unknown", res.Shape)
	s.Empty(res.ProjectionKind)
	s.Empty(res.Errors)
	s.False(res.Created)
}

func TestBoundingBox(t *testing.T) {
	_, err := BoundingBox("40.1 -111.2")
	assert.Error(t, err)

	_, err = BoundingBox("   ")
	assert.Error(t, err)

	box, err := BoundingBox("1,2")
	require.NoError(t, err)
	assert.Equal(t, models.BBox{MinLat: 1, MinLon: 2, MaxLat: 1, MaxLon: 2}, *box)
}
