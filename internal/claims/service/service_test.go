package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"endorser/internal/claims/metrics"
	"endorser/internal/claims/models"
	"endorser/internal/claims/ports/mocks"
	"endorser/internal/claims/quota"
	"endorser/internal/claims/store/memory"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/audit"
	"endorser/pkg/requestcontext"
)

const (
	alice = "did:ethr:0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "did:ethr:0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	carol = "did:ethr:0xcccccccccccccccccccccccccccccccccccccccc"
	dave  = "did:ethr:0xdddddddddddddddddddddddddddddddddddddddd"
)

// Justification for unit tests: ingestion is the only place the resolver,
// quota gate, confirmation matcher and materializers run together; these
// tests pin the ordering guarantees (rejections leave no rows, confirmations
// serialize per target) over the in-memory store with a mocked verifier.
type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	ctrl     *gomock.Controller
	verifier *mocks.MockVerifier
	store    *memory.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service

	mu     sync.Mutex
	tokens int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.store = memory.NewInMemoryStore()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.service = s.newService()

	registered := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	added, err := s.service.BootstrapAdmins(s.ctx, []string{alice, bob, carol}, registered)
	s.Require().NoError(err)
	s.Require().Equal(3, added)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	opts = append([]Option{WithMetrics(s.metrics)}, opts...)
	svc, err := New(s.store, s.verifier, opts...)
	s.Require().NoError(err)
	return svc
}

// token returns a token the mocked verifier accepts once, carrying claim
// signed by issuer.
func (s *ServiceSuite) token(issuer string, claim map[string]any) string {
	s.mu.Lock()
	s.tokens++
	tok := fmt.Sprintf("token-%d", s.tokens)
	s.mu.Unlock()
	s.verifier.EXPECT().Verify(gomock.Any(), tok).Return(&models.VerifiedToken{
		Issuer:   issuer,
		IssuedAt: s.now,
		Token:    tok,
		Payload:  map[string]any{"claim": claim},
	}, nil)
	return tok
}

func (s *ServiceSuite) ingest(issuer string, claim map[string]any) (*models.IngestResult, error) {
	return s.service.Ingest(s.ctx, s.token(issuer, claim))
}

func (s *ServiceSuite) mustIngest(issuer string, claim map[string]any) *models.IngestResult {
	res, err := s.ingest(issuer, claim)
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Require().True(dErrors.Is(err, code), "expected %s, got %v", code, err)
}

func (s *ServiceSuite) claimCount(issuer string) int {
	n, err := s.store.CountClaimsByIssuerSince(s.ctx, issuer, time.Time{})
	s.Require().NoError(err)
	return n
}

func joinAction(agent string) map[string]any {
	return map[string]any{
		"@context": "https://schema.org",
		"@type":    "JoinAction",
		"agent":    map[string]any{"identifier": agent},
		"event": map[string]any{
			"organizer": map[string]any{"name": "Bountiful Voluntaryist Community"},
			"name":      "Saturday Morning Meeting",
			"startTime": "2024-05-11T08:00:00-06:00",
		},
	}
}

func agree(object any) map[string]any {
	return map[string]any{
		"@context": "https://schema.org",
		"@type":    "AgreeAction",
		"object":   object,
	}
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

func (s *ServiceSuite) TestConfirmJoinActionOnce() {
	joined := s.mustIngest(alice, joinAction(alice))
	s.True(strings.HasPrefix(joined.Handle, s.service.Handles().Prefix))
	s.Equal(s.service.Handles().Mint(joined.ClaimRowID), joined.Handle)
	s.Len(joined.HashNonce, 2*nonceBytes)

	confirmed := s.mustIngest(alice, agree(joinAction(alice)))
	s.Empty(confirmed.EmbeddedResults.Errors)
	s.Require().Len(confirmed.EmbeddedResults.Confirmations, 1)
	s.Equal(joined.ClaimRowID, confirmed.EmbeddedResults.Confirmations[0].ConfirmedRowID)

	list, err := s.service.Confirmations(s.ctx, joined.ClaimRowID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(alice, list[0].Issuer)
	s.Equal(confirmed.ClaimRowID, list[0].ClaimRowID)

	_, err = s.ingest(alice, agree(joinAction(alice)))
	s.requireCode(err, dErrors.CodeDuplicateConfirmation)

	list, err = s.service.Confirmations(s.ctx, joined.ClaimRowID)
	s.Require().NoError(err)
	s.Len(list, 1)
	s.Equal(2, s.claimCount(alice), "the rejected confirmation is not stored")
}

func (s *ServiceSuite) TestRecipientConfirmsGive() {
	given := s.mustIngest(alice, map[string]any{
		"@context":  "https://schema.org",
		"@type":     "GiveAction",
		"recipient": map[string]any{"identifier": bob},
		"object":    map[string]any{"amountOfThisGood": 5, "unitCode": "HUR"},
	})
	view, err := s.service.Projection(s.ctx, "give", given.Handle)
	s.Require().NoError(err)
	g := view.Projection.(*models.Give)
	s.Equal(5.0, g.Amount)
	s.Equal(0.0, g.AmountConfirmed, "unconfirmed until the recipient agrees")

	s.mustIngest(bob, agree(map[string]any{"@type": "GiveAction", "lastClaimId": given.ClaimRowID}))

	view, err = s.service.Projection(s.ctx, "give", given.Handle)
	s.Require().NoError(err)
	g = view.Projection.(*models.Give)
	s.Equal(5.0, g.Amount)
	s.Equal(5.0, g.AmountConfirmed)
	s.Equal("HUR", g.Unit)
}

func (s *ServiceSuite) TestUnknownRevisionPointerWritesNothing() {
	claim := joinAction(alice)
	claim["lastClaimId"] = "01900000-0000-7000-8000-000000000000"

	_, err := s.ingest(alice, claim)
	s.requireCode(err, dErrors.CodeUnknownReference)
	s.Equal(0, s.claimCount(alice))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ClaimsRejected.WithLabelValues(string(dErrors.CodeUnknownReference))))
}

// =============================================================================
// Revisions and quotas
// =============================================================================

func (s *ServiceSuite) TestRevisionPermission() {
	plan := map[string]any{
		"@context": "https://schema.org",
		"@type":    "PlanAction",
		"agent":    map[string]any{"identifier": carol},
		"name":     "Community garden",
	}
	first := s.mustIngest(alice, plan)

	revise := func(name string) map[string]any {
		return map[string]any{
			"@context":    "https://schema.org",
			"@type":       "PlanAction",
			"lastClaimId": first.ClaimRowID,
			"agent":       map[string]any{"identifier": carol},
			"name":        name,
		}
	}

	s.Run("original issuer may revise", func() {
		res := s.mustIngest(alice, revise("Community garden, phase 1"))
		s.Equal(first.Handle, res.Handle)
		s.False(res.EmbeddedResults.Created)
	})

	s.Run("recorded agent may revise", func() {
		res := s.mustIngest(carol, revise("Community garden, phase 2"))
		s.Equal(first.Handle, res.Handle)
	})

	s.Run("third party is forbidden", func() {
		_, err := s.ingest(bob, revise("Taken over"))
		s.requireCode(err, dErrors.CodeForbidden)
		s.Equal(0, s.claimCount(bob))
	})

	view, err := s.service.Projection(s.ctx, "plan", first.Handle)
	s.Require().NoError(err)
	s.Equal("Community garden, phase 2", view.Projection.(*models.Plan).Name)
}

func (s *ServiceSuite) TestWeeklyQuotaBoundary() {
	s.service = s.newService(WithLimits(quota.Limits{ClaimsPerWeek: 3}))

	for i := 0; i < 3; i++ {
		_, err := s.ingest(alice, joinAction(alice))
		s.Require().NoError(err, "claim %d", i+1)
	}
	_, err := s.ingest(alice, joinAction(alice))
	s.requireCode(err, dErrors.CodeOverClaimLimit)
	s.Equal(3, s.claimCount(alice))

	_, err = s.ingest(bob, joinAction(bob))
	s.NoError(err, "quotas are per issuer")
}

func (s *ServiceSuite) TestUnregisteredIssuerRejected() {
	_, err := s.ingest(dave, joinAction(dave))
	s.requireCode(err, dErrors.CodeUnregisteredIssuer)
}

func (s *ServiceSuite) TestRegisterActionRegistersParticipant() {
	res := s.mustIngest(alice, map[string]any{
		"@context":    "https://schema.org",
		"@type":       "RegisterAction",
		"agent":       map[string]any{"identifier": alice},
		"object":      "endorser.ch",
		"participant": map[string]any{"identifier": dave},
	})
	s.True(res.EmbeddedResults.Created)

	_, err := s.ingest(dave, joinAction(dave))
	s.NoError(err)
}

// =============================================================================
// Verification and side effects
// =============================================================================

func (s *ServiceSuite) TestVerificationFailures() {
	s.Run("empty token", func() {
		_, err := s.service.Ingest(s.ctx, "")
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("verifier error becomes unauthorized", func() {
		s.verifier.EXPECT().Verify(gomock.Any(), "forged").Return(nil, errors.New("signature mismatch"))
		_, err := s.service.Ingest(s.ctx, "forged")
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("token without a claim", func() {
		s.verifier.EXPECT().Verify(gomock.Any(), "empty").Return(&models.VerifiedToken{
			Issuer: alice, IssuedAt: s.now, Payload: map[string]any{"iss": alice},
		}, nil)
		_, err := s.service.Ingest(s.ctx, "empty")
		s.requireCode(err, dErrors.CodeBadRequest)
	})
}

func (s *ServiceSuite) TestNetworkSideEffects() {
	network := mocks.NewMockNetworkRecorder(s.ctrl)
	s.service = s.newService(WithNetwork(network))

	network.EXPECT().RecordSees(gomock.Any(), alice, []string{bob}).Return([]string{bob}, nil)
	res := s.mustIngest(alice, map[string]any{
		"@context":  "https://schema.org",
		"@type":     "GiveAction",
		"agent":     map[string]any{"identifier": alice},
		"recipient": map[string]any{"identifier": bob},
	})
	s.Equal([]models.NetworkEffect{{Viewer: alice, Subject: bob}}, res.NetworkSideEffects)

	network.EXPECT().RecordSees(gomock.Any(), alice, []string{bob}).Return(nil, errors.New("redis down"))
	res = s.mustIngest(alice, map[string]any{
		"@context":  "https://schema.org",
		"@type":     "GiveAction",
		"recipient": map[string]any{"identifier": bob},
	})
	s.Empty(res.NetworkSideEffects, "visibility failures do not reject a stored claim")
}

func (s *ServiceSuite) TestAuditEvents() {
	publisher := mocks.NewMockAuditPublisher(s.ctrl)
	s.service = s.newService(WithAuditPublisher(publisher))

	var accepted audit.Event
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		accepted = e
		return nil
	})
	res := s.mustIngest(alice, joinAction(alice))
	s.Equal(string(audit.EventClaimAccepted), accepted.Action)
	s.Equal(alice, accepted.Subject)
	s.Equal(res.ClaimRowID, accepted.ClaimRowID)
	s.Equal(s.now, accepted.Timestamp)

	var rejected audit.Event
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		rejected = e
		return nil
	})
	_, err := s.ingest(dave, joinAction(dave))
	s.Require().Error(err)
	s.Equal(string(audit.EventClaimRejected), rejected.Action)
	s.Equal(audit.CategorySecurity, rejected.Category)
	s.Equal(string(dErrors.CodeUnregisteredIssuer), rejected.Reason)
}

// =============================================================================
// Batches and concurrency
// =============================================================================

func (s *ServiceSuite) TestIngestBatch() {
	planID := "https://example.org/plans/garden"
	s.verifier.EXPECT().Verify(gomock.Any(), "bad").Return(nil, errors.New("expired"))
	tokens := []string{
		s.token(alice, map[string]any{
			"@context":   "https://schema.org",
			"@type":      "PlanAction",
			"identifier": planID,
			"name":       "Garden",
		}),
		"bad",
		s.token(bob, map[string]any{
			"@context": "https://schema.org",
			"@type":    "GiveAction",
			"fulfills": map[string]any{"@type": "PlanAction", "identifier": planID},
			"object":   map[string]any{"amountOfThisGood": 2, "unitCode": "HUR"},
		}),
	}

	out := s.service.IngestBatch(s.ctx, tokens)
	s.Require().Len(out, 3)
	s.Require().NotNil(out[0].Result)
	s.Equal(planID, out[0].Result.Handle)
	s.Require().NotNil(out[1].Error)
	s.Equal(dErrors.CodeUnauthorized, out[1].Error.Code)
	s.Require().NotNil(out[2].Result)

	view, err := s.service.Projection(s.ctx, "give", out[2].Result.Handle)
	s.Require().NoError(err)
	g := view.Projection.(*models.Give)
	s.Equal(planID, g.FulfillsHandle)
	s.Equal(planID, g.FulfillsPlanHandle)
}

func (s *ServiceSuite) TestConcurrentDuplicateConfirmations() {
	joined := s.mustIngest(alice, joinAction(alice))
	tokens := []string{
		s.token(bob, agree(map[string]any{"@type": "JoinAction", "lastClaimId": joined.ClaimRowID})),
		s.token(bob, agree(map[string]any{"@type": "JoinAction", "lastClaimId": joined.ClaimRowID})),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(tokens))
	for i, tok := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Ingest(s.ctx, tok)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			s.True(dErrors.Is(err, dErrors.CodeDuplicateConfirmation), "unexpected error %v", err)
		}
	}
	s.Equal(1, failures)

	list, err := s.service.Confirmations(s.ctx, joined.ClaimRowID)
	s.Require().NoError(err)
	s.Len(list, 1)
}

// =============================================================================
// Reads
// =============================================================================

func (s *ServiceSuite) TestReads() {
	s.Run("unknown claim", func() {
		_, err := s.service.Claim(s.ctx, "missing")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("unknown projection kind", func() {
		_, err := s.service.Projection(s.ctx, "widget", "x")
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("stored claim is canonical", func() {
		res := s.mustIngest(alice, joinAction(alice))
		row, err := s.service.Claim(s.ctx, res.ClaimRowID)
		s.Require().NoError(err)
		s.Equal("JoinAction", row.Type)
		s.Contains(string(row.Claim), `"@context":"https://schema.org"`)
		s.Equal(res.HashNonce, row.HashNonce)
	})

	s.Run("bootstrap skips registered issuers", func() {
		added, err := s.service.BootstrapAdmins(s.ctx, []string{alice, dave}, s.now)
		s.Require().NoError(err)
		s.Equal(1, added)
	})
}
