package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"endorser/internal/chain"
	"endorser/internal/claims/handler/mocks"
	"endorser/internal/claims/models"
	"endorser/internal/claims/service"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/testutil"
)

// Justification for unit tests: the handler owns request decoding, status
// selection and the error body shape; the service is mocked so each mapping
// is exercised directly.
type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	chain   *mocks.MockChainVerifier
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.chain = mocks.NewMockChainVerifier(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	h := New(s.service, s.chain, logger)
	h.Register(s.router)
	h.RegisterAdmin(s.router)
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

// =============================================================================
// POST /api/v2/claim
// =============================================================================

func (s *HandlerSuite) TestIngestCreated() {
	s.service.EXPECT().Ingest(gomock.Any(), "eyJ.token.sig").Return(&models.IngestResult{
		ClaimRowID:         "row-1",
		Handle:             "https://endorser.ch/row-1",
		HashNonce:          "abcd",
		EmbeddedResults:    models.EmbeddedResult{Shape: "JoinAction"},
		NetworkSideEffects: []models.NetworkEffect{},
	}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v2/claim", IngestRequest{JWTEncoded: "eyJ.token.sig"})
	res := s.do(req)

	s.Equal(http.StatusCreated, res.Code)
	body := testutil.UnmarshalResponse[models.IngestResult](s.T(), res)
	s.Equal("row-1", body.ClaimRowID)
	s.Equal("JoinAction", body.EmbeddedResults.Shape)
	s.NotNil(body.NetworkSideEffects)
}

func (s *HandlerSuite) TestIngestErrorMapping() {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", dErrors.New(dErrors.CodeUnauthorized, "token has expired"), http.StatusUnauthorized, "unauthorized"},
		{"over claim limit", dErrors.New(dErrors.CodeOverClaimLimit, "weekly limit reached"), http.StatusTooManyRequests, "over_claim_limit"},
		{"unknown reference", dErrors.New(dErrors.CodeUnknownReference, "no claim for handle"), http.StatusNotFound, "unknown_reference"},
		{"duplicate confirmation", dErrors.New(dErrors.CodeDuplicateConfirmation, "already confirmed"), http.StatusConflict, "duplicate_confirmation"},
		{"unregistered issuer", dErrors.New(dErrors.CodeUnregisteredIssuer, "not registered"), http.StatusForbidden, "unregistered_issuer"},
		{"internal", errors.New("database is down"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().Ingest(gomock.Any(), "tok").Return(nil, tt.err)
			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v2/claim", IngestRequest{JWTEncoded: "tok"})
			testutil.AssertStatusAndError(s.T(), s.do(req), tt.status, tt.code)
		})
	}
}

func (s *HandlerSuite) TestIngestRejectsMalformedBody() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/v2/claim", "application/json", "{not json")
	testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestIngestRejectsOversizedBody() {
	body := `{"jwtEncoded":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/v2/claim", "application/json", body)
	testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "bad_request")
}

// =============================================================================
// POST /api/v2/claims/batch
// =============================================================================

func (s *HandlerSuite) TestBatch() {
	s.service.EXPECT().IngestBatch(gomock.Any(), []string{"a", "b"}).Return([]service.Outcome{
		{Result: &models.IngestResult{ClaimRowID: "row-1"}},
		{Error: dErrors.New(dErrors.CodeUnauthorized, "invalid token")},
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v2/claims/batch", BatchRequest{JWTEncoded: []string{"a", "b"}})
	res := s.do(req)

	s.Equal(http.StatusOK, res.Code)
	body := testutil.UnmarshalResponse[struct {
		Results []struct {
			Result *models.IngestResult `json:"result"`
			Error  *dErrors.Error       `json:"error"`
		} `json:"results"`
	}](s.T(), res)
	s.Require().Len(body.Results, 2)
	s.Equal("row-1", body.Results[0].Result.ClaimRowID)
	s.Nil(body.Results[0].Error)
	s.Require().NotNil(body.Results[1].Error)
	s.Equal(dErrors.CodeUnauthorized, body.Results[1].Error.Code)
}

func (s *HandlerSuite) TestBatchSizeLimits() {
	s.Run("empty", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v2/claims/batch", BatchRequest{})
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "validation_error")
	})
	s.Run("too many", func() {
		tokens := make([]string, maxBatch+1)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/v2/claims/batch", BatchRequest{JWTEncoded: tokens})
		testutil.AssertStatusAndError(s.T(), s.do(req), http.StatusBadRequest, "validation_error")
	})
}

// =============================================================================
// Reads
// =============================================================================

func (s *HandlerSuite) TestGetClaim() {
	s.service.EXPECT().Claim(gomock.Any(), "row-1").Return(&models.ClaimRow{ID: "row-1", Issuer: "did:ethr:0x1"}, nil)
	res := s.do(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/claim/row-1", nil))
	s.Equal(http.StatusOK, res.Code)
	testutil.AssertJSONContains(s.T(), res, "issuer", "did:ethr:0x1")

	s.service.EXPECT().Claim(gomock.Any(), "missing").Return(nil, dErrors.New(dErrors.CodeNotFound, "claim not found"))
	res = s.do(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/claim/missing", nil))
	testutil.AssertStatusAndError(s.T(), res, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestListConfirmationsNeverNull() {
	s.service.EXPECT().Confirmations(gomock.Any(), "row-1").Return(nil, nil)
	res := s.do(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/claim/row-1/confirmations", nil))
	s.Equal(http.StatusOK, res.Code)
	s.JSONEq(`{"confirmations":[]}`, string(testutil.ReadBody(s.T(), res)))
}

func (s *HandlerSuite) TestGetProjection() {
	s.service.EXPECT().Projection(gomock.Any(), "give", "https://endorser.ch/row-1").Return(&service.ProjectionView{
		Projection: &models.Give{Header: models.Header{Kind: models.KindGive, Handle: "https://endorser.ch/row-1"}, Amount: 3},
		Providers:  []models.Provider{},
	}, nil)
	res := s.do(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/projection/give?handle=https%3A%2F%2Fendorser.ch%2Frow-1", nil))
	s.Equal(http.StatusOK, res.Code)
	testutil.AssertJSONHasKey(s.T(), res, "projection")

	res = s.do(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/projection/give", nil))
	testutil.AssertStatusAndError(s.T(), res, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestVerifyChain() {
	s.chain.EXPECT().Verify(gomock.Any()).Return(&chain.Report{
		Checked:  3,
		Mismatch: &chain.Mismatch{RowID: "row-4", Seq: 4, Field: "global"},
	}, nil)
	res := s.do(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/chain/verify", nil))
	s.Equal(http.StatusOK, res.Code)
	body := testutil.UnmarshalResponse[chain.Report](s.T(), res)
	s.Equal(3, body.Checked)
	s.Equal("row-4", body.Mismatch.RowID)

	s.chain.EXPECT().Verify(gomock.Any()).Return(nil, context.DeadlineExceeded)
	res = s.do(testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/chain/verify", nil))
	testutil.AssertStatusAndError(s.T(), res, http.StatusInternalServerError, "internal_error")
}

func (s *HandlerSuite) TestChainRouteOptional() {
	router := chi.NewRouter()
	h := New(s.service, nil, nil)
	h.Register(router)
	h.RegisterAdmin(router)
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/api/v2/chain/verify", nil))
	s.Equal(http.StatusNotFound, rr.Code)
}
