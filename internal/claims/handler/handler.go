package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"endorser/internal/chain"
	"endorser/internal/claims/models"
	"endorser/internal/claims/service"
	dErrors "endorser/pkg/domain-errors"
	"endorser/pkg/platform/httputil"
	"endorser/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service,ChainVerifier

const (
	// maxBodyBytes bounds a request body; a signed claim is a few KB.
	maxBodyBytes = 1 << 20
	// maxBatch bounds the tokens accepted by one batch request.
	maxBatch = 100
)

// Service defines the claim operations the handler exposes.
type Service interface {
	Ingest(ctx context.Context, token string) (*models.IngestResult, error)
	IngestBatch(ctx context.Context, tokens []string) []service.Outcome
	Claim(ctx context.Context, rowID string) (*models.ClaimRow, error)
	Confirmations(ctx context.Context, rowID string) ([]*models.Confirmation, error)
	Projection(ctx context.Context, kind, handle string) (*service.ProjectionView, error)
}

// ChainVerifier recomputes the stored hash chain.
type ChainVerifier interface {
	Verify(ctx context.Context) (*chain.Report, error)
}

// Handler wires the claim endpoints to the claim service.
type Handler struct {
	service Service
	chain   ChainVerifier
	logger  *slog.Logger
}

// New constructs a claim handler. chain may be nil, in which case
// RegisterAdmin mounts nothing.
func New(service Service, chain ChainVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		chain:   chain,
		logger:  logger,
	}
}

// Register mounts the claim endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v2", func(r chi.Router) {
		r.Post("/claim", h.HandleIngest)
		r.Post("/claims/batch", h.HandleIngestBatch)
		r.Get("/claim/{rowID}", h.HandleGetClaim)
		r.Get("/claim/{rowID}/confirmations", h.HandleListConfirmations)
		r.Get("/projection/{kind}", h.HandleGetProjection)
	})
}

// RegisterAdmin mounts the operator endpoints. Callers wrap r with the admin
// token check.
func (h *Handler) RegisterAdmin(r chi.Router) {
	if h.chain == nil {
		return
	}
	r.Get("/api/v2/chain/verify", h.HandleVerifyChain)
}

// HandleIngest handles POST /api/v2/claim.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	var req IngestRequest
	if err := decode(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Ingest(ctx, req.JWTEncoded)
	if err != nil {
		h.logger.InfoContext(ctx, "claim rejected",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "claim accepted",
		"request_id", requestID,
		"claim_row_id", result.ClaimRowID,
		"handle", result.Handle,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleIngestBatch handles POST /api/v2/claims/batch. The response is 200
// whenever the batch was processed; each token carries its own outcome.
func (h *Handler) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchRequest
	if err := decode(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.JWTEncoded) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "jwtEncoded must list at least one token"))
		return
	}
	if len(req.JWTEncoded) > maxBatch {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "a batch holds at most %d tokens", maxBatch))
		return
	}

	outcomes := h.service.IngestBatch(ctx, req.JWTEncoded)
	h.logger.InfoContext(ctx, "claim batch processed",
		"request_id", requestcontext.RequestID(ctx),
		"tokens", len(req.JWTEncoded),
	)
	httputil.WriteJSON(w, http.StatusOK, BatchResponse{Results: outcomes})
}

// HandleGetClaim handles GET /api/v2/claim/{rowID}.
func (h *Handler) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.Claim(r.Context(), chi.URLParam(r, "rowID"))
	if err != nil {
		h.logFailure(r, "claim lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, row)
}

// HandleListConfirmations handles GET /api/v2/claim/{rowID}/confirmations.
func (h *Handler) HandleListConfirmations(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Confirmations(r.Context(), chi.URLParam(r, "rowID"))
	if err != nil {
		h.logFailure(r, "confirmation lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*models.Confirmation{}
	}
	httputil.WriteJSON(w, http.StatusOK, ConfirmationsResponse{Confirmations: list})
}

// HandleGetProjection handles GET /api/v2/projection/{kind}?handle=.
func (h *Handler) HandleGetProjection(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	if handle == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "handle is required"))
		return
	}
	view, err := h.service.Projection(r.Context(), chi.URLParam(r, "kind"), handle)
	if err != nil {
		h.logFailure(r, "projection lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleVerifyChain handles GET /api/v2/chain/verify.
func (h *Handler) HandleVerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.chain.Verify(r.Context())
	if err != nil {
		h.logFailure(r, "chain verification failed", err)
		httputil.WriteError(w, dErrors.From(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	if dErrors.CodeOf(err).IsClientError() {
		return
	}
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return nil
}
