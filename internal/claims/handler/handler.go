// Package handler is the thin HTTP layer over the claims service. It
// decodes requests, delegates, and translates domain errors; no business
// rules live here.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medisure/internal/claims/models"
	"medisure/internal/platform/metrics"
	"medisure/internal/platform/middleware"
	"medisure/internal/transport/http/shared"
	id "medisure/pkg/domain"
	dErrors "medisure/pkg/domain-errors"
	"medisure/pkg/platform/audit"
)

// Service defines the claims operations the HTTP layer exposes.
type Service interface {
	SubmitClaim(ctx context.Context, req models.SubmitClaimRequest) (*models.Claim, error)
	GetClaim(ctx context.Context, claimID id.ClaimID) (*models.Claim, error)
	UpdateClaimStatus(ctx context.Context, claimID id.ClaimID, req models.UpdateClaimStatusRequest) (*models.Claim, error)
	AdminApproveClaim(ctx context.Context, claimID id.ClaimID, req models.AdminApproveRequest) (*models.Claim, error)
	RejectClaim(ctx context.Context, claimID id.ClaimID, req models.RejectClaimRequest) (*models.Claim, error)
	FlagFraud(ctx context.Context, claimID id.ClaimID, req models.FlagFraudRequest) (*models.Claim, error)
	AuthorizePayment(ctx context.Context, claimID id.ClaimID, req models.AuthorizePaymentRequest) (*models.Claim, error)
	ProcessClaimPayment(ctx context.Context, claimID id.ClaimID) (*models.Claim, error)
	GetBenefitUtilization(ctx context.Context, memberID id.MemberID) ([]*models.BenefitUtilization, error)
	AuditTrail(ctx context.Context, claimID id.ClaimID) ([]audit.Event, error)
}

// Handler handles claim lifecycle endpoints.
type Handler struct {
	logger  *slog.Logger
	claims  Service
	metrics *metrics.HTTP
}

// New creates a new claims Handler.
func New(claims Service, logger *slog.Logger, m *metrics.HTTP) *Handler {
	return &Handler{
		logger:  logger,
		claims:  claims,
		metrics: m,
	}
}

// Register registers the claim routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	claimsRouter := chi.NewRouter()
	claimsRouter.Use(middleware.Recovery(h.logger))
	claimsRouter.Use(middleware.RequestID)
	claimsRouter.Use(middleware.Logger(h.logger))
	claimsRouter.Use(middleware.Timeout(30 * time.Second))
	claimsRouter.Use(middleware.ContentTypeJSON)
	claimsRouter.Use(middleware.Latency(h.metrics))

	claimsRouter.Post("/claims", h.handleSubmitClaim)
	claimsRouter.Get("/claims/{claimID}", h.handleGetClaim)
	claimsRouter.Post("/claims/{claimID}/status", h.handleUpdateStatus)
	claimsRouter.Post("/claims/{claimID}/admin-approval", h.handleAdminApprove)
	claimsRouter.Post("/claims/{claimID}/rejection", h.handleReject)
	claimsRouter.Post("/claims/{claimID}/fraud-flag", h.handleFlagFraud)
	claimsRouter.Post("/claims/{claimID}/payment", h.handleAuthorizePayment)
	claimsRouter.Post("/claims/{claimID}/disbursement", h.handleProcessPayment)
	claimsRouter.Get("/claims/{claimID}/audit", h.handleAuditTrail)
	claimsRouter.Get("/members/{memberID}/utilization", h.handleUtilization)

	r.Mount("/", claimsRouter)
}

func (h *Handler) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid submit claim request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	claim, err := h.claims.SubmitClaim(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to submit claim", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, claim)
}

func (h *Handler) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	claim, err := h.claims.GetClaim(ctx, claimID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to get claim", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	var req models.UpdateClaimStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid status update request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	claim, err := h.claims.UpdateClaimStatus(ctx, claimID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to update claim status", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	var req models.AdminApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid admin approval request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	claim, err := h.claims.AdminApproveClaim(ctx, claimID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to admin-approve claim", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	var req models.RejectClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid rejection request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	claim, err := h.claims.RejectClaim(ctx, claimID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to reject claim", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleFlagFraud(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	var req models.FlagFraudRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid fraud flag request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	claim, err := h.claims.FlagFraud(ctx, claimID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to flag claim", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleAuthorizePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	var req models.AuthorizePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid payment authorization request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	claim, err := h.claims.AuthorizePayment(ctx, claimID, req)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to authorize payment", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claim)
}

// handleProcessPayment runs the gateway disbursement flow; no body because
// the payment reference comes from the gateway, not the caller.
func (h *Handler) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	claim, err := h.claims.ProcessClaimPayment(ctx, claimID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to process payment", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	events, err := h.claims.AuditTrail(ctx, claimID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to read audit trail", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleUtilization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	rows, err := h.claims.GetBenefitUtilization(ctx, memberID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to read utilization", err)
		return
	}
	out := make([]models.UtilizationResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.NewUtilizationResponse(row))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) claimID(w http.ResponseWriter, r *http.Request) (id.ClaimID, bool) {
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		shared.WriteError(w, err)
		return id.ClaimID{}, false
	}
	return claimID, true
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}

// writeServiceError logs at a severity matching the error class and writes
// the envelope. Client-caused classes log as warnings.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation:
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	default:
		h.warn(ctx, msg, err)
	}
	shared.WriteError(w, err)
}
