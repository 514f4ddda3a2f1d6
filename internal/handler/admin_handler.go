package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"studenthub-wallet/internal/errors"
	"studenthub-wallet/internal/service"
)

// AdminHandler serves the adjudication routes. The router only mounts it behind
// the admin role check.
type AdminHandler struct {
	adminService      *service.AdminService
	withdrawalService *service.WithdrawalService
}

func NewAdminHandler(adminService *service.AdminService, withdrawalService *service.WithdrawalService) *AdminHandler {
	return &AdminHandler{
		adminService:      adminService,
		withdrawalService: withdrawalService,
	}
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type RefundRequest struct {
	Amount           json.Number `json:"amount"`
	RelatedRequestID string      `json:"related_request_id,omitempty"`
}

type ReconcileResponse struct {
	Account           AccountResponse `json:"account"`
	Drifted           bool            `json:"drifted"`
	PreviousAvailable int64           `json:"previous_available_coins"`
	PreviousLocked    int64           `json:"previous_locked_coins"`
}

func (h *AdminHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	limit, offset, appErr := pageParams(r)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	reqs, err := h.adminService.ListPending(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newWithdrawalList(h.withdrawalService, reqs))
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	requestID, appErr := pathUUID(r, "request_id", errors.ErrInvalidRequestID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	req, err := h.adminService.Approve(r.Context(), requestID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newWithdrawalResponse(h.withdrawalService, req))
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	requestID, appErr := pathUUID(r, "request_id", errors.ErrInvalidRequestID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	var body RejectRequest
	if appErr := decodeBody(r, &body); appErr != nil {
		WriteError(w, appErr)
		return
	}

	req, err := h.adminService.Reject(r.Context(), requestID, body.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newWithdrawalResponse(h.withdrawalService, req))
}

func (h *AdminHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	requestID, appErr := pathUUID(r, "request_id", errors.ErrInvalidRequestID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	req, err := h.adminService.MarkPaid(r.Context(), requestID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newWithdrawalResponse(h.withdrawalService, req))
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	result, err := h.adminService.Reconcile(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{
		Account:           newAccountResponse(result.Account),
		Drifted:           result.Drifted,
		PreviousAvailable: result.Previous.Available,
		PreviousLocked:    result.Previous.Locked,
	})
}

func (h *AdminHandler) Refund(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	var body RefundRequest
	if appErr := decodeBody(r, &body); appErr != nil {
		WriteError(w, appErr)
		return
	}
	amount, appErr := parseCoins(body.Amount)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	var related *uuid.UUID
	if body.RelatedRequestID != "" {
		id, err := uuid.Parse(body.RelatedRequestID)
		if err != nil {
			WriteError(w, errors.ErrInvalidRequestID)
			return
		}
		related = &id
	}

	account, err := h.adminService.Refund(r.Context(), accountID, amount, related)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}
