package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"studenthub-wallet/internal/auth"
	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
	"studenthub-wallet/internal/service"
)

type WithdrawalHandler struct {
	withdrawalService *service.WithdrawalService
}

func NewWithdrawalHandler(withdrawalService *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{
		withdrawalService: withdrawalService,
	}
}

type SubmitWithdrawalRequest struct {
	Amount json.Number `json:"amount"`
}

type WithdrawalResponse struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id"`
	AmountCoins    int64      `json:"amount_coins"`
	PayoutValue    string     `json:"payout_value"`
	PayoutCurrency string     `json:"payout_currency"`
	Status         string     `json:"status"`
	AdminRemark    *string    `json:"admin_remark,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

func newWithdrawalResponse(s *service.WithdrawalService, req *domain.WithdrawalRequest) WithdrawalResponse {
	return WithdrawalResponse{
		ID:             req.ID.String(),
		AccountID:      req.AccountID.String(),
		AmountCoins:    req.AmountCoins,
		PayoutValue:    s.PayoutValue(req).StringFixed(2),
		PayoutCurrency: s.PayoutCurrency(),
		Status:         string(req.Status),
		AdminRemark:    req.AdminRemark,
		CreatedAt:      req.CreatedAt,
		ProcessedAt:    req.ProcessedAt,
		PaidAt:         req.PaidAt,
	}
}

func newWithdrawalList(s *service.WithdrawalService, reqs []*domain.WithdrawalRequest) []WithdrawalResponse {
	response := make([]WithdrawalResponse, 0, len(reqs))
	for _, req := range reqs {
		response = append(response, newWithdrawalResponse(s, req))
	}
	return response
}

// Submit creates a withdrawal request for the caller's own account.
func (h *WithdrawalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}
	if appErr := authorizeAccount(r, accountID); appErr != nil {
		WriteError(w, appErr)
		return
	}

	var req SubmitWithdrawalRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return
	}
	amount, appErr := parseCoins(req.Amount)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	withdrawal, err := h.withdrawalService.Submit(r.Context(), accountID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newWithdrawalResponse(h.withdrawalService, withdrawal))
}

func (h *WithdrawalHandler) ListForAccount(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}
	if appErr := authorizeAccount(r, accountID, auth.RoleAdmin); appErr != nil {
		WriteError(w, appErr)
		return
	}
	limit, offset, appErr := pageParams(r)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	reqs, err := h.withdrawalService.ListForAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newWithdrawalList(h.withdrawalService, reqs))
}
