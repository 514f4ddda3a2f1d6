package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"studenthub-wallet/internal/auth"
	"studenthub-wallet/internal/domain"
	"studenthub-wallet/internal/errors"
	"studenthub-wallet/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type CreateAccountRequest struct {
	AccountID string `json:"account_id,omitempty"`
}

type CreditRequest struct {
	Amount json.Number `json:"amount"`
}

type AccountResponse struct {
	AccountID        string     `json:"account_id"`
	AvailableCoins   int64      `json:"available_coins"`
	LockedCoins      int64      `json:"locked_coins"`
	LastWithdrawalAt *time.Time `json:"last_withdrawal_at,omitempty"`
}

type LedgerEntryResponse struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Amount           int64     `json:"amount"`
	RelatedRequestID *string   `json:"related_request_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func newAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID:        account.ID.String(),
		AvailableCoins:   account.AvailableCoins,
		LockedCoins:      account.LockedCoins,
		LastWithdrawalAt: account.LastWithdrawalAt,
	}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return
	}

	id := uuid.Nil
	if req.AccountID != "" {
		parsed, err := uuid.Parse(req.AccountID)
		if err != nil {
			WriteError(w, errors.ErrInvalidAccountID)
			return
		}
		id = parsed
	}

	account, err := h.accountService.CreateAccount(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}
	if appErr := authorizeAccount(r, accountID, auth.RoleAdmin); appErr != nil {
		WriteError(w, appErr)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

func (h *AccountHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
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

	entries, err := h.accountService.GetLedger(r.Context(), accountID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		item := LedgerEntryResponse{
			ID:        e.ID.String(),
			Type:      string(e.Type),
			Amount:    e.Amount,
			CreatedAt: e.CreatedAt,
		}
		if e.RelatedRequestID != nil {
			related := e.RelatedRequestID.String()
			item.RelatedRequestID = &related
		}
		response = append(response, item)
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AccountHandler) Credit(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	var req CreditRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return
	}
	amount, appErr := parseCoins(req.Amount)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}

	account, err := h.accountService.Credit(r.Context(), accountID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}
