package handler

import (
	"net/http"
	"strconv"
	"time"

	"studenthub-wallet/internal/errors"
	"studenthub-wallet/internal/service"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
}

func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

type NotificationResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}
	if appErr := authorizeAccount(r, accountID); appErr != nil {
		WriteError(w, appErr)
		return
	}

	var unreadOnly bool
	if raw := r.URL.Query().Get("unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, errors.NewAppError(errors.InvalidInput, "invalid unread flag"))
			return
		}
		unreadOnly = parsed
	}

	notifications, err := h.notificationService.List(r.Context(), accountID, unreadOnly)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		response = append(response, NotificationResponse{
			ID:        n.ID.String(),
			Message:   n.Message,
			Severity:  string(n.Severity),
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := pathUUID(r, "account_id", errors.ErrInvalidAccountID)
	if appErr != nil {
		WriteError(w, appErr)
		return
	}
	if appErr := authorizeAccount(r, accountID); appErr != nil {
		WriteError(w, appErr)
		return
	}

	updated, err := h.notificationService.MarkAllRead(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MarkReadResponse{Updated: updated})
}
