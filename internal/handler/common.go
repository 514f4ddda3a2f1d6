package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"studenthub-wallet/internal/auth"
	"studenthub-wallet/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

// WriteError writes appErr in the response envelope. Infrastructure failures
// keep their cause out of the body.
func WriteError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}
	if appErr.Code == errors.StorageUnavailable || appErr.Code == errors.InternalError {
		errResponse.Message = "server error, please retry later"
		errResponse.Details = ""
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

func writeServiceError(w http.ResponseWriter, err error) {
	WriteError(w, errors.As(err))
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) *errors.AppError {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error())
	}
	return nil
}

func pathUUID(r *http.Request, name string, invalid *errors.AppError) (uuid.UUID, *errors.AppError) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, invalid
	}
	return id, nil
}

// parseCoins accepts a JSON number or numeric string holding a positive whole
// number of coins.
func parseCoins(raw json.Number) (int64, *errors.AppError) {
	if raw == "" {
		return 0, errors.ErrInvalidAmount.WithDetails("amount is required")
	}
	amount, err := decimal.NewFromString(raw.String())
	if err != nil {
		return 0, errors.ErrInvalidAmount.WithDetails(err.Error())
	}
	if !amount.IsInteger() || !amount.IsPositive() {
		return 0, errors.ErrInvalidAmount
	}
	coins := amount.IntPart()
	if !decimal.NewFromInt(coins).Equal(amount) {
		return 0, errors.ErrInvalidAmount.WithDetails("amount is too large")
	}
	return coins, nil
}

func pageParams(r *http.Request) (int, int, *errors.AppError) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(r *http.Request, key string) (int, *errors.AppError) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewAppErrorf(errors.InvalidInput, "invalid %s", key)
	}
	return n, nil
}

// authorizeAccount allows the account owner and any of the listed roles.
func authorizeAccount(r *http.Request, accountID uuid.UUID, roles ...auth.Role) *errors.AppError {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return errors.ErrUnauthorized
	}
	if p.Owns(accountID) || p.HasRole(roles...) {
		return nil
	}
	return errors.ErrForbidden
}
