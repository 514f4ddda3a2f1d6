package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InsufficientFunds       ErrorCode = "insufficient_funds"
	InsufficientLockedFunds ErrorCode = "insufficient_locked_funds"
	AlreadyPending          ErrorCode = "already_pending"
	BelowMinimum            ErrorCode = "below_minimum"
	NotPending              ErrorCode = "not_pending"
	AccountNotFound         ErrorCode = "account_not_found"
	RequestNotFound         ErrorCode = "request_not_found"
	DuplicateAccount        ErrorCode = "duplicate_account"
	InvalidAmount           ErrorCode = "invalid_amount"
	InvalidInput            ErrorCode = "invalid_input"
	Unauthorized            ErrorCode = "unauthorized"
	Forbidden               ErrorCode = "forbidden"
	StorageUnavailable      ErrorCode = "storage_unavailable"
	InternalError           ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *AppError with the same code, so predefined
// errors match copies carrying different details.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of e carrying details. Predefined errors are shared,
// so they are never mutated in place.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// HTTPStatus maps the error code to the status written by handlers.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case AccountNotFound, RequestNotFound:
		return http.StatusNotFound
	case AlreadyPending, NotPending, DuplicateAccount:
		return http.StatusConflict
	case InsufficientFunds, InsufficientLockedFunds, BelowMinimum:
		return http.StatusUnprocessableEntity
	case InvalidAmount, InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case StorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Storage wraps an infrastructure failure. The cause goes to Details, the caller
// only sees a generic message.
func Storage(message string, cause error) *AppError {
	appErr := NewAppError(StorageUnavailable, message)
	if cause != nil {
		appErr.Details = cause.Error()
	}
	return appErr
}

// As extracts an *AppError from err, converting anything else into an internal error.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}

// CodeOf returns the code carried by err, or an empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return As(err).Code
}

// Predefined errors for common cases
var (
	ErrInsufficientFunds       = NewAppError(InsufficientFunds, "not enough available coins")
	ErrInsufficientLockedFunds = NewAppError(InsufficientLockedFunds, "not enough locked coins")
	ErrAlreadyPending          = NewAppError(AlreadyPending, "a withdrawal request is already pending for this account")
	ErrBelowMinimum            = NewAppError(BelowMinimum, "amount is below the minimum withdrawal")
	ErrNotPending              = NewAppError(NotPending, "withdrawal request has already been processed")
	ErrNotApproved             = NewAppError(NotPending, "withdrawal request is not awaiting payout")
	ErrAccountNotFound         = NewAppError(AccountNotFound, "account not found")
	ErrRequestNotFound         = NewAppError(RequestNotFound, "withdrawal request not found")
	ErrDuplicateAccount        = NewAppError(DuplicateAccount, "account already exists")
	ErrInvalidAmount           = NewAppError(InvalidAmount, "amount must be a positive whole number of coins")
	ErrBalanceOverflow         = NewAppError(InvalidAmount, "amount would overflow the account balance")
	ErrInvalidAccountID        = NewAppError(InvalidInput, "invalid account id")
	ErrInvalidRequestID        = NewAppError(InvalidInput, "invalid withdrawal request id")
	ErrUnauthorized            = NewAppError(Unauthorized, "missing or invalid credentials")
	ErrForbidden               = NewAppError(Forbidden, "not allowed to perform this action")
)
