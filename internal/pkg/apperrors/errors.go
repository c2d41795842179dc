package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	// authorization
	ErrSignatureInvalid ErrorType = "SIGNATURE_INVALID"
	ErrDeadlineExpired  ErrorType = "DEADLINE_EXPIRED"
	ErrInvalidNonce     ErrorType = "INVALID_NONCE"
	ErrOverFilled       ErrorType = "OVER_FILLED"

	// matching
	ErrTokenMismatch ErrorType = "TOKEN_MISMATCH"
	ErrInvalidFiller ErrorType = "INVALID_FILLER"
	ErrOfferTooLow   ErrorType = "OFFER_TOO_LOW"
	ErrIntentExpired ErrorType = "INTENT_EXPIRED"

	// market / ledger
	ErrUnauthorized          ErrorType = "UNAUTHORIZED"
	ErrInsufficientLiquidity ErrorType = "INSUFFICIENT_LIQUIDITY"
	ErrInsufficientBalance   ErrorType = "INSUFFICIENT_BALANCE"
	ErrInsufficientAllowance ErrorType = "INSUFFICIENT_ALLOWANCE"

	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrConflict       ErrorType = "CONFLICT"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrReadOnly       ErrorType = "READ_ONLY"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

// Is reports whether any error in err's chain is an AppError of type t.
func Is(err error, t ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	if appErr.Type == t {
		return true
	}
	return appErr.Cause != nil && Is(appErr.Cause, t)
}

// TypeOf returns the type of the outermost AppError in err's chain, or ErrInternal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrInternal
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrTokenMismatch:
		return http.StatusBadRequest
	case ErrSignatureInvalid, ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrInvalidFiller, ErrUnauthorized:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidNonce, ErrOverFilled, ErrConflict:
		return http.StatusConflict
	case ErrDeadlineExpired, ErrIntentExpired:
		return http.StatusGone
	case ErrOfferTooLow, ErrInsufficientLiquidity, ErrInsufficientBalance, ErrInsufficientAllowance:
		return http.StatusUnprocessableEntity
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrReadOnly:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrOfferTooLow:
		return "Price moved; re-quote and sign a new intent."
	case ErrInvalidNonce, ErrOverFilled:
		return "Intent already settled or cancelled; allocate a fresh nonce."
	case ErrIntentExpired, ErrDeadlineExpired:
		return "Sign a new intent with a later expiration."
	case ErrSignatureInvalid, ErrAuthFailed:
		return "Check signer, domain and typed data."
	case ErrInsufficientBalance, ErrInsufficientAllowance, ErrInsufficientLiquidity:
		return "Top up balance or raise the allowance to the permit contract."
	case ErrRateLimited:
		return "Back off and retry after a second."
	default:
		return ""
	}
}
