// Package errors defines the service error taxonomy and its HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes.
const (
	CodeValidation       = "validation_error"
	CodeNotFound         = "not_found"
	CodeStoreUnavailable = "store_unavailable"
	CodeChain            = "chain_error"
	CodeRateLimited      = "rate_limited"
	CodeUnknown          = "unknown_error"
)

// ServiceError carries a machine-readable code alongside the HTTP status the
// API layer should answer with.
type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Validation reports malformed or missing input (400).
func Validation(format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotFound reports an absent resource (404).
func NotFound(format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusNotFound,
	}
}

// PoolNotFound reports a pool that could not be resolved by id nor by the
// contract-address hint. Both identifiers are named so the caller can tell
// which lookup was attempted.
func PoolNotFound(poolID, contractHint string) *ServiceError {
	msg := fmt.Sprintf("pool %q not found", poolID)
	if contractHint != "" {
		msg = fmt.Sprintf("pool %q not found (contract address fallback %q also unmatched)", poolID, contractHint)
	}
	msg += "; verify the pool was created through the tracked creation flow"
	return &ServiceError{Code: CodeNotFound, Message: msg, HTTPStatus: http.StatusNotFound}
}

// StoreUnavailable reports that the off-chain store cannot answer right now
// (503). Distinguished from NotFound so callers can tell "never existed" from
// "can't tell right now".
func StoreUnavailable(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeStoreUnavailable,
		Message:    "off-chain store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// RateLimited reports that the caller exceeded the request budget (429).
func RateLimited(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Unknown wraps an unexpected failure (500). The underlying error is logged
// server-side; callers only see a generic message.
func Unknown(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeUnknown,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Chain categories for upstream blockchain failures.
type ChainCategory string

const (
	ChainUserDeclined        ChainCategory = "user_declined"
	ChainInsufficientBalance ChainCategory = "insufficient_balance"
	ChainNotMember           ChainCategory = "not_a_member"
	ChainAlreadyDeposited    ChainCategory = "already_deposited"
	ChainPoolInactive        ChainCategory = "pool_inactive"
	ChainOther               ChainCategory = "contract_revert"
)

// Chain reports an upstream chain failure with a user-readable category.
func Chain(category ChainCategory, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeChain,
		Message:    string(category),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// CategorizeRevert maps a revert reason string onto a chain category.
func CategorizeRevert(reason string) ChainCategory {
	lowered := strings.ToLower(reason)
	switch {
	case strings.Contains(lowered, "user rejected"), strings.Contains(lowered, "user denied"):
		return ChainUserDeclined
	case strings.Contains(lowered, "insufficient"):
		return ChainInsufficientBalance
	case strings.Contains(lowered, "not a member"), strings.Contains(lowered, "not member"):
		return ChainNotMember
	case strings.Contains(lowered, "already deposited"), strings.Contains(lowered, "already paid"):
		return ChainAlreadyDeposited
	case strings.Contains(lowered, "inactive"), strings.Contains(lowered, "not active"), strings.Contains(lowered, "closed"):
		return ChainPoolInactive
	default:
		return ChainOther
	}
}

// Status returns the HTTP status for any error, defaulting to 500.
func Status(err error) int {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// CodeOf returns the taxonomy code for any error.
func CodeOf(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return CodeUnknown
}

// IsNotFound reports whether err is a not-found service error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsStoreUnavailable reports whether err is a store-availability error.
func IsStoreUnavailable(err error) bool {
	return CodeOf(err) == CodeStoreUnavailable
}
