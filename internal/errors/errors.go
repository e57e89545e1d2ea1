package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInternalServer     = errors.New("internal server error")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Business errors
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrRideNotBiddable   = errors.New("ride is no longer accepting bids")
	ErrAlreadyBooked     = errors.New("ride already booked")
	ErrInvalidAmount     = errors.New("bid amount must be positive")
	ErrBusy              = errors.New("ride is busy, retry")
)

// AlreadyBookedError reports which bid won when an accept attempt loses the
// race. It matches ErrAlreadyBooked under errors.Is.
type AlreadyBookedError struct {
	WinningBidID string
}

func (e *AlreadyBookedError) Error() string {
	return fmt.Sprintf("ride already booked via bid %s", e.WinningBidID)
}

func (e *AlreadyBookedError) Is(target error) bool {
	return target == ErrAlreadyBooked
}

// APIError represents a structured API error
type APIError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, statusCode int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common API errors
func NotFound(resource string) *APIError {
	return NewAPIError("not_found", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func InvalidInput(message string) *APIError {
	return NewAPIError("invalid_input", message, http.StatusBadRequest)
}

func Unauthorized(message string) *APIError {
	return NewAPIError("unauthorized", message, http.StatusForbidden)
}

func Unauthenticated() *APIError {
	return NewAPIError("unauthenticated", "no actor identity on request", http.StatusUnauthorized)
}

func InternalError(message string) *APIError {
	return NewAPIError("internal_error", message, http.StatusInternalServerError)
}

func IllegalTransition(from, to string) *APIError {
	return NewAPIError("illegal_transition", fmt.Sprintf("cannot transition from %s to %s", from, to), http.StatusBadRequest)
}

func RideNotBiddable(status string) *APIError {
	return NewAPIError("ride_not_biddable", fmt.Sprintf("ride in status %s is no longer accepting bids", status), http.StatusConflict)
}

// AlreadyBooked reports the bid that won. Concurrency conflicts are
// informational for the caller, not faults.
func AlreadyBooked(winningBidID string) *APIError {
	return NewAPIError("already_booked", fmt.Sprintf("ride already booked via bid %s", winningBidID), http.StatusConflict)
}

func InvalidAmount() *APIError {
	return NewAPIError("invalid_amount", "bid amount must be a positive value with at most two decimal places", http.StatusBadRequest)
}

func Busy() *APIError {
	return NewAPIError("busy", "another operation on this ride is in progress, retry with backoff", http.StatusServiceUnavailable)
}

func StorageUnavailable() *APIError {
	return NewAPIError("storage_unavailable", "persistent storage unreachable, the record was left unchanged", http.StatusServiceUnavailable)
}
