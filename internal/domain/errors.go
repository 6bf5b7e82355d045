package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Adapters map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrAuthentication covers every failure to obtain or hold a vendor credential.
	ErrAuthentication = errors.New("vendor authentication failed")
	// ErrTokenExpired signals the vendor rejected the credential mid-call.
	// It wraps ErrAuthentication so errors.Is(err, ErrAuthentication) also holds.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrAuthentication)
	// ErrNetwork marks transport-level failures (timeouts, refused connections).
	// These are the retryable class; callers must not treat them as vendor verdicts.
	ErrNetwork      = errors.New("network failure")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	// ErrPollingActive rejects a second Start on an already running poller.
	ErrPollingActive = errors.New("polling already active")
	// ErrPollingIdle reports an operation that needed a running poller,
	// including a startup a concurrent Stop tore down.
	ErrPollingIdle = errors.New("polling not active")
	// ErrClientClosed is returned for any call on a closed vendor client.
	ErrClientClosed = errors.New("client closed")
	// ErrMessageFinal rejects status transitions on done/not_needed messages.
	// Redelivered terminal messages are acknowledged without re-forwarding.
	ErrMessageFinal = errors.New("message already finalized")
)

// APIError is a vendor-level rejection: the HTTP exchange succeeded but the
// response envelope carried a non-success code. These are not retried.
type APIError struct {
	Code       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("vendor api error %s (http %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("vendor api error %s (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// AsAPIError unwraps err to the vendor envelope error when present.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
