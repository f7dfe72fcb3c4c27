package kick

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedEnvelope means a required webhook header or the body was missing.
	ErrMalformedEnvelope = errors.New("malformed webhook envelope")
	// ErrSignatureInvalid means the cryptographic check failed. Callers cannot
	// tell a bad key apart from a bad signature.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

// APIError is a typed upstream failure mapped from the Kick HTTP status.
// Calls are not retried automatically; the error propagates to the caller.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kick api error: status %d: %s", e.StatusCode, e.Message)
}

// IsAuthFailure reports whether the upstream rejected our credentials, which
// usually means the stored token is revoked or expired beyond refresh.
func (e *APIError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnauthorized
}

func apiError(statusCode int, body []byte) error {
	msg := http.StatusText(statusCode)
	if len(body) > 0 {
		msg = string(body)
	}
	return &APIError{StatusCode: statusCode, Message: msg}
}
