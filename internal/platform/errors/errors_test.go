package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{ValidationError("bad input"), http.StatusBadRequest},
		{UnauthorizedError("no token"), http.StatusUnauthorized},
		{ForbiddenError("token revoked"), http.StatusForbidden},
		{NotFoundError("missing"), http.StatusNotFound},
		{ExternalError("upstream down", nil), http.StatusBadGateway},
		{InternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus(), tt.err.Message)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := ExternalError("upstream call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "external")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAsStructuredError(t *testing.T) {
	structured := ForbiddenError("nope")
	assert.Same(t, structured, AsStructuredError(structured))

	wrapped := AsStructuredError(fmt.Errorf("plain"))
	require.NotNil(t, wrapped)
	assert.Equal(t, TypeInternal, wrapped.Type)

	assert.Nil(t, AsStructuredError(nil))
}

func TestToResponseOmitsContext(t *testing.T) {
	err := ForbiddenError("token revoked").WithField("jti", "01ABC")
	resp := err.ToResponse()
	assert.Equal(t, "token revoked", resp.Error)
	assert.Equal(t, TypeForbidden, resp.Type)
}
