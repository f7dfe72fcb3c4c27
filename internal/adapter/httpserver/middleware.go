package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/metrics"
	apperrors "github.com/phxgg/kickbridge/internal/platform/errors"
	"github.com/phxgg/kickbridge/internal/session"
)

// Context keys set by the middlewares below.
const (
	ctxKeySubjectID = "subjectID"
	ctxKeyJTI       = "jti"
	ctxKeyClient    = "kickClient"
	ctxKeyAccount   = "account"
)

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if subjectID := c.Get(ctxKeySubjectID); subjectID != nil {
		attrs = append(attrs, "subject_id", subjectID)
	}

	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound, apperrors.TypeUnauthorized:
		slog.Info("Request rejected", attrs...)
	case apperrors.TypeForbidden:
		slog.Warn("Request forbidden", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("External service error", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("Internal error", attrs...)
	}
}

// requireBearer authenticates the request with one of our own access tokens.
// A missing or malformed header is 401; a token that parses but is revoked
// (or evicted from the ledger) is 403.
func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			return apperrors.UnauthorizedError("missing bearer token")
		}

		claims, err := s.tokens.Verify(c.Request().Context(), tokenStr, domain.TokenKindAccess)
		if errors.Is(err, domain.ErrTokenRevoked) {
			metrics.TokenVerifications.WithLabelValues("revoked").Inc()
			return apperrors.ForbiddenError("token revoked")
		}
		if err != nil {
			metrics.TokenVerifications.WithLabelValues("invalid").Inc()
			return apperrors.UnauthorizedError("invalid token")
		}
		metrics.TokenVerifications.WithLabelValues("ok").Inc()

		c.Set(ctxKeySubjectID, claims.SubjectID)
		c.Set(ctxKeyJTI, claims.JTI)
		return next(c)
	}
}

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter for websocket clients that cannot set
// headers.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.QueryParam("access_token")
}

// ensureClient attaches an upstream API client with a valid access token to
// the request context. A subject without a linked upstream account proceeds
// without a client; handlers that need one reject the request themselves.
func (s *Server) ensureClient(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		subjectID, _ := c.Get(ctxKeySubjectID).(string)

		client, account, err := s.clients.EnsureValidClientFor(c.Request().Context(), providerKick, subjectID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return next(c)
		}

		var refreshErr *session.RefreshError
		if errors.As(err, &refreshErr) {
			if refreshErr.Revoked {
				return apperrors.ForbiddenError("upstream authorization revoked, re-link your account")
			}
			return apperrors.ExternalError("failed to refresh upstream token", err)
		}
		if err != nil {
			return apperrors.InternalError("failed to prepare upstream client", err)
		}

		c.Set(ctxKeyClient, client)
		c.Set(ctxKeyAccount, account)
		return next(c)
	}
}
