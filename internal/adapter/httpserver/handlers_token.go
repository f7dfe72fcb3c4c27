package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/metrics"
	apperrors "github.com/phxgg/kickbridge/internal/platform/errors"
	"github.com/phxgg/kickbridge/internal/token"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type pairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// handleRefresh rotates a refresh token: the presented token is revoked and a
// fresh pair is issued. A revoked or evicted refresh token gets 403, so a
// stolen-and-already-used token cannot mint new pairs.
func (s *Server) handleRefresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return apperrors.ValidationError("missing refresh_token")
	}

	ctx := c.Request().Context()

	claims, err := s.tokens.Verify(ctx, req.RefreshToken, domain.TokenKindRefresh)
	if errors.Is(err, domain.ErrTokenRevoked) {
		return apperrors.ForbiddenError("refresh token revoked")
	}
	if err != nil {
		return apperrors.UnauthorizedError("invalid refresh token")
	}

	if _, err := s.tokens.Revoke(ctx, claims.JTI, "rotated"); err != nil {
		return apperrors.InternalError("failed to rotate refresh token", err)
	}

	pair, err := s.tokens.IssuePair(ctx, claims.SubjectID)
	if err != nil {
		return apperrors.InternalError("failed to issue tokens", err)
	}
	metrics.TokensIssued.WithLabelValues(string(domain.TokenKindAccess)).Inc()
	metrics.TokensIssued.WithLabelValues(string(domain.TokenKindRefresh)).Inc()

	return writePair(c, pair)
}

func writePair(c echo.Context, pair *token.Pair) error {
	response := pairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write token response: %w", err)
	}
	return nil
}

type revokeRequest struct {
	Token string `json:"token"`
}

// handleRevoke revokes a single token presented in the body. The token may
// be of either kind; it must belong to the authenticated subject.
func (s *Server) handleRevoke(c echo.Context) error {
	var req revokeRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return apperrors.ValidationError("missing token")
	}

	ctx := c.Request().Context()
	subjectID, _ := c.Get(ctxKeySubjectID).(string)

	claims, kind, err := s.identifyToken(c, req.Token)
	if err != nil && !errors.Is(err, domain.ErrTokenRevoked) {
		return apperrors.ValidationError("unrecognized token")
	}
	// Ownership comes before the already-revoked answer, so a foreign token's
	// revocation state is never disclosed.
	if claims == nil || claims.SubjectID != subjectID {
		return apperrors.ForbiddenError("token belongs to another subject")
	}
	if errors.Is(err, domain.ErrTokenRevoked) {
		// Already revoked: report no change rather than an error.
		if err := c.JSON(http.StatusOK, map[string]any{"revoked": false}); err != nil {
			return fmt.Errorf("failed to write revoke response: %w", err)
		}
		return nil
	}

	changed, err := s.tokens.Revoke(ctx, claims.JTI, "revoked by owner")
	if err != nil {
		return apperrors.InternalError("failed to revoke token", err)
	}
	if changed {
		metrics.TokensRevoked.WithLabelValues(string(kind)).Inc()
	}

	if err := c.JSON(http.StatusOK, map[string]any{"revoked": changed}); err != nil {
		return fmt.Errorf("failed to write revoke response: %w", err)
	}
	return nil
}

// identifyToken determines which kind a presented token is by trying the
// access secret first, then the refresh secret.
func (s *Server) identifyToken(c echo.Context, tokenStr string) (*token.Claims, domain.TokenKind, error) {
	ctx := c.Request().Context()

	claims, err := s.tokens.Verify(ctx, tokenStr, domain.TokenKindAccess)
	if err == nil || errors.Is(err, domain.ErrTokenRevoked) {
		return claims, domain.TokenKindAccess, err
	}

	claims, err = s.tokens.Verify(ctx, tokenStr, domain.TokenKindRefresh)
	return claims, domain.TokenKindRefresh, err
}

type revokeAllRequest struct {
	Kind string `json:"kind"`
}

// handleRevokeAll revokes every active token of the authenticated subject,
// optionally narrowed to one kind.
func (s *Server) handleRevokeAll(c echo.Context) error {
	var req revokeAllRequest
	_ = c.Bind(&req)

	kind := domain.TokenKind(req.Kind)
	if kind != "" && kind != domain.TokenKindAccess && kind != domain.TokenKindRefresh {
		return apperrors.ValidationError("unknown token kind")
	}

	subjectID, _ := c.Get(ctxKeySubjectID).(string)

	count, err := s.tokens.RevokeAll(c.Request().Context(), subjectID, kind)
	if err != nil {
		return apperrors.InternalError("failed to revoke tokens", err)
	}

	if err := c.JSON(http.StatusOK, map[string]any{"revoked": count}); err != nil {
		return fmt.Errorf("failed to write revoke response: %w", err)
	}
	return nil
}
