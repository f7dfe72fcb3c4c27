package httpserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/phxgg/kickbridge/internal/metrics"
	apperrors "github.com/phxgg/kickbridge/internal/platform/errors"
)

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// handleLogin starts the upstream OAuth flow. The state and the PKCE code
// verifier live in the cookie session until the callback consumes them.
func (s *Server) handleLogin(c echo.Context) error {
	state, err := generateOAuthState()
	if err != nil {
		return apperrors.InternalError("failed to generate OAuth state", err)
	}

	codeVerifier, err := kick.GenerateCodeVerifier()
	if err != nil {
		return apperrors.InternalError("failed to generate PKCE verifier", err)
	}

	sess, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.Error("Failed to get session for OAuth state", "error", err)
	}
	sess.Values[sessionKeyOAuthState] = state
	sess.Values[sessionKeyCodeVerifier] = codeVerifier
	if err := sess.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save OAuth session", err)
	}

	authURL := s.oauth.AuthorizeURL(state, kick.CodeChallenge(codeVerifier))
	if err := c.Redirect(http.StatusFound, authURL); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

type authResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         responseUser `json:"user"`
}

type responseUser struct {
	UserID         int64  `json:"user_id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture"`
}

// handleOAuthCallback finishes the upstream flow: code exchange, identity
// lookup, account upsert, and issuance of our own token pair.
func (s *Server) handleOAuthCallback(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		return apperrors.UnauthorizedError("upstream authorization denied: " + errParam)
	}

	code := c.QueryParam("code")
	if code == "" {
		return apperrors.ValidationError("missing authorization code")
	}

	sess, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return apperrors.UnauthorizedError("invalid OAuth session")
	}

	expectedState, _ := sess.Values[sessionKeyOAuthState].(string)
	codeVerifier, _ := sess.Values[sessionKeyCodeVerifier].(string)
	if expectedState == "" || c.QueryParam("state") != expectedState {
		return apperrors.UnauthorizedError("OAuth state mismatch")
	}

	// The state and verifier are single use.
	delete(sess.Values, sessionKeyOAuthState)
	delete(sess.Values, sessionKeyCodeVerifier)
	if err := sess.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Error("Failed to clear OAuth session", "error", err)
	}

	ctx := c.Request().Context()

	upstreamToken, err := s.oauth.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return apperrors.ExternalError("failed to exchange authorization code", err)
	}

	client := kick.NewClient(s.config.KickAPIBaseURL, *upstreamToken)
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return apperrors.ExternalError("failed to fetch upstream identity", err)
	}

	subjectID := strconv.FormatInt(user.UserID, 10)
	account := &domain.Account{
		Provider:          providerKick,
		ProviderAccountID: subjectID,
		AccessToken:       upstreamToken.AccessToken,
		RefreshToken:      upstreamToken.RefreshToken,
		TokenType:         upstreamToken.TokenType,
		Scope:             strings.Fields(upstreamToken.Scope),
		ExpiresAt:         s.clock.Now().Add(time.Duration(upstreamToken.ExpiresIn) * time.Second),
	}
	if _, err := s.accounts.Upsert(ctx, account); err != nil {
		return apperrors.InternalError("failed to store linked account", err)
	}

	pair, err := s.tokens.IssuePair(ctx, subjectID)
	if err != nil {
		return apperrors.InternalError("failed to issue tokens", err)
	}
	metrics.TokensIssued.WithLabelValues(string(domain.TokenKindAccess)).Inc()
	metrics.TokensIssued.WithLabelValues(string(domain.TokenKindRefresh)).Inc()

	slog.Info("User logged in", "subject_id", subjectID, "name", user.Name)

	response := authResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		User: responseUser{
			UserID:         user.UserID,
			Name:           user.Name,
			ProfilePicture: user.ProfilePicture,
		},
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write auth response: %w", err)
	}
	return nil
}

// handleLogout revokes every token of the authenticated subject. The linked
// upstream account stays; logging in again does not require re-consent.
func (s *Server) handleLogout(c echo.Context) error {
	subjectID, _ := c.Get(ctxKeySubjectID).(string)

	count, err := s.tokens.RevokeAll(c.Request().Context(), subjectID, "")
	if err != nil {
		return apperrors.InternalError("failed to revoke tokens", err)
	}

	slog.Info("User logged out", "subject_id", subjectID, "revoked", count)
	if err := c.JSON(http.StatusOK, map[string]any{"revoked": count}); err != nil {
		return fmt.Errorf("failed to write logout response: %w", err)
	}
	return nil
}
