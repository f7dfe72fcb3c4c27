// Package session builds upstream API clients from stored accounts, making
// sure the access token they carry is valid before use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/kick"
	"github.com/phxgg/kickbridge/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// RefreshThreshold is how close to expiry a stored token may get before we
// refresh it instead of using it.
const RefreshThreshold = 60 * time.Second

// RefreshError means the upstream refresh grant failed. The caller must not
// fall back to the near-expired token.
type RefreshError struct {
	Revoked bool
	Err     error
}

func (e *RefreshError) Error() string {
	if e.Revoked {
		return fmt.Sprintf("upstream token revoked: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// oauthRefresher is the refresh-grant slice of *kick.OAuthClient.
type oauthRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*kick.Token, error)
}

// Refresher ensures a stored account token is valid before building a client
// with it. Concurrent requests for the same account that both observe "near
// expiry" share one in-flight refresh-grant call instead of racing the
// upstream endpoint.
type Refresher struct {
	accounts   domain.AccountRepository
	oauth      oauthRefresher
	apiBaseURL string
	clock      clockwork.Clock
	group      singleflight.Group
}

func NewRefresher(accounts domain.AccountRepository, oauth oauthRefresher, apiBaseURL string, clock clockwork.Clock) *Refresher {
	return &Refresher{
		accounts:   accounts,
		oauth:      oauth,
		apiBaseURL: apiBaseURL,
		clock:      clock,
	}
}

// EnsureValidClientFor loads the account for a provider identity and ensures
// a valid client. Returns domain.ErrAccountNotFound when no upstream identity
// is linked; callers treat that as "proceed without a client".
func (r *Refresher) EnsureValidClientFor(ctx context.Context, provider, providerAccountID string) (*kick.Client, *domain.Account, error) {
	account, err := r.accounts.Get(ctx, provider, providerAccountID)
	if err != nil {
		return nil, nil, err
	}
	return r.EnsureValidClient(ctx, account)
}

// EnsureValidClient returns a client carrying a valid access token for the
// account, refreshing the stored token first when it is about to expire.
func (r *Refresher) EnsureValidClient(ctx context.Context, account *domain.Account) (*kick.Client, *domain.Account, error) {
	now := r.clock.Now()
	remaining := account.ExpiresAt.Sub(now)

	if remaining < RefreshThreshold && account.RefreshToken != "" {
		refreshed, err := r.refresh(ctx, account)
		if err != nil {
			return nil, nil, err
		}
		account = refreshed
	}

	client := kick.NewClient(r.apiBaseURL, kick.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    tokenTypeOrDefault(account.TokenType),
		ExpiresIn:    account.RemainingSeconds(r.clock.Now()),
		Scope:        strings.Join(account.Scope, " "),
	})
	return client, account, nil
}

func (r *Refresher) refresh(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	key := account.Provider + ":" + account.ProviderAccountID
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.doRefresh(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Refresh grant shared with concurrent request", "provider_account_id", account.ProviderAccountID)
	}
	return v.(*domain.Account), nil
}

func (r *Refresher) doRefresh(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	token, err := r.oauth.Refresh(ctx, account.RefreshToken)
	if err != nil {
		var apiErr *kick.APIError
		revoked := errors.As(err, &apiErr) && apiErr.IsAuthFailure()
		if revoked {
			metrics.UpstreamRefreshes.WithLabelValues("revoked").Inc()
		} else {
			metrics.UpstreamRefreshes.WithLabelValues("failed").Inc()
		}
		return nil, &RefreshError{Revoked: revoked, Err: err}
	}
	metrics.UpstreamRefreshes.WithLabelValues("ok").Inc()

	updated := *account
	updated.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		// Upstream may omit the refresh token, meaning "unchanged".
		updated.RefreshToken = token.RefreshToken
	}
	if token.TokenType != "" {
		updated.TokenType = token.TokenType
	}
	if token.Scope != "" {
		updated.Scope = strings.Fields(token.Scope)
	}
	updated.ExpiresAt = r.clock.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	if err := r.accounts.UpdateTokens(ctx, updated.Provider, updated.ProviderAccountID,
		updated.AccessToken, updated.RefreshToken, updated.TokenType, updated.Scope, updated.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	slog.Info("Refreshed upstream access token", "provider", updated.Provider, "provider_account_id", updated.ProviderAccountID)
	return &updated, nil
}

func tokenTypeOrDefault(tokenType string) string {
	if tokenType == "" {
		return "Bearer"
	}
	return tokenType
}
