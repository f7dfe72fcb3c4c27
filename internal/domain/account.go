package domain

import (
	"context"
	"time"
)

// Account is a linked upstream platform identity with its stored OAuth
// tokens. One row per (provider, provider account id) pair, upserted on each
// successful OAuth callback or refresh.
type Account struct {
	ID                int64
	Provider          string
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	TokenType         string
	Scope             []string
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RemainingSeconds returns the non-negative number of seconds until the
// stored access token expires.
func (a *Account) RemainingSeconds(now time.Time) int {
	remaining := int(a.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

type AccountRepository interface {
	Get(ctx context.Context, provider, providerAccountID string) (*Account, error)
	Upsert(ctx context.Context, account *Account) (*Account, error)
	UpdateTokens(ctx context.Context, provider, providerAccountID string, accessToken, refreshToken, tokenType string, scope []string, expiresAt time.Time) error
}
