package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phxgg/kickbridge/internal/domain"
)

// accountColumns must match the Scan order in scanAccount.
const accountColumns = `id, provider, provider_account_id, access_token, refresh_token, token_type, scope, expires_at, created_at, updated_at`

// AccountRepo implements domain.AccountRepository backed by PostgreSQL.
type AccountRepo struct {
	pool *pgxpool.Pool
}

var _ domain.AccountRepository = (*AccountRepo)(nil)

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID, &account.Provider, &account.ProviderAccountID,
		&account.AccessToken, &account.RefreshToken, &account.TokenType,
		&account.Scope, &account.ExpiresAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepo) Get(ctx context.Context, provider, providerAccountID string) (*domain.Account, error) {
	account, err := scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE provider = $1 AND provider_account_id = $2
	`, provider, providerAccountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *AccountRepo) Upsert(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	stored, err := scanAccount(r.pool.QueryRow(ctx, `
		INSERT INTO accounts (provider, provider_account_id, access_token, refresh_token, token_type, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, provider_account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING `+accountColumns+`
	`, account.Provider, account.ProviderAccountID, account.AccessToken,
		account.RefreshToken, account.TokenType, account.Scope, account.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return stored, nil
}

func (r *AccountRepo) UpdateTokens(ctx context.Context, provider, providerAccountID, accessToken, refreshToken, tokenType string, scope []string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET access_token = $1, refresh_token = $2, token_type = $3, scope = $4, expires_at = $5, updated_at = NOW()
		WHERE provider = $6 AND provider_account_id = $7
	`, accessToken, refreshToken, tokenType, scope, expiresAt, provider, providerAccountID)
	if err != nil {
		return fmt.Errorf("failed to update account tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
