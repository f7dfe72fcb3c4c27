package domain

import (
	"context"
	"time"
)

// TokenKind distinguishes the two halves of an issued token pair. The values
// match the wire form used by the revoke endpoint.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access_token"
	TokenKindRefresh TokenKind = "refresh_token"
)

// TokenRecord is the durable ledger entry for one issued token, keyed by jti.
// A record whose RevokedAt is set, or that is absent from the ledger entirely
// (evicted after ExpiresAt), is not trusted.
type TokenRecord struct {
	JTI       string
	Kind      TokenKind
	Provider  string
	SubjectID string
	RevokedAt *time.Time
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Revoked reports whether the record has been explicitly revoked.
func (r *TokenRecord) Revoked() bool {
	return r.RevokedAt != nil
}

// RevokeAllFilter narrows a bulk revocation. SubjectID is required; Kind and
// Provider are optional (zero value means "any").
type RevokeAllFilter struct {
	SubjectID string
	Kind      TokenKind
	Provider  string
}

// TokenLedger records issued tokens and their revocation state. The store
// evicts records once ExpiresAt passes; lookups of evicted or never-recorded
// jtis return ErrRecordNotFound, which verification treats as revoked.
type TokenLedger interface {
	// Record upserts a ledger entry keyed by jti. Idempotent.
	Record(ctx context.Context, record TokenRecord) error
	// Revoke marks a single jti revoked. Returns false when the record was
	// already revoked or does not exist (no change).
	Revoke(ctx context.Context, jti, reason string) (bool, error)
	// RevokeAll marks every active record matching the filter and returns
	// the number of records changed.
	RevokeAll(ctx context.Context, filter RevokeAllFilter) (int, error)
	// IsRevoked reports whether a jti must be treated as revoked. Absent
	// records report true (fail closed).
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Get returns the ledger record for a jti, or ErrRecordNotFound.
	Get(ctx context.Context, jti string) (*TokenRecord, error)
}
