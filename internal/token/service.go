// Package token issues and verifies the application's own bearer tokens and
// tracks them in a revocation ledger keyed by jti.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/phxgg/kickbridge/internal/domain"
)

// Config holds the signing material. Access and refresh tokens use
// independent secrets and independent expirations.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Provider      string
}

// Claims is the verified content of one of our own tokens.
type Claims struct {
	SubjectID string
	JTI       string
	ExpiresAt time.Time
}

// Pair is a freshly issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessJTI    string
	RefreshJTI   string
	ExpiresIn    int // access token lifetime in seconds
}

type Service struct {
	cfg    Config
	ledger domain.TokenLedger
	clock  clockwork.Clock
}

func NewService(cfg Config, ledger domain.TokenLedger, clock clockwork.Clock) *Service {
	return &Service{cfg: cfg, ledger: ledger, clock: clock}
}

// IssuePair signs a new access/refresh pair for a subject and records both
// jtis in the ledger before returning. A ledger write failure fails the whole
// issuance: a token that was never recorded could never be revoked.
func (s *Service) IssuePair(ctx context.Context, subjectID string) (*Pair, error) {
	now := s.clock.Now()
	accessJTI := ulid.Make().String()
	refreshJTI := ulid.Make().String()

	accessExpiry := now.Add(s.cfg.AccessTTL)
	refreshExpiry := now.Add(s.cfg.RefreshTTL)

	accessToken, err := s.sign(subjectID, accessJTI, now, accessExpiry, s.cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refreshToken, err := s.sign(subjectID, refreshJTI, now, refreshExpiry, s.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	records := []domain.TokenRecord{
		{JTI: accessJTI, Kind: domain.TokenKindAccess, Provider: s.cfg.Provider, SubjectID: subjectID, ExpiresAt: accessExpiry},
		{JTI: refreshJTI, Kind: domain.TokenKindRefresh, Provider: s.cfg.Provider, SubjectID: subjectID, ExpiresAt: refreshExpiry},
	}
	for _, record := range records {
		if err := s.ledger.Record(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record token %s: %w", record.JTI, err)
		}
	}

	return &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessJTI:    accessJTI,
		RefreshJTI:   refreshJTI,
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// Verify checks a token cryptographically by its kind's secret, then consults
// the ledger. A token whose ledger record is revoked or absent fails with
// ErrTokenRevoked: the ledger evicts expired records, so "not found" must
// fail closed, not open. Callers never learn which check rejected the token.
// ErrTokenRevoked is accompanied by the parsed claims, which passed the
// cryptographic check, so callers can still attribute the token to its
// subject.
func (s *Service) Verify(ctx context.Context, tokenStr string, kind domain.TokenKind) (*Claims, error) {
	secret := s.cfg.AccessSecret
	if kind == domain.TokenKindRefresh {
		secret = s.cfg.RefreshSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}

	verified := &Claims{
		SubjectID: claims.Subject,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return verified, domain.ErrTokenRevoked
	}

	return verified, nil
}

// Revoke marks one jti revoked. Returns false when the record was already
// revoked or absent (idempotent).
func (s *Service) Revoke(ctx context.Context, jti, reason string) (bool, error) {
	return s.ledger.Revoke(ctx, jti, reason)
}

// RevokeAll marks every active token of a subject, optionally narrowed to one
// kind. Used for "sign out everywhere".
func (s *Service) RevokeAll(ctx context.Context, subjectID string, kind domain.TokenKind) (int, error) {
	return s.ledger.RevokeAll(ctx, domain.RevokeAllFilter{
		SubjectID: subjectID,
		Kind:      kind,
		Provider:  s.cfg.Provider,
	})
}

// IsRevoked reports whether a jti must be treated as revoked.
func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.ledger.IsRevoked(ctx, jti)
}

func (s *Service) sign(subjectID, jti string, now, expiry time.Time, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
