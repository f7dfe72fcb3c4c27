package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret-access-secret-1234"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-12"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		Provider:      "kick",
	}
}

func newTestService(t *testing.T) (*Service, *MemoryLedger, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	ledger := NewMemoryLedger(clock)
	return NewService(testConfig(), ledger, clock), ledger, clock
}

func TestIssuePair_VerifyRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessJTI, pair.RefreshJTI)
	assert.Equal(t, int((15 * time.Minute).Seconds()), pair.ExpiresIn)

	access, err := svc.Verify(ctx, pair.AccessToken, domain.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.SubjectID)
	assert.Equal(t, pair.AccessJTI, access.JTI)

	refresh, err := svc.Verify(ctx, pair.RefreshToken, domain.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshJTI, refresh.JTI)
}

func TestVerify_KindsUseIndependentSecrets(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, "user-1")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, pair.AccessToken, domain.TokenKindRefresh)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, err = svc.Verify(ctx, pair.RefreshToken, domain.TokenKindAccess)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestVerify_ExpiredToken(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, "user-1")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = svc.Verify(ctx, pair.AccessToken, domain.TokenKindAccess)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	// Refresh token is still inside its longer window.
	_, err = svc.Verify(ctx, pair.RefreshToken, domain.TokenKindRefresh)
	assert.NoError(t, err)
}

func TestVerify_RevokedToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, "user-1")
	require.NoError(t, err)

	changed, err := svc.Revoke(ctx, pair.AccessJTI, "logout")
	require.NoError(t, err)
	assert.True(t, changed)

	claims, err := svc.Verify(ctx, pair.AccessToken, domain.TokenKindAccess)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)

	// The claims still come back so callers can attribute the revoked token
	// to its subject.
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.SubjectID)
	assert.Equal(t, pair.AccessJTI, claims.JTI)
}

func TestVerify_EvictedLedgerRecordFailsClosed(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, "user-1")
	require.NoError(t, err)

	// Simulate TTL eviction: verify against a ledger that no longer holds
	// the record while the token itself is still cryptographically valid.
	evicted := NewService(testConfig(), NewMemoryLedger(clock), clock)
	_, err = evicted.Verify(ctx, pair.AccessToken, domain.TokenKindAccess)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
}

func TestVerify_GarbageToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Verify(context.Background(), "not.a.jwt", domain.TokenKindAccess)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

type failingLedger struct {
	domain.TokenLedger
	failAfter int
	calls     int
}

func (l *failingLedger) Record(ctx context.Context, record domain.TokenRecord) error {
	l.calls++
	if l.calls > l.failAfter {
		return errors.New("ledger unavailable")
	}
	return l.TokenLedger.Record(ctx, record)
}

func TestIssuePair_LedgerFailureFailsIssuance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ledger := &failingLedger{TokenLedger: NewMemoryLedger(clock), failAfter: 1}
	svc := NewService(testConfig(), ledger, clock)

	_, err := svc.IssuePair(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record token")
}

func TestRevokeAll_OnlyMatchingKind(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pair1, err := svc.IssuePair(ctx, "user-1")
	require.NoError(t, err)
	pair2, err := svc.IssuePair(ctx, "user-1")
	require.NoError(t, err)
	other, err := svc.IssuePair(ctx, "user-2")
	require.NoError(t, err)

	count, err := svc.RevokeAll(ctx, "user-1", domain.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.Verify(ctx, pair1.AccessToken, domain.TokenKindAccess)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	_, err = svc.Verify(ctx, pair2.AccessToken, domain.TokenKindAccess)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = svc.Verify(ctx, pair1.RefreshToken, domain.TokenKindRefresh)
	assert.NoError(t, err, "refresh tokens are outside the access-kind filter")
	_, err = svc.Verify(ctx, other.AccessToken, domain.TokenKindAccess)
	assert.NoError(t, err, "other subjects are untouched")
}
