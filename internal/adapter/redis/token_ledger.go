package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/phxgg/kickbridge/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// Redis hash field names for token records.
	fieldKind      = "kind"
	fieldProvider  = "provider"
	fieldSubjectID = "subject_id"
	fieldRevokedAt = "revoked_at"
	fieldReason    = "reason"
	fieldExpiresAt = "expires_at"
	fieldCreatedAt = "created_at"
)

// TokenLedger is the Redis-backed domain.TokenLedger. Each record lives in a
// hash keyed by jti with a native EXPIREAT at the token's expiry, so expired
// records vanish without a sweeper. A per-subject set indexes jtis for bulk
// revocation; stale members are pruned as they are encountered.
type TokenLedger struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

var _ domain.TokenLedger = (*TokenLedger)(nil)

func NewTokenLedger(rdb *goredis.Client, clock clockwork.Clock) *TokenLedger {
	return &TokenLedger{rdb: rdb, clock: clock}
}

func tokenKey(jti string) string {
	return "token:" + jti
}

func subjectKey(subjectID string) string {
	return "token_subject:" + subjectID
}

func (l *TokenLedger) Record(ctx context.Context, record domain.TokenRecord) error {
	tk := tokenKey(record.JTI)

	exists, err := l.rdb.Exists(ctx, tk).Result()
	if err != nil {
		return fmt.Errorf("failed to check token record existence: %w", err)
	}

	pipe := l.rdb.Pipeline()
	if exists != 0 {
		// Upsert: refresh the mutable fields, keep creation time and any
		// revocation already applied.
		pipe.HSet(ctx, tk, map[string]any{
			fieldKind:      string(record.Kind),
			fieldProvider:  record.Provider,
			fieldSubjectID: record.SubjectID,
			fieldExpiresAt: strconv.FormatInt(record.ExpiresAt.Unix(), 10),
		})
	} else {
		pipe.HSet(ctx, tk, map[string]any{
			fieldKind:      string(record.Kind),
			fieldProvider:  record.Provider,
			fieldSubjectID: record.SubjectID,
			fieldExpiresAt: strconv.FormatInt(record.ExpiresAt.Unix(), 10),
			fieldCreatedAt: strconv.FormatInt(l.clock.Now().Unix(), 10),
		})
	}
	pipe.ExpireAt(ctx, tk, record.ExpiresAt)

	sk := subjectKey(record.SubjectID)
	pipe.SAdd(ctx, sk, record.JTI)
	// The index must outlive its longest-lived member. NX sets the first
	// deadline, GT only ever pushes it out.
	indexTTL := record.ExpiresAt.Sub(l.clock.Now())
	pipe.ExpireNX(ctx, sk, indexTTL)
	pipe.ExpireGT(ctx, sk, indexTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	return nil
}

func (l *TokenLedger) Revoke(ctx context.Context, jti, reason string) (bool, error) {
	record, err := l.Get(ctx, jti)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if record.Revoked() {
		return false, nil
	}

	err = l.rdb.HSet(ctx, tokenKey(jti), map[string]any{
		fieldRevokedAt: strconv.FormatInt(l.clock.Now().Unix(), 10),
		fieldReason:    reason,
	}).Err()
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return true, nil
}

func (l *TokenLedger) RevokeAll(ctx context.Context, filter domain.RevokeAllFilter) (int, error) {
	sk := subjectKey(filter.SubjectID)
	jtis, err := l.rdb.SMembers(ctx, sk).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list subject tokens: %w", err)
	}

	count := 0
	var stale []any
	for _, jti := range jtis {
		record, err := l.Get(ctx, jti)
		if errors.Is(err, domain.ErrRecordNotFound) {
			stale = append(stale, jti)
			continue
		}
		if err != nil {
			return count, err
		}
		if record.Revoked() {
			continue
		}
		if filter.Kind != "" && record.Kind != filter.Kind {
			continue
		}
		if filter.Provider != "" && record.Provider != filter.Provider {
			continue
		}

		changed, err := l.Revoke(ctx, jti, "bulk")
		if err != nil {
			return count, err
		}
		if changed {
			count++
		}
	}

	if len(stale) > 0 {
		if err := l.rdb.SRem(ctx, sk, stale...).Err(); err != nil {
			return count, fmt.Errorf("failed to prune subject index: %w", err)
		}
	}
	return count, nil
}

func (l *TokenLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revokedAt, err := l.rdb.HGet(ctx, tokenKey(jti), fieldRevokedAt).Result()
	if errors.Is(err, goredis.Nil) {
		// Field absent but the record may still exist unrevoked.
		exists, existsErr := l.rdb.Exists(ctx, tokenKey(jti)).Result()
		if existsErr != nil {
			return true, existsErr
		}
		// Absent records fail closed.
		return exists == 0, nil
	}
	if err != nil {
		return true, err
	}
	return revokedAt != "", nil
}

func (l *TokenLedger) Get(ctx context.Context, jti string) (*domain.TokenRecord, error) {
	fields, err := l.rdb.HGetAll(ctx, tokenKey(jti)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load token record: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRecordNotFound
	}

	record := &domain.TokenRecord{
		JTI:       jti,
		Kind:      domain.TokenKind(fields[fieldKind]),
		Provider:  fields[fieldProvider],
		SubjectID: fields[fieldSubjectID],
		Reason:    fields[fieldReason],
	}
	if record.ExpiresAt, err = parseUnixField(fields[fieldExpiresAt]); err != nil {
		return nil, fmt.Errorf("corrupt expires_at for jti %s: %w", jti, err)
	}
	if record.CreatedAt, err = parseUnixField(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("corrupt created_at for jti %s: %w", jti, err)
	}
	if raw := fields[fieldRevokedAt]; raw != "" {
		revokedAt, err := parseUnixField(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt revoked_at for jti %s: %w", jti, err)
		}
		record.RevokedAt = &revokedAt
	}
	return record, nil
}

func parseUnixField(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0), nil
}
