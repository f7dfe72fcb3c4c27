package token

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/phxgg/kickbridge/internal/domain"
)

// MemoryLedger is an in-process domain.TokenLedger. The backing store has no
// native TTL eviction, so expired records are treated as absent on every read
// and physically removed by a periodic sweep. Used in tests and single-node
// deployments without Redis.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]*domain.TokenRecord
	clock   clockwork.Clock

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMemoryLedger(clock clockwork.Clock) *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*domain.TokenRecord),
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
}

func (l *MemoryLedger) Record(_ context.Context, record domain.TokenRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[record.JTI]; ok {
		// Upsert semantics: refresh the mutable fields, keep the original
		// creation time and any revocation already applied.
		existing.Kind = record.Kind
		existing.Provider = record.Provider
		existing.SubjectID = record.SubjectID
		existing.ExpiresAt = record.ExpiresAt
		return nil
	}

	record.CreatedAt = l.clock.Now()
	l.records[record.JTI] = &record
	return nil
}

func (l *MemoryLedger) Revoke(_ context.Context, jti, reason string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := l.live(jti)
	if record == nil || record.Revoked() {
		return false, nil
	}

	now := l.clock.Now()
	record.RevokedAt = &now
	record.Reason = reason
	return true, nil
}

func (l *MemoryLedger) RevokeAll(_ context.Context, filter domain.RevokeAllFilter) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	count := 0
	for jti, record := range l.records {
		if l.live(jti) == nil || record.Revoked() {
			continue
		}
		if record.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Kind != "" && record.Kind != filter.Kind {
			continue
		}
		if filter.Provider != "" && record.Provider != filter.Provider {
			continue
		}
		revokedAt := now
		record.RevokedAt = &revokedAt
		record.Reason = "bulk"
		count++
	}
	return count, nil
}

func (l *MemoryLedger) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := l.live(jti)
	if record == nil {
		// Absent or expired-but-unswept: fail closed.
		return true, nil
	}
	return record.Revoked(), nil
}

func (l *MemoryLedger) Get(_ context.Context, jti string) (*domain.TokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := l.live(jti)
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

// live returns the record for jti, or nil if it is absent or past expiry.
// Callers must hold the mutex.
func (l *MemoryLedger) live(jti string) *domain.TokenRecord {
	record, ok := l.records[jti]
	if !ok {
		return nil
	}
	if !record.ExpiresAt.After(l.clock.Now()) {
		return nil
	}
	return record
}

// Sweep removes records past their expiry and returns the number removed.
func (l *MemoryLedger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for jti, record := range l.records {
		if !record.ExpiresAt.After(now) {
			delete(l.records, jti)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on a fixed interval until Stop is called.
func (l *MemoryLedger) StartSweeper(interval time.Duration) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := l.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				l.Sweep()
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (l *MemoryLedger) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}
