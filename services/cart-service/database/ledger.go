package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger records which cascade events were already applied, keyed by event token.
type Ledger interface {
	Seen(ctx context.Context, token string) (bool, error)
	// Record marks token as applied. It reports false when it was already recorded.
	Record(ctx context.Context, token string) (bool, error)
}

// MemoryLedger is a process-local ledger with expiring entries.
type MemoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{ttl: ttl, entries: map[string]time.Time{}, now: time.Now}
}

func (l *MemoryLedger) Seen(_ context.Context, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.entries[token]
	return ok && (l.ttl <= 0 || l.now().Sub(at) <= l.ttl), nil
}

func (l *MemoryLedger) Record(ctx context.Context, token string) (bool, error) {
	if seen, _ := l.Seen(ctx, token); seen {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[token] = l.now()
	return true, nil
}

// RedisLedger stores markers as idem:cascade:<token> with a TTL.
type RedisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLedger(client redis.UniversalClient, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) getIdemKey(token string) string {
	return "idem:cascade:" + token
}

func (l *RedisLedger) Seen(ctx context.Context, token string) (bool, error) {
	n, err := l.client.Exists(ctx, l.getIdemKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("read cascade marker: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Record(ctx context.Context, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.getIdemKey(token), time.Now().UTC().Format(time.RFC3339Nano), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("write cascade marker: %w", err)
	}
	return ok, nil
}
