package database

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TombstoneKind says what a tombstone marks as deleted.
type TombstoneKind string

const (
	TombstoneProduct TombstoneKind = "product"
	TombstoneUser    TombstoneKind = "user"
)

// Tombstone records that Key was deleted at At.
type Tombstone struct {
	Kind TombstoneKind
	Key  string
	At   time.Time
}

// Tombstones remembers recent deletions so a late add cannot resurrect a deleted product or
// user. Entries expire after the store's TTL.
type Tombstones interface {
	Mark(ctx context.Context, kind TombstoneKind, key string) error
	Lift(ctx context.Context, kind TombstoneKind, key string) error
	IsMarked(ctx context.Context, kind TombstoneKind, key string) (bool, error)
	// Since lists tombstones of kind created at or after since.
	Since(ctx context.Context, kind TombstoneKind, since time.Time) ([]Tombstone, error)
}

// MemoryTombstones is the in-process tombstone set.
type MemoryTombstones struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[TombstoneKind]map[string]time.Time
	now     func() time.Time
}

func NewMemoryTombstones(ttl time.Duration) *MemoryTombstones {
	return &MemoryTombstones{
		ttl:     ttl,
		entries: map[TombstoneKind]map[string]time.Time{},
		now:     time.Now,
	}
}

func (t *MemoryTombstones) Mark(_ context.Context, kind TombstoneKind, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.entries[kind]
	if !ok {
		m = map[string]time.Time{}
		t.entries[kind] = m
	}
	now := t.now()
	m[key] = now
	for k, at := range m {
		if t.expired(at, now) {
			delete(m, k)
		}
	}
	return nil
}

func (t *MemoryTombstones) Lift(_ context.Context, kind TombstoneKind, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries[kind], key)
	return nil
}

func (t *MemoryTombstones) IsMarked(_ context.Context, kind TombstoneKind, key string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.entries[kind][key]
	return ok && !t.expired(at, t.now()), nil
}

func (t *MemoryTombstones) Since(_ context.Context, kind TombstoneKind, since time.Time) ([]Tombstone, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]Tombstone, 0)
	for k, at := range t.entries[kind] {
		if !at.Before(since) && !t.expired(at, now) {
			out = append(out, Tombstone{Kind: kind, Key: k, At: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (t *MemoryTombstones) expired(at, now time.Time) bool {
	return t.ttl > 0 && now.Sub(at) > t.ttl
}

// RedisTombstones keeps each tombstone as a string key with a TTL plus a sorted set per kind,
// scored by deletion time, for range scans.
type RedisTombstones struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisTombstones(client redis.UniversalClient, ttl time.Duration) *RedisTombstones {
	return &RedisTombstones{client: client, ttl: ttl, now: time.Now}
}

func tombstoneKey(kind TombstoneKind, key string) string {
	return fmt.Sprintf("tomb:%s:%s", kind, key)
}

func tombstoneIndexKey(kind TombstoneKind) string {
	return fmt.Sprintf("tomb:%s:recent", kind)
}

func (t *RedisTombstones) Mark(ctx context.Context, kind TombstoneKind, key string) error {
	now := t.now()
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tombstoneKey(kind, key), now.UnixNano(), t.ttl)
		pipe.ZAdd(ctx, tombstoneIndexKey(kind), redis.Z{Score: float64(now.UnixNano()), Member: key})
		if t.ttl > 0 {
			pipe.ZRemRangeByScore(ctx, tombstoneIndexKey(kind), "-inf", "("+strconv.FormatInt(now.Add(-t.ttl).UnixNano(), 10))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark %s tombstone %s: %w", kind, key, err)
	}
	return nil
}

func (t *RedisTombstones) Lift(ctx context.Context, kind TombstoneKind, key string) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tombstoneKey(kind, key))
		pipe.ZRem(ctx, tombstoneIndexKey(kind), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("lift %s tombstone %s: %w", kind, key, err)
	}
	return nil
}

func (t *RedisTombstones) IsMarked(ctx context.Context, kind TombstoneKind, key string) (bool, error) {
	n, err := t.client.Exists(ctx, tombstoneKey(kind, key)).Result()
	if err != nil {
		return false, fmt.Errorf("check %s tombstone %s: %w", kind, key, err)
	}
	return n > 0, nil
}

func (t *RedisTombstones) Since(ctx context.Context, kind TombstoneKind, since time.Time) ([]Tombstone, error) {
	zs, err := t.client.ZRangeByScoreWithScores(ctx, tombstoneIndexKey(kind), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s tombstones: %w", kind, err)
	}

	out := make([]Tombstone, 0, len(zs))
	for _, z := range zs {
		key, _ := z.Member.(string)
		out = append(out, Tombstone{Kind: kind, Key: key, At: time.Unix(0, int64(z.Score))})
	}
	return out, nil
}
