package timeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Deduper suppresses duplicate deliveries of the same logical event within a
// short window, keyed by a deterministic idempotency token. Retried requests
// therefore append at most one timeline entry.
type Deduper interface {
	// Seen marks the token and reports whether it was already present.
	Seen(ctx context.Context, token string) (bool, error)
}

// Token derives the idempotency token from the fields that identify one
// logical event.
func Token(transactionID string, t EntryType, docType, note, actorID string) string {
	h := sha256.New()
	for _, part := range []string{transactionID, string(t), docType, note, actorID} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RedisDeduper shares the dedup window across instances via SET NX with TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, token string) (bool, error) {
	set, err := d.client.SetNX(ctx, "timeline:dedup:"+token, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// LRUDeduper is the single-instance fallback: a bounded LRU with per-entry
// TTL, so capacity is explicit rather than grown without limit.
type LRUDeduper struct {
	cache *lru.LRU[string, struct{}]
}

func NewLRUDeduper(size int, ttl time.Duration) *LRUDeduper {
	return &LRUDeduper{cache: lru.NewLRU[string, struct{}](size, nil, ttl)}
}

func (d *LRUDeduper) Seen(_ context.Context, token string) (bool, error) {
	if _, ok := d.cache.Get(token); ok {
		return true, nil
	}
	d.cache.Add(token, struct{}{})
	return false, nil
}
