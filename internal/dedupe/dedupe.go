// Package dedupe tracks transaction hashes the pipeline has already handed to
// the reconciler. The store's uniqueness constraint is the authority; this
// tracker is the cheap first line that keeps retries and re-renders from even
// reaching the store.
package dedupe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Tracker records observed transaction hashes.
type Tracker interface {
	// Register marks the hash as seen and reports whether this call was the
	// first observation.
	Register(ctx context.Context, txHash string) (first bool, err error)
}

// Memory is a process-local tracker.
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemory creates an empty in-process tracker.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Register(_ context.Context, txHash string) (bool, error) {
	key := strings.ToLower(txHash)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}

// Redis tracks hashes across service instances with SETNX and a TTL. Entries
// only need to outlive the client retry window.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a redis-backed tracker.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Register(ctx context.Context, txHash string) (bool, error) {
	key := "poolsvc:txseen:" + strings.ToLower(txHash)
	return r.client.SetNX(ctx, key, 1, r.ttl).Result()
}
