// Package cache provides the advisory TTL cache in front of the memory
// engine. Two implementations exist: Redis for shared deployments and an
// in-process expirable LRU when Redis is not configured. The cache is
// strictly advisory: a miss or an error always falls through to the
// primary store, and Set failures are swallowed.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTTL is applied when callers pass a zero TTL.
const DefaultTTL = 3600 * time.Second

// Cache is the advisory key-value store used for query results, memory
// records, and per-owner statistics.
type Cache interface {
	// Get returns the cached value and true on a hit. Errors are treated
	// as misses.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for ttl. A zero ttl means DefaultTTL.
	// Failures are logged at debug and otherwise ignored.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying connection or storage.
	Close() error
}

// SemanticKey builds the cache key for a semantic search result set. The
// query parameters are hashed so arbitrary query text stays out of key
// space.
func SemanticKey(ownerID int64, query string, k int, threshold float64, contextID int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%g|%d", query, k, threshold, contextID)))
	return fmt.Sprintf("sem:%d:%s", ownerID, hex.EncodeToString(h[:]))
}

// SemanticPrefix is the invalidation prefix covering every cached search
// for one owner.
func SemanticPrefix(ownerID int64) string {
	return fmt.Sprintf("sem:%d:", ownerID)
}

// MemoryKey builds the cache key for a single memory record.
func MemoryKey(id int64) string {
	return fmt.Sprintf("mem:%d", id)
}

// StatsKey builds the cache key for an owner's statistics snapshot.
func StatsKey(ownerID int64) string {
	return fmt.Sprintf("stats:%d", ownerID)
}
