package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryEntries bounds the in-process cache. Search result sets
// dominate the entry size, so a few thousand entries stay well under
// typical process budgets.
const DefaultMemoryEntries = 4096

// Memory is the in-process fallback used when Redis is not configured.
// The expirable LRU takes one TTL at construction, so per-call TTLs are
// ignored here; only the Redis implementation honors them.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory builds an in-process cache with the given entry bound and TTL.
// Zero values fall back to DefaultMemoryEntries and DefaultTTL.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		lru: expirable.NewLRU[string, []byte](maxEntries, nil, ttl),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	return m.lru.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	m.lru.Add(key, value)
}

func (m *Memory) InvalidatePrefix(_ context.Context, prefix string) {
	for _, key := range m.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.lru.Remove(key)
		}
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
