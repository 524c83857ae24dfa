// Package cache provides an in-process TTL memo for idempotent
// sub-results such as classification and retrieval outputs.
//
// Keys are content hashes of (namespace, inputs). A miss always falls
// through to live computation; the cache is never correctness-critical.
//
// Example usage:
//
//	c := cache.New(cache.Config{DefaultTTL: time.Hour, MaxEntries: 4096})
//	c.Set(cache.Key("intent", msg, string(mode)), intent, 0)
//	v, ok := c.Get(cache.Key("intent", msg, string(mode)))
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Config holds cache configuration.
type Config struct {
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration `koanf:"default_ttl"`

	// MaxEntries bounds the map; the oldest-accessed entry is evicted
	// when the bound is hit.
	MaxEntries int `koanf:"max_entries"`
}

// DefaultConfig returns one-hour TTL with a 4096-entry bound.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: time.Hour,
		MaxEntries: 4096,
	}
}

type entry struct {
	value        any
	expiresAt    time.Time
	lastAccessed time.Time
}

// Cache is a thread-safe TTL map with lazy expiry and LRU eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	cfg     Config
}

// New creates a cache. Zero-valued config fields take defaults.
func New(cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	return &Cache{
		entries: make(map[string]*entry),
		cfg:     cfg,
	}
}

// Key builds a namespaced content-hash key. The namespace prefix stays in
// the clear so InvalidatePrefix can target it.
func Key(namespace string, inputs ...string) string {
	h := sha256.New()
	for _, in := range inputs {
		h.Write([]byte(in))
		h.Write([]byte{0})
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the value for key if present and unexpired.
// Expired entries are removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	now := time.Now()
	if now.After(e.expiresAt) {
		c.evictIfSame(key, e)
		return nil, false
	}

	c.mu.Lock()
	e.lastAccessed = now
	c.mu.Unlock()

	return e.value, true
}

// evictIfSame removes key only while it still maps to e. A concurrent
// Set may have replaced the entry after the caller observed it expire;
// the replacement must survive.
func (c *Cache) evictIfSame(key string, e *entry) {
	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// Set stores a value. ttl <= 0 means the default TTL.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	now := time.Now()
	c.entries[key] = &entry{
		value:        value,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
}

// InvalidatePrefix removes every entry whose key starts with prefix.
// Used to drop a whole namespace, e.g. "profile:" after a profile write.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Sweep removes all expired entries and reports how many were dropped.
// Callers own the sweep cadence; the cache starts no goroutines.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLRU removes the least recently accessed entry.
// Caller must hold the write lock.
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for k, e := range c.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastAccessed
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
