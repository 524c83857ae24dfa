package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(DefaultConfig())

	key := Key("intent", "merhaba", "normal")
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(key, "small_talk", 0)
	v, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if v.(string) != "small_talk" {
		t.Errorf("got %v, want small_talk", v)
	}
}

func TestKeyDeterministicAndNamespaced(t *testing.T) {
	a := Key("intent", "merhaba", "normal")
	b := Key("intent", "merhaba", "normal")
	if a != b {
		t.Error("same inputs should produce the same key")
	}

	// Different namespaces never collide even with identical inputs.
	if Key("intent", "x") == Key("emotion", "x") {
		t.Error("namespace must separate keys")
	}

	// Separator-injection must not collide: ("ab","c") != ("a","bc").
	if Key("n", "ab", "c") == Key("n", "a", "bc") {
		t.Error("input boundaries must be preserved in the hash")
	}
}

func TestExpiry(t *testing.T) {
	c := New(Config{DefaultTTL: time.Hour, MaxEntries: 16})

	c.Set("k:1", "v", 10*time.Millisecond)
	if _, ok := c.Get("k:1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k:1"); ok {
		t.Fatal("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on access, len=%d", c.Len())
	}
}

func TestExpiredEvictionSparesReplacement(t *testing.T) {
	c := New(Config{DefaultTTL: time.Hour, MaxEntries: 16})

	c.Set("k:1", "old", time.Nanosecond)
	c.mu.RLock()
	stale := c.entries["k:1"]
	c.mu.RUnlock()

	// A Set racing the expired-read path replaces the entry; evicting
	// the stale pointer must not take the fresh one with it.
	c.Set("k:1", "fresh", time.Hour)
	c.evictIfSame("k:1", stale)

	v, ok := c.Get("k:1")
	if !ok || v != "fresh" {
		t.Fatalf("fresh entry evicted, got %v ok=%v", v, ok)
	}

	c.evictIfSame("k:1", c.entries["k:1"])
	if _, ok := c.Get("k:1"); ok {
		t.Fatal("expected miss after evicting the current entry")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(DefaultConfig())

	c.Set(Key("intent", "a"), 1, 0)
	c.Set(Key("intent", "b"), 2, 0)
	c.Set(Key("profile", "a"), 3, 0)

	removed := c.InvalidatePrefix("intent:")
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := c.Get(Key("profile", "a")); !ok {
		t.Error("other namespace should survive prefix invalidation")
	}
}

func TestSweep(t *testing.T) {
	c := New(Config{DefaultTTL: time.Hour, MaxEntries: 16})

	c.Set("a:1", 1, 5*time.Millisecond)
	c.Set("a:2", 2, 5*time.Millisecond)
	c.Set("a:3", 3, time.Hour)

	time.Sleep(10 * time.Millisecond)
	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep() = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(Config{DefaultTTL: time.Hour, MaxEntries: 3})

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k:%d", i), i, 0)
		time.Sleep(time.Millisecond)
	}

	// Touch k:0 so k:1 becomes the LRU candidate.
	c.Get("k:0")
	c.Set("k:3", 3, 0)

	if _, ok := c.Get("k:1"); ok {
		t.Error("k:1 should have been evicted")
	}
	if _, ok := c.Get("k:0"); !ok {
		t.Error("recently accessed k:0 should survive")
	}
}
