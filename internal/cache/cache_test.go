package cache

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Key tests
// ---------------------------------------------------------------------------

func TestKey_SameInputsSameKey(t *testing.T) {
	key1 := Key("gpt-4o", "latest azure outage")
	key2 := Key("gpt-4o", "latest azure outage")
	if key1 != key2 {
		t.Errorf("expected identical keys, got %q and %q", key1, key2)
	}
}

func TestKey_DifferentModelDifferentKey(t *testing.T) {
	key1 := Key("gpt-4o", "latest azure outage")
	key2 := Key("gpt-4.1", "latest azure outage")
	if key1 == key2 {
		t.Errorf("expected different keys for different models, both got %q", key1)
	}
}

func TestKey_DifferentQueryDifferentKey(t *testing.T) {
	key1 := Key("gpt-4o", "hello")
	key2 := Key("gpt-4o", "goodbye")
	if key1 == key2 {
		t.Errorf("expected different keys for different queries, both got %q", key1)
	}
}

func TestKey_SeparatorPreventsCollision(t *testing.T) {
	key1 := Key("ab", "c")
	key2 := Key("a", "bc")
	if key1 == key2 {
		t.Errorf("expected separator to prevent collision, both got %q", key1)
	}
}

// ---------------------------------------------------------------------------
// Cache tests
// ---------------------------------------------------------------------------

func newTestCache(t *testing.T, ttlSeconds, maxEntries int) *Cache {
	t.Helper()
	c, err := New(ttlSeconds, maxEntries, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGet_Miss(t *testing.T) {
	c := newTestCache(t, 3600, 100)

	if _, ok := c.Get("gpt-4o", "never stored"); ok {
		t.Error("expected miss for query never stored")
	}
}

func TestPutThenGet(t *testing.T) {
	c := newTestCache(t, 3600, 100)

	c.Put("gpt-4o", "hello", &Entry{
		Body:   []byte(`{"content":"cached answer"}`),
		Agent:  "gpt4o-a",
		Model:  "gpt-4o",
		Tokens: 42,
	})

	entry, ok := c.Get("gpt-4o", "hello")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if string(entry.Body) != `{"content":"cached answer"}` {
		t.Errorf("unexpected body: %s", entry.Body)
	}
	if entry.Agent != "gpt4o-a" {
		t.Errorf("Agent: got %q, want %q", entry.Agent, "gpt4o-a")
	}
	if entry.ExpiresAt.IsZero() {
		t.Error("expected ExpiresAt to be stamped by Put")
	}
}

func TestGet_ModelScopesTheEntry(t *testing.T) {
	c := newTestCache(t, 3600, 100)

	c.Put("gpt-4o", "hello", &Entry{Body: []byte(`{}`)})

	if _, ok := c.Get("gpt-4.1", "hello"); ok {
		t.Error("entry stored for gpt-4o must not serve gpt-4.1")
	}
}

func TestDisabledCacheIsInert(t *testing.T) {
	c, err := New(3600, 100, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.Put("gpt-4o", "hello", &Entry{Body: []byte(`{}`)})
	if _, ok := c.Get("gpt-4o", "hello"); ok {
		t.Error("disabled cache should never hit")
	}
	if c.Len() != 0 {
		t.Errorf("disabled cache should stay empty, got %d entries", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(t, 3600, 2)

	for _, q := range []string{"first", "second", "third"} {
		c.Put("gpt-4o", q, &Entry{Body: []byte(`{}`)})
	}

	if c.Len() != 2 {
		t.Errorf("expected 2 entries in LRU, got %d", c.Len())
	}
	if _, ok := c.Get("gpt-4o", "first"); ok {
		t.Error("expected 'first' to be evicted from LRU")
	}
	if _, ok := c.Get("gpt-4o", "second"); !ok {
		t.Error("expected 'second' to still be in LRU")
	}
	if _, ok := c.Get("gpt-4o", "third"); !ok {
		t.Error("expected 'third' to still be in LRU")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, 1, 100)

	c.Put("gpt-4o", "ttl-test", &Entry{Body: []byte(`{"ok":true}`)})

	if _, ok := c.Get("gpt-4o", "ttl-test"); !ok {
		t.Error("expected cache hit before TTL expiry")
	}

	time.Sleep(1100 * time.Millisecond)

	if _, ok := c.Get("gpt-4o", "ttl-test"); ok {
		t.Error("expected cache miss after TTL expiry")
	}
}

func TestPurgeEvictsExpired(t *testing.T) {
	c := newTestCache(t, 3600, 100)

	c.Put("gpt-4o", "fresh", &Entry{Body: []byte(`{}`)})
	c.Put("gpt-4o", "stale", &Entry{Body: []byte(`{}`)})

	// Force the stale entry past its expiry.
	if entry, ok := c.memory.Peek(Key("gpt-4o", "stale")); ok {
		entry.ExpiresAt = time.Now().Add(-time.Minute)
	}

	c.purge()

	if c.Len() != 1 {
		t.Errorf("expected 1 entry after purge, got %d", c.Len())
	}
	if _, ok := c.Get("gpt-4o", "fresh"); !ok {
		t.Error("expected fresh entry to survive purge")
	}
}
