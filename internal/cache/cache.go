package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Entry is a cached grounding answer. Body holds the serialized answer as
// returned by the upstream; the remaining fields record which agent produced
// it and when it goes stale.
type Entry struct {
	Body      []byte    `json:"body"`
	Agent     string    `json:"agent"`
	Model     string    `json:"model"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired returns true if the entry has passed its expiration time.
func (e *Entry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache is an in-memory LRU of grounding answers keyed by (model, query).
// Grounded answers go stale with the web, so the TTL is deliberately short.
type Cache struct {
	memory  *lru.Cache[string, *Entry]
	ttl     time.Duration
	enabled bool
}

// New creates a Cache.
//
//   - ttlSeconds is the time-to-live for entries in seconds.
//   - maxEntries is the maximum number of entries in the LRU.
//   - enabled controls whether Get/Put do anything at all.
func New(ttlSeconds, maxEntries int, enabled bool) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	memCache, err := lru.New[string, *Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: creating LRU: %w", err)
	}

	return &Cache{
		memory:  memCache,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: enabled,
	}, nil
}

// Enabled reports whether the cache is active.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get returns the cached answer for the given model and query, if present
// and not expired. Expired entries are evicted on access.
func (c *Cache) Get(model, query string) (*Entry, bool) {
	if !c.enabled {
		return nil, false
	}

	key := Key(model, query)
	entry, ok := c.memory.Get(key)
	if !ok {
		return nil, false
	}
	if entry.Expired() {
		c.memory.Remove(key)
		return nil, false
	}
	return entry, true
}

// Put stores an answer for the given model and query. CreatedAt and
// ExpiresAt are stamped here; callers only fill Body, Agent, Model, Tokens.
func (c *Cache) Put(model, query string, entry *Entry) {
	if !c.enabled {
		return
	}

	now := time.Now()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(c.ttl)
	c.memory.Add(Key(model, query), entry)
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	return c.memory.Len()
}

// StartPurger starts a background goroutine that periodically evicts expired
// entries. It runs every 5 minutes until the context is cancelled. The
// returned channel is closed when the goroutine exits so callers can
// synchronize shutdown.
func (c *Cache) StartPurger(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("cache purger: recovered from panic")
						}
					}()
					c.purge()
				}()
			}
		}
	}()
	return done
}

// purge evicts expired entries from the LRU.
func (c *Cache) purge() {
	for _, key := range c.memory.Keys() {
		if entry, ok := c.memory.Peek(key); ok && entry.Expired() {
			c.memory.Remove(key)
		}
	}
}
