package hyperbatch

import (
	"sync"
	"time"
)

// cacheEntry stores the cacheable part of one document.
type cacheEntry struct {
	doc       *Document
	expiresAt time.Time // zero means no expiry
}

// Cache stores the cacheable part of rendered documents.
// It is safe for concurrent use from multiple goroutines.
//
// Implementations must treat stored documents as immutable. The projector
// stores a private copy and clones on every hit before merging
// viewer-specific fields.
type Cache interface {
	// Get returns the document stored under key. If found is false, the
	// entry doesn't exist or is expired.
	Get(key Key) (doc *Document, found bool)

	// Set stores doc under key.
	Set(key Key, doc *Document)
}

// CacheImpl is the default in-memory cache implementation with optional TTL.
// It uses a sync.RWMutex for goroutine safety and is scoped to one process.
//
// The cache grows unbounded within its TTL window. Entries for changed
// entities are never read again because the checksum is part of the key;
// use a TTL or Clear to reclaim them.
type CacheImpl struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
	ttl   time.Duration // 0 means no expiry
	now   func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*CacheImpl)

// WithTTL sets the time-to-live for cache entries.
// A TTL of 0 (default) means entries never expire within the cache's lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CacheImpl) {
		c.ttl = ttl
	}
}

// NewCache creates a new document cache.
func NewCache(opts ...CacheOption) *CacheImpl {
	c := &CacheImpl{
		items: make(map[string]cacheEntry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the document stored under key.
func (c *CacheImpl) Get(key Key) (*Document, bool) {
	k := key.String()

	c.mu.RLock()
	entry, ok := c.items[k]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.items, k)
		c.mu.Unlock()
		return nil, false
	}

	return entry.doc, true
}

// Set stores doc under key.
func (c *CacheImpl) Set(key Key, doc *Document) {
	entry := cacheEntry{doc: doc}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.items[key.String()] = entry
	c.mu.Unlock()
}

// Size returns the number of entries in the cache.
func (c *CacheImpl) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries from the cache.
func (c *CacheImpl) Clear() {
	c.mu.Lock()
	c.items = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Ensure CacheImpl implements Cache.
var _ Cache = (*CacheImpl)(nil)
