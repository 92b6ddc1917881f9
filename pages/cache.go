package pages

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// Session is an explicit handle scoping cached documents. Passing it into
// every cache operation keeps concurrent sessions within one process safe;
// there is no process-wide current session.
type Session struct {
	ID string
}

// NewSession creates a session handle for the given identifier.
func NewSession(id string) Session {
	return Session{ID: id}
}

// Document is one cached fetched-and-extracted document.
type Document struct {
	URL       string
	Text      string
	HTML      string
	Title     string
	Timestamp time.Time
}

// Tokens estimates the token count of the document's extracted text.
func (d Document) Tokens() int {
	return EstimateTokens(d.Text)
}

// Cache defaults.
const (
	DefaultMaxEntries = 10
	DefaultTTL        = 15 * time.Minute
)

// Cache holds fetched documents keyed by (url, session), bounded in size
// and expired by age. Expiry is checked lazily on reads and swept before
// writes; once an entry is seen expired it is removed, never resurrected.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Document
	max     int
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache with the default bound and TTL.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]Document),
		max:     DefaultMaxEntries,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

// WithClock overrides the cache's clock. Used in tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// WithMaxEntries overrides the live-entry bound.
func (c *Cache) WithMaxEntries(n int) *Cache {
	if n > 0 {
		c.max = n
	}
	return c
}

// Put caches a document for the session, stamping it with the current
// time, sweeping expired entries first and evicting the oldest entries
// if the bound is exceeded.
func (c *Cache) Put(session Session, doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	doc.Timestamp = now
	c.entries[cacheKey(doc.URL, session.ID)] = doc

	for len(c.entries) > c.max {
		c.evictOldestLocked()
	}
}

// Get returns the cached document for (url, session) if present and not
// expired. An expired entry is removed as a side effect of the lookup.
func (c *Cache) Get(session Session, url string) (Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(url, session.ID)
	doc, ok := c.entries[key]
	if !ok {
		return Document{}, false
	}
	if c.now().Sub(doc.Timestamp) > c.ttl {
		delete(c.entries, key)
		return Document{}, false
	}
	return doc, true
}

// DropSession removes every entry cached under the session.
func (c *Cache) DropSession(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	suffix := ":" + session.ID
	for key := range c.entries {
		if len(key) >= len(suffix) && key[len(key)-len(suffix):] == suffix {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLocked(now time.Time) {
	for key, doc := range c.entries {
		if now.Sub(doc.Timestamp) > c.ttl {
			delete(c.entries, key)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, doc := range c.entries {
		if first || doc.Timestamp.Before(oldest) {
			oldestKey = key
			oldest = doc.Timestamp
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// cacheKey combines a hashed url with the session id. Two sessions
// fetching the same url never share an entry.
func cacheKey(url, sessionID string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:]) + ":" + sessionID
}
