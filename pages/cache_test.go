package pages

import (
	"fmt"
	"testing"
	"time"
)

// fakeClock advances manually.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestCacheHit(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache().WithClock(clock.now)
	session := NewSession("s1")

	cache.Put(session, Document{URL: "https://example.com", Text: "body", Title: "Example"})

	doc, ok := cache.Get(session, "https://example.com")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if doc.Title != "Example" {
		t.Errorf("Title = %q", doc.Title)
	}
}

func TestCacheExpiryOnRead(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache().WithClock(clock.now)
	session := NewSession("s1")

	cache.Put(session, Document{URL: "https://example.com", Text: "body"})
	clock.advance(16 * time.Minute)

	if _, ok := cache.Get(session, "https://example.com"); ok {
		t.Fatal("expected expired entry to be absent")
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry not removed: Len = %d", cache.Len())
	}
}

func TestCacheNotExpiredAtExactTTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache().WithClock(clock.now)
	session := NewSession("s1")

	cache.Put(session, Document{URL: "https://example.com", Text: "body"})
	clock.advance(15 * time.Minute) // expiry requires age strictly greater

	if _, ok := cache.Get(session, "https://example.com"); !ok {
		t.Error("entry at exactly 15 minutes should still be live")
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache().WithClock(clock.now)
	session := NewSession("s1")

	for i := 0; i < 11; i++ {
		cache.Put(session, Document{URL: fmt.Sprintf("https://example.com/%d", i), Text: "x"})
		clock.advance(time.Second)
	}

	if cache.Len() != 10 {
		t.Fatalf("Len = %d, want 10", cache.Len())
	}
	if _, ok := cache.Get(session, "https://example.com/0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for i := 1; i < 11; i++ {
		if _, ok := cache.Get(session, fmt.Sprintf("https://example.com/%d", i)); !ok {
			t.Errorf("entry %d missing", i)
		}
	}
}

func TestCacheSessionIsolation(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache().WithClock(clock.now)
	a := NewSession("a")
	b := NewSession("b")

	cache.Put(a, Document{URL: "https://example.com", Text: "from a"})

	if _, ok := cache.Get(b, "https://example.com"); ok {
		t.Error("session b must not see session a's entry")
	}
}

func TestCacheDropSession(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache().WithClock(clock.now)
	a := NewSession("a")
	b := NewSession("b")

	cache.Put(a, Document{URL: "https://example.com/1", Text: "x"})
	cache.Put(a, Document{URL: "https://example.com/2", Text: "x"})
	cache.Put(b, Document{URL: "https://example.com/1", Text: "x"})

	cache.DropSession(a)

	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
	if _, ok := cache.Get(b, "https://example.com/1"); !ok {
		t.Error("session b's entry must survive")
	}
}
