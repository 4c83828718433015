package cache

import (
	"strings"
	"time"
)

// DefaultTTL is how long a cached read stays fresh.
const DefaultTTL = 5 * time.Minute

type entry struct {
	capturedAt time.Time
	value      any
}

// Timed holds values keyed by operation with a fixed freshness window.
// Expiry is enforced at lookup; stale entries are evicted when seen.
// Not safe for concurrent use: each workspace owns its own instance.
type Timed struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewTimed returns an empty cache whose entries stay fresh for ttl.
func NewTimed(ttl time.Duration) *Timed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Timed{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// NewTimedWithClock is NewTimed with an injectable clock for tests.
func NewTimedWithClock(ttl time.Duration, now func() time.Time) *Timed {
	c := NewTimed(ttl)
	c.now = now
	return c
}

// Key builds a cache key from an operation name and its arguments.
func Key(op string, args ...string) string {
	if len(args) == 0 {
		return op
	}
	return op + "|" + strings.Join(args, "|")
}

// Get returns the value stored under key if it is still fresh.
func (c *Timed) Get(key string) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.capturedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, stamped with the current time.
func (c *Timed) Set(key string, value any) {
	c.entries[key] = entry{capturedAt: c.now(), value: value}
}

// Invalidate removes the entry stored under key, if any.
func (c *Timed) Invalidate(key string) {
	delete(c.entries, key)
}

// InvalidateAll drops every entry.
func (c *Timed) InvalidateAll() {
	c.entries = make(map[string]entry)
}

// Len reports how many entries are currently held, fresh or not.
func (c *Timed) Len() int {
	return len(c.entries)
}

// OldestAge reports the age of the oldest entry, and false when empty.
func (c *Timed) OldestAge() (time.Duration, bool) {
	if len(c.entries) == 0 {
		return 0, false
	}
	now := c.now()
	var oldest time.Duration
	for _, e := range c.entries {
		if age := now.Sub(e.capturedAt); age > oldest {
			oldest = age
		}
	}
	return oldest, true
}
