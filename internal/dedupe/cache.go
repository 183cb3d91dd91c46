// ABOUTME: TTL cache suppressing replays of update ids and challenge nonces
// ABOUTME: Size-capped with lazy expiry; no background goroutine

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Cache remembers keys for a TTL window so callers can drop repeats. It is
// size-capped; when full, the oldest key is evicted. Expired entries are
// reaped lazily on access. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	at   time.Time
	elem *list.Element
}

// New creates a cache with the given TTL and maximum key count.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Seen reports whether the key is already present and unexpired, marking it
// either way. A true result means the caller should drop the item.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.reapLocked(now)

	if e, ok := c.entries[key]; ok && now.Sub(e.at) < c.ttl {
		e.at = now
		c.order.MoveToBack(e.elem)
		return true
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry{at: now, elem: c.order.PushBack(key)}
	return false
}

// Len returns the number of live keys, after reaping expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reapLocked(c.now())
	return len(c.entries)
}

// reapLocked drops expired entries from the front of the order list. Entries
// are refreshed on hit, so the front is always the stalest.
func (c *Cache) reapLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key := front.Value.(string)
		e := c.entries[key]
		if e == nil || now.Sub(e.at) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.entries, key)
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}
