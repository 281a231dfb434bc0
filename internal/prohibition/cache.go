package prohibition

import (
	"container/list"
	"crypto/sha1"
	"encoding/hex"
	"sync"
	"time"
)

// resultCache is a small LRU with per-entry TTL, keyed by the SHA1 of the
// page HTML plus the tenant key. The analyzer and the judge both consult the
// detector on the same HTML; without the cache every page is scanned twice.
type resultCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
	now     func() time.Time
}

type cacheEntry struct {
	key     string
	result  Result
	expires time.Time
}

func newResultCache(max int, ttl time.Duration) *resultCache {
	if max <= 0 {
		max = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &resultCache{
		max:     max,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

func cacheKey(html, tenantKey string) string {
	sum := sha1.Sum([]byte(html))
	return hex.EncodeToString(sum[:]) + "|" + tenantKey
}

func (c *resultCache) get(html, tenantKey string) (Result, bool) {
	key := cacheKey(html, tenantKey)
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return Result{}, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *resultCache) put(html, tenantKey string, r Result) {
	key := cacheKey(html, tenantKey)
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = r
		entry.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, result: r, expires: c.now().Add(c.ttl)})
	c.entries[key] = el
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}
