package runner

import (
	"context"
	"sync"
	"time"

	"formrunner/internal/queue"
)

// successCache memoizes the same-day success count so the cap check does
// not hit the queue on every claim. Invalidated whenever this process
// records a result.
type successCache struct {
	q           queue.Queue
	targetDate  string
	targetingID int64
	ttl         time.Duration

	mu        sync.Mutex
	count     int
	fetchedAt time.Time
}

func newSuccessCache(q queue.Queue, targetDate string, targetingID int64, ttl time.Duration) *successCache {
	return &successCache{q: q, targetDate: targetDate, targetingID: targetingID, ttl: ttl}
}

func (c *successCache) Get(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.count, nil
	}
	n, err := c.q.CountTodaySuccesses(ctx, c.targetDate, c.targetingID)
	if err != nil {
		return 0, err
	}
	c.count = n
	c.fetchedAt = time.Now()
	return n, nil
}

func (c *successCache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
