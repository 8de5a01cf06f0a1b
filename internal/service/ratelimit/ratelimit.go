package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SigWatch/pkg/cache"
	"SigWatch/pkg/util"
)

// MemoryLimiter counts alerts per entity in fixed hourly windows.
// Windows are keyed by wall-clock hour, so counts reset at the top of
// each hour rather than sliding.
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	hour   string
}

// NewMemoryLimiter creates an in-process hourly limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: make(map[string]int)}
}

func (m *MemoryLimiter) roll(now time.Time) {
	h := util.HourKey(now)
	if h != m.hour {
		m.hour = h
		m.counts = make(map[string]int)
	}
}

// Count returns the number of alerts sent for entityID in the current hour.
func (m *MemoryLimiter) Count(_ context.Context, entityID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll(now)
	return m.counts[entityID], nil
}

// Increment records one sent alert for entityID.
func (m *MemoryLimiter) Increment(_ context.Context, entityID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roll(now)
	m.counts[entityID]++
	return nil
}

// CacheLimiter keeps hourly counters in a shared cache backend so
// multiple engine instances agree on the count. Keys carry the hour so
// expiry handles window rollover.
type CacheLimiter struct {
	cache cache.Service
}

// NewCacheLimiter creates a cache-backed hourly limiter.
func NewCacheLimiter(c cache.Service) *CacheLimiter {
	return &CacheLimiter{cache: c}
}

func limiterKey(entityID string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s", entityID, util.HourKey(now))
}

// Count returns the number of alerts sent for entityID in the current hour.
func (c *CacheLimiter) Count(ctx context.Context, entityID string, now time.Time) (int, error) {
	var n int
	err := c.cache.Get(ctx, limiterKey(entityID, now), &n)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Increment records one sent alert for entityID and refreshes the
// window expiry.
func (c *CacheLimiter) Increment(ctx context.Context, entityID string, now time.Time) error {
	key := limiterKey(entityID, now)
	if _, err := c.cache.Increment(ctx, key); err != nil {
		return err
	}
	// two hours comfortably outlives the window
	_, err := c.cache.Expire(ctx, key, 2*time.Hour)
	return err
}
