package ratelimit

import (
	"context"
	"testing"
	"time"

	"SigWatch/pkg/cache"
)

func TestMemoryLimiterWindowRollover(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := l.Increment(ctx, "ent-1", now); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	n, err := l.Count(ctx, "ent-1", now)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	// independent entity
	n, _ = l.Count(ctx, "ent-2", now)
	if n != 0 {
		t.Fatalf("ent-2 count = %d, want 0", n)
	}

	// next hour resets
	later := now.Add(time.Hour)
	n, _ = l.Count(ctx, "ent-1", later)
	if n != 0 {
		t.Fatalf("count after rollover = %d, want 0", n)
	}
}

func TestCacheLimiter(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()

	l := NewCacheLimiter(mc)
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	n, err := l.Count(ctx, "ent-1", now)
	if err != nil {
		t.Fatalf("count on empty: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}

	if err := l.Increment(ctx, "ent-1", now); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := l.Increment(ctx, "ent-1", now); err != nil {
		t.Fatalf("increment: %v", err)
	}

	n, err = l.Count(ctx, "ent-1", now)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	// different hour uses a different key
	n, _ = l.Count(ctx, "ent-1", now.Add(time.Hour))
	if n != 0 {
		t.Fatalf("next-hour count = %d, want 0", n)
	}
}
