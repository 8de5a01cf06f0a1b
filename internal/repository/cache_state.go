package repository

import (
	"context"
	"errors"
	"fmt"

	"SigWatch/internal/domain/models"
	"SigWatch/pkg/cache"
)

// CacheSignalStore implements SignalStateStore on top of a cache backend.
// With the redis backend the last known signal survives engine restarts;
// the memory backend serves development and tests. Absent keys read as
// WAIT so a first-ever change always registers.
type CacheSignalStore struct {
	cache  cache.Service
	closer func() error
}

// NewCacheSignalStore creates a cache-backed signal state store. closer
// may be nil when the cache's lifecycle is owned elsewhere.
func NewCacheSignalStore(c cache.Service, closer func() error) *CacheSignalStore {
	return &CacheSignalStore{cache: c, closer: closer}
}

func stateKey(entityID string) string {
	return "signal_state:" + entityID
}

// Get returns the last known signal for an entity.
func (s *CacheSignalStore) Get(ctx context.Context, entityID string) (models.Signal, error) {
	var raw string
	err := s.cache.Get(ctx, stateKey(entityID), &raw)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.SignalWait, nil
		}
		return models.SignalWait, fmt.Errorf("state get: %w", err)
	}
	sig, err := models.ParseSignal(raw)
	if err != nil {
		// a corrupted record reads as WAIT rather than poisoning runs
		return models.SignalWait, nil
	}
	return sig, nil
}

// Set overwrites the last known signal. Idempotent, no expiry.
func (s *CacheSignalStore) Set(ctx context.Context, entityID string, sig models.Signal) error {
	if err := s.cache.Set(ctx, stateKey(entityID), sig.String(), 0); err != nil {
		return fmt.Errorf("state set: %w", err)
	}
	return nil
}

// Close releases the underlying cache if this store owns it.
func (s *CacheSignalStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
