// Package flags serves database-backed feature flags through a short-TTL
// read-through cache so changes propagate without restarts.
package flags

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/XavierBriggs/pythia/internal/store"
)

// cacheTTL bounds how stale a flag read can be
const cacheTTL = 10 * time.Second

type cachedFlag struct {
	enabled   bool
	fetchedAt time.Time
}

// Service reads flags with caching and writes through the flag store
type Service struct {
	flagStore *store.FlagStore

	mu    sync.Mutex
	cache map[string]cachedFlag
}

// NewService creates the flag service
func NewService(flagStore *store.FlagStore) *Service {
	return &Service{
		flagStore: flagStore,
		cache:     make(map[string]cachedFlag),
	}
}

// Enabled reads one flag. Database errors fall back to the last cached
// value, defaulting to off.
func (s *Service) Enabled(ctx context.Context, name string) bool {
	s.mu.Lock()
	cached, ok := s.cache[name]
	s.mu.Unlock()

	if ok && time.Since(cached.fetchedAt) < cacheTTL {
		return cached.enabled
	}

	enabled, err := s.flagStore.Get(ctx, name)
	if err != nil {
		log.Printf("[Flags] read %s: %v", name, err)
		return cached.enabled
	}

	s.mu.Lock()
	s.cache[name] = cachedFlag{enabled: enabled, fetchedAt: time.Now()}
	s.mu.Unlock()

	return enabled
}

// Set writes one flag and refreshes the cache immediately
func (s *Service) Set(ctx context.Context, caller store.Caller, name string, enabled bool) error {
	if err := s.flagStore.Set(ctx, caller, name, enabled); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[name] = cachedFlag{enabled: enabled, fetchedAt: time.Now()}
	s.mu.Unlock()
	return nil
}
