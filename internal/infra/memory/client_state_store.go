package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ClientStateStore = (*ClientStateStore)(nil)

// ClientStateStore is the single-instance ClientStateStore. Expired entries are
// evicted by go-cache's janitor.
type ClientStateStore struct {
	mu    sync.Mutex
	items *cache.Cache
}

func NewClientStateStore(cleanupInterval time.Duration) *ClientStateStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &ClientStateStore{items: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *ClientStateStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", domain.ErrNotFound
	}
	return v.(string), nil
}

func (s *ClientStateStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Set(key, value, ttl)
	return nil
}

func (s *ClientStateStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Delete(key)
	return nil
}

func (s *ClientStateStore) TakeAndClear(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items.Get(key)
	if !ok {
		return "", domain.ErrNotFound
	}
	s.items.Delete(key)
	return v.(string), nil
}
