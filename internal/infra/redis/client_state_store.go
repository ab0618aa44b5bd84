package redis

import (
	"context"
	"time"

	"checkout-confirmation/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.ClientStateStore = (*ClientStateStore)(nil)

// ClientStateStore keeps per-client handoff state in Redis under a common prefix.
// Values expire on their own, so an abandoned handoff never needs a sweeper.
type ClientStateStore struct {
	client RedisClient
	prefix string
}

func NewClientStateStore(client RedisClient, prefix string) *ClientStateStore {
	return &ClientStateStore{client: client, prefix: prefix}
}

func (s *ClientStateStore) key(k string) string { return s.prefix + k }

func (s *ClientStateStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, s.key(key))
}

func (s *ClientStateStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl)
}

func (s *ClientStateStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key))
}

func (s *ClientStateStore) TakeAndClear(ctx context.Context, key string) (string, error) {
	return s.client.GetDel(ctx, s.key(key))
}
