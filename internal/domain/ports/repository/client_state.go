package repository

import (
	"context"
	"time"
)

// ClientStateStore is a small key-value port for per-client state that has to
// survive a logout/login cycle (pending checkout handoff, resume-after-login target).
//
// Get and TakeAndClear return domain.ErrNotFound when the key is absent.
// TakeAndClear MUST be a single atomic read-and-delete: two concurrent callers can
// never both observe the same value.
type ClientStateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	TakeAndClear(ctx context.Context, key string) (string, error)
}
