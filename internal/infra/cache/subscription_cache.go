package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/repository"
	"checkout-confirmation/internal/infra/metrics"
)

// Compile-time check
var _ repository.SubscriptionPublisher = (*SubscriptionCache)(nil)

const cacheName = "subscription"

// Listener is notified after a subscription has been published.
type Listener func(accountID string, sub model.Subscription)

// SubscriptionCache is the process-wide read model of reconciled subscriptions.
type SubscriptionCache struct {
	items *gocache.Cache
	log   *zerolog.Logger

	mu        sync.RWMutex
	listeners []Listener
}

func NewSubscriptionCache(ttl time.Duration, logger *zerolog.Logger) *SubscriptionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cl := logger.With().Str("component", "SubscriptionCache").Logger()
	return &SubscriptionCache{items: gocache.New(ttl, 2*ttl), log: &cl}
}

// OnPublish registers l for every future Publish.
func (c *SubscriptionCache) OnPublish(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *SubscriptionCache) Publish(accountID string, sub model.Subscription) {
	if prev, ok := c.items.Get(accountID); ok && prev.(model.Subscription).Equal(sub) {
		// Refresh the TTL; listeners only care about changes.
		c.items.SetDefault(accountID, sub)
		return
	}
	c.items.SetDefault(accountID, sub)
	c.log.Debug().Str("account_id", accountID).Str("status", string(sub.Status)).Msg("subscription published")

	c.mu.RLock()
	ls := append([]Listener(nil), c.listeners...)
	c.mu.RUnlock()
	for _, l := range ls {
		l(accountID, sub)
	}
}

func (c *SubscriptionCache) Current(accountID string) (model.Subscription, bool) {
	v, ok := c.items.Get(accountID)
	if !ok {
		metrics.IncCacheRequest(cacheName, "miss")
		return model.Subscription{}, false
	}
	metrics.IncCacheRequest(cacheName, "hit")
	return v.(model.Subscription), true
}
