//go:build !integration

package cache_test

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/infra/cache"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestSubscriptionCache_PublishAndCurrent(t *testing.T) {
	// --- Arrange ---
	c := cache.NewSubscriptionCache(time.Minute, newTestLogger())
	sub := model.Subscription{Plan: "pro", Status: model.SubscriptionStatusActive, CurrentPeriodEnd: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	notified := 0
	c.OnPublish(func(accountID string, s model.Subscription) { notified++ })

	// --- Act ---
	_, before := c.Current("acct-1")
	c.Publish("acct-1", sub)
	c.Publish("acct-1", sub)
	got, after := c.Current("acct-1")

	// --- Assert ---
	if before {
		t.Error("expected miss before publish")
	}
	if !after || !got.Equal(sub) {
		t.Errorf("expected published subscription, got %+v %v", got, after)
	}
	if notified != 1 {
		t.Errorf("expected listeners to fire once for an unchanged snapshot, got %d", notified)
	}

	changed := sub
	changed.Status = model.SubscriptionStatusCanceledPendingPeriodEnd
	changed.CancelAtPeriodEnd = true
	c.Publish("acct-1", changed)
	if notified != 2 {
		t.Errorf("expected listeners to fire on change, got %d", notified)
	}
}
