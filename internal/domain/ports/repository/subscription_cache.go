package repository

import "checkout-confirmation/internal/domain/model"

// SubscriptionPublisher exposes the latest reconciled subscription to the rest
// of the application. It is a read model, never the source of truth.
type SubscriptionPublisher interface {
	Publish(accountID string, sub model.Subscription)
	Current(accountID string) (model.Subscription, bool)
}
