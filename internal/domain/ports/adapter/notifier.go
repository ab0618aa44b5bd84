package adapter

import "context"

// Notifier sends transactional messages. Callers treat every call as fire-and-forget.
type Notifier interface {
	SendSubscriptionActivatedEmail(ctx context.Context, address string) error
}
