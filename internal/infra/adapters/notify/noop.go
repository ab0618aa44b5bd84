package notify

import (
	"context"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier only logs; used when no mail provider is configured.
type NoopNotifier struct{ log *zerolog.Logger }

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) SendSubscriptionActivatedEmail(ctx context.Context, address string) error {
	n.log.Debug().Msg("activation email skipped: no mail provider configured")
	return nil
}
