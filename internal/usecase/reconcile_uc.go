package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/domain/ports/repository"
	"checkout-confirmation/internal/infra/logging"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// Reconcile publishes the authoritative subscription for the account in ctx.
	// A non-nil embedded snapshot from the verification response is trusted and
	// saves the round trip; otherwise the account service is queried.
	Reconcile(ctx context.Context, embedded *model.Subscription) (model.Subscription, error)
	// Current returns the last published subscription for the account in ctx.
	Current(ctx context.Context) (model.Subscription, bool)
}

type reconcileUC struct {
	billing   adapter.BillingAPI
	account   adapter.AccountService
	publisher repository.SubscriptionPublisher
	log       *zerolog.Logger
}

func NewReconcileUseCase(billing adapter.BillingAPI, account adapter.AccountService, publisher repository.SubscriptionPublisher, logger *zerolog.Logger) *reconcileUC {
	return &reconcileUC{billing: billing, account: account, publisher: publisher, log: logger}
}

func (uc *reconcileUC) Reconcile(ctx context.Context, embedded *model.Subscription) (model.Subscription, error) {
	defer logging.TraceDuration(uc.log, "ReconcileUC.Reconcile")()
	acct, ok := model.AccountFromContext(ctx)
	if !ok {
		return model.Subscription{}, domain.ErrUnauthenticated
	}

	var sub model.Subscription
	if embedded != nil {
		sub = *embedded
	} else {
		fetched, err := uc.billing.SubscriptionDetails(ctx)
		if err != nil {
			return model.Subscription{}, fmt.Errorf("fetch subscription details: %w", err)
		}
		sub = fetched
	}

	uc.publisher.Publish(acct.ID, sub)

	if uc.account != nil {
		if err := uc.account.RefreshUser(ctx); err != nil {
			uc.log.Warn().Err(err).Str("account_id", acct.ID).Msg("refresh user after reconcile failed")
		}
	}
	uc.log.Info().
		Str("account_id", acct.ID).
		Str("plan", sub.Plan).
		Str("status", string(sub.Status)).
		Bool("embedded", embedded != nil).
		Msg("subscription reconciled")
	return sub, nil
}

func (uc *reconcileUC) Current(ctx context.Context) (model.Subscription, bool) {
	acct, ok := model.AccountFromContext(ctx)
	if !ok {
		return model.Subscription{}, false
	}
	return uc.publisher.Current(acct.ID)
}
