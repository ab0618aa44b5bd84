package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/infra/logging"
)

// Compile-time check
var _ ConfirmationUseCase = (*confirmationUC)(nil)

const (
	MsgMissingSessionID = "We could not find your checkout reference. Please choose a plan again."
	MsgInvalidSessionID = "This checkout link is not valid. Please choose a plan again."
	MsgVerified         = "Payment confirmed. Your subscription is active."
	MsgVerifiedNoDetail = "Payment confirmed. Your subscription details will appear shortly."
	MsgVerifyFailed     = "We could not confirm your payment. Please contact support so we can finish activating your subscription."
	MsgUPISucceeded     = "UPI payment received. Your subscription is active."
)

// ConfirmationUseCase is the entry point the UI talks to on both rails.
type ConfirmationUseCase interface {
	// VerifyAndReconcile runs the card-rail confirmation for a raw session id as
	// received from the redirect. raw is nil when the parameter was absent.
	VerifyAndReconcile(ctx context.Context, clientKey string, raw *string) model.ConfirmationView
	// PollUPIIntent waits for the UPI intent to reach a terminal status.
	PollUPIIntent(ctx context.Context, clientKey, intentID string) model.ConfirmationView
	// StartCheckout creates a checkout on the requested rail through the backend.
	StartCheckout(ctx context.Context, req model.CheckoutRequest) (model.CheckoutStart, error)
}

type ConfirmationConfig struct {
	SupportEmail string
	PlansPath    string
	SuccessPath  string
}

type confirmationUC struct {
	verifier   VerificationUseCase
	poller     PollerUseCase
	guard      GuardUseCase
	reconciler ReconcileUseCase
	billing    adapter.BillingAPI
	cfg        ConfirmationConfig
	log        *zerolog.Logger
}

func NewConfirmationUseCase(
	verifier VerificationUseCase,
	poller PollerUseCase,
	guard GuardUseCase,
	reconciler ReconcileUseCase,
	billing adapter.BillingAPI,
	cfg ConfirmationConfig,
	logger *zerolog.Logger,
) *confirmationUC {
	if cfg.PlansPath == "" {
		cfg.PlansPath = "/plans"
	}
	if cfg.SuccessPath == "" {
		cfg.SuccessPath = "/dashboard"
	}
	return &confirmationUC{
		verifier:   verifier,
		poller:     poller,
		guard:      guard,
		reconciler: reconciler,
		billing:    billing,
		cfg:        cfg,
		log:        logger,
	}
}

func (uc *confirmationUC) VerifyAndReconcile(ctx context.Context, clientKey string, raw *string) model.ConfirmationView {
	defer logging.TraceDuration(uc.log, "ConfirmationUC.VerifyAndReconcile")()
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return uc.failureView(model.PaymentMethodCard, model.ViewRecoverableError, model.ActionReturnToPlans,
			MsgMissingSessionID, "", "missing session id")
	}

	sessionID, err := ParseSessionID(*raw)
	if err != nil {
		uc.log.Info().Err(err).Msg("rejected checkout session id before verification")
		return uc.failureView(model.PaymentMethodCard, model.ViewRecoverableError, model.ActionReturnToPlans,
			MsgInvalidSessionID, "", err.Error())
	}

	out := uc.verifier.Verify(ctx, sessionID)
	switch out.Kind {
	case model.OutcomeVerified:
		v := model.ConfirmationView{State: model.ViewSuccess, Rail: model.PaymentMethodCard, Message: MsgVerified}
		sub, err := uc.reconciler.Reconcile(ctx, out.Subscription)
		if err != nil {
			uc.log.Error().Err(err).Str("session_id", logging.RedactID(sessionID.String())).Msg("reconcile after verified checkout failed")
			v.Message = MsgVerifiedNoDetail
		} else {
			v.Subscription = &sub
		}
		v.RedirectURL = uc.cfg.SuccessPath
		v.Support = uc.support(sessionID.String(), "")
		return v

	case model.OutcomeAccountMismatch:
		loginURL, err := uc.guard.OnMismatch(ctx, clientKey, sessionID)
		if err != nil {
			uc.log.Error().Err(err).Str("session_id", logging.RedactID(sessionID.String())).Msg("account mismatch handoff failed")
			return uc.failureView(model.PaymentMethodCard, model.ViewFatalError, model.ActionReturnToPlans,
				MsgVerifyFailed, sessionID.String(), err.Error())
		}
		v := uc.failureView(model.PaymentMethodCard, model.ViewRecoverableError, model.ActionRetryLogin,
			MismatchReason, sessionID.String(), out.Message)
		v.RedirectURL = loginURL
		return v

	case model.OutcomeInvalidFormat:
		return uc.failureView(model.PaymentMethodCard, model.ViewRecoverableError, model.ActionReturnToPlans,
			MsgInvalidSessionID, sessionID.String(), out.Message)

	case model.OutcomeTransientFailure:
		// Torn down before the retry budget resolved; nobody is waiting for a verdict.
		return model.ConfirmationView{State: model.ViewLoading, Rail: model.PaymentMethodCard, Support: uc.support(sessionID.String(), out.Message)}

	default:
		uc.log.Error().
			Str("session_id", logging.RedactID(sessionID.String())).
			Int("attempts", out.Attempts).
			Err(out.Err).
			Msg("checkout verification failed")
		return uc.failureView(model.PaymentMethodCard, model.ViewFatalError, model.ActionReturnToPlans,
			MsgVerifyFailed, sessionID.String(), out.Message)
	}
}

func (uc *confirmationUC) PollUPIIntent(ctx context.Context, clientKey, intentID string) model.ConfirmationView {
	defer logging.TraceDuration(uc.log, "ConfirmationUC.PollUPIIntent")()
	res := uc.poller.Poll(ctx, intentID)

	if res.Err != nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
		return model.ConfirmationView{State: model.ViewLoading, Rail: model.PaymentMethodUPI, Support: uc.support(intentID, "")}
	}

	switch res.Status {
	case model.UPIStatusSucceeded:
		v := model.ConfirmationView{
			State:          model.ViewSuccess,
			Rail:           model.PaymentMethodUPI,
			Message:        MsgUPISucceeded,
			RedirectURL:    uc.cfg.SuccessPath,
			RedirectAfterS: int(res.RedirectAfter.Seconds()),
			Support:        uc.support(intentID, ""),
		}
		sub, err := uc.reconciler.Reconcile(ctx, nil)
		if err != nil {
			uc.log.Error().Err(err).Str("intent_id", logging.RedactID(intentID)).Msg("reconcile after upi success failed")
			v.Message = MsgVerifiedNoDetail
		} else {
			v.Subscription = &sub
		}
		return v

	case model.UPIStatusFailed:
		state := model.ViewRecoverableError
		if errors.Is(res.Err, domain.ErrTerminal) || errors.Is(res.Err, domain.ErrPollTimeout) {
			state = model.ViewFatalError
		}
		detail := res.Message
		if res.Err != nil {
			detail = res.Err.Error()
		}
		return uc.failureView(model.PaymentMethodUPI, state, model.ActionRestartCheckout, res.Message, intentID, detail)

	default:
		return model.ConfirmationView{State: model.ViewLoading, Rail: model.PaymentMethodUPI, Support: uc.support(intentID, "")}
	}
}

func (uc *confirmationUC) StartCheckout(ctx context.Context, req model.CheckoutRequest) (model.CheckoutStart, error) {
	defer logging.TraceDuration(uc.log, "ConfirmationUC.StartCheckout")()
	if _, ok := model.AccountFromContext(ctx); !ok {
		return model.CheckoutStart{}, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(req.PlanID) == "" {
		return model.CheckoutStart{}, fmt.Errorf("%w: plan_id is required", domain.ErrInvalidArgument)
	}
	cycle, err := model.ParseBillingCycle(string(req.BillingCycle))
	if err != nil {
		return model.CheckoutStart{}, err
	}
	method, err := model.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return model.CheckoutStart{}, err
	}
	req.BillingCycle, req.PaymentMethod = cycle, method

	switch method {
	case model.PaymentMethodUPI:
		start, err := uc.billing.CreateUPIPayment(ctx, req)
		if err != nil {
			return model.CheckoutStart{}, fmt.Errorf("create upi payment: %w", err)
		}
		start.PaymentMethod = model.PaymentMethodUPI
		return start, nil
	default:
		redirect, err := uc.billing.CreateCheckoutSession(ctx, req)
		if err != nil {
			return model.CheckoutStart{}, fmt.Errorf("create checkout session: %w", err)
		}
		return model.CheckoutStart{PaymentMethod: model.PaymentMethodCard, RedirectURL: redirect}, nil
	}
}

func (uc *confirmationUC) failureView(rail model.PaymentMethod, state model.ViewState, action model.RecoveryAction, msg, ref, detail string) model.ConfirmationView {
	v := model.ConfirmationView{
		State:   state,
		Rail:    rail,
		Message: msg,
		Action:  action,
		Support: uc.support(ref, detail),
	}
	if action == model.ActionReturnToPlans || action == model.ActionRestartCheckout {
		v.RedirectURL = uc.cfg.PlansPath
	}
	return v
}

// support pre-fills a contact form with everything needed to resolve the flow by hand.
func (uc *confirmationUC) support(paymentRef, detail string) model.SupportContact {
	ref := ulid.Make().String()
	var body strings.Builder
	fmt.Fprintf(&body, "Reference: %s\n", ref)
	if paymentRef != "" {
		fmt.Fprintf(&body, "Payment reference: %s\n", paymentRef)
	}
	if detail != "" {
		fmt.Fprintf(&body, "Error: %s\n", detail)
	}
	return model.SupportContact{
		Email:     uc.cfg.SupportEmail,
		Subject:   "Subscription payment confirmation " + ref,
		Body:      body.String(),
		Reference: ref,
	}
}
