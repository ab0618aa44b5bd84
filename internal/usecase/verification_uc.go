package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/infra/logging"
)

// Compile-time check
var _ VerificationUseCase = (*verificationUC)(nil)

type VerificationUseCase interface {
	// Verify confirms that sessionID is paid and bound to the account in ctx.
	// It never returns an error: every failure is expressed as an outcome kind.
	Verify(ctx context.Context, sessionID model.SessionID) model.VerificationOutcome
}

// Dispatcher runs fire-and-forget work outside the request path.
type Dispatcher interface {
	Submit(task func(ctx context.Context) error) error
}

// activationEmailTTL bounds how long a sent activation email is remembered.
const activationEmailTTL = 24 * time.Hour

type verificationUC struct {
	billing  adapter.BillingAPI
	notifier adapter.Notifier
	dispatch Dispatcher
	policy   RetryPolicy
	clock    Clock
	log      *zerolog.Logger

	inflight singleflight.Group
	mu       sync.Mutex
	flights  map[string]*flight
	emailed  *cache.Cache
}

// flight is the detached context a shared verification runs under. It is
// cancelled once no caller is waiting on it.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewVerificationUseCase(
	billing adapter.BillingAPI,
	notifier adapter.Notifier,
	dispatch Dispatcher,
	policy RetryPolicy,
	clock Clock,
	logger *zerolog.Logger,
) *verificationUC {
	if clock == nil {
		clock = RealClock()
	}
	ul := logger.With().Str("component", "VerificationUC").Logger()
	return &verificationUC{
		billing:  billing,
		notifier: notifier,
		dispatch: dispatch,
		policy:   policy,
		clock:    clock,
		log:      &ul,
		flights:  make(map[string]*flight),
		emailed:  cache.New(activationEmailTTL, time.Hour),
	}
}

// Verify joins an in-flight verification of the same session for the same
// account instead of issuing a parallel call. The shared call is detached from
// any single caller and bounded by the retry budget; each caller stops waiting
// when its own ctx ends, and the call is abandoned when the last one does.
func (uc *verificationUC) Verify(ctx context.Context, sessionID model.SessionID) model.VerificationOutcome {
	defer logging.TraceDuration(uc.log, "VerificationUC.Verify")()
	acct, _ := model.AccountFromContext(ctx)
	key := acct.ID + "|" + sessionID.String()

	f := uc.join(ctx, key)
	defer uc.leave(key, f)

	ch := uc.inflight.DoChan(key, func() (interface{}, error) {
		return uc.verify(f.ctx, sessionID), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			uc.log.Debug().Str("session_id", logging.RedactID(sessionID.String())).Msg("joined in-flight verification")
		}
		return res.Val.(model.VerificationOutcome)
	case <-ctx.Done():
		return failed(model.VerificationOutcome{SessionID: sessionID.String()},
			model.OutcomeTransientFailure, domain.ErrTransient, ctx.Err())
	}
}

func (uc *verificationUC) join(ctx context.Context, key string) *flight {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	f, ok := uc.flights[key]
	if !ok {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.policy.Budget())
		f = &flight{ctx: fctx, cancel: cancel}
		uc.flights[key] = f
	}
	f.waiters++
	return f
}

func (uc *verificationUC) leave(key string, f *flight) {
	uc.mu.Lock()
	f.waiters--
	last := f.waiters == 0
	if last && uc.flights[key] == f {
		delete(uc.flights, key)
	}
	uc.mu.Unlock()
	if last {
		f.cancel()
	}
}

func (uc *verificationUC) verify(ctx context.Context, sessionID model.SessionID) model.VerificationOutcome {
	backoff := uc.policy.Backoff()
	out := model.VerificationOutcome{SessionID: sessionID.String()}
	logID := logging.RedactID(sessionID.String())

	for {
		out.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, uc.policy.attemptTimeout())
		res, err := uc.billing.VerifyCheckoutSession(attemptCtx, sessionID)
		cancel()

		if err == nil {
			if res.Success {
				out.Kind = model.OutcomeVerified
				out.Subscription = res.Subscription
				uc.sendActivationEmail(ctx, sessionID)
				return out
			}
			reason := errors.New("payment could not be confirmed for this session")
			if res.Message != "" {
				reason = fmt.Errorf("%w: %s", reason, res.Message)
			}
			if isMismatchCode(res.Code) {
				return failed(out, model.OutcomeAccountMismatch, domain.ErrAccountMismatch, reason)
			}
			return failed(out, model.OutcomeTerminalFailure, domain.ErrTerminal, reason)
		}

		switch kind := classifyVerifyError(err); kind {
		case model.OutcomeAccountMismatch:
			return failed(out, kind, domain.ErrAccountMismatch, err)
		case model.OutcomeInvalidFormat:
			return failed(out, kind, domain.ErrInvalidSessionID, err)
		case model.OutcomeTerminalFailure:
			return failed(out, kind, domain.ErrTerminal, err)
		}

		// A spent retry budget is terminal even when ctx ended during the last attempt.
		next, stop := backoff.Next()
		if stop {
			return failed(out, model.OutcomeTerminalFailure, domain.ErrTerminal, err)
		}
		if ctx.Err() != nil {
			return failed(out, model.OutcomeTransientFailure, domain.ErrTransient, err)
		}
		uc.log.Warn().Err(err).
			Str("session_id", logID).
			Int("attempt", out.Attempts).
			Dur("retry_in", next).
			Msg("verify checkout session failed; retrying")
		if serr := sleep(ctx, uc.clock, next); serr != nil {
			// Torn down while the retry was still owed.
			return failed(out, model.OutcomeTransientFailure, domain.ErrTransient, err)
		}
	}
}

// failed stamps a failure kind on out. Err wraps both the domain sentinel and
// the underlying cause.
func failed(out model.VerificationOutcome, kind model.OutcomeKind, sentinel, cause error) model.VerificationOutcome {
	out.Kind = kind
	out.Err = fmt.Errorf("%w: %w", sentinel, cause)
	out.Message = out.Err.Error()
	return out
}

func isMismatchCode(code string) bool {
	code = strings.ToLower(code)
	return strings.Contains(code, "account_mismatch") || strings.Contains(code, "customer_mismatch")
}

// classifyVerifyError maps a verify failure onto an outcome kind.
// OutcomeTransientFailure is the only retryable class.
func classifyVerifyError(err error) model.OutcomeKind {
	status := adapter.StatusOf(err)
	switch {
	case status == 0:
		// transport error or attempt timeout
		return model.OutcomeTransientFailure
	case status == http.StatusForbidden, isMismatchCode(adapter.CodeOf(err)):
		return model.OutcomeAccountMismatch
	case status == http.StatusBadRequest:
		return model.OutcomeInvalidFormat
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return model.OutcomeTransientFailure
	case status >= 500:
		return model.OutcomeTransientFailure
	default:
		// 401, 404 and the rest of 4xx will not change on retry.
		return model.OutcomeTerminalFailure
	}
}

// sendActivationEmail is best-effort: dispatch or delivery failures are logged and
// never change the verification outcome. Each session is mailed at most once.
func (uc *verificationUC) sendActivationEmail(ctx context.Context, sessionID model.SessionID) {
	if uc.notifier == nil {
		return
	}
	logID := logging.RedactID(sessionID.String())
	acct, ok := model.AccountFromContext(ctx)
	if !ok || acct.Email == "" {
		uc.log.Debug().Str("session_id", logID).Msg("no email on account; skipping activation email")
		return
	}
	key := sessionID.String()
	if err := uc.emailed.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}

	address := acct.Email
	task := func(taskCtx context.Context) error {
		if err := uc.notifier.SendSubscriptionActivatedEmail(taskCtx, address); err != nil {
			uc.log.Warn().Err(err).Str("session_id", logID).Msg("activation email failed")
			return err
		}
		return nil
	}
	if uc.dispatch == nil {
		_ = task(context.WithoutCancel(ctx))
		return
	}
	if err := uc.dispatch.Submit(task); err != nil {
		// Not queued, so the next verification may try again.
		uc.emailed.Delete(key)
		uc.log.Warn().Err(err).Str("session_id", logID).Msg("activation email not dispatched")
	}
}
