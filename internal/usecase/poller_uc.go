package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/infra/logging"
)

// Compile-time check
var _ PollerUseCase = (*pollerUC)(nil)

const (
	MsgMissingIntent     = "Missing or invalid payment reference. Please start the checkout again."
	MsgUPIFailedFallback = "Your UPI payment failed. Please try again."
	MsgUPINetworkError   = "We could not confirm your payment status. If money was debited, please contact support."
	MsgUPITimeout        = "Your UPI payment is still pending. If money was debited, please contact support."
)

type PollerUseCase interface {
	// Poll queries the intent until it reaches a terminal status, the timeout
	// elapses or ctx is cancelled. Queries never overlap.
	Poll(ctx context.Context, intentID string) model.PollResult
	// Start runs Poll in the background and returns a cancellable handle.
	Start(ctx context.Context, intentID string) *PollTask
}

type PollerConfig struct {
	Interval      time.Duration // gap between the end of one query and the next
	Timeout       time.Duration // 0 disables the bound
	RedirectAfter time.Duration // delay the UI waits before leaving the success view
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:      3 * time.Second,
		Timeout:       10 * time.Minute,
		RedirectAfter: 3 * time.Second,
	}
}

type pollerUC struct {
	billing adapter.BillingAPI
	cfg     PollerConfig
	clock   Clock
	log     *zerolog.Logger
}

func NewPollerUseCase(billing adapter.BillingAPI, cfg PollerConfig, clock Clock, logger *zerolog.Logger) *pollerUC {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RedirectAfter <= 0 {
		cfg.RedirectAfter = def.RedirectAfter
	}
	if clock == nil {
		clock = RealClock()
	}
	pl := logger.With().Str("component", "UPIPoller").Logger()
	return &pollerUC{billing: billing, cfg: cfg, clock: clock, log: &pl}
}

func (uc *pollerUC) Poll(ctx context.Context, intentID string) model.PollResult {
	defer logging.TraceDuration(uc.log, "PollerUC.Poll")()
	intentID = strings.TrimSpace(intentID)
	res := model.PollResult{IntentID: intentID, Status: model.UPIStatusPending}
	if intentID == "" {
		res.Status = model.UPIStatusFailed
		res.Message = MsgMissingIntent
		res.Err = fmt.Errorf("%w: missing intent id", domain.ErrInvalidArgument)
		return res
	}

	started := uc.clock.Now()
	for {
		intent, err := uc.billing.UPIStatus(ctx, intentID)
		res.Queries++

		// A response that lands after teardown must not move the state machine.
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Status = model.UPIStatusPending
			res.Err = ctxErr
			return res
		}
		if err != nil {
			uc.log.Error().Err(err).Str("intent_id", logging.RedactID(intentID)).Int("queries", res.Queries).Msg("upi status query failed")
			res.Status = model.UPIStatusFailed
			res.Message = MsgUPINetworkError
			res.Err = fmt.Errorf("%w: %w", domain.ErrTerminal, err)
			return res
		}

		next := intent.Status
		if !next.IsTerminal() && next != model.UPIStatusPending {
			uc.log.Warn().Str("intent_id", logging.RedactID(intentID)).Str("status", string(next)).Msg("unknown upi status; treating as pending")
			next = model.UPIStatusPending
		}
		if !res.Status.CanTransition(next) {
			next = res.Status
		}
		res.Status = next

		switch res.Status {
		case model.UPIStatusSucceeded:
			res.Message = intent.Message
			res.RedirectAfter = uc.cfg.RedirectAfter
			return res
		case model.UPIStatusFailed:
			res.Message = strings.TrimSpace(intent.Message)
			if res.Message == "" {
				res.Message = MsgUPIFailedFallback
			}
			res.Err = domain.ErrPollingFailed
			return res
		}

		if uc.cfg.Timeout > 0 && uc.clock.Now().Sub(started)+uc.cfg.Interval > uc.cfg.Timeout {
			uc.log.Warn().Str("intent_id", logging.RedactID(intentID)).Dur("timeout", uc.cfg.Timeout).Msg("upi intent still pending; giving up")
			res.Status = model.UPIStatusFailed
			res.Message = MsgUPITimeout
			res.Err = domain.ErrPollTimeout
			return res
		}
		if err := sleep(ctx, uc.clock, uc.cfg.Interval); err != nil {
			res.Err = err
			return res
		}
	}
}

// PollTask is a cancellable background poll. Cancel is safe to call any number
// of times, including after completion.
type PollTask struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result model.PollResult
}

func (uc *pollerUC) Start(ctx context.Context, intentID string) *PollTask {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &PollTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		r := uc.Poll(taskCtx, intentID)
		t.mu.Lock()
		t.result = r
		t.mu.Unlock()
	}()
	return t
}

func (t *PollTask) Cancel() { t.cancel() }

// Done is closed when the poll loop has exited.
func (t *PollTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the poll loop exits and returns its result.
func (t *PollTask) Wait() model.PollResult {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}
