//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/usecase"
)

type verificationTestDeps struct {
	billing  *MockBilling
	notifier *MockNotifier
	dispatch *syncDispatcher
	clock    *fakeClock
}

func setupVerificationUC() (usecase.VerificationUseCase, *verificationTestDeps) {
	deps := &verificationTestDeps{
		billing:  &MockBilling{},
		notifier: &MockNotifier{},
		dispatch: &syncDispatcher{},
		clock:    newFakeClock(),
	}
	uc := usecase.NewVerificationUseCase(deps.billing, deps.notifier, deps.dispatch,
		usecase.DefaultRetryPolicy(), deps.clock, newTestLogger())
	return uc, deps
}

func TestVerificationUseCase_Verify(t *testing.T) {
	sub := testSubscription()

	t.Run("embedded subscription is returned", func(t *testing.T) {
		// --- Arrange ---
		uc, deps := setupVerificationUC()
		deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
			return adapter.VerifyResult{Success: true, Subscription: &sub}, nil
		}

		// --- Act ---
		out := uc.Verify(authedCtx(), validSessionID)

		// --- Assert ---
		if out.Kind != model.OutcomeVerified {
			t.Fatalf("expected verified, got %s (%s)", out.Kind, out.Message)
		}
		if out.Subscription == nil || !out.Subscription.Equal(sub) {
			t.Errorf("expected embedded subscription, got %+v", out.Subscription)
		}
		if out.Attempts != 1 || deps.billing.verifyCount() != 1 {
			t.Errorf("expected exactly one call, got attempts=%d calls=%d", out.Attempts, deps.billing.verifyCount())
		}
		if deps.notifier.sentCount() != 1 || deps.notifier.Sent[0] != testAccount().Email {
			t.Errorf("expected one activation email to %s, got %v", testAccount().Email, deps.notifier.Sent)
		}
	})

	t.Run("two transient failures exhaust the retry budget", func(t *testing.T) {
		// --- Arrange ---
		uc, deps := setupVerificationUC()
		deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
			return adapter.VerifyResult{}, &adapter.HTTPError{Status: http.StatusBadGateway, Message: "upstream"}
		}

		// --- Act ---
		out := uc.Verify(authedCtx(), validSessionID)

		// --- Assert ---
		if out.Kind != model.OutcomeTerminalFailure {
			t.Fatalf("expected terminal failure, got %s", out.Kind)
		}
		if deps.billing.verifyCount() != 2 {
			t.Errorf("expected 2 verify calls, got %d", deps.billing.verifyCount())
		}
		waits := deps.clock.waits()
		if len(waits) != 1 || waits[0] != 3*time.Second {
			t.Errorf("expected a single 3s wait between attempts, got %v", waits)
		}
		if out.Message == "" {
			t.Error("expected the last error text to be carried in the outcome")
		}
		if deps.notifier.sentCount() != 0 {
			t.Error("no email expected on failure")
		}
	})

	t.Run("transport error then success", func(t *testing.T) {
		// --- Arrange ---
		uc, deps := setupVerificationUC()
		calls := 0
		deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
			calls++
			if calls == 1 {
				return adapter.VerifyResult{}, errors.New("connection reset by peer")
			}
			return adapter.VerifyResult{Success: true}, nil
		}

		// --- Act ---
		out := uc.Verify(authedCtx(), validSessionID)

		// --- Assert ---
		if out.Kind != model.OutcomeVerified {
			t.Fatalf("expected verified after retry, got %s", out.Kind)
		}
		if out.Attempts != 2 {
			t.Errorf("expected 2 attempts, got %d", out.Attempts)
		}
		if out.Subscription != nil {
			t.Error("expected no embedded subscription")
		}
	})

	classified := []struct {
		name    string
		err     error
		want    model.OutcomeKind
		wantErr error
	}{
		{name: "forbidden is account mismatch", err: &adapter.HTTPError{Status: http.StatusForbidden}, want: model.OutcomeAccountMismatch, wantErr: domain.ErrAccountMismatch},
		{name: "mismatch code is account mismatch", err: &adapter.HTTPError{Status: http.StatusConflict, Code: "CUSTOMER_MISMATCH"}, want: model.OutcomeAccountMismatch, wantErr: domain.ErrAccountMismatch},
		{name: "bad request is invalid format", err: &adapter.HTTPError{Status: http.StatusBadRequest}, want: model.OutcomeInvalidFormat, wantErr: domain.ErrInvalidSessionID},
		{name: "not found is terminal", err: &adapter.HTTPError{Status: http.StatusNotFound}, want: model.OutcomeTerminalFailure, wantErr: domain.ErrTerminal},
		{name: "unauthorized is terminal", err: &adapter.HTTPError{Status: http.StatusUnauthorized}, want: model.OutcomeTerminalFailure, wantErr: domain.ErrTerminal},
	}
	for _, tc := range classified {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			uc, deps := setupVerificationUC()
			deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
				return adapter.VerifyResult{}, tc.err
			}

			// --- Act ---
			out := uc.Verify(authedCtx(), validSessionID)

			// --- Assert ---
			if out.Kind != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, out.Kind)
			}
			if !errors.Is(out.Err, tc.wantErr) || !errors.Is(out.Err, tc.err) {
				t.Errorf("expected %v wrapping %v, got %v", tc.wantErr, tc.err, out.Err)
			}
			if deps.billing.verifyCount() != 1 {
				t.Errorf("expected no retry, got %d calls", deps.billing.verifyCount())
			}
			if len(deps.clock.waits()) != 0 {
				t.Errorf("expected no waits, got %v", deps.clock.waits())
			}
		})
	}

	t.Run("unsuccessful response is terminal", func(t *testing.T) {
		uc, deps := setupVerificationUC()
		deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
			return adapter.VerifyResult{Success: false}, nil
		}

		out := uc.Verify(authedCtx(), validSessionID)

		if out.Kind != model.OutcomeTerminalFailure {
			t.Fatalf("expected terminal failure, got %s", out.Kind)
		}
		if !errors.Is(out.Err, domain.ErrTerminal) {
			t.Errorf("expected ErrTerminal, got %v", out.Err)
		}
		if deps.billing.verifyCount() != 1 {
			t.Errorf("expected 1 call, got %d", deps.billing.verifyCount())
		}
	})

	t.Run("unsuccessful response with mismatch code is account mismatch", func(t *testing.T) {
		uc, deps := setupVerificationUC()
		deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
			return adapter.VerifyResult{Success: false, Code: "account_mismatch", Message: "session bound to another customer"}, nil
		}

		out := uc.Verify(authedCtx(), validSessionID)

		if out.Kind != model.OutcomeAccountMismatch {
			t.Fatalf("expected account mismatch, got %s", out.Kind)
		}
		if !errors.Is(out.Err, domain.ErrAccountMismatch) {
			t.Errorf("expected ErrAccountMismatch, got %v", out.Err)
		}
		if deps.billing.verifyCount() != 1 || len(deps.clock.waits()) != 0 {
			t.Errorf("expected no retry, got %d calls", deps.billing.verifyCount())
		}
	})
}

func TestVerificationUseCase_HangingBackendIsTerminal(t *testing.T) {
	// --- Arrange ---
	billing := &MockBilling{
		VerifyFunc: func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
			<-ctx.Done()
			return adapter.VerifyResult{}, ctx.Err()
		},
	}
	clock := newFakeClock()
	policy := usecase.RetryPolicy{MaxRetries: 1, Delay: 3 * time.Second, AttemptTimeout: 20 * time.Millisecond}
	uc := usecase.NewVerificationUseCase(billing, nil, nil, policy, clock, newTestLogger())

	// --- Act ---
	out := uc.Verify(authedCtx(), validSessionID)

	// --- Assert ---
	if out.Kind != model.OutcomeTerminalFailure {
		t.Fatalf("expected terminal failure once both attempts timed out, got %s", out.Kind)
	}
	if !errors.Is(out.Err, domain.ErrTerminal) || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Errorf("expected ErrTerminal wrapping the attempt deadline, got %v", out.Err)
	}
	if billing.verifyCount() != 2 {
		t.Errorf("expected 2 attempts, got %d", billing.verifyCount())
	}
	if waits := clock.waits(); len(waits) != 1 || waits[0] != 3*time.Second {
		t.Errorf("expected a single 3s wait, got %v", waits)
	}
}

func TestRetryPolicy_Budget(t *testing.T) {
	if got := usecase.DefaultRetryPolicy().Budget(); got != 33*time.Second {
		t.Errorf("expected 15s+3s+15s, got %v", got)
	}
	p := usecase.RetryPolicy{MaxRetries: 2, Delay: time.Second, AttemptTimeout: 5 * time.Second}
	if got := p.Budget(); got != 17*time.Second {
		t.Errorf("expected 17s, got %v", got)
	}
}

func TestVerificationUseCase_TeardownDuringRetry(t *testing.T) {
	// --- Arrange ---
	billing := &MockBilling{
		VerifyFunc: func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
			return adapter.VerifyResult{}, &adapter.HTTPError{Status: http.StatusServiceUnavailable}
		},
	}
	clock := newStuckClock()
	uc := usecase.NewVerificationUseCase(billing, nil, nil, usecase.DefaultRetryPolicy(), clock, newTestLogger())
	ctx, cancel := context.WithCancel(authedCtx())

	// --- Act ---
	done := make(chan model.VerificationOutcome, 1)
	go func() { done <- uc.Verify(ctx, validSessionID) }()

	select {
	case d := <-clock.Waiting:
		if d != 3*time.Second {
			t.Errorf("expected 3s retry delay, got %v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("verification never started waiting for its retry")
	}
	cancel()

	// --- Assert ---
	select {
	case out := <-done:
		if out.Kind != model.OutcomeTransientFailure {
			t.Errorf("expected transient failure after teardown, got %s", out.Kind)
		}
		if !errors.Is(out.Err, domain.ErrTransient) {
			t.Errorf("expected ErrTransient, got %v", out.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("verification did not stop after teardown")
	}
	if billing.verifyCount() != 1 {
		t.Errorf("expected the owed retry to be abandoned, got %d calls", billing.verifyCount())
	}
}

func TestVerificationUseCase_ActivationEmail(t *testing.T) {
	t.Run("sent once per session", func(t *testing.T) {
		uc, deps := setupVerificationUC()

		first := uc.Verify(authedCtx(), validSessionID)
		second := uc.Verify(authedCtx(), validSessionID)

		if !first.IsVerified() || !second.IsVerified() {
			t.Fatalf("expected both verifications to succeed, got %s and %s", first.Kind, second.Kind)
		}
		if deps.notifier.sentCount() != 1 {
			t.Errorf("expected exactly one email, got %d", deps.notifier.sentCount())
		}
	})

	t.Run("delivery failure does not change the outcome", func(t *testing.T) {
		uc, deps := setupVerificationUC()
		deps.notifier.SendFunc = func(ctx context.Context, address string) error {
			return errors.New("smtp down")
		}

		out := uc.Verify(authedCtx(), validSessionID)

		if !out.IsVerified() {
			t.Fatalf("expected verified, got %s", out.Kind)
		}
	})

	t.Run("dispatch rejection does not change the outcome", func(t *testing.T) {
		uc, deps := setupVerificationUC()
		deps.dispatch.err = errors.New("queue full")

		out := uc.Verify(authedCtx(), validSessionID)

		if !out.IsVerified() {
			t.Fatalf("expected verified, got %s", out.Kind)
		}
		if deps.notifier.sentCount() != 0 {
			t.Errorf("expected no email when dispatch is rejected, got %d", deps.notifier.sentCount())
		}
	})

	t.Run("rejected dispatch is retried on the next verification", func(t *testing.T) {
		uc, deps := setupVerificationUC()
		deps.dispatch.err = errors.New("queue full")
		_ = uc.Verify(authedCtx(), validSessionID)
		deps.dispatch.err = nil

		out := uc.Verify(authedCtx(), validSessionID)

		if !out.IsVerified() {
			t.Fatalf("expected verified, got %s", out.Kind)
		}
		if deps.dispatch.submitted != 2 {
			t.Errorf("expected a second submission, got %d", deps.dispatch.submitted)
		}
		if deps.notifier.sentCount() != 1 {
			t.Errorf("expected exactly one email, got %d", deps.notifier.sentCount())
		}
	})

	t.Run("skipped without an account email", func(t *testing.T) {
		uc, deps := setupVerificationUC()
		ctx := model.ContextWithAccount(context.Background(), model.Account{ID: "acct-2"})

		out := uc.Verify(ctx, validSessionID)

		if !out.IsVerified() {
			t.Fatalf("expected verified, got %s", out.Kind)
		}
		if deps.dispatch.submitted != 0 {
			t.Errorf("expected nothing dispatched, got %d", deps.dispatch.submitted)
		}
	})
}

func TestVerificationUseCase_ConcurrentCallsShareOneRequest(t *testing.T) {
	// --- Arrange ---
	uc, deps := setupVerificationUC()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
		once.Do(func() { close(started) })
		<-release
		return adapter.VerifyResult{Success: true}, nil
	}

	// --- Act ---
	var wg sync.WaitGroup
	outs := make([]model.VerificationOutcome, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outs[0] = uc.Verify(authedCtx(), validSessionID)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		outs[1] = uc.Verify(authedCtx(), validSessionID)
	}()
	// Give the second caller time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// --- Assert ---
	if deps.billing.verifyCount() != 1 {
		t.Errorf("expected a single backend call, got %d", deps.billing.verifyCount())
	}
	for i, out := range outs {
		if !out.IsVerified() {
			t.Errorf("caller %d: expected verified, got %s", i, out.Kind)
		}
	}
}

func TestVerificationUseCase_JoinerSurvivesLeaderTeardown(t *testing.T) {
	// --- Arrange ---
	uc, deps := setupVerificationUC()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	deps.billing.VerifyFunc = func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return adapter.VerifyResult{Success: true}, nil
		case <-ctx.Done():
			return adapter.VerifyResult{}, ctx.Err()
		}
	}
	leaderCtx, cancelLeader := context.WithCancel(authedCtx())
	defer cancelLeader()

	// --- Act ---
	leader := make(chan model.VerificationOutcome, 1)
	go func() { leader <- uc.Verify(leaderCtx, validSessionID) }()
	<-started
	follower := make(chan model.VerificationOutcome, 1)
	go func() { follower <- uc.Verify(authedCtx(), validSessionID) }()
	// Give the follower time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	cancelLeader()

	// --- Assert ---
	select {
	case out := <-leader:
		if out.Kind != model.OutcomeTransientFailure || !errors.Is(out.Err, domain.ErrTransient) {
			t.Errorf("leader: expected transient failure, got %s (%v)", out.Kind, out.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leader did not return after its teardown")
	}
	close(release)
	select {
	case out := <-follower:
		if !out.IsVerified() {
			t.Errorf("follower: expected verified, got %s (%s)", out.Kind, out.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follower never got a verdict")
	}
	if deps.billing.verifyCount() != 1 {
		t.Errorf("expected a single backend call, got %d", deps.billing.verifyCount())
	}
}
