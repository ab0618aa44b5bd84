//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/model"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/domain/ports/repository"
)

// =============================
// Adapters
// =============================

// ---- Mock BillingAPI ----

type MockBilling struct {
	mu sync.Mutex

	VerifyCalls   []model.SessionID
	StatusCalls   []time.Time
	DetailsCalls  int
	CheckoutCalls []model.CheckoutRequest

	clock nower

	CreateCheckoutSessionFunc func(ctx context.Context, req model.CheckoutRequest) (string, error)
	CreateUPIPaymentFunc      func(ctx context.Context, req model.CheckoutRequest) (model.CheckoutStart, error)
	VerifyFunc                func(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error)
	UPIStatusFunc             func(ctx context.Context, intentID string) (model.UPIIntent, error)
	SubscriptionDetailsFunc   func(ctx context.Context) (model.Subscription, error)
}

// nower timestamps status queries.
type nower interface{ Now() time.Time }

var _ adapter.BillingAPI = (*MockBilling)(nil)

func (m *MockBilling) CreateCheckoutSession(ctx context.Context, req model.CheckoutRequest) (string, error) {
	m.mu.Lock()
	m.CheckoutCalls = append(m.CheckoutCalls, req)
	m.mu.Unlock()
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, req)
	}
	return "https://checkout.example.com/pay/cs_test_1", nil
}

func (m *MockBilling) CreateUPIPayment(ctx context.Context, req model.CheckoutRequest) (model.CheckoutStart, error) {
	m.mu.Lock()
	m.CheckoutCalls = append(m.CheckoutCalls, req)
	m.mu.Unlock()
	if m.CreateUPIPaymentFunc != nil {
		return m.CreateUPIPaymentFunc(ctx, req)
	}
	return model.CheckoutStart{IntentID: "upi_intent_1", RedirectURL: "upi://pay?pa=merchant@bank"}, nil
}

func (m *MockBilling) VerifyCheckoutSession(ctx context.Context, id model.SessionID) (adapter.VerifyResult, error) {
	m.mu.Lock()
	m.VerifyCalls = append(m.VerifyCalls, id)
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, id)
	}
	return adapter.VerifyResult{Success: true}, nil
}

func (m *MockBilling) UPIStatus(ctx context.Context, intentID string) (model.UPIIntent, error) {
	m.mu.Lock()
	at := time.Time{}
	if m.clock != nil {
		at = m.clock.Now()
	}
	m.StatusCalls = append(m.StatusCalls, at)
	m.mu.Unlock()
	if m.UPIStatusFunc != nil {
		return m.UPIStatusFunc(ctx, intentID)
	}
	return model.UPIIntent{IntentID: intentID, Status: model.UPIStatusPending}, nil
}

func (m *MockBilling) SubscriptionDetails(ctx context.Context) (model.Subscription, error) {
	m.mu.Lock()
	m.DetailsCalls++
	m.mu.Unlock()
	if m.SubscriptionDetailsFunc != nil {
		return m.SubscriptionDetailsFunc(ctx)
	}
	return testSubscription(), nil
}

func (m *MockBilling) verifyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.VerifyCalls)
}

func (m *MockBilling) statusCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StatusCalls)
}

func (m *MockBilling) detailsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DetailsCalls
}

// statusSequence answers UPIStatus with the given statuses in order, repeating the last one.
func statusSequence(statuses ...model.UPIStatus) func(ctx context.Context, intentID string) (model.UPIIntent, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, intentID string) (model.UPIIntent, error) {
		mu.Lock()
		defer mu.Unlock()
		s := statuses[len(statuses)-1]
		if i < len(statuses) {
			s = statuses[i]
		}
		i++
		return model.UPIIntent{IntentID: intentID, Status: s}, nil
	}
}

// ---- Mock AccountService ----

type MockAccount struct {
	mu           sync.Mutex
	LogoutCalls  int
	RefreshCalls int

	LogoutFunc  func(ctx context.Context) error
	RefreshFunc func(ctx context.Context) error
}

var _ adapter.AccountService = (*MockAccount)(nil)

func (m *MockAccount) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.LogoutCalls++
	m.mu.Unlock()
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

func (m *MockAccount) RefreshUser(ctx context.Context) error {
	m.mu.Lock()
	m.RefreshCalls++
	m.mu.Unlock()
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return nil
}

// ---- Mock Notifier ----

type MockNotifier struct {
	mu   sync.Mutex
	Sent []string

	SendFunc func(ctx context.Context, address string) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) SendSubscriptionActivatedEmail(ctx context.Context, address string) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, address)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, address)
	}
	return nil
}

func (m *MockNotifier) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// syncDispatcher runs submitted tasks inline so assertions can follow immediately.
type syncDispatcher struct {
	mu        sync.Mutex
	submitted int
	err       error
}

func (d *syncDispatcher) Submit(task func(ctx context.Context) error) error {
	d.mu.Lock()
	d.submitted++
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return err
	}
	_ = task(context.Background())
	return nil
}

// =============================
// Repositories
// =============================

// memStore is an in-memory ClientStateStore.
type memStore struct {
	mu   sync.Mutex
	data map[string]string

	SetErr  error
	TakeErr error
}

var _ repository.ClientStateStore = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (s *memStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (s *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.SetErr != nil {
		return s.SetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) TakeAndClear(ctx context.Context, key string) (string, error) {
	if s.TakeErr != nil {
		return "", s.TakeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	delete(s.data, key)
	return v, nil
}

// memPublisher is an in-memory SubscriptionPublisher.
type memPublisher struct {
	mu        sync.Mutex
	subs      map[string]model.Subscription
	published int
}

var _ repository.SubscriptionPublisher = (*memPublisher)(nil)

func newMemPublisher() *memPublisher { return &memPublisher{subs: map[string]model.Subscription{}} }

func (p *memPublisher) Publish(accountID string, sub model.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[accountID] = sub
	p.published++
}

func (p *memPublisher) Current(accountID string) (model.Subscription, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.subs[accountID]
	return s, ok
}

// =============================
// Clocks
// =============================

// fakeClock advances instantly: every After call moves Now forward by d and fires.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	Waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Waits = append(c.Waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.Waits...)
}

// stuckClock never fires; Waiting is signalled each time someone starts waiting.
type stuckClock struct {
	Waiting chan time.Duration
}

func newStuckClock() *stuckClock { return &stuckClock{Waiting: make(chan time.Duration, 8)} }

func (c *stuckClock) Now() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func (c *stuckClock) After(d time.Duration) <-chan time.Time {
	c.Waiting <- d
	return make(chan time.Time)
}

// =============================
// Fixtures
// =============================

const (
	validSessionID = "cs_test_AAAAAAAAAAAAAAAAAAAAAAAA"
	otherSessionID = "cs_live_BBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func testSubscription() model.Subscription {
	return model.Subscription{
		Plan:             "pro",
		Status:           model.SubscriptionStatusActive,
		CurrentPeriodEnd: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testAccount() model.Account {
	return model.Account{ID: "acct-1", Email: "buyer@example.com", AccessToken: "token-1"}
}

func authedCtx() context.Context {
	return model.ContextWithAccount(context.Background(), testAccount())
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
