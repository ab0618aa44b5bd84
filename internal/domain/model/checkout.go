package model

import (
	"strings"
	"time"

	"checkout-confirmation/internal/domain"
)

// SessionID is a checkout-session token that already passed lexical validation.
// Construct it through usecase.ParseSessionID; the zero value is never valid.
type SessionID string

func (s SessionID) String() string { return string(s) }

// IsLive reports whether the token was issued in live mode (cs_live_...).
func (s SessionID) IsLive() bool { return strings.HasPrefix(string(s), "cs_live_") }

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func ParseBillingCycle(s string) (BillingCycle, error) {
	switch BillingCycle(strings.ToLower(strings.TrimSpace(s))) {
	case BillingCycleMonthly:
		return BillingCycleMonthly, nil
	case BillingCycleYearly:
		return BillingCycleYearly, nil
	}
	return "", domain.ErrInvalidBillingCycle
}

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodUPI  PaymentMethod = "upi"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentMethodCard:
		return PaymentMethodCard, nil
	case PaymentMethodUPI:
		return PaymentMethodUPI, nil
	}
	return "", domain.ErrInvalidPaymentMethod
}

// CheckoutRequest is what the UI submits to start a checkout on either rail.
type CheckoutRequest struct {
	PlanID        string        `json:"plan_id"`
	BillingCycle  BillingCycle  `json:"billing_cycle"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// CheckoutStart is the processor's answer to a checkout request.
// For the card rail RedirectURL points at the hosted checkout page; for the UPI
// rail IntentID identifies the asynchronous payment to poll.
type CheckoutStart struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	RedirectURL   string        `json:"redirect_url,omitempty"`
	IntentID      string        `json:"intent_id,omitempty"`
}

// CheckoutSession describes a card-rail session once its id is known.
type CheckoutSession struct {
	SessionID     SessionID
	BillingCycle  BillingCycle
	PaymentMethod PaymentMethod
}

// PendingHandoff records that verification is still owed for a session after a
// forced re-login. At most one exists per client; a newer one overwrites it.
type PendingHandoff struct {
	SessionID SessionID `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
