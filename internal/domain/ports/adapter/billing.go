package adapter

import (
	"context"
	"errors"
	"fmt"

	"checkout-confirmation/internal/domain/model"
)

// VerifyResult is the body of a 2xx verify-checkout-session call. An
// unsuccessful result may still carry an error code and message.
type VerifyResult struct {
	Success      bool
	Subscription *model.Subscription
	Code         string
	Message      string
}

// BillingAPI is the hex port for the backend endpoints that front the payment
// processor. Calls are made on behalf of the account stored in ctx.
type BillingAPI interface {
	// CreateCheckoutSession starts a card-rail checkout and returns the hosted page URL.
	CreateCheckoutSession(ctx context.Context, req model.CheckoutRequest) (redirectURL string, err error)
	// CreateUPIPayment starts a UPI intent and returns its id plus an optional display target.
	CreateUPIPayment(ctx context.Context, req model.CheckoutRequest) (model.CheckoutStart, error)
	// VerifyCheckoutSession confirms the session is paid and bound to the current account.
	VerifyCheckoutSession(ctx context.Context, sessionID model.SessionID) (VerifyResult, error)
	// UPIStatus returns the current status of a UPI intent.
	UPIStatus(ctx context.Context, intentID string) (model.UPIIntent, error)
	// SubscriptionDetails returns the authoritative subscription snapshot.
	SubscriptionDetails(ctx context.Context) (model.Subscription, error)
}

// HTTPError is returned by adapters when the remote side answered with a non-2xx status.
// Code is the machine-readable error code from the body, when present.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// CodeOf extracts the remote error code from err, or "" when there is none.
func CodeOf(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// StatusOf extracts the remote HTTP status from err, or 0 for transport errors.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}
