package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOperationFailed = errors.New("operation failed")

	// Confirmation workflow errors. Format and mismatch are classified before any
	// retry logic runs and never consume the retry budget.
	ErrInvalidSessionID = errors.New("invalid checkout session id")
	ErrAccountMismatch  = errors.New("checkout session belongs to a different account")
	ErrTransient        = errors.New("transient verification failure")
	ErrTerminal         = errors.New("verification failed")
	ErrPollingFailed    = errors.New("upi payment failed")
	ErrPollTimeout      = errors.New("upi payment still pending after timeout")

	ErrInvalidBillingCycle  = errors.New("invalid billing cycle")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrUnauthenticated      = errors.New("no authenticated account")
)
