package model

import "time"

type OutcomeKind string

const (
	OutcomeVerified         OutcomeKind = "verified"
	OutcomeAccountMismatch  OutcomeKind = "account_mismatch"
	OutcomeInvalidFormat    OutcomeKind = "invalid_format"
	OutcomeTransientFailure OutcomeKind = "transient_failure"
	OutcomeTerminalFailure  OutcomeKind = "terminal_failure"
)

// VerificationOutcome is the transient result of one Verify call.
// Subscription is only set for OutcomeVerified and only when the verification
// response embedded a snapshot. For failures Err wraps the matching domain
// sentinel and Message is its text.
type VerificationOutcome struct {
	Kind         OutcomeKind
	SessionID    string
	Subscription *Subscription
	Message      string
	Attempts     int
	Err          error
}

func (o VerificationOutcome) IsVerified() bool { return o.Kind == OutcomeVerified }

// PollResult is the terminal result of polling one UPI intent.
// RedirectAfter is the delay the UI should wait before navigating away on success.
type PollResult struct {
	IntentID      string
	Status        UPIStatus
	Message       string
	Queries       int
	RedirectAfter time.Duration
	Err           error
}

func (r PollResult) Succeeded() bool { return r.Status == UPIStatusSucceeded }
