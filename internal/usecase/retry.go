package usecase

import (
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultVerifyRetries    = 1
	defaultVerifyRetryDelay = 3 * time.Second
	defaultAttemptTimeout   = 15 * time.Second
)

// RetryPolicy describes how often and how long to wait before re-issuing a failed
// verification. The budget is per Verify call, not per error type.
type RetryPolicy struct {
	MaxRetries uint64
	Delay      time.Duration
	// AttemptTimeout bounds a single backend call.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is one retry after a fixed three second delay, with each
// attempt bounded to fifteen seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     defaultVerifyRetries,
		Delay:          defaultVerifyRetryDelay,
		AttemptTimeout: defaultAttemptTimeout,
	}
}

func (p RetryPolicy) attemptTimeout() time.Duration {
	if p.AttemptTimeout <= 0 {
		return defaultAttemptTimeout
	}
	return p.AttemptTimeout
}

// Budget is the worst-case wall time of one Verify: every attempt hitting its
// timeout plus every delay between them.
func (p RetryPolicy) Budget() time.Duration {
	delay := p.Delay
	if delay < 0 {
		delay = 0
	}
	return time.Duration(p.MaxRetries+1)*p.attemptTimeout() + time.Duration(p.MaxRetries)*delay
}

// Backoff materializes the policy as a fresh go-retry backoff. The caller owns
// the waiting, so the same policy works with any Clock.
func (p RetryPolicy) Backoff() retry.Backoff {
	d := p.Delay
	if d <= 0 {
		// NewConstant rejects non-positive durations.
		d = time.Nanosecond
	}
	return retry.WithMaxRetries(p.MaxRetries, retry.NewConstant(d))
}
