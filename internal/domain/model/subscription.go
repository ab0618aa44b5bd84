package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusActive                   SubscriptionStatus = "active"
	SubscriptionStatusCanceledPendingPeriodEnd SubscriptionStatus = "canceled_pending_period_end"
	SubscriptionStatusInactive                 SubscriptionStatus = "inactive"
)

// Subscription is the authoritative record owned by the account service.
// It is only read and cached here; billing events on the server mutate it.
type Subscription struct {
	Plan              string             `json:"plan"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
}

// Equal compares two snapshots field by field, ignoring time zone and monotonic
// clock differences in CurrentPeriodEnd.
func (s Subscription) Equal(o Subscription) bool {
	return s.Plan == o.Plan &&
		s.Status == o.Status &&
		s.CurrentPeriodEnd.Equal(o.CurrentPeriodEnd) &&
		s.CancelAtPeriodEnd == o.CancelAtPeriodEnd
}

// IsActive is true while the user still has access, including the grace period
// of a subscription canceled at period end.
func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusCanceledPendingPeriodEnd
}

// NormalizeSubscriptionStatus maps the account service's spellings onto the
// three states this service knows about. Unknown values are inactive.
func NormalizeSubscriptionStatus(raw string) SubscriptionStatus {
	switch raw {
	case "active", "trialing":
		return SubscriptionStatusActive
	case "canceled_pending_period_end", "canceled-pending-period-end", "cancel_at_period_end":
		return SubscriptionStatusCanceledPendingPeriodEnd
	default:
		return SubscriptionStatusInactive
	}
}
