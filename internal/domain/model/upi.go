package model

type UPIStatus string

const (
	UPIStatusPending   UPIStatus = "pending"
	UPIStatusSucceeded UPIStatus = "succeeded"
	UPIStatusFailed    UPIStatus = "failed"
)

// IsTerminal reports whether polling must stop once this status is observed.
func (s UPIStatus) IsTerminal() bool {
	return s == UPIStatusSucceeded || s == UPIStatusFailed
}

// CanTransition enforces pending -> {succeeded|failed}. Terminal states never move.
func (s UPIStatus) CanTransition(to UPIStatus) bool {
	if s == to {
		return true
	}
	return s == UPIStatusPending && to.IsTerminal()
}

// UPIIntent is the observed state of an asynchronous UPI payment.
// It is created by the processor and never mutated by this service.
type UPIIntent struct {
	IntentID string    `json:"intent_id"`
	Status   UPIStatus `json:"status"`
	Message  string    `json:"message,omitempty"`
}
