package model

type ViewState string

const (
	ViewLoading          ViewState = "loading"
	ViewSuccess          ViewState = "success"
	ViewRecoverableError ViewState = "recoverable_error"
	ViewFatalError       ViewState = "fatal_error"
)

type RecoveryAction string

const (
	ActionNone            RecoveryAction = ""
	ActionRetryLogin      RecoveryAction = "retry_login"
	ActionReturnToPlans   RecoveryAction = "return_to_plans"
	ActionRestartCheckout RecoveryAction = "restart_checkout"
)

// SupportContact is pre-filled so a user can hand the failing flow to support
// without retyping identifiers.
type SupportContact struct {
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Reference string `json:"reference"`
}

// ConfirmationView is the discriminated result the UI renders for both rails.
type ConfirmationView struct {
	State          ViewState      `json:"state"`
	Rail           PaymentMethod  `json:"rail"`
	Message        string         `json:"message,omitempty"`
	Subscription   *Subscription  `json:"subscription,omitempty"`
	Action         RecoveryAction `json:"action,omitempty"`
	RedirectURL    string         `json:"redirect_url,omitempty"`
	RedirectAfterS int            `json:"redirect_after_seconds,omitempty"`
	Support        SupportContact `json:"support"`
}
