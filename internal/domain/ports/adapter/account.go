package adapter

import "context"

// AccountService is the external identity/account collaborator. Login itself is
// not part of this service.
type AccountService interface {
	// Logout ends the session of the account in ctx.
	Logout(ctx context.Context) error
	// RefreshUser asks the account service to reload the user's profile and entitlements.
	RefreshUser(ctx context.Context) error
}
