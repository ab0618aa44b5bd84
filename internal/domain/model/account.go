package model

import "context"

// Account is the identity currently authenticated in the browser that drives
// the confirmation flow. AccessToken is forwarded to the backend on its behalf.
type Account struct {
	ID          string
	Email       string
	AccessToken string
}

type accountCtxKey struct{}

func ContextWithAccount(ctx context.Context, a Account) context.Context {
	return context.WithValue(ctx, accountCtxKey{}, a)
}

// AccountFromContext returns the authenticated account, if any.
func AccountFromContext(ctx context.Context) (Account, bool) {
	a, ok := ctx.Value(accountCtxKey{}).(Account)
	return a, ok && a.ID != ""
}
