package auth

import (
	"context"
)

type Identity struct {
	Subject string
	Email   string
	Name    string
	Roles   []string
}

// IsApprover reports whether the identity may approve or reject requests.
func (i Identity) IsApprover() bool {
	return HasAtLeast(i.Roles, RoleApprover)
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
