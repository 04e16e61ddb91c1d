// Package auth is the trusted identity boundary. It verifies signed
// identity tokens and carries the verified identity through the request
// context. Everything below this package takes the acting principal as an
// explicit argument; nothing reads an ambient "current user".
package auth

import (
	"context"
)

// PrincipalInfo is the verified identity of a request. The identity
// provider is trusted to have verified the subject and email.
type PrincipalInfo struct {
	Subject string
	Email   string
	Name    string
}

type contextKey struct{}

// WithPrincipalInfo returns a context carrying the verified identity.
func WithPrincipalInfo(ctx context.Context, info PrincipalInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// PrincipalInfoFromContext retrieves the verified identity, if present.
func PrincipalInfoFromContext(ctx context.Context) (PrincipalInfo, bool) {
	info, ok := ctx.Value(contextKey{}).(PrincipalInfo)
	return info, ok
}
