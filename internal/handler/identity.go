package handler

import "context"

type identityKey struct{}

// WithIdentity returns a context carrying the caller's login.
func WithIdentity(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, identityKey{}, login)
}

// Identity returns the caller's login, or "" when the request is anonymous.
func Identity(ctx context.Context) string {
	login, _ := ctx.Value(identityKey{}).(string)
	return login
}
