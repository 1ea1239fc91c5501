package service

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthenticated indicates the operation was invoked without a resolvable current user.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the authenticated caller.
type Identity struct {
	ID    string
	Email string
	Role  string
}

// IsAdmin reports whether the caller's token carries the admin role.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, "admin")
}

type identityKey struct{}

// ContextWithIdentity binds the caller to ctx.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	identity.ID = strings.TrimSpace(identity.ID)
	identity.Email = strings.TrimSpace(identity.Email)
	identity.Role = strings.ToLower(strings.TrimSpace(identity.Role))
	return context.WithValue(ctx, identityKey{}, identity)
}

// CurrentIdentity returns the identity bound to ctx or ErrUnauthenticated.
func CurrentIdentity(ctx context.Context) (Identity, error) {
	if ctx == nil {
		return Identity{}, ErrUnauthenticated
	}
	identity, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || identity.ID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return identity, nil
}
