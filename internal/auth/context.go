// Package auth carries the caller identity forwarded by the upstream gateway.
package auth

import (
	"context"
	"strings"
)

// RoleAdmin may read reports for any user or for all users.
const RoleAdmin = "admin"

// Identity is an authenticated caller. Authentication itself happens
// upstream; this service only trusts what the gateway forwards.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && strings.EqualFold(i.Role, RoleAdmin)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "identity"

// ContextWithIdentity adds an Identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// UserIDFromContext is a convenience function to get user ID from context.
// Returns empty string for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	id := IdentityFromContext(ctx)
	if id == nil {
		return ""
	}
	return id.UserID
}
