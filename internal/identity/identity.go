// Package identity carries the resolved request principal and the trusted
// header contract between the edge gateway and internal services.
package identity

import (
	"context"
	"strings"
)

// Well-known roles of the platform.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleParent  = "parent"
	RoleAdmin   = "admin"
)

// Principal is the resolved identity attached to a request. It is derived
// from a verified token or trusted headers and never persisted.
type Principal struct {
	ID       string
	Role     string
	Username string
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), p.Role)
}

type principalContextKey struct{}

// WithPrincipal attaches the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &p)
}

// FromContext extracts the authenticated principal from the context.
func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
