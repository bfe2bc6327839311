// Package auth identifies callers and decides what they may do.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// Sentinel kinds for auth errors.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidSecret   = errors.New("jwt secret is required")
)

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Roles  []string
}

// HasRole reports whether p carries any of roles.
func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// Authenticator resolves the principal of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ParseRoles splits a comma separated role list, dropping blanks.
func ParseRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
