package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Headers set by the upstream gateway.
const (
	HeaderUserID = "X-User-ID"
	HeaderRoles  = "X-User-Roles"
)

// HeaderAuthenticator trusts identity headers forwarded by a gateway that
// already authenticated the caller.
type HeaderAuthenticator struct{}

// NewHeaderAuthenticator returns a gateway-header authenticator.
func NewHeaderAuthenticator() HeaderAuthenticator { return HeaderAuthenticator{} }

func (HeaderAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderUserID)
	}
	return Principal{UserID: userID, Roles: ParseRoles(r.Header.Get(HeaderRoles))}, nil
}
