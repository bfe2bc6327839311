package auth

// DefaultWriterRoles may record events when no writer roles are configured.
// No role reads another user's history unless reader roles are configured.
var DefaultWriterRoles = []string{"service", "admin"}

// Policy decides which principal may act on which user.
type Policy struct {
	writers []string
	readers []string
}

// NewPolicy returns a policy with the default writer roles and
// self-only history access.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{writers: DefaultWriterRoles}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CanRecord reports whether principal may submit events for userID.
func (p *Policy) CanRecord(principal Principal, _ string) bool {
	return principal.HasRole(p.writers...)
}

// CanReadHistory reports whether principal may list userID's events.
func (p *Policy) CanReadHistory(principal Principal, userID string) bool {
	if principal.UserID == "" {
		return false
	}
	return principal.UserID == userID || principal.HasRole(p.readers...)
}

// CanReadScore reports whether principal may read userID's score.
func (p *Policy) CanReadScore(principal Principal, _ string) bool {
	return principal.UserID != ""
}
