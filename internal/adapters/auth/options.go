package auth

import "time"

type jwtOptions struct {
	leeway time.Duration
	issuer string
}

// JWTOption configures a JWTAuthenticator.
type JWTOption func(*jwtOptions)

// WithLeeway tolerates clock skew when checking exp and iat.
func WithLeeway(d time.Duration) JWTOption {
	return func(o *jwtOptions) {
		if d > 0 {
			o.leeway = d
		}
	}
}

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) JWTOption {
	return func(o *jwtOptions) { o.issuer = issuer }
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithWriterRoles replaces the roles allowed to record events.
func WithWriterRoles(roles ...string) PolicyOption {
	return func(p *Policy) {
		if len(roles) > 0 {
			p.writers = roles
		}
	}
}

// WithReaderRoles replaces the roles allowed to read other users' history.
func WithReaderRoles(roles ...string) PolicyOption {
	return func(p *Policy) { p.readers = roles }
}
