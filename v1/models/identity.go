package models

import "github.com/golang-jwt/jwt/v5"

// AdminIdentity is the caller resolved from a session credential.
// It lives only for the duration of a request or live session.
type AdminIdentity struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email"`
}

// SessionClaims are the claims carried by the auth provider's access tokens
type SessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity builds an AdminIdentity from verified claims
func (c *SessionClaims) Identity() *AdminIdentity {
	return &AdminIdentity{
		UserID: c.Subject,
		Email:  c.Email,
	}
}

// SessionResolved announces the outcome of a session change. A nil Identity
// means the session ended or no longer verifies.
type SessionResolved struct {
	Identity *AdminIdentity
}
