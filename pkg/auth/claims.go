package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SessionMetadata carries the provider's public metadata snapshot embedded in the token.
type SessionMetadata struct {
	Role string `json:"role,omitempty"`
}

// SessionClaims represents the provider-issued session JWT. Subject is the external id.
type SessionClaims struct {
	Email    string          `json:"email,omitempty"`
	FullName string          `json:"full_name,omitempty"`
	Username string          `json:"username,omitempty"`
	Metadata SessionMetadata `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

// ExternalID returns the trimmed subject claim.
func (c *SessionClaims) ExternalID() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Subject)
}

// SessionTokenPayload captures the data available when minting a session token.
type SessionTokenPayload struct {
	Subject  string
	Email    string
	FullName string
	Username string
	Role     string
}
