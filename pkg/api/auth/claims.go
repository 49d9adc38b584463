// Package auth provides the bearer tokens guarding the sipauth admin API.
package auth

import "github.com/golang-jwt/jwt/v5"

// Role is what a token holder may do.
type Role string

const (
	// RoleAdmin may purge vectors.
	RoleAdmin Role = "admin"
	// RoleReadOnly may only read admin endpoints.
	RoleReadOnly Role = "readonly"
)

// Claims are the JWT claims of an admin API token.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the holder's role.
	Role Role `json:"role"`
}

// IsAdmin returns true if the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
