package auth

import (
	"time"
)

const (
	// ScopeRun allows triggering workflow runs and mounting boards.
	ScopeRun = "riskdesk:run"
	// ScopeRead allows reading boards, the catalogue and archived results.
	ScopeRead = "riskdesk:read"
)

// Claims represents authentication token claims
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Scopes    []string
	Raw       map[string]interface{}
}

// HasScope checks if the claims contain a specific scope. A claims set without
// any scopes is treated as unrestricted.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	if len(c.Scopes) == 0 {
		return true
	}
	for _, s := range c.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Validator validates authentication tokens
type Validator interface {
	Validate(token string) (*Claims, error)
}
