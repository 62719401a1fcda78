package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/riskdesk/pkg/auth"

	"github.com/gin-gonic/gin"
)

const claimsKey = "userClaims"

// AuthMiddleware validates the bearer token and stores the claims and caller
// subject on the context.
func AuthMiddleware(validator auth.Validator) gin.HandlerFunc {
	if validator == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity validator not configured"})
		}
	}
	return func(c *gin.Context) {
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(claimsKey, claims)
		c.Set("caller", Caller(claims))
		c.Next()
	}
}

// RequireScope rejects callers whose claims lack scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
			return
		}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing scope", "scope": scope})
			return
		}
		c.Next()
	}
}

func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}

// Caller names the principal behind claims: email when present, else subject.
func Caller(claims *auth.Claims) string {
	if claims == nil {
		return ""
	}
	if email := strings.TrimSpace(claims.Email); email != "" {
		return email
	}
	return strings.TrimSpace(claims.Subject)
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, errors.New("missing Authorization header")
	}
	token := bearerToken(authHeader)
	if token == "" {
		return nil, errors.New("invalid Authorization format")
	}
	return validator.Validate(token)
}
