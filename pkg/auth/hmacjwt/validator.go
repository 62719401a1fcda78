// Package hmacjwt validates HS256 bearer tokens signed with a shared secret.
package hmacjwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/osvaldoandrade/riskdesk/pkg/auth"
)

type Config struct {
	Secret           string `json:"secret"`
	Issuer           string `json:"issuer,omitempty"`
	Audience         string `json:"audience,omitempty"`
	ClockSkewSeconds int    `json:"clockSkewSeconds,omitempty"`
}

// Validator validates JWTs signed with the configured HMAC secret.
type Validator struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
}

func NewValidator(cfg Config) (*Validator, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("hmac auth: secret is required")
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hmac auth: secret must be at least 32 bytes")
	}
	skew := time.Duration(cfg.ClockSkewSeconds) * time.Second
	if skew <= 0 {
		skew = 60 * time.Second
	}
	return &Validator{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: skew,
	}, nil
}

func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("hmac auth: invalid config: %w", err)
	}
	return NewValidator(cfg)
}

func (v *Validator) Validate(tokenString string) (*auth.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	result := &auth.Claims{
		Subject: getStringClaim(claims, "sub"),
		Email:   getStringClaim(claims, "email"),
		Issuer:  getStringClaim(claims, "iss"),
		Raw:     claims,
	}
	if aud, err := claims.GetAudience(); err == nil {
		result.Audience = aud
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		result.IssuedAt = iat.Time
	}
	if scope, ok := claims["scope"].(string); ok {
		result.Scopes = strings.Fields(scope)
	}
	return result, nil
}

// Issue signs a token for subject with the given scopes. The CLI uses it to
// mint operator tokens.
func (v *Validator) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if v.audience != "" {
		claims["aud"] = v.audience
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func init() {
	auth.RegisterProvider("hmac", NewValidatorFromJSON)
}
