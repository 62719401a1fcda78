// Package jwks validates RS256 bearer tokens against the signing keys an
// identity provider publishes as a JSON Web Key Set.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/osvaldoandrade/riskdesk/pkg/auth"
)

type Config struct {
	URL                string `json:"jwksUrl"`
	Issuer             string `json:"issuer"`
	Audience           string `json:"audience"`
	ClockSkewSeconds   int    `json:"clockSkewSeconds,omitempty"`
	HTTPTimeoutSeconds int    `json:"httpTimeoutSeconds,omitempty"`
	CacheTTLSeconds    int    `json:"cacheTtlSeconds,omitempty"`
}

// Validator checks token signatures with keys fetched from the JWKS URL. Keys
// are cached for the cache TTL; an unknown kid forces one refetch so rotated
// keys are picked up without a restart.
type Validator struct {
	url       string
	issuer    string
	audience  string
	clockSkew time.Duration
	cacheTTL  time.Duration
	client    *http.Client
	now       func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewValidator(cfg Config) (*Validator, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("jwks auth: jwksUrl is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("jwks auth: issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("jwks auth: audience is required")
	}
	v := &Validator{
		url:       cfg.URL,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clockSkew: secondsOr(cfg.ClockSkewSeconds, 60*time.Second),
		cacheTTL:  secondsOr(cfg.CacheTTLSeconds, 5*time.Minute),
		client:    &http.Client{Timeout: secondsOr(cfg.HTTPTimeoutSeconds, 5*time.Second)},
		now:       time.Now,
		keys:      map[string]*rsa.PublicKey{},
	}
	return v, nil
}

func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("jwks auth: invalid config: %w", err)
	}
	return NewValidator(cfg)
}

func (v *Validator) Validate(tokenString string) (*auth.Claims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	result := &auth.Claims{
		Subject: stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
		Issuer:  stringClaim(claims, "iss"),
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
	// Identity providers emit scopes either as a space separated "scope" or a "scp" list.
	if scope, ok := claims["scope"].(string); ok {
		result.Scopes = strings.Fields(scope)
	} else if scp, ok := claims["scp"].([]any); ok {
		for _, s := range scp {
			if str, ok := s.(string); ok {
				result.Scopes = append(result.Scopes, str)
			}
		}
	}
	return result, nil
}

func (v *Validator) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid in token header")
	}
	return v.publicKey(kid)
}

func (v *Validator) publicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fresh := v.now().Sub(v.fetchedAt) < v.cacheTTL
	if key, ok := v.keys[kid]; ok && fresh {
		return key, nil
	}
	keys, err := v.fetch()
	if err != nil {
		return nil, err
	}
	v.keys = keys
	v.fetchedAt = v.now()
	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("key %q not found in JWKS", kid)
}

type jwkSet struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *Validator) fetch() (map[string]*rsa.PublicKey, error) {
	ctx, cancel := context.WithTimeout(context.Background(), v.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return nil, fmt.Errorf("parse JWKS: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := rsaPublicKey(k.N, k.E)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode e: %w", err)
	}
	exp := new(big.Int).SetBytes(eBytes)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(exp.Int64())}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

func secondsOr(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func init() {
	auth.RegisterProvider("jwks", NewValidatorFromJSON)
}
