// Package jwt authenticates bearer tokens signed by an OIDC provider.
// Signing keys come from the provider's JWKS endpoint; RSA and ECDSA keys
// are supported.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/weiche/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// JWKSURL is the endpoint serving the signing keys.
	JWKSURL string

	// UserClaim names the claim used as the identity subject. Default: "sub".
	UserClaim string

	// TierClaim names the claim carrying the service tier, which selects
	// the rate limit. Default: "tier".
	TierClaim string

	// ScopesClaim names the scopes claim. Default: "scope". The value may be
	// a space-separated string or an array.
	ScopesClaim string

	// CacheTTL is how long fetched keys are trusted. Default: 1h.
	CacheTTL time.Duration

	// Leeway tolerates clock skew on exp, nbf and iat. Default: 30s.
	Leeway time.Duration

	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// signingMethods lists the accepted alg header values.
var signingMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	keys   *keySet
	parser *jwtlib.Parser
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates a JWT authenticator.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(signingMethods),
		jwtlib.WithLeeway(cfg.Leeway),
		jwtlib.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate abstains when the request carries no bearer token, votes
// reject for a token that fails validation and accept otherwise.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, ok := bearerToken(r)
	if !ok {
		return auth.Result{}
	}
	if raw == "" {
		return auth.Result{Decision: auth.Reject, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.lookup(ctx, kid)
	})
	if err != nil {
		slog.Debug("JWT rejected", "error", err)
		return auth.Result{Decision: auth.Reject, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	id, err := a.identity(claims)
	if err != nil {
		return auth.Result{Decision: auth.Reject, Err: err}
	}
	return auth.Result{Decision: auth.Accept, Identity: id}
}

func (a *Authenticator) identity(claims jwtlib.MapClaims) (*auth.Identity, error) {
	subject := stringClaim(claims, a.config.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.config.UserClaim)
	}
	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: stringClaim(claims, a.config.TierClaim),
		Scopes:      listClaim(claims, a.config.ScopesClaim),
		Metadata:    map[string]string{},
	}
	if iss := stringClaim(claims, "iss"); iss != "" {
		id.Metadata["issuer"] = iss
	}
	return id, nil
}

// bearerToken returns the token of an Authorization: Bearer header. The
// scheme is matched case-insensitively. ok is false for other schemes.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func stringClaim(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// listClaim reads a claim that is either a space-separated string or an
// array of strings.
func listClaim(claims jwtlib.MapClaims, key string) []string {
	var out []string
	switch v := claims[key].(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
