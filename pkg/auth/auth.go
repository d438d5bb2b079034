package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is an authenticator's vote on a request.
type Decision int

const (
	// Abstain means the authenticator did not find credentials it
	// understands. The zero Result abstains.
	Abstain Decision = iota

	// Accept means the credentials are valid; Result.Identity is set.
	Accept

	// Reject means credentials were presented but are invalid; Result.Err
	// says why.
	Reject
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "abstain"
	}
}

// Result is the outcome of one authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller. Never empty for an accepted request.
	Subject string

	// ServiceTier selects the caller's rate limit.
	ServiceTier string

	Scopes   []string
	Metadata map[string]string
}

// Tier returns the service tier, or "default" when none is set.
func (id *Identity) Tier() string {
	if id == nil || id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}

// Anonymous returns the identity used when authentication is disabled.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain asks authenticators in order. The first vote other than Abstain
// decides; when all abstain the request is rejected unless anonymous
// access is allowed.
type Chain struct {
	authenticators []Authenticator
	allowAnonymous bool
}

// NewChain creates a chain over the given authenticators.
func NewChain(allowAnonymous bool, authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators, allowAnonymous: allowAnonymous}
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.allowAnonymous {
		return Result{Decision: Accept, Identity: Anonymous()}
	}
	return Result{Decision: Reject, Err: ErrUnauthenticated}
}
