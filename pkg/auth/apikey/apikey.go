// Package apikey authenticates requests against a static set of API keys.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/weiche/pkg/auth"
)

// Key binds an API key to the identity it authenticates.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks the key sent in the X-API-Key header or as a
// bearer token. Only digests of the keys are kept.
type Authenticator struct {
	entries []entry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an Authenticator. Keys with an empty value are ignored.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return a
}

// Authenticate abstains when no key is presented. Every entry is compared
// so the time taken does not depend on which key matched.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, presented := presentedKey(r)
	if !presented {
		return auth.Result{}
	}
	digest := sha256.Sum256([]byte(key))

	var match *auth.Identity
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 && match == nil {
			id := a.entries[i].identity
			match = &id
		}
	}
	if key == "" || match == nil {
		return auth.Result{Decision: auth.Reject, Err: auth.ErrUnauthenticated}
	}
	return auth.Result{Decision: auth.Accept, Identity: match}
}

// presentedKey returns the key from X-API-Key or an Authorization bearer
// token. Other Authorization schemes count as no key.
func presentedKey(r *http.Request) (string, bool) {
	if v := r.Header.Values("X-Api-Key"); len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
