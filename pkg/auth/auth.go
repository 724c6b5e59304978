// Package auth resolves gateway API keys to identities and enforces
// per-endpoint access restrictions.
//
// The gateway's own boundary is bearer-token based; endpoints can
// additionally restrict which user groups or email domains may reach
// them, checked after routing picks a candidate.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
)

// Identity is the authenticated caller.
type Identity struct {
	// Username is the caller's account name.
	Username string

	// Email is the caller's email address, if known.
	Email string

	// Groups lists the caller's group memberships.
	Groups []string
}

// Domain returns the email's domain part, empty when unknown.
func (i *Identity) Domain() string {
	_, domain, found := strings.Cut(i.Email, "@")
	if !found {
		return ""
	}
	return domain
}

// KeyInfo binds one API key to its identity.
type KeyInfo struct {
	// Key is the bearer token value.
	Key string

	// Identity is who the key authenticates as.
	Identity Identity

	// Enabled gates the key without deleting it.
	Enabled bool
}

// Validator resolves bearer tokens to identities.
type Validator struct {
	mu   sync.RWMutex
	keys map[string]*KeyInfo
}

// NewValidator creates a validator over the configured keys.
func NewValidator(keys []*KeyInfo) *Validator {
	keyMap := make(map[string]*KeyInfo, len(keys))
	for _, k := range keys {
		keyMap[k.Key] = k
	}
	return &Validator{keys: keyMap}
}

// Validate resolves a token. Unknown and disabled keys both fail with
// the same error so callers cannot probe which keys exist.
func (v *Validator) Validate(token string) (*Identity, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	info, ok := v.keys[token]
	if !ok || !info.Enabled {
		return nil, fmt.Errorf("invalid API key")
	}

	identity := info.Identity
	return &identity, nil
}

// Replace swaps the full key set, for configuration reload.
func (v *Validator) Replace(keys []*KeyInfo) {
	keyMap := make(map[string]*KeyInfo, len(keys))
	for _, k := range keys {
		keyMap[k.Key] = k
	}

	v.mu.Lock()
	v.keys = keyMap
	v.mu.Unlock()
}

// CheckAccess enforces an endpoint's group and domain restrictions.
// Empty restriction lists allow everyone.
func CheckAccess(identity *Identity, allowedGroups, allowedDomains []string) error {
	if len(allowedGroups) > 0 && !inGroups(identity.Groups, allowedGroups) {
		return &AccessDeniedError{Username: identity.Username, Reason: "group not allowed"}
	}
	if len(allowedDomains) > 0 && !inList(identity.Domain(), allowedDomains) {
		return &AccessDeniedError{Username: identity.Username, Reason: "email domain not allowed"}
	}
	return nil
}

func inGroups(have, allowed []string) bool {
	for _, g := range have {
		if inList(g, allowed) {
			return true
		}
	}
	return false
}

func inList(value string, list []string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// AccessDeniedError reports a restriction failure.
type AccessDeniedError struct {
	// Username is the denied caller.
	Username string

	// Reason names the failed restriction.
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for %q: %s", e.Username, e.Reason)
}

// SecretsEqual compares two shared secrets in constant time.
func SecretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
