// Package webhook authenticates inbound payment notifications.
//
// Gateways prove authenticity differently: DOKU signs the request with an
// HMAC over a canonical component string, Xendit echoes a shared callback
// token. Both checks compare in constant time and fail when any required
// header is missing.
package webhook

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVerificationFailed = errors.New("webhook verification failed")
	ErrMissingHeader      = errors.New("webhook header missing")
	ErrNotConfigured      = errors.New("webhook secret not configured")
)

// Policy decides what happens to a notification that fails verification.
type Policy string

const (
	// PolicyStrict drops unverified notifications.
	PolicyStrict Policy = "strict"
	// PolicyWarn logs and applies them anyway.
	PolicyWarn Policy = "warn"
)

// ParsePolicy maps unknown values to PolicyStrict.
func ParsePolicy(s string) Policy {
	if Policy(strings.ToLower(strings.TrimSpace(s))) == PolicyWarn {
		return PolicyWarn
	}
	return PolicyStrict
}

// Enforced reports whether a verification error must block the transition.
func (p Policy) Enforced() bool {
	return p != PolicyWarn
}

// VerifyToken compares a shared callback token.
func VerifyToken(expected, got string) error {
	if expected == "" {
		return ErrNotConfigured
	}
	if got == "" {
		return fmt.Errorf("%w: callback token", ErrMissingHeader)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return fmt.Errorf("%w: callback token mismatch", ErrVerificationFailed)
	}
	return nil
}
