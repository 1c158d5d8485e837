package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSubdomain indicates the requested subdomain fails the identity grammar.
	ErrInvalidSubdomain = errors.New("invalid subdomain")
	// ErrUnauthorized indicates a missing or mismatched provisioning secret.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates the per-client window budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrSecretMissing indicates no exchange verifier was found at consume time.
	ErrSecretMissing = errors.New("exchange secret missing")
	// ErrInvalidState indicates the callback state does not match a pending flow.
	ErrInvalidState = errors.New("invalid authorization state")
	// ErrTokenInvalid indicates the provider returned an unusable token set.
	ErrTokenInvalid = errors.New("token invalid")
)

// UpstreamError carries a raw provider response for operator diagnosis.
// Conflict ("already exists") responses never become an UpstreamError; they
// are collapsed to success by the clients.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}
