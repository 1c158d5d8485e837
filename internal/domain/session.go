package domain

import (
	"strings"
	"time"
)

// SessionRecord is the replicated value representing an authenticated browser.
// The synchronizer treats it as opaque except for expiry and the newer-than
// comparison below.
type SessionRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	UserID       string `json:"user_id,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
}

// HasToken reports whether the record carries any usable token.
func (r *SessionRecord) HasToken() bool {
	return r != nil && strings.TrimSpace(r.AccessToken) != ""
}

// Expired reports whether the record's expiry is in the past.
func (r *SessionRecord) Expired(now time.Time) bool {
	if r == nil {
		return true
	}
	return r.ExpiresAt <= now.Unix()
}

// NewerThan reports whether r should replace other. Compared on expires_at,
// tie-broken on token presence, so concurrent writers converge to the same
// value regardless of arrival order.
func (r *SessionRecord) NewerThan(other *SessionRecord) bool {
	if r == nil {
		return false
	}
	if other == nil {
		return true
	}
	if r.ExpiresAt != other.ExpiresAt {
		return r.ExpiresAt > other.ExpiresAt
	}
	return r.HasToken() && !other.HasToken()
}
