package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// CookieCodec encodes a session record into the domain-scoped cookie every
// subdomain of the root receives.
type CookieCodec struct {
	Name   string
	Root   string
	Secure bool
	MaxAge time.Duration
}

// NewCookieCodec creates a codec for the root domain. The cookie domain gets
// a leading dot so all subdomains can read it.
func NewCookieCodec(name, root string, secure bool, maxAge time.Duration) *CookieCodec {
	return &CookieCodec{Name: name, Root: strings.TrimPrefix(root, "."), Secure: secure, MaxAge: maxAge}
}

// Encode builds the Set-Cookie value carrying rec.
func (c *CookieCodec) Encode(rec *domain.SessionRecord) (*http.Cookie, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    url.QueryEscape(string(payload)),
		Path:     "/",
		Domain:   "." + c.Root,
		MaxAge:   int(c.MaxAge.Seconds()),
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Decode parses a cookie value. Corrupted values are treated as "no session"
// rather than an error; a bad stored value must never break the sync loop.
func (c *CookieCodec) Decode(value string) *domain.SessionRecord {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return nil
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil
	}
	if !rec.HasToken() {
		return nil
	}
	return &rec
}

// Clear expires the cookie across the root domain.
func (c *CookieCodec) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		Domain:   "." + c.Root,
		MaxAge:   -1,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
