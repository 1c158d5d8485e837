package session

import (
	"encoding/json"
	"net/url"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// URLCodec embeds a session record into a transient query parameter for
// handoff to hosts that cannot share the domain-scoped cookie (loopback
// development hosts). The parameter is valid for exactly one page load; the
// receiving end strips it from the URL before anything else renders.
type URLCodec struct {
	Param string
}

// NewURLCodec creates a codec for the given query parameter name.
func NewURLCodec(param string) *URLCodec {
	if param == "" {
		param = "session"
	}
	return &URLCodec{Param: param}
}

// Embed returns rawURL with the session parameter appended.
func (c *URLCodec) Embed(rawURL string, rec *domain.SessionRecord) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(c.Param, string(payload))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Extract pulls a session record out of query values. Corrupted payloads are
// treated as absent.
func (c *URLCodec) Extract(q url.Values) *domain.SessionRecord {
	raw := q.Get(c.Param)
	if raw == "" {
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

// Strip returns u without the session parameter, for the post-restore
// redirect that keeps tokens out of history.
func (c *URLCodec) Strip(u *url.URL) string {
	clean := *u
	q := clean.Query()
	q.Del(c.Param)
	clean.RawQuery = q.Encode()
	return clean.String()
}
