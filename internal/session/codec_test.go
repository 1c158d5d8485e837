package session

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCookieCodecRoundTrip(t *testing.T) {
	codec := NewCookieCodec("ss_session", "acme-platform.io", true, 30*24*time.Hour)
	rec := record(1_700_003_600)

	cookie, err := codec.Encode(rec)
	require.NoError(t, err)
	require.Equal(t, "ss_session", cookie.Name)
	require.Equal(t, ".acme-platform.io", cookie.Domain)
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Positive(t, cookie.MaxAge)

	decoded := codec.Decode(cookie.Value)
	require.NotNil(t, decoded)
	require.Equal(t, rec.AccessToken, decoded.AccessToken)
	require.Equal(t, rec.ExpiresAt, decoded.ExpiresAt)
	require.Equal(t, rec.UserEmail, decoded.UserEmail)
}

func TestCookieCodecDecodeCorrupted(t *testing.T) {
	codec := NewCookieCodec("ss_session", "acme-platform.io", false, time.Hour)

	for _, bad := range []string{"", "not-json", "%zz", "%7B%22access_token%22%3A", `{"expires_at":1}`} {
		require.Nil(t, codec.Decode(bad), "value %q must decode to no session", bad)
	}
}

func TestCookieCodecClear(t *testing.T) {
	codec := NewCookieCodec("ss_session", "acme-platform.io", false, time.Hour)
	cleared := codec.Clear()
	require.Equal(t, -1, cleared.MaxAge)
	require.Empty(t, cleared.Value)
	require.Equal(t, ".acme-platform.io", cleared.Domain)
}

func TestURLCodecEmbedExtractStrip(t *testing.T) {
	codec := NewURLCodec("session")
	rec := record(1_700_003_600)

	embedded, err := codec.Embed("http://localhost:3000/app?tab=home", rec)
	require.NoError(t, err)

	u, err := url.Parse(embedded)
	require.NoError(t, err)

	extracted := codec.Extract(u.Query())
	require.NotNil(t, extracted)
	require.Equal(t, rec.AccessToken, extracted.AccessToken)

	stripped := codec.Strip(u)
	cleanURL, err := url.Parse(stripped)
	require.NoError(t, err)
	require.Empty(t, cleanURL.Query().Get("session"))
	require.Equal(t, "home", cleanURL.Query().Get("tab"))
}

func TestURLCodecExtractCorrupted(t *testing.T) {
	codec := NewURLCodec("session")
	q := url.Values{}
	q.Set("session", "{broken")
	require.Nil(t, codec.Extract(q))

	q.Set("session", `{"expires_at":5}`)
	require.Nil(t, codec.Extract(q), "record without token is no session")
}
