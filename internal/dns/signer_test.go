package dns

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignerSignature(t *testing.T) {
	s := NewSigner("https://dns.example", "app-key", "app-secret", "consumer-key", nil)

	method := http.MethodGet
	url := "https://dns.example/domain/zone/acme.io/record"
	timestamp := "1700000000"

	got := s.signature(method, url, "", timestamp)

	input := "app-secret+consumer-key+" + method + "+" + url + "++" + timestamp
	want := fmt.Sprintf("$1$%x", sha1.Sum([]byte(input)))
	require.Equal(t, want, got)
}

func TestSignerSignSetsHeaders(t *testing.T) {
	var timeCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/time", r.URL.Path)
		timeCalls++
		fmt.Fprint(w, "1700000123")
	}))
	defer srv.Close()

	s := NewSigner(srv.URL, "ak", "as", "ck", srv.Client())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/domain/zone/z/record", nil)
	require.NoError(t, err)
	require.NoError(t, s.Sign(context.Background(), req, `{"a":1}`))

	require.Equal(t, "ak", req.Header.Get("X-Ovh-Application"))
	require.Equal(t, "ck", req.Header.Get("X-Ovh-Consumer"))
	require.NotEmpty(t, req.Header.Get("X-Ovh-Timestamp"))
	require.Regexp(t, `^\$1\$[0-9a-f]{40}$`, req.Header.Get("X-Ovh-Signature"))

	// The provider clock is fetched once and cached as a delta.
	req2, err := http.NewRequest(http.MethodGet, srv.URL+"/domain/zone/z/record", nil)
	require.NoError(t, err)
	require.NoError(t, s.Sign(context.Background(), req2, ""))
	require.Equal(t, 1, timeCalls)
}
