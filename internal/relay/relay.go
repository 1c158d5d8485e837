package relay

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const verifierBytes = 64

// Relay carries an authorization verifier across the redirect gap. The
// secret lives in two places at once, a KV entry keyed by the browser
// context and a domain-wide cookie, so that whichever side survives the
// hop can restore the other.
type Relay struct {
	kv         KV
	cookieName string
	rootDomain string
	secure     bool
	ttl        time.Duration
	logger     *zap.Logger
}

// NewRelay constructs a relay over the given KV. ttl bounds how long an
// unconsumed verifier stays retrievable.
func NewRelay(kv KV, cookieName, rootDomain string, secure bool, ttl time.Duration, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.L()
	}
	return &Relay{
		kv:         kv,
		cookieName: cookieName,
		rootDomain: rootDomain,
		secure:     secure,
		ttl:        ttl,
		logger:     logger,
	}
}

// CookieName reports the name of the relay's cookie side.
func (r *Relay) CookieName() string { return r.cookieName }

// Generate produces a fresh URL-safe verifier.
func (r *Relay) Generate() (string, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Store writes the verifier to both sides and returns the cookie the
// caller must set on the response.
func (r *Relay) Store(ctx context.Context, contextID, verifier string) (*http.Cookie, error) {
	if err := r.kv.Set(ctx, r.key(contextID), verifier, r.ttl); err != nil {
		return nil, err
	}
	return r.cookie(verifier, int(r.ttl.Seconds())), nil
}

// Retrieve returns the stored verifier, preferring the KV side. When
// only the cookie side survived, the KV entry is repopulated from it.
// A missing verifier comes back as "" with no error.
func (r *Relay) Retrieve(ctx context.Context, contextID, cookieValue string) (string, error) {
	val, err := r.kv.Get(ctx, r.key(contextID))
	if err != nil {
		return "", err
	}
	if val != "" {
		return val, nil
	}
	if cookieValue == "" {
		return "", nil
	}
	if err := r.kv.Set(ctx, r.key(contextID), cookieValue, r.ttl); err != nil {
		r.logger.Warn("verifier repopulation failed", zap.Error(err))
	}
	return cookieValue, nil
}

// Consume retrieves the verifier and removes it from both sides. The
// returned cookie expires the cookie side and must be set on the
// response even when the verifier was already gone.
func (r *Relay) Consume(ctx context.Context, contextID, cookieValue string) (string, *http.Cookie, error) {
	val, err := r.Retrieve(ctx, contextID, cookieValue)
	if err != nil {
		return "", nil, err
	}
	if derr := r.kv.Del(ctx, r.key(contextID)); derr != nil {
		r.logger.Warn("verifier cleanup failed", zap.Error(derr))
	}
	return val, r.cookie("", -1), nil
}

// Clear removes the KV side and returns an expiring cookie for the
// cookie side.
func (r *Relay) Clear(ctx context.Context, contextID string) (*http.Cookie, error) {
	if err := r.kv.Del(ctx, r.key(contextID)); err != nil {
		return nil, err
	}
	return r.cookie("", -1), nil
}

func (r *Relay) key(contextID string) string {
	return "authflow:verifier:" + contextID
}

func (r *Relay) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     r.cookieName,
		Value:    value,
		Path:     "/",
		Domain:   "." + r.rootDomain,
		MaxAge:   maxAge,
		Secure:   r.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Clearer binds a relay to one browser context so sign-out paths can
// drop the stored verifier without holding request state.
type Clearer struct {
	Relay     *Relay
	ContextID string
}

// ClearSecret removes the KV side of the bound context.
func (c Clearer) ClearSecret(ctx context.Context) error {
	_, err := c.Relay.Clear(ctx, c.ContextID)
	return err
}
