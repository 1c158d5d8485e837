package authflow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/zap"

	oauthadapter "github.com/gabmerlin/saas-sub001/internal/adapter/oauth"
	"github.com/gabmerlin/saas-sub001/internal/domain"
	"github.com/gabmerlin/saas-sub001/internal/relay"
	"github.com/gabmerlin/saas-sub001/internal/session"
)

const (
	statePrefix = "authflow:state:"
	stateTTL    = 5 * time.Minute
)

var idTokenAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.HS256,
}

// SessionSink receives the session produced by a completed flow.
type SessionSink interface {
	SignIn(ctx context.Context, rec *domain.SessionRecord) error
}

var _ SessionSink = (*session.Synchronizer)(nil)

// Flow orchestrates the authorization code exchange against the
// upstream identity provider, carrying the code verifier across the
// redirect through the relay.
type Flow struct {
	provider oauthadapter.ProviderConfig
	client   oauthadapter.ProviderClient
	relay    *relay.Relay
	states   relay.KV
	sink     SessionSink
	logger   *zap.Logger
	now      func() time.Time
}

// NewFlow wires the flow orchestrator.
func NewFlow(provider oauthadapter.ProviderConfig, client oauthadapter.ProviderClient, r *relay.Relay, states relay.KV, sink SessionSink, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.L()
	}
	return &Flow{
		provider: provider,
		client:   client,
		relay:    r,
		states:   states,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// StartOutput returns the prepared authorization URL and the verifier
// cookie the caller must set on the response.
type StartOutput struct {
	AuthorizationURL string
	State            string
	VerifierCookie   *http.Cookie
}

// Start prepares the authorization redirect. The generated verifier is
// stored on both relay sides before the URL is handed out.
func (f *Flow) Start(ctx context.Context, contextID, redirectURI string) (*StartOutput, error) {
	if strings.TrimSpace(redirectURI) == "" {
		return nil, domain.ErrInvalidState
	}
	if strings.TrimSpace(f.provider.AuthorizeURL) == "" {
		return nil, fmt.Errorf("authorize url missing")
	}

	state, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	verifier, err := f.relay.Generate()
	if err != nil {
		return nil, err
	}

	cookie, err := f.relay.Store(ctx, contextID, verifier)
	if err != nil {
		return nil, fmt.Errorf("persist verifier: %w", err)
	}
	if err := f.states.Set(ctx, statePrefix+state, contextID, stateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	authURL, err := url.Parse(f.provider.AuthorizeURL)
	if err != nil {
		return nil, fmt.Errorf("parse authorize url: %w", err)
	}
	scopes := f.provider.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	params := authURL.Query()
	params.Set("client_id", f.provider.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", pkceChallenge(verifier))
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()

	return &StartOutput{
		AuthorizationURL: authURL.String(),
		State:            state,
		VerifierCookie:   cookie,
	}, nil
}

// CompleteInput captures the provider callback parameters.
type CompleteInput struct {
	ContextID      string
	Code           string
	State          string
	CookieVerifier string
	RedirectURI    string
}

// CompleteOutput carries the established session and the expiring
// verifier cookie.
type CompleteOutput struct {
	Record         *domain.SessionRecord
	VerifierCookie *http.Cookie
}

// Complete validates the callback, exchanges the code and signs the
// resulting session in. A lost verifier downgrades the exchange
// instead of failing it; the provider decides whether to accept.
func (f *Flow) Complete(ctx context.Context, in CompleteInput) (*CompleteOutput, error) {
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.State) == "" {
		return nil, domain.ErrInvalidState
	}

	stateKey := statePrefix + in.State
	owner, err := f.states.Get(ctx, stateKey)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if owner == "" || owner != in.ContextID {
		return nil, domain.ErrInvalidState
	}
	if derr := f.states.Del(ctx, stateKey); derr != nil {
		f.logger.Warn("state cleanup failed", zap.Error(derr))
	}

	verifier, clearing, err := f.relay.Consume(ctx, in.ContextID, in.CookieVerifier)
	if err != nil {
		return nil, err
	}
	if verifier == "" {
		f.logger.Warn("code verifier missing at exchange", zap.String("context_id", in.ContextID))
	}

	tokenResp, err := f.client.ExchangeCode(ctx, f.provider, in.Code, verifier, in.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if strings.TrimSpace(tokenResp.AccessToken) == "" {
		return nil, domain.ErrTokenInvalid
	}

	rec := &domain.SessionRecord{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    f.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second).Unix(),
	}
	f.fillIdentity(ctx, rec, tokenResp)

	if err := f.sink.SignIn(ctx, rec); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	return &CompleteOutput{Record: rec, VerifierCookie: clearing}, nil
}

// fillIdentity extracts subject and email from the id_token claims,
// falling back to the userinfo endpoint when the token carries none.
func (f *Flow) fillIdentity(ctx context.Context, rec *domain.SessionRecord, tokenResp *oauthadapter.TokenResponse) {
	if tokenResp.IDToken != "" {
		var claims struct {
			Subject string `json:"sub"`
			Email   string `json:"email"`
		}
		if tok, err := jwt.ParseSigned(tokenResp.IDToken, idTokenAlgorithms); err == nil {
			if err := tok.UnsafeClaimsWithoutVerification(&claims); err == nil {
				rec.UserID = claims.Subject
				rec.UserEmail = claims.Email
			}
		} else {
			f.logger.Warn("id token parse failed", zap.Error(err))
		}
	}
	if rec.UserID != "" && rec.UserEmail != "" {
		return
	}

	info, err := f.client.FetchUserInfo(ctx, f.provider, tokenResp.AccessToken)
	if err != nil {
		f.logger.Warn("userinfo fetch failed", zap.Error(err))
		return
	}
	if rec.UserID == "" {
		rec.UserID = info.Subject
	}
	if rec.UserEmail == "" {
		rec.UserEmail = info.Email
	}
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
