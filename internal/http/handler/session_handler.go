package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/authflow"
	"github.com/gabmerlin/saas-sub001/internal/domain"
	"github.com/gabmerlin/saas-sub001/internal/relay"
	"github.com/gabmerlin/saas-sub001/internal/session"
)

const (
	contextCookie  = "ss_ctx"
	returnToCookie = "ss_return_to"
)

// SessionHandler serves the sign-in flow and session lifecycle
// endpoints.
type SessionHandler struct {
	flow       *authflow.Flow
	syn        *session.Synchronizer
	cookies    *session.CookieCodec
	urlCodec   *session.URLCodec
	relay      *relay.Relay
	rootDomain string
	secure     bool
	logger     *zap.Logger
}

// NewSessionHandler wires the session handler.
func NewSessionHandler(flow *authflow.Flow, syn *session.Synchronizer, cookies *session.CookieCodec, urlCodec *session.URLCodec, r *relay.Relay, rootDomain string, secure bool, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &SessionHandler{
		flow:       flow,
		syn:        syn,
		cookies:    cookies,
		urlCodec:   urlCodec,
		relay:      r,
		rootDomain: strings.ToLower(strings.TrimPrefix(rootDomain, ".")),
		secure:     secure,
		logger:     logger,
	}
}

// AuthStart redirects the browser to the identity provider.
func (h *SessionHandler) AuthStart(c *gin.Context) {
	contextID := h.ensureContextID(c)
	redirectURI := schemeOnly(c.Request) + "://" + c.Request.Host + "/auth/oauth/callback"

	out, err := h.flow.Start(c.Request.Context(), contextID, redirectURI)
	if err != nil {
		h.logger.Error("auth start failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not start sign-in."})
		return
	}
	http.SetCookie(c.Writer, out.VerifierCookie)

	if returnTo := strings.TrimSpace(c.Query("return_to")); returnTo != "" {
		http.SetCookie(c.Writer, h.scopedCookie(returnToCookie, returnTo, 600))
	}

	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

// AuthCallback completes the exchange and establishes the session.
func (h *SessionHandler) AuthCallback(c *gin.Context) {
	contextID := h.ensureContextID(c)
	cookieVerifier := ""
	if cookie, err := c.Request.Cookie(h.relay.CookieName()); err == nil {
		cookieVerifier = cookie.Value
	}

	out, err := h.flow.Complete(c.Request.Context(), authflow.CompleteInput{
		ContextID:      contextID,
		Code:           c.Query("code"),
		State:          c.Query("state"),
		CookieVerifier: cookieVerifier,
		RedirectURI:    schemeOnly(c.Request) + "://" + c.Request.Host + "/auth/oauth/callback",
	})
	if err != nil {
		h.logger.Warn("auth callback rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_callback", "error_description": "Sign-in could not be completed."})
		return
	}
	http.SetCookie(c.Writer, out.VerifierCookie)

	sessionCookie, err := h.cookies.Encode(out.Record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not persist session."})
		return
	}
	http.SetCookie(c.Writer, sessionCookie)

	c.Redirect(http.StatusFound, h.finishTarget(c, out.Record))
}

// Current reports the session this process currently holds.
func (h *SessionHandler) Current(c *gin.Context) {
	rec := h.syn.Current()
	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user_id":       rec.UserID,
		"email":         rec.UserEmail,
		"expires_at":    rec.ExpiresAt,
	})
}

// SignOut ends the session everywhere: synchronizer state, the domain
// cookie, and the relayed exchange secret.
func (h *SessionHandler) SignOut(c *gin.Context) {
	if err := h.syn.SignOut(c.Request.Context()); err != nil {
		h.logger.Error("sign out failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Sign-out failed."})
		return
	}

	http.SetCookie(c.Writer, h.cookies.Clear())
	if cookie, err := c.Request.Cookie(contextCookie); err == nil {
		if clearing, cerr := h.relay.Clear(c.Request.Context(), cookie.Value); cerr == nil {
			http.SetCookie(c.Writer, clearing)
		} else {
			h.logger.Warn("verifier clear failed", zap.Error(cerr))
		}
	}

	c.JSON(http.StatusOK, gin.H{"signed_out": true})
}

// PaymentHold suspends foreign sign-out adoption while a checkout is
// in flight.
func (h *SessionHandler) PaymentHold(c *gin.Context) {
	h.syn.BeginPaymentHold()
	c.JSON(http.StatusOK, gin.H{"holding": true})
}

// finishTarget picks the post-sign-in destination. Hosts outside the
// root domain cannot read the domain cookie, so the session rides a
// transient query parameter instead.
func (h *SessionHandler) finishTarget(c *gin.Context, rec *domain.SessionRecord) string {
	target := "/"
	if cookie, err := c.Request.Cookie(returnToCookie); err == nil {
		if decoded, derr := url.QueryUnescape(cookie.Value); derr == nil && decoded != "" {
			target = decoded
		}
		http.SetCookie(c.Writer, h.scopedCookie(returnToCookie, "", -1))
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return target
	}
	if h.sharesRootDomain(parsed.Hostname()) {
		return target
	}

	embedded, err := h.urlCodec.Embed(target, rec)
	if err != nil {
		h.logger.Warn("session handoff embed failed", zap.Error(err))
		return target
	}
	return embedded
}

func (h *SessionHandler) sharesRootDomain(host string) bool {
	host = strings.ToLower(host)
	return host == h.rootDomain || strings.HasSuffix(host, "."+h.rootDomain)
}

func (h *SessionHandler) ensureContextID(c *gin.Context) string {
	if cookie, err := c.Request.Cookie(contextCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.NewString()
	http.SetCookie(c.Writer, h.scopedCookie(contextCookie, id, 0))
	return id
}

func (h *SessionHandler) scopedCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		Domain:   "." + h.rootDomain,
		MaxAge:   maxAge,
		Secure:   h.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}
