package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
	"github.com/gabmerlin/saas-sub001/internal/http/middleware"
	"github.com/gabmerlin/saas-sub001/internal/metrics"
	"github.com/gabmerlin/saas-sub001/internal/provision"
	"github.com/gabmerlin/saas-sub001/internal/repository"
	"github.com/gabmerlin/saas-sub001/internal/subdomain"
)

// TenantHandler serves tenant resolution, availability, and
// provisioning endpoints.
type TenantHandler struct {
	resolver        *subdomain.Resolver
	repo            repository.TenantRepository
	orchestrator    *provision.Orchestrator
	rootDomain      string
	provisionSecret string
	logger          *zap.Logger
}

// NewTenantHandler wires the tenant handler.
func NewTenantHandler(resolver *subdomain.Resolver, repo repository.TenantRepository, orchestrator *provision.Orchestrator, rootDomain, provisionSecret string, logger *zap.Logger) *TenantHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &TenantHandler{
		resolver:        resolver,
		repo:            repo,
		orchestrator:    orchestrator,
		rootDomain:      rootDomain,
		provisionSecret: provisionSecret,
		logger:          logger,
	}
}

// CurrentTenant reports the tenant derived from the request host.
func (h *TenantHandler) CurrentTenant(c *gin.Context) {
	if key, ok := middleware.GetTenantKey(c); ok {
		c.JSON(http.StatusOK, gin.H{"tenant": key, "reason": "has-subdomain"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": nil, "reason": "no-subdomain"})
}

// CheckAvailability reports whether a subdomain can still be claimed.
func (h *TenantHandler) CheckAvailability(c *gin.Context) {
	sub := strings.ToLower(strings.TrimSpace(c.Query("sub")))
	if err := h.resolver.ValidateKey(sub); err != nil {
		metrics.AvailabilityResult("invalid")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_subdomain", "error_description": err.Error()})
		return
	}

	source, taken, err := h.repo.LookupSubdomain(c.Request.Context(), sub)
	if err != nil {
		h.logger.Error("availability lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Lookup failed."})
		return
	}

	fqdn := sub + "." + h.rootDomain
	if taken {
		metrics.AvailabilityResult("taken")
		c.JSON(http.StatusOK, gin.H{"available": false, "domain": fqdn, "source": source})
		return
	}
	metrics.AvailabilityResult("available")
	c.JSON(http.StatusOK, gin.H{"available": true, "domain": fqdn, "source": nil})
}

// Provision registers a subdomain with the edge host and DNS zone.
// Callers authenticate with the shared provisioning secret.
func (h *TenantHandler) Provision(c *gin.Context) {
	secret := c.GetHeader("X-Provision-Secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.provisionSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Missing or invalid provisioning secret."})
		return
	}

	var req struct {
		Subdomain string `json:"subdomain"`
		TenantID  int64  `json:"tenant_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}

	fqdn, err := h.orchestrator.Provision(c.Request.Context(), req.Subdomain)
	if err != nil {
		respondProvisionError(c, err)
		return
	}

	if req.TenantID != 0 {
		if rerr := h.repo.RecordDomain(c.Request.Context(), req.TenantID, strings.ToLower(strings.TrimSpace(req.Subdomain))); rerr != nil {
			h.logger.Warn("domain claim not recorded", zap.Error(rerr))
		}
	}

	c.JSON(http.StatusOK, gin.H{"domain": fqdn})
}

func respondProvisionError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidSubdomain) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_subdomain", "error_description": err.Error()})
		return
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "provider_error",
			"error_description": "Upstream provider rejected the request.",
			"provider":          upstream.Provider,
			"provider_status":   upstream.StatusCode,
			"provider_body":     upstream.Body,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
}
