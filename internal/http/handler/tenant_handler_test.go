package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
	httpmiddleware "github.com/gabmerlin/saas-sub001/internal/http/middleware"
	"github.com/gabmerlin/saas-sub001/internal/provision"
	"github.com/gabmerlin/saas-sub001/internal/subdomain"
)

type fakeTenantRepo struct {
	taken    map[string]string
	recorded []string
	err      error
}

func (f *fakeTenantRepo) LookupSubdomain(_ context.Context, sub string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	source, ok := f.taken[sub]
	return source, ok, nil
}

func (f *fakeTenantRepo) GetTenantByKey(context.Context, string) (domain.Tenant, error) {
	return domain.Tenant{}, nil
}

func (f *fakeTenantRepo) RecordDomain(_ context.Context, _ int64, host string) error {
	f.recorded = append(f.recorded, host)
	return nil
}

type fakeEdge struct {
	err   error
	calls int
}

func (f *fakeEdge) AttachDomain(context.Context, string) error {
	f.calls++
	return f.err
}

type fakeZone struct {
	created int
}

func (f *fakeZone) ListCNAME(context.Context, string) ([]int64, error) { return nil, nil }
func (f *fakeZone) CreateCNAME(context.Context, string, string) error {
	f.created++
	return nil
}
func (f *fakeZone) UpdateCNAME(context.Context, int64, string, string) error { return nil }
func (f *fakeZone) Refresh(context.Context) error                            { return nil }

type tenantHarness struct {
	router *gin.Engine
	repo   *fakeTenantRepo
	edge   *fakeEdge
	zone   *fakeZone
}

func newTenantHarness(t *testing.T) *tenantHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	resolver := subdomain.NewResolver([]string{"example.com"}, "dev", []string{"www", "api"})
	repo := &fakeTenantRepo{taken: map[string]string{}}
	edge := &fakeEdge{}
	zone := &fakeZone{}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	orchestrator := provision.NewOrchestrator("example.com", "edge.invalid.", edge, zone, resolver, node, zap.NewNop())
	h := NewTenantHandler(resolver, repo, orchestrator, "example.com", "top-secret", zap.NewNop())

	router := gin.New()
	router.Use(httpmiddleware.TenantResolver(resolver))
	router.GET("/api/tenant", h.CurrentTenant)
	router.GET("/api/subdomains/check", h.CheckAvailability)
	router.POST("/api/subdomains/provision", h.Provision)

	return &tenantHarness{router: router, repo: repo, edge: edge, zone: zone}
}

func (h *tenantHarness) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestCurrentTenantResolved(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	req.Host = "acme.example.com"
	w, body := h.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "acme", body["tenant"])
	require.Equal(t, "has-subdomain", body["reason"])
}

func TestCurrentTenantApex(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tenant", nil)
	req.Host = "example.com"
	w, body := h.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, body["tenant"])
	require.Equal(t, "no-subdomain", body["reason"])
}

func TestCheckAvailabilityFree(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/subdomains/check?sub=acme", nil)
	w, body := h.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["available"])
	require.Equal(t, "acme.example.com", body["domain"])
	require.Contains(t, body, "source")
	require.Nil(t, body["source"])
}

func TestCheckAvailabilityTaken(t *testing.T) {
	h := newTenantHarness(t)
	h.repo.taken["acme"] = "tenants"

	req := httptest.NewRequest(http.MethodGet, "/api/subdomains/check?sub=ACME", nil)
	w, body := h.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, body["available"])
	require.Equal(t, "acme.example.com", body["domain"])
	require.Equal(t, "tenants", body["source"])
}

func TestCheckAvailabilityInvalid(t *testing.T) {
	h := newTenantHarness(t)

	for _, sub := range []string{"", "ab", "-bad", "www"} {
		req := httptest.NewRequest(http.MethodGet, "/api/subdomains/check?sub="+sub, nil)
		w, body := h.do(req)

		require.Equal(t, http.StatusBadRequest, w.Code, "subdomain %q", sub)
		require.Equal(t, "invalid_subdomain", body["error"])
	}
}

func TestCheckAvailabilityIgnoresLegacyParam(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/subdomains/check?subdomain=acme", nil)
	w, body := h.do(req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_subdomain", body["error"])
}

func TestProvisionRequiresSecret(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/subdomains/provision", strings.NewReader(`{"subdomain":"acme"}`))
	w, body := h.do(req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "unauthorized", body["error"])
	require.Zero(t, h.edge.calls)
}

func TestProvisionRejectsWrongSecret(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/subdomains/provision", strings.NewReader(`{"subdomain":"acme"}`))
	req.Header.Set("X-Provision-Secret", "guess")
	w, _ := h.do(req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, h.edge.calls)
}

func TestProvisionHappyPath(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/subdomains/provision", strings.NewReader(`{"subdomain":"acme","tenant_id":7}`))
	req.Header.Set("X-Provision-Secret", "top-secret")
	w, body := h.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "acme.example.com", body["domain"])
	require.Equal(t, 1, h.edge.calls)
	require.Equal(t, 1, h.zone.created)
	require.Equal(t, []string{"acme"}, h.repo.recorded)
}

func TestProvisionInvalidSubdomain(t *testing.T) {
	h := newTenantHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/subdomains/provision", strings.NewReader(`{"subdomain":"-bad-"}`))
	req.Header.Set("X-Provision-Secret", "top-secret")
	w, body := h.do(req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_subdomain", body["error"])
}

func TestProvisionUpstreamFailure(t *testing.T) {
	h := newTenantHarness(t)
	h.edge.err = &domain.UpstreamError{Provider: "edgehost", StatusCode: 403, Body: "forbidden"}

	req := httptest.NewRequest(http.MethodPost, "/api/subdomains/provision", strings.NewReader(`{"subdomain":"acme"}`))
	req.Header.Set("X-Provision-Secret", "top-secret")
	w, body := h.do(req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "provider_error", body["error"])
	require.Equal(t, "edgehost", body["provider"])
	require.Equal(t, "forbidden", body["provider_body"])
}
