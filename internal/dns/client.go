package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// Client manages CNAME records in one zone through the signed provider API.
type Client struct {
	endpoint   string
	zone       string
	signer     *Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a zone client. callsPerSec throttles outbound provider
// calls; the provider rejects bursts well below its documented limit.
func NewClient(endpoint, zone string, signer *Signer, client *http.Client, callsPerSec float64, logger *zap.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if callsPerSec <= 0 {
		callsPerSec = 5
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		zone:       zone,
		signer:     signer,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(callsPerSec), 1),
		logger:     logger,
	}
}

// ListCNAME returns the IDs of existing CNAME records for sub.
func (c *Client) ListCNAME(ctx context.Context, sub string) ([]int64, error) {
	q := url.Values{}
	q.Set("fieldType", "CNAME")
	q.Set("subDomain", sub)
	target := fmt.Sprintf("%s/domain/zone/%s/record?%s", c.endpoint, c.zone, q.Encode())

	var ids []int64
	if err := c.do(ctx, http.MethodGet, target, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateCNAME creates a CNAME record sub -> target. A conflict response means
// the record appeared between a list and this create; it is reported as
// success so concurrent provisioning calls converge.
func (c *Client) CreateCNAME(ctx context.Context, sub, recordTarget string) error {
	body := map[string]any{
		"fieldType": "CNAME",
		"subDomain": sub,
		"target":    recordTarget,
		"ttl":       0,
	}
	target := fmt.Sprintf("%s/domain/zone/%s/record", c.endpoint, c.zone)
	err := c.do(ctx, http.MethodPost, target, body, nil)
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode == http.StatusConflict {
		c.logger.Info("cname already present", zap.String("subdomain", sub))
		return nil
	}
	return err
}

// UpdateCNAME rewrites an existing record's target in place.
func (c *Client) UpdateCNAME(ctx context.Context, recordID int64, sub, recordTarget string) error {
	body := map[string]any{
		"subDomain": sub,
		"target":    recordTarget,
	}
	target := fmt.Sprintf("%s/domain/zone/%s/record/%d", c.endpoint, c.zone, recordID)
	return c.do(ctx, http.MethodPut, target, body, nil)
}

// Refresh triggers zone propagation. A failure here is a hard error: the
// record may exist without being served.
func (c *Client) Refresh(ctx context.Context) error {
	target := fmt.Sprintf("%s/domain/zone/%s/refresh", c.endpoint, c.zone)
	return c.do(ctx, http.MethodPost, target, nil, nil)
}

func (c *Client) do(ctx context.Context, method, target string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var rawBody string
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rawBody = string(encoded)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.signer.Sign(ctx, req, rawBody); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dns request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read dns response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.UpstreamError{Provider: "dns", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode dns response: %w", err)
		}
	}
	return nil
}
