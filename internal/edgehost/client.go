package edgehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// Client attaches fully-qualified domain names to a hosting project through
// the provider's bearer-token API.
type Client struct {
	apiURL     string
	token      string
	projectID  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an edge host client for one project.
func NewClient(apiURL, token, projectID string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      token,
		projectID:  projectID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// AttachDomain registers fqdn with the hosting project. A response saying the
// domain is already attached counts as success so retries stay idempotent.
func (c *Client) AttachDomain(ctx context.Context, fqdn string) error {
	payload, err := json.Marshal(map[string]string{"name": fqdn})
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	target := fmt.Sprintf("%s/v10/projects/%s/domains", c.apiURL, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("edge host request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read edge host response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if alreadyAttached(resp.StatusCode, raw) {
		c.logger.Info("domain already attached to project", zap.String("fqdn", fqdn))
		return nil
	}

	return &domain.UpstreamError{Provider: "edgehost", StatusCode: resp.StatusCode, Body: string(raw)}
}

// alreadyAttached recognizes the provider's "domain already in use by this
// project" answers across the status codes it has been seen to use.
func alreadyAttached(status int, raw []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	switch body.Error.Code {
	case "domain_already_in_use", "domain_already_in_use_by_project":
		return true
	}
	return false
}
