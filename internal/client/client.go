// Package client provides an HTTP client for the Suri Search API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/surisearch/suri-search/internal/accuracy"
	"github.com/surisearch/suri-search/internal/ask"
	"github.com/surisearch/suri-search/internal/schema"
)

// Client is an HTTP client for the Suri Search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 120 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// APIError represents an API error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health checks if the API is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.get(ctx, "/v1/version", &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Ask answers one question.
func (c *Client) Ask(ctx context.Context, req ask.Request) (*ask.Outcome, error) {
	var outcome ask.Outcome
	if err := c.post(ctx, "/v1/ask", req, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// DocumentPayload is a document body for analysis, discovery or upload.
type DocumentPayload struct {
	Name       string `json:"name"`
	Kind       string `json:"kind,omitempty"`
	Content    string `json:"content"`
	SlugHint   string `json:"slug_hint,omitempty"`
	SchemaSlug string `json:"schema_slug,omitempty"`
	Partition  string `json:"partition,omitempty"`
}

// Analyze runs structure analysis without writing anything. The response
// carries the raw analysis plus the best schema match.
func (c *Client) Analyze(ctx context.Context, doc DocumentPayload) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.post(ctx, "/v1/analyze", doc, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DiscoverSchema derives or updates a schema from the document.
func (c *Client) DiscoverSchema(ctx context.Context, doc DocumentPayload) (*schema.DiscoveryResult, error) {
	var result schema.DiscoveryResult
	if err := c.post(ctx, "/v1/schemas/discover", doc, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSchemas returns all registered schemas.
func (c *Client) ListSchemas(ctx context.Context) ([]*schema.SchemaDefinition, error) {
	var resp struct {
		Schemas []*schema.SchemaDefinition `json:"schemas"`
	}
	if err := c.get(ctx, "/v1/schemas", &resp); err != nil {
		return nil, err
	}
	return resp.Schemas, nil
}

// GetSchema returns one schema by slug.
func (c *Client) GetSchema(ctx context.Context, slug string) (*schema.SchemaDefinition, error) {
	var def schema.SchemaDefinition
	if err := c.get(ctx, "/v1/schemas/"+url.PathEscape(slug), &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// AddAlias registers an alias on a schema field.
func (c *Client) AddAlias(ctx context.Context, slug, field, alias string) error {
	req := map[string]string{"field": field, "alias": alias}
	return c.post(ctx, "/v1/schemas/"+url.PathEscape(slug)+"/aliases", req, nil)
}

// UploadDocument enqueues a document for ingestion and returns the job id.
func (c *Client) UploadDocument(ctx context.Context, doc DocumentPayload) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.post(ctx, "/v1/documents", doc, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// ListTests returns the accuracy tests, optionally scoped to a schema.
func (c *Client) ListTests(ctx context.Context, schemaSlug string) ([]accuracy.Test, error) {
	path := "/v1/accuracy/tests"
	if schemaSlug != "" {
		path += "?schema=" + url.QueryEscape(schemaSlug)
	}
	var resp struct {
		Tests []accuracy.Test `json:"tests"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Tests, nil
}

// CreateTest registers an accuracy test.
func (c *Client) CreateTest(ctx context.Context, test accuracy.Test) (*accuracy.Test, error) {
	var created accuracy.Test
	if err := c.post(ctx, "/v1/accuracy/tests", test, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// RunSuite runs the accuracy suite for a schema.
func (c *Client) RunSuite(ctx context.Context, schemaSlug, category, priority string) (*accuracy.SuiteReport, error) {
	req := map[string]string{
		"schema_slug": schemaSlug,
		"category":    category,
		"priority":    priority,
	}
	var report accuracy.SuiteReport
	if err := c.post(ctx, "/v1/accuracy/run", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// History returns one test's result history, newest first.
func (c *Client) History(ctx context.Context, testID string, limit int) ([]accuracy.Result, error) {
	path := "/v1/accuracy/history?test=" + url.QueryEscape(testID)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	var resp struct {
		Results []accuracy.Result `json:"results"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ListActions returns the optimization audit trail, newest first.
func (c *Client) ListActions(ctx context.Context, limit int) ([]accuracy.Action, error) {
	path := "/v1/accuracy/actions"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var resp struct {
		Actions []accuracy.Action `json:"actions"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// Optimize runs the suite, diagnoses failures and applies the suggestions.
// With dryRun the server previews the changes without mutating anything.
func (c *Client) Optimize(ctx context.Context, schemaSlug string, dryRun bool) (json.RawMessage, error) {
	req := map[string]any{"schema_slug": schemaSlug, "dry_run": dryRun}
	var raw json.RawMessage
	if err := c.post(ctx, "/v1/optimize", req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return &apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
