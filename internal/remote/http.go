package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reptrack/backend/internal/models"
)

// HTTPConfig holds connection configuration for the exercise API.
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPClient implements Client against the exercise REST API.
type HTTPClient struct {
	config     HTTPConfig
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(config HTTPConfig) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// FetchAll returns the full current remote snapshot.
func (c *HTTPClient) FetchAll(ctx context.Context) ([]*models.Exercise, error) {
	var exercises []*models.Exercise
	if err := c.do(ctx, http.MethodGet, "/api/exercises", nil, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

// Create persists a new exercise remotely.
func (c *HTTPClient) Create(ctx context.Context, e *models.Exercise) (*models.Exercise, error) {
	var created models.Exercise
	if err := c.do(ctx, http.MethodPost, "/api/exercises", e, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Mutate applies a patch to the record identified by id.
func (c *HTTPClient) Mutate(ctx context.Context, id string, patch Patch) (*models.Exercise, error) {
	var updated models.Exercise
	path := "/api/exercises/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Ping checks reachability of the API without touching any records.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// do executes one request with auth-header injection and decodes the JSON
// response into out when out is non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
