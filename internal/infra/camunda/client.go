package camunda

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hmcts/wa-task-management-api-sub002/internal/infra/config"
)

const defaultTimeout = 10 * time.Second

// ErrNotFound is returned when the engine reports 404 for the addressed resource.
var ErrNotFound = errors.New("camunda resource not found")

// APIError wraps non-2xx engine responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("camunda %s %s: status=%d type=%s message=%s", e.Method, e.Path, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("camunda %s %s: status=%d", e.Method, e.Path, e.StatusCode)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the Camunda engine REST API.
type Client struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client with an instrumented transport.
func NewClient(cfg config.CamundaSettings, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return newClient(cfg, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, logger)
}

func newClient(cfg config.CamundaSettings, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tenantID:   strings.TrimSpace(cfg.TenantID),
		httpClient: httpClient,
		logger:     logger,
	}
}

type engineError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode camunda request: %w", err)
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build camunda request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("camunda %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var payload engineError
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil && len(raw) > 0 {
			if json.Unmarshal(raw, &payload) == nil {
				apiErr.Type = payload.Type
				apiErr.Message = payload.Message
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode camunda response: %w", err)
	}
	return nil
}

func taskPath(taskID string, suffix string) string {
	return "/task/" + url.PathEscape(taskID) + suffix
}
