// Package tonagent is a small HTTP client for the tonagent API.
package tonagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout applies to clients created without an http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Invocation states reported by the API.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Client talks to one tonagent server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// Tool is an OpenAI-style function descriptor.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// InvocationRequest submits one action. ID is optional; resubmitting an
// existing ID returns the stored invocation.
type InvocationRequest struct {
	ID        string          `json:"id,omitempty"`
	Action    string          `json:"action"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type InvocationResult struct {
	Output         string `json:"output"`
	Network        string `json:"network"`
	Address        string `json:"address"`
	DurationMillis int64  `json:"duration_ms"`
}

type Invocation struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Arguments  json.RawMessage   `json:"arguments,omitempty"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Result     *InvocationResult `json:"result,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// Done reports whether the invocation reached a final state.
func (i Invocation) Done() bool {
	return i.Status == StatusSucceeded || i.Status == StatusFailed
}

type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

type Wallet struct {
	Provider string `json:"provider"`
	Address  string `json:"address"`
	Network  string `json:"network"`
}

// ListParams filters ListInvocations and Stats. Zero values are omitted.
type ListParams struct {
	Limit    int
	Offset   int
	Statuses []string
	Actions  []string
	Query    string
	Oldest   bool
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	if len(p.Statuses) > 0 {
		v.Set("status", strings.Join(p.Statuses, ","))
	}
	if len(p.Actions) > 0 {
		v.Set("action", strings.Join(p.Actions, ","))
	}
	if p.Query != "" {
		v.Set("q", p.Query)
	}
	if p.Oldest {
		v.Set("order", "asc")
	}
	return v
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Retryable  bool              `json:"retryable"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("tonagent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tonagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient builds a client for the server at rawURL. A nil httpClient gets
// DefaultHTTPTimeout.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIKey sets the bearer token sent with every request.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Tools returns the tool descriptors for the agent's current actions.
func (c *Client) Tools(ctx context.Context) ([]Tool, error) {
	var payload struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/actions", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Tools, nil
}

// Submit queues an invocation and returns it in the pending state.
func (c *Client) Submit(ctx context.Context, req InvocationRequest) (Invocation, error) {
	var inv Invocation
	if err := c.call(ctx, http.MethodPost, "/api/v1/invocations", nil, req, &inv); err != nil {
		return Invocation{}, err
	}
	return inv, nil
}

func (c *Client) Get(ctx context.Context, id string) (Invocation, error) {
	if strings.TrimSpace(id) == "" {
		return Invocation{}, errors.New("tonagent: invocation id is empty")
	}
	var inv Invocation
	if err := c.call(ctx, http.MethodGet, "/api/v1/invocations/"+url.PathEscape(id), nil, nil, &inv); err != nil {
		return Invocation{}, err
	}
	return inv, nil
}

func (c *Client) List(ctx context.Context, params ListParams) ([]Invocation, error) {
	var payload struct {
		Invocations []Invocation `json:"invocations"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/invocations", params.values(), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Invocations, nil
}

func (c *Client) Stats(ctx context.Context, params ListParams) (Stats, error) {
	var stats Stats
	if err := c.call(ctx, http.MethodGet, "/api/v1/invocations/stats", params.values(), nil, &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (c *Client) Wallet(ctx context.Context) (Wallet, error) {
	var w Wallet
	if err := c.call(ctx, http.MethodGet, "/api/v1/wallet", nil, nil, &w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Wait polls until the invocation is done or ctx ends.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (Invocation, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		inv, err := c.Get(ctx, id)
		if err != nil {
			return Invocation{}, err
		}
		if inv.Done() {
			return inv, nil
		}
		select {
		case <-ctx.Done():
			return inv, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: path.Join(c.baseURL.Path, endpoint)})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	if len(data) > 0 {
		envelope := struct {
			Error *APIError `json:"error"`
		}{Error: apiErr}
		if err := json.Unmarshal(data, &envelope); err != nil {
			_ = json.Unmarshal(data, apiErr)
		}
	}
	apiErr.StatusCode = resp.StatusCode
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
