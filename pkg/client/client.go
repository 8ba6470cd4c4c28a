// Package client provides a Go client for the web3auth API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client is a web3auth API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new web3auth client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Credentials carries the digest credential fields to verify
type Credentials struct {
	Username string `json:"username"`
	Realm    string `json:"realm"`
	URI      string `json:"uri"`
	Nonce    string `json:"nonce"`
	Response string `json:"response"`
	Method   string `json:"method"`
}

// VerifyResult is the server's verdict on one credential set
type VerifyResult struct {
	Verdict  string `json:"verdict"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Attempt is one audited verification attempt
type Attempt struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Realm      string `json:"realm"`
	Method     string `json:"method"`
	URI        string `json:"uri,omitempty"`
	Transport  string `json:"transport"`
	Verdict    string `json:"verdict"`
	Reason     string `json:"reason,omitempty"`
	DurationMS int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

// ListAttemptsResponse is the response for listing attempts
type ListAttemptsResponse struct {
	Data       []Attempt  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// AttemptFilter narrows an attempt listing
type AttemptFilter struct {
	Username string
	Realm    string
	Verdict  string
	Limit    int
	Cursor   string
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Verify submits credentials for verification against the contract
func (c *Client) Verify(ctx context.Context, creds Credentials) (*VerifyResult, error) {
	var resp VerifyResult
	if err := c.post(ctx, "/api/v1/verify", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAttempts lists audited verification attempts
func (c *Client) ListAttempts(ctx context.Context, filter AttemptFilter) (*ListAttemptsResponse, error) {
	q := url.Values{}
	if filter.Username != "" {
		q.Set("username", filter.Username)
	}
	if filter.Realm != "" {
		q.Set("realm", filter.Realm)
	}
	if filter.Verdict != "" {
		q.Set("verdict", filter.Verdict)
	}
	if filter.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", filter.Limit))
	}
	if filter.Cursor != "" {
		q.Set("cursor", filter.Cursor)
	}

	path := "/api/v1/attempts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListAttemptsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAttempt gets one attempt by ID
func (c *Client) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	var resp Attempt
	if err := c.get(ctx, "/api/v1/attempts/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports whether the server answers its health check
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return &errResp.Error
}
