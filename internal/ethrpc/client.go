// Package ethrpc provides a minimal JSON-RPC client for read-only
// contract calls, plus the result scraping used by the verifier.
package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pendergraft/web3auth/internal/observability/metrics"
)

// DefaultTimeout bounds a single eth_call round trip. There is no
// retry or backoff inside the client; a failed or timed-out call
// surfaces immediately and retry policy stays with the caller.
const DefaultTimeout = 10 * time.Second

// Client issues eth_call requests against a single contract on a
// configured JSON-RPC endpoint. Endpoint and contract address are
// treated as opaque strings.
type Client struct {
	endpoint   string
	contract   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// New creates a client for the given RPC endpoint and contract address.
func New(endpoint, contract string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		contract: contract,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Endpoint returns the configured RPC endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Contract returns the configured contract address.
func (c *Client) Contract() string { return c.contract }

// callRequest is the JSON-RPC envelope for eth_call.
type callRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

// callParams is the transaction object inside the params array.
type callParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// CallContract executes a read-only eth_call against the configured
// contract with the given call data (lowercase hex, no 0x prefix) and
// returns the raw response body text. The body is not interpreted
// here; ExtractResult handles that so the scraping stays swappable.
func (c *Client) CallContract(ctx context.Context, callData string) (string, error) {
	payload := callRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []any{
			callParams{To: c.contract, Data: "0x" + callData},
			"latest",
		},
		ID: 1,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordContractCall("error", time.Since(start))
		return "", fmt.Errorf("calling %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordContractCall("error", time.Since(start))
		return "", fmt.Errorf("reading response: %w", err)
	}

	// JSON-RPC errors arrive with status 200 and an error envelope;
	// a non-2xx status is a transport-level failure.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordContractCall("error", time.Since(start))
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, c.endpoint)
	}

	metrics.RecordContractCall("ok", time.Since(start))
	return string(body), nil
}
