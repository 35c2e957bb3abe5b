package certs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultGatewayTimeout for HTTP requests to the anchoring gateway.
	DefaultGatewayTimeout = 10 * time.Second
)

// HTTPGateway anchors certificate hashes through a REST blockchain gateway.
// The gateway wraps chain interaction behind a single registration endpoint,
// so retries and backoff live in the job layer, not here.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// GatewayOption configures an HTTPGateway.
type GatewayOption func(*HTTPGateway)

// WithGatewayHTTPClient sets a custom HTTP client.
func WithGatewayHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		g.httpClient = client
	}
}

func NewHTTPGateway(baseURL, apiKey string, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		httpClient: &http.Client{Timeout: DefaultGatewayTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type registerRequest struct {
	ContentHash string `json:"contentHash"`
	Network     string `json:"network"`
}

type registerResponse struct {
	TxID string `json:"txId"`
}

// Register submits a content hash and returns the transaction id.
func (g *HTTPGateway) Register(ctx context.Context, contentHash, network string) (string, error) {
	payload, err := json.Marshal(registerRequest{ContentHash: contentHash, Network: network})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	requestURL := g.baseURL + "/v1/registrations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gateway status %d: %s", resp.StatusCode, string(body))
	}

	var result registerResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if result.TxID == "" {
		return "", fmt.Errorf("gateway returned empty transaction id")
	}
	return result.TxID, nil
}
