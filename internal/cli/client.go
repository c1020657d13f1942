// =============================================================================
// CLI HTTP CLIENT - ADMIN INTERFACE TO A TXNCORE BROKER
// =============================================================================
//
// A lightweight HTTP client over the admin API (internal/api), used by
// cmd/goqueue-txnctl. Trimmed to the transaction admin plane the broker
// actually exposes: health, topic listing and creation, and
// list/describe/abort-transaction.
//
// =============================================================================

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig holds configuration for the CLI HTTP client.
type ClientConfig struct {
	ServerURL string
	Timeout   time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL: "http://localhost:8080",
		Timeout:   10 * time.Second,
	}
}

// Client is the HTTP client for CLI operations.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new CLI HTTP client.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// APIError represents an error response from the admin API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	u, err := url.JoinPath(c.config.ServerURL, path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// HealthResponse is the response from /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// Health checks broker liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTopicsResponse is the response from /topics.
type ListTopicsResponse struct {
	Topics []string `json:"topics"`
}

// ListTopics returns every topic known to the broker.
func (c *Client) ListTopics(ctx context.Context) (*ListTopicsResponse, error) {
	var resp ListTopicsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/topics", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTopic creates a topic with the given partition count.
func (c *Client) CreateTopic(ctx context.Context, name string, numPartitions int) error {
	req := map[string]any{"name": name, "num_partitions": numPartitions}
	return c.doRequest(ctx, http.MethodPost, "/topics", req, nil)
}

// TransactionEntry is one row of the list-transactions admin view.
type TransactionEntry struct {
	TransactionalID string `json:"transactional_id"`
	State           string `json:"state"`
}

// ListTransactionsResponse is the response from /transactions.
type ListTransactionsResponse struct {
	Transactions []TransactionEntry `json:"transactions"`
}

// ListTransactions lists every transactional producer, optionally filtered
// by state (e.g. "Ongoing").
func (c *Client) ListTransactions(ctx context.Context, state string) (*ListTransactionsResponse, error) {
	path := "/transactions"
	if state != "" {
		q := url.Values{}
		q.Set("state", state)
		path += "?" + q.Encode()
	}
	var resp ListTransactionsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TransactionDetail is the full response from describe-transaction.
type TransactionDetail struct {
	TransactionID   string           `json:"transaction_id"`
	TransactionalID string           `json:"transactional_id"`
	ProducerID      int64            `json:"producer_id"`
	Epoch           int16            `json:"epoch"`
	State           string           `json:"state"`
	StartTime       time.Time        `json:"start_time"`
	Partitions      map[string][]int `json:"partitions"`
}

// DescribeTransaction fetches full metadata for one transactional ID.
func (c *Client) DescribeTransaction(ctx context.Context, transactionalID string) (*TransactionDetail, error) {
	var resp TransactionDetail
	if err := c.doRequest(ctx, http.MethodGet, "/transactions/"+transactionalID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AbortTransaction force-aborts the transaction currently open for id.
func (c *Client) AbortTransaction(ctx context.Context, transactionalID string) error {
	return c.doRequest(ctx, http.MethodPost, "/transactions/"+transactionalID+"/abort", nil, nil)
}
