package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultBulkBatchSize is the server-side cap on ids per delegation call.
const DefaultBulkBatchSize = 50

// BulkClient talks to the trusted remote aggregator that can status-check
// many orders server-side in one call.
type BulkClient struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

func NewBulkClient(httpClient *http.Client, host, apiKey string) *BulkClient {
	return &BulkClient{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type BulkOrderError struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

type BulkResult struct {
	Checked int               `json:"checked"`
	Updated int               `json:"updated"`
	Errors  []BulkOrderError  `json:"errors"`
	Details []json.RawMessage `json:"details"`
}

// CheckOrders submits one sub-batch (at most DefaultBulkBatchSize ids).
// Splitting larger sets into sequential sub-batches is the reconciler's job.
func (c *BulkClient) CheckOrders(ctx context.Context, orderIDs []string) (*BulkResult, error) {
	if len(orderIDs) == 0 {
		return &BulkResult{}, nil
	}
	if len(orderIDs) > DefaultBulkBatchSize {
		return nil, NewError(KindValidation, fmt.Sprintf("batch exceeds cap of %d", DefaultBulkBatchSize))
	}

	payload, err := json.Marshal(map[string]any{
		"order_ids": orderIDs,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/internal/orders/check", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp.StatusCode, string(body))
	}

	var out BulkResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode bulk result: %w", err)
	}
	return &out, nil
}

// Ping checks delegation reachability; used by the capability probe.
func (c *BulkClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/internal/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return classifyHTTPStatus(resp.StatusCode, "")
	}
	return nil
}
