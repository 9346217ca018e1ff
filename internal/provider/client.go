package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusClient asks one panel for the raw status payload of one order. The
// payload shape is panel-defined and unconstrained; extraction and
// normalization live in internal/status.
type StatusClient interface {
	FetchStatus(ctx context.Context, orderRef string) ([]byte, error)
}

// HTTPStatusClient is the REST implementation shared by all four panels;
// only the endpoint, key and reference parameter differ per panel.
type HTTPStatusClient struct {
	ProviderKey Key

	host       string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPStatusClient(httpClient *http.Client, key Key, host, apiKey string) *HTTPStatusClient {
	host = strings.TrimRight(host, "/")
	return &HTTPStatusClient{
		ProviderKey: key,
		host:        host,
		apiKey:      apiKey,
		httpClient:  httpClient,
	}
}

func (c *HTTPStatusClient) FetchStatus(ctx context.Context, orderRef string) ([]byte, error) {
	orderRef = strings.TrimSpace(orderRef)
	if orderRef == "" {
		return nil, NewError(KindValidation, "order reference is required")
	}

	query := url.Values{}
	query.Set("action", "status")
	query.Set("order", orderRef)
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}
	fullURL := c.host + "/api/v2?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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
	if len(strings.TrimSpace(string(body))) == 0 {
		// An empty 200 usually means a transient upstream hiccup, not
		// "no status"; surface it so the retry loop gets a chance.
		return nil, NewError(KindTransient, "empty status response")
	}
	return body, nil
}

// BackoffDelay is the schedule for transient retries: 1s, 2s, 4s, ...
// capped at 30s. attempt is zero-based.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Second << uint(attempt)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// FetchStatusWithRetry runs a bounded retry loop around FetchStatus.
// Transient failures (network, timeout, 5xx) back off and retry up to
// maxAttempts; validation and permanent failures return immediately.
func FetchStatusWithRetry(ctx context.Context, client StatusClient, orderRef string, maxAttempts int) ([]byte, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(BackoffDelay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		body, err := client.FetchStatus(ctx, orderRef)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
