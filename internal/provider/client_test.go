package provider

import (
	"context"
	"testing"
	"time"
)

func TestBackoffDelay_Schedule(t *testing.T) {
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, d := range want {
		if got := BackoffDelay(attempt); got != d {
			t.Fatalf("BackoffDelay(%d)=%v want %v", attempt, got, d)
		}
	}
	if got := BackoffDelay(-1); got != time.Second {
		t.Fatalf("BackoffDelay(-1)=%v want 1s", got)
	}
}

type scriptedClient struct {
	calls int
	errs  []error
	body  []byte
}

func (c *scriptedClient) FetchStatus(ctx context.Context, orderRef string) ([]byte, error) {
	idx := c.calls
	c.calls++
	if idx < len(c.errs) && c.errs[idx] != nil {
		return nil, c.errs[idx]
	}
	return c.body, nil
}

func TestFetchStatusWithRetry_TransientThenSuccess(t *testing.T) {
	client := &scriptedClient{
		errs: []error{NewError(KindTransient, "blip")},
		body: []byte(`{"status":"completed"}`),
	}
	body, err := FetchStatusWithRetry(context.Background(), client, "ref-1", 3)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if string(body) != `{"status":"completed"}` {
		t.Fatalf("body=%s", body)
	}
	if client.calls != 2 {
		t.Fatalf("calls=%d want 2", client.calls)
	}
}

func TestFetchStatusWithRetry_PermanentStopsImmediately(t *testing.T) {
	client := &scriptedClient{
		errs: []error{NewError(KindPermanent, "invalid order")},
	}
	if _, err := FetchStatusWithRetry(context.Background(), client, "ref-1", 3); err == nil {
		t.Fatalf("expected error")
	}
	if client.calls != 1 {
		t.Fatalf("calls=%d want 1", client.calls)
	}
}

func TestFetchStatusWithRetry_ExhaustsAttempts(t *testing.T) {
	transient := NewError(KindTransient, "down")
	client := &scriptedClient{errs: []error{transient, transient, transient, transient}}
	if _, err := FetchStatusWithRetry(context.Background(), client, "ref-1", 2); err == nil {
		t.Fatalf("expected error")
	}
	if client.calls != 2 {
		t.Fatalf("calls=%d want 2", client.calls)
	}
}

func TestFetchStatusWithRetry_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{errs: []error{NewError(KindTransient, "down")}}
	_, err := FetchStatusWithRetry(ctx, client, "ref-1", 3)
	if err == nil {
		t.Fatalf("expected ctx error")
	}
	if client.calls != 1 {
		t.Fatalf("calls=%d want 1", client.calls)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   ErrorKind
	}{
		{500, "", KindTransient},
		{503, "", KindTransient},
		{429, "slow down", KindTransient},
		{400, "duplicate order", KindPermanent},
		{400, "invalid key", KindPermanent},
		{404, "", KindPermanent},
	}
	for _, c := range cases {
		got := classifyHTTPStatus(c.status, c.body)
		if got.Kind != c.want {
			t.Fatalf("classifyHTTPStatus(%d,%q)=%s want %s", c.status, c.body, got.Kind, c.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewError(KindTransient, "x")) {
		t.Fatalf("transient must be retryable")
	}
	if IsRetryable(NewError(KindPermanent, "x")) {
		t.Fatalf("permanent must not be retryable")
	}
	if IsRetryable(NewError(KindValidation, "x")) {
		t.Fatalf("validation must not be retryable")
	}
	// Unknown errors default to transient.
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("deadline must be retryable")
	}
}
