package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"boostpanel/internal/cache"
	"boostpanel/internal/config"
	"boostpanel/internal/provider"
)

type bulkServer struct {
	mu       sync.Mutex
	batches  [][]string
	fail     bool
	failFrom int // 1-based sub-batch index to start failing at; 0 never
	onBatch  func(ids []string)
}

func (s *bulkServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/internal/orders/check", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		fail := s.fail || (s.failFrom > 0 && len(s.batches)+1 >= s.failFrom)
		s.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req struct {
			OrderIDs []string `json:"order_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.batches = append(s.batches, req.OrderIDs)
		s.mu.Unlock()
		if s.onBatch != nil {
			s.onBatch(req.OrderIDs)
		}
		_ = json.NewEncoder(w).Encode(provider.BulkResult{
			Checked: len(req.OrderIDs),
			Updated: len(req.OrderIDs),
		})
	})
	return mux
}

func newBulkFixture(t *testing.T, repo *stubRepo, srv *httptest.Server, statusClient provider.StatusClient) *BulkCheckService {
	t.Helper()
	store := cache.NewMemoryStore()
	if err := store.Set(context.Background(), delegationAvailableKey, []byte("1"), time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	fallback := newSyncFixture(repo, statusClient)
	return &BulkCheckService{
		Repo:   repo,
		Logger: zap.NewNop(),
		Config: config.BulkCheckConfig{
			BaseURL:   srv.URL,
			APIKey:    "test-key",
			Timeout:   5 * time.Second,
			BatchSize: 2,
			MinOrders: 3,
		},
		Cache:    store,
		Client:   provider.NewBulkClient(srv.Client(), srv.URL, "test-key"),
		Fallback: fallback,
	}
}

func TestBulkCheck_SubBatches(t *testing.T) {
	repo := newStubRepo()
	bs := &bulkServer{}
	srv := httptest.NewServer(bs.handler())
	defer srv.Close()

	for _, id := range []string{"o-1", "o-2", "o-3", "o-4", "o-5"} {
		seedSyncOrder(repo, id, "sm-"+id, "0")
	}
	svc := newBulkFixture(t, repo, srv, &fakeStatusClient{})

	res, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Checked != 5 || res.Updated != 5 {
		t.Fatalf("result %+v", res)
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.batches) != 3 {
		t.Fatalf("batches=%d want 3", len(bs.batches))
	}
	sizes := []int{len(bs.batches[0]), len(bs.batches[1]), len(bs.batches[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("batch sizes %v want [2 2 1]", sizes)
	}
}

func TestBulkCheck_TransportFailureFallsBack(t *testing.T) {
	repo := newStubRepo()
	bs := &bulkServer{fail: true}
	srv := httptest.NewServer(bs.handler())
	defer srv.Close()

	statusClient := &fakeStatusClient{responses: map[string][]byte{}}
	for _, id := range []string{"f-1", "f-2", "f-3"} {
		ref := "sm-" + id
		statusClient.responses[ref] = []byte(`{"status":"completed"}`)
		seedSyncOrder(repo, id, ref, "0")
	}
	svc := newBulkFixture(t, repo, srv, statusClient)

	res, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// The whole eligible set must be re-checked in-process.
	if res.Checked != 3 || res.Updated != 3 {
		t.Fatalf("result %+v", res)
	}
	for _, id := range []string{"f-1", "f-2", "f-3"} {
		o, _ := repo.GetOrderByID(context.Background(), id)
		if o.Status != "completed" {
			t.Fatalf("order %s status=%s want completed", id, o.Status)
		}
	}
	// Failed delegation must drop the availability flag.
	if DelegationAvailable(context.Background(), svc.Cache) {
		t.Fatalf("delegation still marked available after transport failure")
	}
}

func TestBulkCheck_PartialDelegationFallbackSkipsHandled(t *testing.T) {
	repo := newStubRepo()
	bs := &bulkServer{failFrom: 2}
	// The aggregator shares the store, so handled orders come back with a
	// fresh last_status_check.
	bs.onBatch = func(ids []string) {
		for _, id := range ids {
			_ = repo.TouchLastStatusCheck(context.Background(), id, time.Now().UTC())
		}
	}
	srv := httptest.NewServer(bs.handler())
	defer srv.Close()

	statusClient := &fakeStatusClient{responses: map[string][]byte{}}
	for _, id := range []string{"h-1", "h-2", "h-3", "h-4", "h-5"} {
		ref := "sm-" + id
		statusClient.responses[ref] = []byte(`{"status":"completed"}`)
		seedSyncOrder(repo, id, ref, "0")
	}
	svc := newBulkFixture(t, repo, srv, statusClient)

	res, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// Two orders went through the first sub-batch remotely; the fallback
	// covers the remaining three and the counts cover all five.
	if res.Checked != 5 || res.Updated != 5 {
		t.Fatalf("result %+v", res)
	}
	statusClient.mu.Lock()
	calls := statusClient.calls
	statusClient.mu.Unlock()
	if calls != 3 {
		t.Fatalf("in-process polls=%d want 3", calls)
	}
	for _, id := range []string{"h-1", "h-2"} {
		o, _ := repo.GetOrderByID(context.Background(), id)
		if o.Status != "processing" {
			t.Fatalf("order %s re-polled after remote handling: status=%s", id, o.Status)
		}
	}
	for _, id := range []string{"h-3", "h-4", "h-5"} {
		o, _ := repo.GetOrderByID(context.Background(), id)
		if o.Status != "completed" {
			t.Fatalf("order %s status=%s want completed", id, o.Status)
		}
	}
}

func TestBulkCheck_BelowThresholdStaysInProcess(t *testing.T) {
	repo := newStubRepo()
	bs := &bulkServer{}
	srv := httptest.NewServer(bs.handler())
	defer srv.Close()

	statusClient := &fakeStatusClient{responses: map[string][]byte{
		"sm-s-1": []byte(`{"status":"completed"}`),
		"sm-s-2": []byte(`{"status":"partial"}`),
	}}
	seedSyncOrder(repo, "s-1", "sm-s-1", "0")
	seedSyncOrder(repo, "s-2", "sm-s-2", "0")
	svc := newBulkFixture(t, repo, srv, statusClient)

	res, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Checked != 2 || res.Updated != 2 {
		t.Fatalf("result %+v", res)
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.batches) != 0 {
		t.Fatalf("delegation used below threshold: %v", bs.batches)
	}
}

func TestBulkCheck_ProbeUnavailableStaysInProcess(t *testing.T) {
	repo := newStubRepo()
	bs := &bulkServer{}
	srv := httptest.NewServer(bs.handler())
	defer srv.Close()

	statusClient := &fakeStatusClient{responses: map[string][]byte{}}
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		ref := "sm-" + id
		statusClient.responses[ref] = []byte(`{"status":"processing"}`)
		seedSyncOrder(repo, id, ref, "0")
	}
	svc := newBulkFixture(t, repo, srv, statusClient)
	if err := svc.Cache.Delete(context.Background(), delegationAvailableKey); err != nil {
		t.Fatalf("clear cache: %v", err)
	}

	res, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Checked != 3 {
		t.Fatalf("result %+v", res)
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if len(bs.batches) != 0 {
		t.Fatalf("delegation used while flagged unavailable")
	}
}
