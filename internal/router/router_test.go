package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsy-inventory-api/internal/cache"
	"shopsy-inventory-api/internal/feed"
	"shopsy-inventory-api/internal/handler"
	"shopsy-inventory-api/internal/metrics"
	"shopsy-inventory-api/internal/middleware"
	"shopsy-inventory-api/internal/model"
	"shopsy-inventory-api/internal/notify"
	"shopsy-inventory-api/internal/repository"
	"shopsy-inventory-api/internal/service"
)

const testAPIKey = "test-key"

type testServer struct {
	*httptest.Server
	store *repository.SQLStore
	svc   *service.StockService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { mem.Close() })
	notifier := notify.NewLocalNotifier()
	t.Cleanup(func() { notifier.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(registry)

	svc := service.NewStockService(store, store, service.Options{
		Cache:    cache.NewStockCache(mem, "test", time.Minute),
		Notifier: notifier,
		Metrics:  m,
	})
	changeFeed := feed.New(store, store, notifier, m, feed.Config{PollInterval: 20 * time.Millisecond}, nil)

	r := New(Config{
		Handler:          handler.New("shopsy-inventory-api", "test", handler.ReadinessCheck{Name: "database", Check: store.Ping}),
		InventoryHandler: handler.NewInventoryHandler(svc, nil),
		FeedHandler:      handler.NewFeedHandler(changeFeed, nil),
		AdminHandler:     handler.NewAdminHandler(store, "memory", "local"),
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthMiddleware:   middleware.NewAuthMiddleware(middleware.AuthConfig{APIKeys: []string{testAPIKey}}),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, svc: svc}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Total int64 `json:"total"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, body string, withKey bool) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) create(t *testing.T, productID string, quantity int) model.StockSnapshot {
	t.Helper()
	body := `{"product_id":"` + productID + `","quantity_available":` + itoa(quantity) + `,"low_stock_threshold":5}`
	status, env := s.do(t, http.MethodPost, "/api/v1/inventory", body, true)
	require.Equal(t, http.StatusCreated, status)
	var snap model.StockSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	return snap
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/health", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, env = s.do(t, http.MethodGet, "/api/v1/ready", "", false)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"database"`)

	status, _ = s.do(t, http.MethodGet, "/api/status", "", false)
	assert.Equal(t, http.StatusOK, status)
}

func TestCreateRequiresAPIKey(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/inventory", `{"product_id":"p1","quantity_available":5}`, false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	snap := s.create(t, "p1", 5)
	assert.Equal(t, "p1", snap.ProductID)
	assert.Equal(t, model.StatusLowStock, snap.Status)

	status, env = s.do(t, http.MethodPost, "/api/v1/inventory", `{"product_id":"p1","quantity_available":5}`, true)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)
}

func TestReserveReleaseConfirmFlow(t *testing.T) {
	s := newTestServer(t)
	snap := s.create(t, "p1", 20)
	base := "/api/v1/inventory/" + snap.ID

	status, env := s.do(t, http.MethodPost, base+"/reserve_stock", `{"quantity":16}`, false)
	require.Equal(t, http.StatusOK, status)
	var mr handler.MutationResponse
	require.NoError(t, json.Unmarshal(env.Data, &mr))
	assert.Equal(t, "success", mr.Status)
	assert.Equal(t, "Reserved 16 units", mr.Message)
	assert.Equal(t, 4, mr.Inventory.QuantityAvailable)
	assert.Equal(t, model.StatusLowStock, mr.Inventory.Status)

	status, env = s.do(t, http.MethodPost, base+"/reserve_stock", `{"quantity":5}`, false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)
	assert.Equal(t, "Cannot reserve 5 units. Only 4 available.", env.Error.Message)

	status, _ = s.do(t, http.MethodPost, base+"/release_stock/", `{"quantity":"6"}`, false)
	assert.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodPost, base+"/confirm_sale", `{"quantity":11}`, false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INSUFFICIENT_RESERVED", env.Error.Code)

	status, _ = s.do(t, http.MethodPost, base+"/confirm_sale", `{"quantity":10}`, false)
	assert.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodPost, base+"/reserve_stock", `{}`, false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_QUANTITY", env.Error.Code)

	status, env = s.do(t, http.MethodPost, base+"/reserve_stock", `{"quantity":"lots"}`, false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_QUANTITY", env.Error.Code)

	status, env = s.do(t, http.MethodGet, base+"/events", "", false)
	require.Equal(t, http.StatusOK, status)
	var entries []model.LedgerEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, model.EventSaleConfirmed, entries[0].EventType)
	assert.Equal(t, model.EventLowStockWarning, entries[2].EventType)

	status, env = s.do(t, http.MethodGet, base, "", false)
	require.Equal(t, http.StatusOK, status)
	var got model.StockSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 10, got.QuantityAvailable)
	assert.Zero(t, got.QuantityReserved)
	assert.Equal(t, 10, got.QuantitySold)
	assert.Equal(t, 10, got.QuantityTotal)
}

func TestUnknownRecordIs404(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/inventory/nope", "", false)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = s.do(t, http.MethodPost, "/api/v1/inventory/nope/reserve_stock", `{"quantity":1}`, false)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSetQuantityAndCheckStock(t *testing.T) {
	s := newTestServer(t)
	a := s.create(t, "a", 3)
	s.create(t, "b", 50)

	status, env := s.do(t, http.MethodGet, "/api/v1/inventory/check_stock?product_ids=a,b&product_ids=zzz", "", false)
	require.Equal(t, http.StatusOK, status)
	var snaps []model.StockSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snaps))
	require.Len(t, snaps, 2)
	assert.Equal(t, 3, snaps[0].QuantityAvailable)

	status, _ = s.do(t, http.MethodPut, "/api/v1/inventory/"+a.ID+"/quantity", `{"quantity":0}`, false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodPut, "/api/v1/inventory/"+a.ID+"/quantity", `{"quantity":3000000000}`, true)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_QUANTITY", env.Error.Code)

	status, _ = s.do(t, http.MethodPut, "/api/v1/inventory/"+a.ID+"/quantity", `{"quantity":0}`, true)
	require.Equal(t, http.StatusOK, status)

	_, env = s.do(t, http.MethodGet, "/api/v1/inventory/check_stock?product_ids=a", "", false)
	require.NoError(t, json.Unmarshal(env.Data, &snaps))
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].IsOutOfStock)

	status, env = s.do(t, http.MethodGet, "/api/v1/inventory/check_stock", "", false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestListAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "a", 1)
	s.create(t, "b", 2)

	status, env := s.do(t, http.MethodGet, "/api/v1/inventory?limit=1", "", false)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(2), env.Meta.Total)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/inventory/product/a", "", true)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, "/api/v1/inventory/product/a", "", true)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPollingChanges(t *testing.T) {
	s := newTestServer(t)
	a := s.create(t, "a", 10)
	b := s.create(t, "b", 10)
	_, err := s.svc.ReserveStock(context.Background(), a.ID, 1)
	require.NoError(t, err)
	_, err = s.svc.ReserveStock(context.Background(), b.ID, 1)
	require.NoError(t, err)

	status, env := s.do(t, http.MethodGet, "/api/v1/polling/inventory/changes/", "", false)
	require.Equal(t, http.StatusOK, status)
	var changes handler.ChangesResponse
	require.NoError(t, json.Unmarshal(env.Data, &changes))
	assert.Equal(t, 2, changes.Count)

	since := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	_, env = s.do(t, http.MethodGet, "/api/v1/polling/inventory/changes?product_id=b&since="+since, "", false)
	require.NoError(t, json.Unmarshal(env.Data, &changes))
	require.Equal(t, 1, changes.Count)
	assert.Equal(t, "b", changes.Events[0].ProductID)

	status, env = s.do(t, http.MethodGet, "/api/v1/polling/inventory/changes?since=not-a-date", "", false)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MALFORMED_CURSOR", env.Error.Code)
}

func TestPushStream(t *testing.T) {
	s := newTestServer(t)
	a := s.create(t, "a", 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+"/api/v1/events/inventory/?product_id=a&session_id=s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	frames := make(chan string, 16)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				frames <- strings.TrimPrefix(line, "data: ")
			}
		}
	}()

	next := func() string {
		select {
		case f := <-frames:
			return f
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for frame")
			return ""
		}
	}

	assert.JSONEq(t, `{"type":"connection","status":"connected"}`, next())

	_, err = s.svc.ReserveStock(context.Background(), a.ID, 7)
	require.NoError(t, err)

	var entry model.LedgerEntry
	require.NoError(t, json.Unmarshal([]byte(next()), &entry))
	assert.Equal(t, "a", entry.ProductID)
	assert.Equal(t, model.EventLowStockWarning, entry.EventType)
	assert.Equal(t, 3, entry.NewQuantity)

	require.Eventually(t, func() bool {
		n, err := s.store.CountSubscriptions(context.Background())
		return err == nil && n == 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		n, err := s.store.CountSubscriptions(context.Background())
		return err == nil && n == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAdminStatsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	a := s.create(t, "a", 10)
	_, err := s.svc.ReserveStock(context.Background(), a.ID, 1)
	require.NoError(t, err)

	status, _ := s.do(t, http.MethodGet, "/api/v1/admin/stats", "", false)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := s.do(t, http.MethodGet, "/api/v1/admin/stats", "", true)
	require.Equal(t, http.StatusOK, status)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	db := stats["database"].(map[string]interface{})
	assert.Equal(t, "connected", db["status"])
	assert.EqualValues(t, 1, db["total_records"])
	assert.EqualValues(t, 1, db["total_ledger_entries"])

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := new(strings.Builder)
	_, err = bufio.NewReader(resp.Body).WriteTo(body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `shopsy_stock_operations_total{operation="reserve",result="ok"} 1`)
}
