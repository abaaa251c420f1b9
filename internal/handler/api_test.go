package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/security/middleware"
	"github.com/yourorg/storecrm/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCartRepo struct {
	byID map[string]*domain.AbandonedCart
}

func (m *memCartRepo) Upsert(_ context.Context, c *domain.AbandonedCart) error {
	if c.ID == "" {
		c.ID = "cart-new"
	}
	m.byID[c.ID] = c
	return nil
}

func (m *memCartRepo) GetByID(_ context.Context, id string) (*domain.AbandonedCart, error) {
	if c, ok := m.byID[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memCartRepo) ListEligible(_ context.Context, filter domain.CartRecoveryFilter) ([]*domain.AbandonedCart, error) {
	var out []*domain.AbandonedCart
	for _, c := range m.byID {
		if c.TenantID == filter.TenantID && !c.IsRecovered {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCartRepo) UpdateAttempts(_ context.Context, id string, attempts int, at time.Time) error {
	return nil
}

func (m *memCartRepo) MarkRecovered(_ context.Context, id, orderID string) (bool, error) {
	c, ok := m.byID[id]
	if !ok || c.IsRecovered {
		return false, nil
	}
	c.IsRecovered = true
	return true, nil
}

func (m *memCartRepo) Stats(_ context.Context, tenantID string) (*domain.CartStats, error) {
	return &domain.CartStats{Total: 4, TotalValue: 400, Recovered: 1, RecoveredValue: 100}, nil
}

type memContactRepo struct{}

func (memContactRepo) GetByID(_ context.Context, id string) (*domain.Contact, error) {
	return nil, domain.ErrNotFound
}
func (memContactRepo) GetByEmail(_ context.Context, tenantID, email string) (*domain.Contact, error) {
	return nil, domain.ErrNotFound
}
func (memContactRepo) Create(_ context.Context, c *domain.Contact) error { return nil }
func (memContactRepo) RecomputeAggregates(_ context.Context, contactID string) error {
	return nil
}
func (memContactRepo) ListForRFM(_ context.Context, tenantID string) ([]*domain.Contact, error) {
	return nil, nil
}
func (memContactRepo) UpdateRFM(_ context.Context, u *domain.RFMUpdate) error { return nil }

func withTenant(req *http.Request, tenantID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.TenantContextKey{}, &domain.Tenant{ID: tenantID})
	return req.WithContext(ctx)
}

func serve(pattern string, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.Handle(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSyncHandlerQueuesJob(t *testing.T) {
	stores := &memStoreRepo{byID: map[string]*domain.Store{
		"store-1": {ID: "store-1", TenantID: "tenant-1", Platform: domain.PlatformWooCommerce, IsActive: true},
	}}
	enq := &memEnqueuer{}
	h := NewSyncHandler(stores, enq, testLogger())

	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/stores/store-1/sync", nil), "tenant-1")
	rec := serve("POST /api/stores/{storeId}/sync", h, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(enq.jobs) != 1 || enq.jobs[0].queue != queue.QueueSync {
		t.Fatalf("enqueued = %+v", enq.jobs)
	}
	var job queue.SyncJob
	if err := json.Unmarshal(enq.jobs[0].payload, &job); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if job.StoreID != "store-1" || job.Type != "full" {
		t.Errorf("job = %+v", job)
	}
}

func TestSyncHandlerRejectsForeignStore(t *testing.T) {
	stores := &memStoreRepo{byID: map[string]*domain.Store{
		"store-1": {ID: "store-1", TenantID: "tenant-other"},
	}}
	enq := &memEnqueuer{}
	h := NewSyncHandler(stores, enq, testLogger())

	// another tenant's store reads as not found, not forbidden
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/stores/store-1/sync", nil), "tenant-1")
	rec := serve("POST /api/stores/{storeId}/sync", h, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(enq.jobs) != 0 {
		t.Error("no job should be queued")
	}
}

func TestSyncHandlerUnauthorized(t *testing.T) {
	h := NewSyncHandler(&memStoreRepo{byID: map[string]*domain.Store{}}, &memEnqueuer{}, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/stores/store-1/sync", nil)
	rec := serve("POST /api/stores/{storeId}/sync", h, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRecoveryHandlerTrigger(t *testing.T) {
	carts := &memCartRepo{byID: map[string]*domain.AbandonedCart{
		"cart-1": {ID: "cart-1", TenantID: "tenant-1", Phone: "5511999990000"},
	}}
	enq := &memEnqueuer{}
	recovery := service.NewRecoveryService(carts, memContactRepo{}, enq, nil)
	h := NewRecoveryHandler(recovery, testLogger())

	body := bytes.NewBufferString(`{"couponCode": "VOLTA10"}`)
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/carts/recover", body), "tenant-1")
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(enq.jobs) != 1 {
		t.Fatalf("expected one recovery job, got %d", len(enq.jobs))
	}
	var job queue.RecoveryJob
	if err := json.Unmarshal(enq.jobs[0].payload, &job); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if job.CouponCode != "VOLTA10" {
		t.Errorf("coupon = %s", job.CouponCode)
	}
}

func TestRecoveryHandlerTriggerEmptyBody(t *testing.T) {
	carts := &memCartRepo{byID: map[string]*domain.AbandonedCart{}}
	recovery := service.NewRecoveryService(carts, memContactRepo{}, &memEnqueuer{}, nil)
	h := NewRecoveryHandler(recovery, testLogger())

	// no body means the default scope: yesterday's carts, no coupon
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/carts/recover", nil), "tenant-1")
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRecoveryHandlerStats(t *testing.T) {
	carts := &memCartRepo{byID: map[string]*domain.AbandonedCart{}}
	recovery := service.NewRecoveryService(carts, memContactRepo{}, &memEnqueuer{}, nil)
	h := NewRecoveryHandler(recovery, testLogger())

	req := withTenant(httptest.NewRequest(http.MethodGet, "/api/carts/stats", nil), "tenant-1")
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if out["recoveryRate"] != "25.0" {
		t.Errorf("recovery rate = %v, want 25.0", out["recoveryRate"])
	}
}

func TestCartHandlerUpsert(t *testing.T) {
	carts := &memCartRepo{byID: map[string]*domain.AbandonedCart{}}
	h := NewCartHandler(carts, testLogger())

	body := bytes.NewBufferString(`{"storeId": "store-1", "externalId": "wc-cart-9", "total": 120.5, "phone": "5511988887777"}`)
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/carts", body), "tenant-1")
	rec := httptest.NewRecorder()
	h.Upsert(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(carts.byID) != 1 {
		t.Fatalf("carts = %+v", carts.byID)
	}
	for _, c := range carts.byID {
		if c.TenantID != "tenant-1" || c.ExternalID != "wc-cart-9" || c.Total != 120.5 {
			t.Errorf("cart = %+v", c)
		}
	}
}

func TestCartHandlerUpsertRequiresIdentity(t *testing.T) {
	carts := &memCartRepo{byID: map[string]*domain.AbandonedCart{}}
	h := NewCartHandler(carts, testLogger())

	body := bytes.NewBufferString(`{"total": 10}`)
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/carts", body), "tenant-1")
	rec := httptest.NewRecorder()
	h.Upsert(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCartHandlerMarkRecovered(t *testing.T) {
	carts := &memCartRepo{byID: map[string]*domain.AbandonedCart{
		"cart-1": {ID: "cart-1", TenantID: "tenant-1"},
	}}
	h := NewCartHandler(carts, testLogger())

	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/carts/cart-1/recovered", bytes.NewBufferString(`{"orderId": "order-5"}`)), "tenant-1")
	rec := serve("POST /api/carts/{cartId}/recovered", http.HandlerFunc(h.MarkRecovered), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if !out["recovered"] {
		t.Error("first mark should report recovered=true")
	}

	// the second call loses the guard
	req2 := withTenant(httptest.NewRequest(http.MethodPost, "/api/carts/cart-1/recovered", nil), "tenant-1")
	rec2 := serve("POST /api/carts/{cartId}/recovered", http.HandlerFunc(h.MarkRecovered), req2)
	json.Unmarshal(rec2.Body.Bytes(), &out)
	if out["recovered"] {
		t.Error("second mark should report recovered=false")
	}
}

func TestCartHandlerMarkRecoveredForeignTenant(t *testing.T) {
	carts := &memCartRepo{byID: map[string]*domain.AbandonedCart{
		"cart-1": {ID: "cart-1", TenantID: "tenant-other"},
	}}
	h := NewCartHandler(carts, testLogger())

	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/carts/cart-1/recovered", nil), "tenant-1")
	rec := serve("POST /api/carts/{cartId}/recovered", http.HandlerFunc(h.MarkRecovered), req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMessageHandlerQueuesSend(t *testing.T) {
	enq := &memEnqueuer{}
	h := NewMessageHandler(enq, testLogger())

	body := bytes.NewBufferString(`{"phone": "5511999990000", "message": "oi"}`)
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/messages", body), "tenant-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(enq.jobs) != 1 || enq.jobs[0].queue != queue.QueueWhatsapp {
		t.Fatalf("enqueued = %+v", enq.jobs)
	}
}

func TestMessageHandlerRequiresPhoneAndMessage(t *testing.T) {
	h := NewMessageHandler(&memEnqueuer{}, testLogger())

	body := bytes.NewBufferString(`{"phone": "5511999990000"}`)
	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/messages", body), "tenant-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRFMHandlerQueuesRun(t *testing.T) {
	enq := &memEnqueuer{}
	h := NewRFMHandler(enq, testLogger())

	req := withTenant(httptest.NewRequest(http.MethodPost, "/api/rfm/run", nil), "tenant-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(enq.jobs) != 1 || enq.jobs[0].queue != queue.QueueAnalytics {
		t.Fatalf("enqueued = %+v", enq.jobs)
	}
	var job queue.RFMJob
	if err := json.Unmarshal(enq.jobs[0].payload, &job); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if job.TenantID != "tenant-1" {
		t.Errorf("tenant = %s", job.TenantID)
	}
}
