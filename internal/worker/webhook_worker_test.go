package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/service"
)

func newWebhookFixture() (*WebhookWorker, *memOrderRepo, *memLogRepo) {
	orders := newMemOrderRepo()
	contacts := newMemContactRepo()
	logs := newMemLogRepo()
	orderService := service.NewOrderService(orders, contacts, nil)
	return NewWebhookWorker(orderService, logs, nil), orders, logs
}

func TestWebhookWorkerProcessesWooCommerceOrder(t *testing.T) {
	w, orders, logs := newWebhookFixture()

	wcOrder := []byte(`{
		"id": 4211,
		"number": "4211",
		"status": "completed",
		"total": "312.50",
		"billing": {"email": "elisa@example.com", "first_name": "Elisa"},
		"line_items": [{"name": "Vestido Midi", "sku": "VM-01", "quantity": 1, "price": 312.5, "total": "312.50"}],
		"date_created": "2026-05-10T08:30:00"
	}`)
	job := mustJob(t, queue.TypeProcessWebhook, &queue.WebhookJob{
		LogID:    "log-1",
		TenantID: "tenant-1",
		StoreID:  "store-1",
		Platform: domain.PlatformWooCommerce,
		Event:    "order.created",
		Payload:  json.RawMessage(wcOrder),
	})

	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	order, err := orders.GetByExternalID(context.Background(), "store-1", "4211")
	if err != nil {
		t.Fatalf("order not upserted: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Errorf("status = %s, want delivered", order.Status)
	}
	if order.ContactID == "" {
		t.Error("billing email should have resolved a contact")
	}
	if _, ok := logs.processed["log-1"]; !ok {
		t.Error("webhook log not marked processed")
	}
}

func TestWebhookWorkerOrderUpdatedForUnseenOrderCreates(t *testing.T) {
	w, orders, logs := newWebhookFixture()

	// an update for an order we never saw (missed create, webhook replay)
	// behaves as a create, not an error
	wcOrder := []byte(`{
		"id": 5100,
		"number": "5100",
		"status": "processing",
		"total": "89.90",
		"billing": {"email": "marina@example.com", "first_name": "Marina"},
		"date_created": "2026-06-02T14:00:00"
	}`)
	job := mustJob(t, queue.TypeProcessWebhook, &queue.WebhookJob{
		LogID:    "log-7",
		TenantID: "tenant-1",
		StoreID:  "store-1",
		Platform: domain.PlatformWooCommerce,
		Event:    "order.updated",
		Payload:  json.RawMessage(wcOrder),
	})

	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	order, err := orders.GetByExternalID(context.Background(), "store-1", "5100")
	if err != nil {
		t.Fatalf("order not created from update event: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Errorf("status = %s, want processing", order.Status)
	}
	if _, ok := logs.processed["log-7"]; !ok {
		t.Error("webhook log not marked processed")
	}
}

func TestWebhookWorkerProcessesMagentoOrder(t *testing.T) {
	w, orders, logs := newWebhookFixture()

	magentoOrder := []byte(`{
		"entity_id": 9001,
		"increment_id": "000009001",
		"status": "processing",
		"grand_total": 99.0,
		"discount_amount": -10.0,
		"customer_email": "fabio@example.com"
	}`)
	job := mustJob(t, queue.TypeProcessWebhook, &queue.WebhookJob{
		LogID:    "log-2",
		TenantID: "tenant-1",
		StoreID:  "store-1",
		Platform: domain.PlatformMagento,
		Event:    "sales_order_save_after",
		Payload:  json.RawMessage(magentoOrder),
	})

	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	order, err := orders.GetByExternalID(context.Background(), "store-1", "9001")
	if err != nil {
		t.Fatalf("order not upserted: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Errorf("status = %s, want processing", order.Status)
	}
	if _, ok := logs.processed["log-2"]; !ok {
		t.Error("webhook log not marked processed")
	}
}

func TestWebhookWorkerDropsUnknownEvent(t *testing.T) {
	w, orders, logs := newWebhookFixture()

	job := mustJob(t, queue.TypeProcessWebhook, &queue.WebhookJob{
		LogID:    "log-3",
		TenantID: "tenant-1",
		StoreID:  "store-1",
		Platform: domain.PlatformWooCommerce,
		Event:    "customer.updated",
		Payload:  json.RawMessage(`{}`),
	})

	// unknown events complete successfully: a retry cannot change the outcome
	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("unknown event must not error: %v", err)
	}
	if len(orders.byKey) != 0 {
		t.Error("unknown event must not write orders")
	}
	if _, ok := logs.processed["log-3"]; !ok {
		t.Error("dropped event still gets a processed log row")
	}
}

func TestWebhookWorkerOrderDeletedIsNoOp(t *testing.T) {
	w, orders, logs := newWebhookFixture()

	job := mustJob(t, queue.TypeProcessWebhook, &queue.WebhookJob{
		LogID:    "log-4",
		TenantID: "tenant-1",
		StoreID:  "store-1",
		Platform: domain.PlatformWooCommerce,
		Event:    "order.deleted",
		Payload:  json.RawMessage(`{"id": 4211}`),
	})

	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("order.deleted must not error: %v", err)
	}
	if len(orders.byKey) != 0 {
		t.Error("deletions are not mirrored")
	}
	if _, ok := logs.processed["log-4"]; !ok {
		t.Error("webhook log not marked processed")
	}
}

func TestWebhookWorkerMarksErrorOnBadPayload(t *testing.T) {
	w, _, logs := newWebhookFixture()

	// an order payload with no external id fails validation
	job := mustJob(t, queue.TypeProcessWebhook, &queue.WebhookJob{
		LogID:    "log-5",
		TenantID: "tenant-1",
		StoreID:  "store-1",
		Platform: domain.PlatformWooCommerce,
		Event:    "order.created",
		Payload:  json.RawMessage(`{"status": "completed", "total": "10.00"}`),
	})

	err := w.Handle(context.Background(), job)
	if err == nil {
		t.Fatal("expected processing error")
	}
	if _, ok := logs.errored["log-5"]; !ok {
		t.Error("webhook log not marked errored")
	}
	if _, ok := logs.processed["log-5"]; ok {
		t.Error("errored event must not be marked processed")
	}
}

func TestWebhookWorkerDropsUnknownPlatform(t *testing.T) {
	w, orders, _ := newWebhookFixture()

	job := mustJob(t, queue.TypeProcessWebhook, &queue.WebhookJob{
		LogID:    "log-6",
		TenantID: "tenant-1",
		StoreID:  "store-1",
		Platform: "shopify",
		Event:    "order.created",
		Payload:  json.RawMessage(`{}`),
	})

	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("unknown platform must not error: %v", err)
	}
	if len(orders.byKey) != 0 {
		t.Error("unknown platform must not write orders")
	}
}
