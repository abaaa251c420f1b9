package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
	"github.com/yourorg/storecrm/internal/service"
)

type memInteractionRepo struct {
	created []*domain.Interaction
}

func (m *memInteractionRepo) Create(_ context.Context, i *domain.Interaction) error {
	m.created = append(m.created, i)
	return nil
}

func (m *memInteractionRepo) ListByContact(_ context.Context, contactID string) ([]*domain.Interaction, error) {
	return m.created, nil
}

func TestMessagingWorkerSends(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	interactions := &memInteractionRepo{}
	messaging := service.NewMessagingService(service.GatewayConfig{
		URL: server.URL, APIKey: "k", Instance: "main",
	}, interactions, nil)
	w := NewMessagingWorker(messaging, nil)

	job := mustJob(t, queue.TypeSendMessage, &queue.WhatsappJob{
		TenantID: "tenant-1", ContactID: "c1", Phone: "5511999990000", Message: "oi",
	})
	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if gotBody["number"] != "5511999990000" {
		t.Errorf("number = %s", gotBody["number"])
	}
	if len(interactions.created) != 1 {
		t.Errorf("expected one interaction, got %d", len(interactions.created))
	}
}

func TestMessagingWorkerSkipsWhenUnconfigured(t *testing.T) {
	messaging := service.NewMessagingService(service.GatewayConfig{}, &memInteractionRepo{}, nil)
	w := NewMessagingWorker(messaging, nil)

	job := mustJob(t, queue.TypeSendMessage, &queue.WhatsappJob{Phone: "5511999990000", Message: "oi"})
	err := w.Handle(context.Background(), job)
	if !errors.Is(err, queue.ErrSkip) {
		t.Fatalf("unconfigured gateway should skip, got %v", err)
	}
}

func TestMessagingWorkerGatewayErrorRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	messaging := service.NewMessagingService(service.GatewayConfig{
		URL: server.URL, APIKey: "k", Instance: "main",
	}, &memInteractionRepo{}, nil)
	w := NewMessagingWorker(messaging, nil)

	job := mustJob(t, queue.TypeSendMessage, &queue.WhatsappJob{Phone: "5511999990000", Message: "oi"})
	err := w.Handle(context.Background(), job)
	if err == nil || errors.Is(err, queue.ErrSkip) {
		t.Fatalf("gateway failure must be retryable, got %v", err)
	}
}

func TestRFMWorkerRunsPass(t *testing.T) {
	contacts := newMemContactRepo()
	contacts.byID["c1"] = &domain.Contact{ID: "c1", TenantID: "tenant-1"}
	rfm := service.NewRFMService(contacts, nil)
	w := NewRFMWorker(rfm, nil)

	job := mustJob(t, queue.TypeCalculateRFM, &queue.RFMJob{TenantID: "tenant-1"})
	if err := w.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if contacts.byID["c1"].RFMSegment != domain.SegmentLost {
		t.Errorf("no-order contact segment = %s, want lost", contacts.byID["c1"].RFMSegment)
	}
}
