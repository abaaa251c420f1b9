package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
)

type memCartRepo struct {
	byID map[string]*domain.AbandonedCart
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{byID: map[string]*domain.AbandonedCart{}}
}

func (m *memCartRepo) Upsert(_ context.Context, c *domain.AbandonedCart) error {
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
	c, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.RecoveryAttempts = attempts
	c.LastAttemptAt = &at
	return nil
}

func (m *memCartRepo) MarkRecovered(_ context.Context, id, orderID string) (bool, error) {
	c, ok := m.byID[id]
	if !ok || c.IsRecovered {
		return false, nil
	}
	c.IsRecovered = true
	c.RecoveredOrderID = orderID
	return true, nil
}

func (m *memCartRepo) Stats(_ context.Context, tenantID string) (*domain.CartStats, error) {
	return &domain.CartStats{}, nil
}

type memStoreRepo struct {
	byID map[string]*domain.Store
	// statusLog records every UpdateSyncStatus transition in order
	statusLog []string
}

func newMemStoreRepo() *memStoreRepo {
	return &memStoreRepo{byID: map[string]*domain.Store{}}
}

func (m *memStoreRepo) GetByID(_ context.Context, id string) (*domain.Store, error) {
	if s, ok := m.byID[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memStoreRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.Store, error) {
	var out []*domain.Store
	for _, s := range m.byID {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStoreRepo) UpdateSyncStatus(_ context.Context, id, status string, lastSyncAt *time.Time) error {
	s, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.SyncStatus = status
	if lastSyncAt != nil {
		s.LastSyncAt = lastSyncAt
	}
	m.statusLog = append(m.statusLog, status)
	return nil
}

type memOrderRepo struct {
	byKey map[string]*domain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{byKey: map[string]*domain.Order{}}
}

func (m *memOrderRepo) Upsert(_ context.Context, o *domain.Order) error {
	key := o.StoreID + "/" + o.ExternalID
	if existing, ok := m.byKey[key]; ok {
		existing.Status = o.Status
		existing.Total = o.Total
		*o = *existing
		return nil
	}
	if o.ID == "" {
		o.ID = fmt.Sprintf("order-%d", len(m.byKey)+1)
	}
	m.byKey[key] = o
	return nil
}

func (m *memOrderRepo) GetByExternalID(_ context.Context, storeID, externalID string) (*domain.Order, error) {
	if o, ok := m.byKey[storeID+"/"+externalID]; ok {
		return o, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memOrderRepo) ListByContact(_ context.Context, contactID string) ([]*domain.Order, error) {
	return nil, nil
}

type memContactRepo struct {
	byID map[string]*domain.Contact
}

func newMemContactRepo() *memContactRepo {
	return &memContactRepo{byID: map[string]*domain.Contact{}}
}

func (m *memContactRepo) GetByID(_ context.Context, id string) (*domain.Contact, error) {
	if c, ok := m.byID[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memContactRepo) GetByEmail(_ context.Context, tenantID, email string) (*domain.Contact, error) {
	for _, c := range m.byID {
		if c.TenantID == tenantID && c.Email == email {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memContactRepo) Create(_ context.Context, c *domain.Contact) error {
	if c.ID == "" {
		c.ID = fmt.Sprintf("contact-%d", len(m.byID)+1)
	}
	m.byID[c.ID] = c
	return nil
}

func (m *memContactRepo) RecomputeAggregates(_ context.Context, contactID string) error {
	if _, ok := m.byID[contactID]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (m *memContactRepo) ListForRFM(_ context.Context, tenantID string) ([]*domain.Contact, error) {
	var out []*domain.Contact
	for _, c := range m.byID {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memContactRepo) UpdateRFM(_ context.Context, u *domain.RFMUpdate) error {
	c, ok := m.byID[u.ContactID]
	if !ok {
		return domain.ErrNotFound
	}
	c.RFMSegment = u.Segment
	return nil
}

type memLogRepo struct {
	processed map[string]time.Time
	errored   map[string]string
}

func newMemLogRepo() *memLogRepo {
	return &memLogRepo{processed: map[string]time.Time{}, errored: map[string]string{}}
}

func (m *memLogRepo) Create(_ context.Context, l *domain.WebhookLog) error {
	if l.ID == "" {
		l.ID = fmt.Sprintf("log-%d", len(m.processed)+len(m.errored)+1)
	}
	return nil
}

func (m *memLogRepo) GetByID(_ context.Context, id string) (*domain.WebhookLog, error) {
	return nil, domain.ErrNotFound
}

func (m *memLogRepo) MarkProcessed(_ context.Context, id string, at time.Time) error {
	m.processed[id] = at
	return nil
}

func (m *memLogRepo) MarkError(_ context.Context, id, msg string) error {
	m.errored[id] = msg
	return nil
}

type enqueuedJob struct {
	queue   string
	jobType string
	payload json.RawMessage
}

type memEnqueuer struct {
	jobs    []enqueuedJob
	failing bool
}

func (m *memEnqueuer) Enqueue(_ context.Context, q, jobType string, payload interface{}, _ *queue.Options) (string, error) {
	if m.failing {
		return "", fmt.Errorf("broker unavailable")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	m.jobs = append(m.jobs, enqueuedJob{queue: q, jobType: jobType, payload: raw})
	return fmt.Sprintf("job-%d", len(m.jobs)), nil
}

func mustJob(t *testing.T, jobType string, payload interface{}) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal job payload: %v", err)
	}
	return &queue.Job{
		ID:      "test-job",
		Type:    jobType,
		Payload: raw,
		Attempt: 1,
	}
}
