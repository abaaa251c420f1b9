package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/queue"
)

type memContactRepo struct {
	byID    map[string]*domain.Contact
	updates []*domain.RFMUpdate
	// recomputes records contact IDs passed to RecomputeAggregates
	recomputes []string
	orders     *memOrderRepo
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
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.byID[c.ID] = c
	return nil
}

func (m *memContactRepo) RecomputeAggregates(_ context.Context, contactID string) error {
	m.recomputes = append(m.recomputes, contactID)
	c, ok := m.byID[contactID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.orders == nil {
		return nil
	}
	c.TotalOrders = 0
	c.TotalSpent = 0
	c.FirstOrderAt = nil
	c.LastOrderAt = nil
	for _, o := range m.orders.byKey {
		if o.ContactID != contactID {
			continue
		}
		c.TotalOrders++
		c.TotalSpent += o.Total
		placed := o.PlacedAt
		if c.FirstOrderAt == nil || placed.Before(*c.FirstOrderAt) {
			t := placed
			c.FirstOrderAt = &t
		}
		if c.LastOrderAt == nil || placed.After(*c.LastOrderAt) {
			t := placed
			c.LastOrderAt = &t
		}
	}
	if c.TotalOrders > 0 {
		c.AvgOrderValue = c.TotalSpent / float64(c.TotalOrders)
	} else {
		c.AvgOrderValue = 0
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
	m.updates = append(m.updates, u)
	if c, ok := m.byID[u.ContactID]; ok {
		c.RFMRecency = u.Recency
		c.RFMFrequency = u.Frequency
		c.RFMMonetary = u.Monetary
		c.RFMScore = u.Score
		c.RFMSegment = u.Segment
	}
	return nil
}

type memOrderRepo struct {
	// byKey indexes on storeID + "/" + externalID, the upsert key
	byKey map[string]*domain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{byKey: map[string]*domain.Order{}}
}

func orderKey(storeID, externalID string) string { return storeID + "/" + externalID }

func (m *memOrderRepo) Upsert(_ context.Context, o *domain.Order) error {
	key := orderKey(o.StoreID, o.ExternalID)
	if existing, ok := m.byKey[key]; ok {
		existing.Status = o.Status
		existing.Total = o.Total
		existing.UpdatedAt = time.Now()
		*o = *existing
		return nil
	}
	if o.ID == "" {
		o.ID = fmt.Sprintf("order-%d", len(m.byKey)+1)
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.byKey[key] = o
	return nil
}

func (m *memOrderRepo) GetByExternalID(_ context.Context, storeID, externalID string) (*domain.Order, error) {
	if o, ok := m.byKey[orderKey(storeID, externalID)]; ok {
		return o, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memOrderRepo) ListByContact(_ context.Context, contactID string) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range m.byKey {
		if o.ContactID == contactID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memCartRepo struct {
	byID map[string]*domain.AbandonedCart
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{byID: map[string]*domain.AbandonedCart{}}
}

func (m *memCartRepo) Upsert(_ context.Context, c *domain.AbandonedCart) error {
	if c.ID == "" {
		c.ID = fmt.Sprintf("cart-%d", len(m.byID)+1)
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
		if c.TenantID != filter.TenantID || c.IsRecovered || c.RecoveryAttempts > domain.MaxRecoveryAttempts-1 {
			continue
		}
		if len(filter.CartIDs) > 0 && !contains(filter.CartIDs, c.ID) {
			continue
		}
		out = append(out, c)
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
	now := time.Now()
	c.IsRecovered = true
	c.RecoveredAt = &now
	c.RecoveredOrderID = orderID
	return true, nil
}

func (m *memCartRepo) Stats(_ context.Context, tenantID string) (*domain.CartStats, error) {
	s := &domain.CartStats{}
	for _, c := range m.byID {
		if c.TenantID != tenantID {
			continue
		}
		s.Total++
		s.TotalValue += c.Total
		if c.IsRecovered {
			s.Recovered++
			s.RecoveredValue += c.Total
		}
	}
	return s, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type memInteractionRepo struct {
	created []*domain.Interaction
}

func (m *memInteractionRepo) Create(_ context.Context, i *domain.Interaction) error {
	m.created = append(m.created, i)
	return nil
}

func (m *memInteractionRepo) ListByContact(_ context.Context, contactID string) ([]*domain.Interaction, error) {
	var out []*domain.Interaction
	for _, i := range m.created {
		if i.ContactID == contactID {
			out = append(out, i)
		}
	}
	return out, nil
}

type enqueuedJob struct {
	queue   string
	jobType string
	payload json.RawMessage
}

type memEnqueuer struct {
	jobs []enqueuedJob
}

func (m *memEnqueuer) Enqueue(_ context.Context, q, jobType string, payload interface{}, _ *queue.Options) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	m.jobs = append(m.jobs, enqueuedJob{queue: q, jobType: jobType, payload: raw})
	return fmt.Sprintf("job-%d", len(m.jobs)), nil
}
