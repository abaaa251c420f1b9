package domain

import (
	"context"
	"time"
)

// RFM segments, assigned by the segmentation engine
const (
	SegmentChampions    = "champions"
	SegmentLoyal        = "loyal"
	SegmentPotential    = "potential"
	SegmentNewCustomers = "new_customers"
	SegmentAtRisk       = "at_risk"
	SegmentCantLose     = "cant_lose"
	SegmentHibernating  = "hibernating"
	SegmentLost         = "lost"
)

// Contact is a customer, matched within a tenant by email (best-effort soft key)
type Contact struct {
	ID        string // UUID
	TenantID  string
	StoreID   string
	Email     string
	Phone     string
	FirstName string
	LastName  string

	// RFM scores, each 1-5
	RFMRecency   int
	RFMFrequency int
	RFMMonetary  int
	RFMScore     float64
	RFMSegment   string

	// Aggregates: always a pure function of the contact's current order set,
	// recomputed after every order upsert, never patched incrementally
	TotalOrders   int
	TotalSpent    float64
	AvgOrderValue float64
	FirstOrderAt  *time.Time
	LastOrderAt   *time.Time

	IsOptedIn bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RFMUpdate carries one contact's recomputed scores
type RFMUpdate struct {
	ContactID string
	Recency   int
	Frequency int
	Monetary  int
	Score     float64
	Segment   string
}

// ContactRepository defines data access for contacts
type ContactRepository interface {
	GetByID(ctx context.Context, id string) (*Contact, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*Contact, error)
	Create(ctx context.Context, contact *Contact) error
	// RecomputeAggregates rewrites the contact's aggregate fields from its
	// order set in a single scoped statement, so concurrent upserts for the
	// same contact cannot produce a lost update.
	RecomputeAggregates(ctx context.Context, contactID string) error
	// ListForRFM returns the fields the segmentation engine needs for every
	// contact of a tenant.
	ListForRFM(ctx context.Context, tenantID string) ([]*Contact, error)
	UpdateRFM(ctx context.Context, update *RFMUpdate) error
}
