package domain

import (
	"context"
	"time"
)

// Tenant is the isolation boundary: every query and write is scoped by tenant ID
type Tenant struct {
	ID        string // UUID
	Name      string
	Email     string
	APIKey    string // authenticates trigger endpoints
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	ListActive(ctx context.Context) ([]*Tenant, error)
}
