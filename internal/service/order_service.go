package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
)

// OrderService owns the order upsert path: contact resolution, the idempotent
// order write and the aggregate recompute that follows it.
type OrderService struct {
	orders   domain.OrderRepository
	contacts domain.ContactRepository
	logger   *slog.Logger
}

// NewOrderService creates a new order service
func NewOrderService(orders domain.OrderRepository, contacts domain.ContactRepository, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{orders: orders, contacts: contacts, logger: logger}
}

// UpsertFromPayload applies one normalized order payload for a store. The
// sequence is fixed: validate, resolve contact, upsert order, recompute the
// contact's aggregates. Re-applying the same payload converges to the same
// state, which makes webhook retries and catalog syncs safe to overlap.
func (s *OrderService) UpsertFromPayload(ctx context.Context, tenantID, storeID string, payload *domain.OrderPayload) (*domain.Order, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	contactID, err := s.resolveContact(ctx, tenantID, storeID, payload)
	if err != nil {
		return nil, err
	}

	placedAt := payload.PlacedAt
	if placedAt.IsZero() {
		placedAt = time.Now().UTC()
	}

	order := &domain.Order{
		TenantID:      tenantID,
		StoreID:       storeID,
		ContactID:     contactID,
		ExternalID:    payload.ExternalID,
		OrderNumber:   payload.OrderNumber,
		Status:        payload.Status,
		Total:         payload.Total,
		Subtotal:      payload.Subtotal,
		ShippingCost:  payload.ShippingCost,
		Discount:      payload.Discount,
		PaymentMethod: payload.PaymentMethod,
		Items:         payload.Items,
		PlacedAt:      placedAt,
	}
	if err := s.orders.Upsert(ctx, order); err != nil {
		return nil, err
	}

	// Aggregates are a pure function of the contact's order set; recompute
	// rather than patch so out-of-order webhook delivery cannot skew them.
	if contactID != "" {
		if err := s.contacts.RecomputeAggregates(ctx, contactID); err != nil {
			return nil, fmt.Errorf("order upserted but aggregate recompute failed: %w", err)
		}
	}

	s.logger.Debug("order upserted",
		slog.String("store_id", storeID),
		slog.String("external_id", payload.ExternalID),
		slog.String("status", order.Status),
	)
	return order, nil
}

// resolveContact matches the payload's customer to a contact by email within
// the tenant, creating one when the payload carries enough identity (an email
// or a phone). Orders without identity stay contactless; they still count in
// store totals, just not in any contact's history.
func (s *OrderService) resolveContact(ctx context.Context, tenantID, storeID string, payload *domain.OrderPayload) (string, error) {
	if payload.CustomerEmail != "" {
		contact, err := s.contacts.GetByEmail(ctx, tenantID, payload.CustomerEmail)
		if err == nil {
			return contact.ID, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
	}

	if payload.CustomerEmail == "" && payload.CustomerPhone == "" {
		return "", nil
	}

	contact := &domain.Contact{
		TenantID:  tenantID,
		StoreID:   storeID,
		Email:     payload.CustomerEmail,
		Phone:     payload.CustomerPhone,
		FirstName: payload.CustomerFirstName,
		LastName:  payload.CustomerLastName,
	}
	if err := s.contacts.Create(ctx, contact); err != nil {
		return "", fmt.Errorf("failed to create contact for order: %w", err)
	}
	return contact.ID, nil
}
