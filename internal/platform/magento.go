package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/yourorg/storecrm/internal/domain"
)

// magentoStatusMap translates the Magento status vocabulary onto the
// canonical one
var magentoStatusMap = map[string]string{
	"pending":    domain.OrderStatusPending,
	"processing": domain.OrderStatusProcessing,
	"complete":   domain.OrderStatusDelivered,
	"closed":     domain.OrderStatusRefunded,
	"canceled":   domain.OrderStatusCancelled,
	"holded":     domain.OrderStatusPending,
	"shipped":    domain.OrderStatusShipped,
}

// MapMagentoStatus maps one Magento order status; unknown values default to
// pending
func MapMagentoStatus(status string) string {
	if mapped, ok := magentoStatusMap[status]; ok {
		return mapped
	}
	return domain.OrderStatusPending
}

// magentoOrder mirrors the Magento sales order JSON we consume
type magentoOrder struct {
	EntityID       int64          `json:"entity_id"`
	IncrementID    string         `json:"increment_id"`
	Status         string         `json:"status"`
	GrandTotal     float64        `json:"grand_total"`
	Subtotal       float64        `json:"subtotal"`
	DiscountAmount float64        `json:"discount_amount"`
	ShippingAmount float64        `json:"shipping_amount"`
	Payment        magentoPayment `json:"payment"`
	Items          []magentoItem  `json:"items"`
	CustomerEmail  string         `json:"customer_email"`
	CustomerFirst  string         `json:"customer_firstname"`
	CustomerLast   string         `json:"customer_lastname"`
	CreatedAt      string         `json:"created_at"`
}

type magentoPayment struct {
	Method string `json:"method"`
}

type magentoItem struct {
	Name       string  `json:"name"`
	SKU        string  `json:"sku"`
	QtyOrdered float64 `json:"qty_ordered"`
	Price      float64 `json:"price"`
	RowTotal   float64 `json:"row_total"`
}

// NormalizeMagento maps a raw Magento order payload to the canonical order
// shape. Magento emits discounts as negative amounts; they are stored
// absolute.
func NormalizeMagento(raw json.RawMessage) (*domain.OrderPayload, error) {
	var o magentoOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("failed to decode magento order: %w", err)
	}
	return normalizeMagentoOrder(&o), nil
}

func normalizeMagentoOrder(o *magentoOrder) *domain.OrderPayload {
	items := make([]domain.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, domain.OrderItem{
			Name:      it.Name,
			SKU:       it.SKU,
			Quantity:  int(it.QtyOrdered),
			UnitPrice: it.Price,
			LineTotal: it.RowTotal,
		})
	}

	externalID := ""
	if o.EntityID != 0 {
		externalID = strconv.FormatInt(o.EntityID, 10)
	} else if o.IncrementID != "" {
		externalID = o.IncrementID
	}

	return &domain.OrderPayload{
		ExternalID:        externalID,
		OrderNumber:       o.IncrementID,
		Status:            MapMagentoStatus(o.Status),
		Total:             o.GrandTotal,
		Subtotal:          o.Subtotal,
		ShippingCost:      o.ShippingAmount,
		Discount:          math.Abs(o.DiscountAmount),
		PaymentMethod:     o.Payment.Method,
		Items:             items,
		CustomerEmail:     o.CustomerEmail,
		CustomerFirstName: o.CustomerFirst,
		CustomerLastName:  o.CustomerLast,
		PlacedAt:          parseTime(o.CreatedAt),
	}
}

// MagentoClient pages through a store's order search API
type MagentoClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewMagentoClient creates a client for one store connection
func NewMagentoClient(store *domain.Store) *MagentoClient {
	return &MagentoClient{
		baseURL: strings.TrimRight(store.APIURL, "/"),
		apiKey:  store.APIKey,
		http:    newHTTPClient(),
	}
}

type magentoOrderList struct {
	Items []magentoOrder `json:"items"`
}

// ListOrders fetches one page of orders
func (c *MagentoClient) ListOrders(ctx context.Context, page, pageSize int) ([]domain.OrderPayload, error) {
	url := fmt.Sprintf("%s/orders?searchCriteria[pageSize]=%d&searchCriteria[currentPage]=%d", c.baseURL, pageSize, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("magento request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("magento api error: status %d", resp.StatusCode)
	}

	var list magentoOrderList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode magento orders: %w", err)
	}

	out := make([]domain.OrderPayload, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, *normalizeMagentoOrder(&list.Items[i]))
	}
	return out, nil
}
