package platform

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/storecrm/internal/domain"
)

// Client pulls orders from a storefront's REST API, one page at a time.
// A short page (fewer than pageSize orders) signals the end of the data set.
type Client interface {
	ListOrders(ctx context.Context, page, pageSize int) ([]domain.OrderPayload, error)
}

// NewClient returns the API client for a store's platform
func NewClient(store *domain.Store) (Client, error) {
	switch store.Platform {
	case domain.PlatformWooCommerce:
		return NewWooCommerceClient(store), nil
	case domain.PlatformMagento:
		return NewMagentoClient(store), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", store.Platform)
	}
}

// newHTTPClient builds the traced HTTP client used against storefront APIs
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// money parses a decimal-string amount; storefront APIs mix strings and
// numbers for currency fields
func money(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime parses the timestamp formats the platforms emit; an unparseable
// or missing value falls back to the current time
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
