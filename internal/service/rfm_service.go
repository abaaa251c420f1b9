package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/observability/metrics"
)

// noOrderRecencyDays is the recency stand-in for contacts with no orders.
// Far enough in the past to land in the worst quintile of any real cohort.
const noOrderRecencyDays = 999

// RFMService scores a tenant's whole contact base on recency, frequency and
// monetary value, then assigns each contact a named segment. Scores are
// relative to the cohort: the same purchase history can move between segments
// as the rest of the base shifts.
type RFMService struct {
	contacts domain.ContactRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewRFMService creates a new segmentation service
func NewRFMService(contacts domain.ContactRepository, logger *slog.Logger) *RFMService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RFMService{contacts: contacts, logger: logger, now: time.Now}
}

// CalculateForTenant runs one full segmentation pass over a tenant. The
// contact list is read once up front; orders landing mid-run are picked up by
// the next pass.
func (s *RFMService) CalculateForTenant(ctx context.Context, tenantID string) (int, error) {
	contacts, err := s.contacts.ListForRFM(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if len(contacts) == 0 {
		return 0, nil
	}

	now := s.now().UTC()

	recencyDays := make([]float64, len(contacts))
	frequencies := make([]float64, len(contacts))
	monetaries := make([]float64, len(contacts))
	buyerRecency := make([]float64, 0, len(contacts))
	for i, c := range contacts {
		recencyDays[i] = daysSinceLastOrder(c, now)
		frequencies[i] = float64(c.TotalOrders)
		monetaries[i] = c.TotalSpent
		if c.TotalOrders > 0 {
			buyerRecency = append(buyerRecency, recencyDays[i])
		}
	}

	// The recency distribution covers buyers only. Contacts without orders
	// are pinned to 1/1/1 below; folding their stand-in recency into the
	// population would inflate every real buyer's recency rank. Frequency
	// and monetary stay tenant-wide.
	sortedRecency := sortedCopy(buyerRecency)
	sortedFrequency := sortedCopy(frequencies)
	sortedMonetary := sortedCopy(monetaries)

	scored := 0
	for i, c := range contacts {
		var r, f, m int
		if c.TotalOrders == 0 {
			// No purchase history: bottom of every dimension.
			r, f, m = 1, 1, 1
		} else {
			// Fewer days since the last order is better, so recency inverts
			// its quintile.
			r = 6 - quintile(recencyDays[i], sortedRecency)
			f = quintile(frequencies[i], sortedFrequency)
			m = quintile(monetaries[i], sortedMonetary)
		}

		update := &domain.RFMUpdate{
			ContactID: c.ID,
			Recency:   r,
			Frequency: f,
			Monetary:  m,
			Score:     float64(r+f+m) / 3,
			Segment:   Segment(r, f, m),
		}
		if err := s.contacts.UpdateRFM(ctx, update); err != nil {
			return scored, err
		}
		scored++
	}

	metrics.AddRFMContacts(scored)
	s.logger.Info("rfm segmentation completed",
		slog.String("tenant_id", tenantID),
		slog.Int("contacts_scored", scored),
	)
	return scored, nil
}

func daysSinceLastOrder(c *domain.Contact, now time.Time) float64 {
	if c.LastOrderAt == nil {
		return noOrderRecencyDays
	}
	days := now.Sub(*c.LastOrderAt).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

// quintile places value into 1..5 by its rank in the sorted cohort: the
// position of its first occurrence divided by cohort size, cut at 20% steps.
func quintile(value float64, sorted []float64) int {
	idx := sort.SearchFloat64s(sorted, value)
	rank := float64(idx) / float64(len(sorted))
	switch {
	case rank <= 0.2:
		return 1
	case rank <= 0.4:
		return 2
	case rank <= 0.6:
		return 3
	case rank <= 0.8:
		return 4
	default:
		return 5
	}
}

// Segment maps an (r, f, m) triple to a named segment. The rules are checked
// in order and the first match wins. cant_lose sits above loyal and at_risk:
// both are wider rules that would otherwise shadow it, and a lapsed top
// spender needs its own bucket, not a generic one.
func Segment(r, f, m int) string {
	score := float64(r+f+m) / 3

	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return domain.SegmentChampions
	case r <= 2 && f >= 4 && m >= 4:
		return domain.SegmentCantLose
	case f >= 4 && m >= 3:
		return domain.SegmentLoyal
	case r >= 4 && f <= 2:
		return domain.SegmentNewCustomers
	case r >= 3 && f >= 2 && score >= 3:
		return domain.SegmentPotential
	case r <= 2 && f >= 3:
		return domain.SegmentAtRisk
	case r <= 2 && f <= 2:
		return domain.SegmentLost
	default:
		return domain.SegmentHibernating
	}
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
