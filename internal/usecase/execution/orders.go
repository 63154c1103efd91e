package execution

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// BuildOrderRequests converts the gap between current holdings and target weights
// into parent order requests
// Logic:
//  1. Target notional = weight * total assets
//  2. Delta = target - current holding; positive buys, negative sells
//  3. Deltas smaller than minTrade are skipped
//  4. Requests are ordered by instrument so runs are reproducible
func BuildOrderRequests(positions map[string]decimal.Decimal, targets map[string]float64, totalAssets, minTrade decimal.Decimal, start time.Time, urgency domain.Urgency) ([]domain.OrderRequest, error) {
	if totalAssets.LessThan(decimal.Zero) {
		return nil, domain.Invalid("total_assets", "cannot be negative")
	}

	instruments := make(map[string]bool, len(positions)+len(targets))
	for id := range positions {
		instruments[id] = true
	}
	for id, w := range targets {
		if w < 0 {
			return nil, domain.Invalid("targets", "weight for %s cannot be negative", id)
		}
		instruments[id] = true
	}

	ids := make([]string, 0, len(instruments))
	for id := range instruments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	requests := make([]domain.OrderRequest, 0, len(ids))
	for _, id := range ids {
		target := totalAssets.Mul(decimal.NewFromFloat(targets[id])).Round(2)
		delta := target.Sub(positions[id])
		if delta.Abs().LessThan(minTrade) || delta.IsZero() {
			continue
		}
		side := domain.SideBuy
		if delta.IsNegative() {
			side = domain.SideSell
		}
		requests = append(requests, domain.OrderRequest{
			ID:         uuid.New(),
			Instrument: id,
			Side:       side,
			Notional:   delta.Abs(),
			Start:      start,
			Urgency:    urgency,
		})
	}
	return requests, nil
}

// Reschedule re-plans the unexecuted part of an order as a new order that supersedes it
// The original order is left untouched
func (s *Scheduler) Reschedule(previous *domain.ExecutionOrder, executed decimal.Decimal, start time.Time, profile domain.MarketProfile) (*domain.ExecutionOrder, error) {
	if previous == nil {
		return nil, domain.Invalid("order", "previous order is required")
	}
	if executed.IsNegative() || executed.GreaterThan(previous.Notional) {
		return nil, domain.Invalid("executed", "must be between 0 and %s, got %s", previous.Notional.String(), executed.String())
	}

	req := domain.OrderRequest{
		ID:         previous.RequestID,
		Instrument: previous.Instrument,
		Side:       previous.Side,
		Notional:   previous.Notional.Sub(executed),
		Start:      start,
		Horizon:    previous.Horizon,
	}
	if req.Horizon <= 0 {
		req.Urgency = domain.UrgencyMedium
	}

	order, err := s.Schedule(req, profile, previous.Algorithm)
	if err != nil {
		return nil, err
	}
	supersedes := previous.ID
	order.SupersedesID = &supersedes
	return order, nil
}
