package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a parent order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Urgency expresses how quickly an order should complete when no fixed horizon is given
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Algorithm selects the slicing strategy for a parent order
type Algorithm string

const (
	AlgorithmAuto Algorithm = "AUTO"
	AlgorithmTWAP Algorithm = "TWAP"
	AlgorithmVWAP Algorithm = "VWAP"
	AlgorithmPOV  Algorithm = "POV"
	AlgorithmIS   Algorithm = "IS" // Implementation shortfall
)

// OrderRequest asks for a parent order to be scheduled
// Exactly one of Horizon or Urgency drives the time budget; Horizon wins when both are set
type OrderRequest struct {
	ID         uuid.UUID
	Instrument string
	Side       Side
	Notional   decimal.Decimal
	Start      time.Time // Session open of the first trading day
	Horizon    time.Duration
	Urgency    Urgency
}

// Validate ensures the request can be scheduled
func (r *OrderRequest) Validate() error {
	if r.Instrument == "" {
		return Invalid("order.instrument", "cannot be empty")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return Invalid("order.side", "must be BUY or SELL, got %q", r.Side)
	}
	if r.Notional.LessThan(decimal.Zero) {
		return Invalid("order.notional", "cannot be negative")
	}
	if r.Horizon < 0 {
		return Invalid("order.horizon", "cannot be negative")
	}
	if r.Horizon == 0 {
		switch r.Urgency {
		case UrgencyLow, UrgencyMedium, UrgencyHigh:
		default:
			return Invalid("order.urgency", "a horizon or an urgency of LOW, MEDIUM or HIGH is required")
		}
	}
	return nil
}

// MarketProfile holds the liquidity picture of an instrument for scheduling
type MarketProfile struct {
	Instrument    string
	ADV           decimal.Decimal // Average daily volume in notional terms
	IntradayCurve []float64       // Fraction of daily volume per equal-length bucket of the session
	Volatility    float64         // Daily return volatility, 0.02 = 2%
	HalfSpreadBps float64
	LotSize       decimal.Decimal // Minimum tradable notional increment
	Session       time.Duration   // Length of a trading session
}

// Validate ensures the profile is usable
func (p *MarketProfile) Validate() error {
	if p.ADV.LessThanOrEqual(decimal.Zero) {
		return Invalid("profile.adv", "average daily volume for %s must be positive", p.Instrument)
	}
	if p.Volatility < 0 || math.IsNaN(p.Volatility) {
		return Invalid("profile.volatility", "cannot be negative")
	}
	if p.HalfSpreadBps < 0 {
		return Invalid("profile.half_spread_bps", "cannot be negative")
	}
	if p.LotSize.LessThan(decimal.Zero) {
		return Invalid("profile.lot_size", "cannot be negative")
	}
	if p.Session <= 0 {
		return Invalid("profile.session", "must be positive")
	}
	if len(p.IntradayCurve) > 0 {
		sum := 0.0
		for i, f := range p.IntradayCurve {
			if f < 0 || math.IsNaN(f) {
				return Invalid("profile.intraday_curve", "bucket %d has a negative fraction", i)
			}
			sum += f
		}
		if math.Abs(sum-1) > 1e-6 {
			return Invalid("profile.intraday_curve", "fractions sum to %v, expected 1", sum)
		}
	}
	return nil
}

// TimeWindow is a wall-clock execution window
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ChildSlice is one time-sliced child order of a parent order
type ChildSlice struct {
	Index            int
	Window           TimeWindow
	Quantity         decimal.Decimal // Notional to trade in the window
	ExpectedVolume   decimal.Decimal // Market volume expected in the window
	Participation    float64
	EstimatedCostBps float64 // Expected impact plus spread for this slice
}

// TransactionCost decomposes the expected cost of a parent order
// All components are non-negative; the total is zero only for zero-notional orders
type TransactionCost struct {
	PermanentImpact    decimal.Decimal
	TemporaryImpact    decimal.Decimal
	SpreadCost         decimal.Decimal
	TimingRiskVariance float64 // In squared currency units
	Total              decimal.Decimal
	TotalBps           float64
	RiskAdjusted       decimal.Decimal // Total plus risk aversion times timing-risk variance
}

// ExecutionOrder is a scheduled parent order; it is never mutated once built
type ExecutionOrder struct {
	ID           uuid.UUID
	RequestID    uuid.UUID
	SupersedesID *uuid.UUID // Set when the order replaces an earlier schedule
	Instrument   string
	Side         Side
	Notional     decimal.Decimal
	Algorithm    Algorithm
	Horizon      time.Duration
	Slices       []ChildSlice
	Cost         TransactionCost
	CreatedAt    time.Time
}

// MaxParticipation returns the highest per-slice participation rate
func (o *ExecutionOrder) MaxParticipation() float64 {
	maxP := 0.0
	for _, s := range o.Slices {
		maxP = math.Max(maxP, s.Participation)
	}
	return maxP
}

// ScheduledQuantity sums the slice quantities
func (o *ExecutionOrder) ScheduledQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, s := range o.Slices {
		total = total.Add(s.Quantity)
	}
	return total
}
