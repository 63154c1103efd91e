package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// Bounds is a box constraint on a single asset weight
type Bounds struct {
	Min float64
	Max float64
}

// FundingObjective describes where the funding ratio is and where it should get to
type FundingObjective struct {
	Current         float64 // Current funding ratio
	Target          float64 // Target funding ratio, zero disables the return floor
	HorizonYears    float64
	LiabilityGrowth float64 // Expected annual growth of the liability value
}

// RequiredReturn is the annual asset return that moves the funding ratio from
// Current to Target over the horizon; ok is false when no floor applies
func (f FundingObjective) RequiredReturn() (float64, bool) {
	if f.Target <= 0 || f.Current <= 0 || f.Target <= f.Current {
		return 0, false
	}
	horizon := f.HorizonYears
	if horizon <= 0 {
		horizon = 1
	}
	return math.Pow(f.Target/f.Current, 1/horizon)*(1+f.LiabilityGrowth) - 1, true
}

// PortfolioPolicy is the investment policy a portfolio is managed under
type PortfolioPolicy struct {
	PortfolioID         string
	Name                string
	RiskBudget          *RiskBudget
	FundingTarget       float64
	FundingHorizonYears float64
	LiabilityGrowth     float64
	Bounds              map[string]Bounds
	LiabilityProxy      map[string]float64 // Liability-matching portfolio in liability units
	DurationTolerance   float64            // Zero disables the duration-matching constraint
	MaxAssets           int                // Zero disables the cardinality constraint
	Illiquidity         map[string]float64 // Per-asset illiquidity penalty coefficients
	PreviousWeights     map[string]float64 // Last period's target, used as a warm start
	Algorithm           Algorithm
	Urgency             Urgency
	MinTradeNotional    decimal.Decimal
	OverlayInstruments  []OverlayInstrument
	EquityExposureGap   float64 // Equity exposure to remove through futures, zero for none
}

// Validate ensures the policy is complete
func (p *PortfolioPolicy) Validate() error {
	if p.PortfolioID == "" {
		return Invalid("policy.portfolio_id", "cannot be empty")
	}
	if p.RiskBudget == nil {
		return Invalid("policy.risk_budget", "portfolio %s has no risk budget", p.PortfolioID)
	}
	for id, b := range p.Bounds {
		if b.Min > b.Max {
			return Invalid("policy.bounds", "asset %s has min %v above max %v", id, b.Min, b.Max)
		}
	}
	if p.DurationTolerance < 0 {
		return Invalid("policy.duration_tolerance", "cannot be negative")
	}
	if p.MaxAssets < 0 {
		return Invalid("policy.max_assets", "cannot be negative")
	}
	for i := range p.OverlayInstruments {
		if err := p.OverlayInstruments[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
