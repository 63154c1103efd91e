package liability

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

const (
	defaultDurationBumpBps  = 1.0
	defaultConvexityBumpBps = 10.0
)

// Model values liabilities and derives funding snapshots
// Every method is a pure function of its arguments and the bump configuration
type Model struct {
	DurationBumpBps  float64 // Shock used for effective duration, default 1bp
	ConvexityBumpBps float64 // Shock used for effective convexity, default 10bp
}

// NewModel creates a Model with the given bump sizes, falling back to 1bp and 10bp
func NewModel(durationBumpBps, convexityBumpBps float64) *Model {
	if durationBumpBps <= 0 {
		durationBumpBps = defaultDurationBumpBps
	}
	if convexityBumpBps <= 0 {
		convexityBumpBps = defaultConvexityBumpBps
	}
	return &Model{DurationBumpBps: durationBumpBps, ConvexityBumpBps: convexityBumpBps}
}

// ValueLiabilities discounts every cash flow at the curve's zero rate for its maturity
// Logic:
//  1. Validate the liability and the curve
//  2. Reject cash flows in a different currency than the curve
//  3. For each flow, t = YearFraction(curve.AsOf, flow.Date)
//  4. Fail with CurveGapError when t is outside the curve domain and extrapolation is off
//  5. PV = Sum(amount * DF(t))
func (m *Model) ValueLiabilities(liability *domain.Liability, curve *domain.DiscountCurve) (*domain.PresentValue, error) {
	pv, err := presentValue(liability, curve)
	if err != nil {
		return nil, err
	}

	return &domain.PresentValue{
		LiabilityID: liability.ID,
		Amount:      decimal.NewFromFloat(pv),
		Currency:    liability.Currency(),
		AsOf:        curve.AsOf,
		CashFlows:   len(liability.CashFlows),
	}, nil
}

// ComputeFundingRatio divides asset value by liability present value
// A non-positive liability value is degenerate input, never a division result
func (m *Model) ComputeFundingRatio(assetValue, liabilityPV decimal.Decimal) (*domain.FundingRatio, error) {
	if liabilityPV.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.DegenerateLiabilityError{PresentValue: liabilityPV}
	}
	if assetValue.LessThan(decimal.Zero) {
		return nil, domain.Invalid("asset_value", "cannot be negative, got %s", assetValue.String())
	}

	return &domain.FundingRatio{
		AssetValue:  assetValue,
		LiabilityPV: liabilityPV,
		Ratio:       assetValue.Div(liabilityPV).InexactFloat64(),
		Surplus:     assetValue.Sub(liabilityPV),
	}, nil
}

// DurationConvexity measures effective duration and convexity by repricing the
// liability under parallel shifts of the curve
//
//	duration  = (PV(-b1) - PV(+b1)) / (2 * PV0 * b1)
//	convexity = (PV(-b2) + PV(+b2) - 2 * PV0) / (PV0 * b2^2)
//
// with b1 the duration bump and b2 the convexity bump, both in decimal rate units.
func (m *Model) DurationConvexity(liability *domain.Liability, curve *domain.DiscountCurve) (*domain.RiskProfile, error) {
	pv0, err := presentValue(liability, curve)
	if err != nil {
		return nil, err
	}
	if pv0 <= 0 {
		return nil, &domain.DegenerateLiabilityError{PresentValue: decimal.NewFromFloat(pv0)}
	}

	b1 := m.durationBump()
	b2 := m.convexityBump()

	up1, err := presentValue(liability, curve.Shifted(b1))
	if err != nil {
		return nil, fmt.Errorf("reprice +%vbp: %w", b1, err)
	}
	down1, err := presentValue(liability, curve.Shifted(-b1))
	if err != nil {
		return nil, fmt.Errorf("reprice -%vbp: %w", b1, err)
	}
	up2, err := presentValue(liability, curve.Shifted(b2))
	if err != nil {
		return nil, fmt.Errorf("reprice +%vbp: %w", b2, err)
	}
	down2, err := presentValue(liability, curve.Shifted(-b2))
	if err != nil {
		return nil, fmt.Errorf("reprice -%vbp: %w", b2, err)
	}

	dy1 := b1 / 10000
	dy2 := b2 / 10000
	duration := (down1 - up1) / (2 * pv0 * dy1)
	convexity := (down2 + up2 - 2*pv0) / (pv0 * dy2 * dy2)

	return &domain.RiskProfile{
		PresentValue: pv0,
		Duration:     duration,
		Convexity:    convexity,
		DV01:         duration * pv0 * 0.0001,
	}, nil
}

// Snapshot chains valuation, risk and funding into a full funding snapshot with gaps
func (m *Model) Snapshot(assets domain.AssetExposure, liability *domain.Liability, curve *domain.DiscountCurve) (*domain.FundingRatio, *domain.RiskProfile, error) {
	profile, err := m.DurationConvexity(liability, curve)
	if err != nil {
		return nil, nil, err
	}

	fr, err := m.ComputeFundingRatio(assets.MarketValue, decimal.NewFromFloat(profile.PresentValue))
	if err != nil {
		return nil, nil, err
	}

	a := assets.MarketValue.InexactFloat64()
	l := profile.PresentValue
	fr.AsOf = curve.AsOf
	fr.AssetDuration = assets.Duration
	fr.AssetConvexity = assets.Convexity
	fr.LiabilityDuration = profile.Duration
	fr.LiabilityConvexity = profile.Convexity
	fr.DurationGap = assets.Duration - profile.Duration
	fr.ConvexityGap = assets.Convexity - profile.Convexity
	fr.DollarDurationGap = a*assets.Duration - l*profile.Duration
	fr.DollarConvexityGap = a*assets.Convexity - l*profile.Convexity

	return fr, profile, nil
}

func (m *Model) durationBump() float64 {
	if m.DurationBumpBps <= 0 {
		return defaultDurationBumpBps
	}
	return m.DurationBumpBps
}

func (m *Model) convexityBump() float64 {
	if m.ConvexityBumpBps <= 0 {
		return defaultConvexityBumpBps
	}
	return m.ConvexityBumpBps
}

// presentValue is the float core shared by valuation and bump-and-reprice
func presentValue(liability *domain.Liability, curve *domain.DiscountCurve) (float64, error) {
	if liability == nil {
		return 0, domain.Invalid("liability", "is required")
	}
	if curve == nil {
		return 0, domain.Invalid("curve", "is required")
	}
	if err := liability.Validate(); err != nil {
		return 0, err
	}
	if err := curve.Validate(); err != nil {
		return 0, err
	}
	if curve.Currency != "" && liability.Currency() != curve.Currency {
		return 0, domain.Invalid("liability.currency", "cash flows in %s cannot be discounted on %s curve %q",
			liability.Currency(), curve.Currency, curve.Name)
	}

	lo, hi := curve.Domain()
	pv := 0.0
	for _, cf := range liability.CashFlows {
		t := domain.YearFraction(curve.AsOf, cf.Date)
		if t < 0 {
			return 0, domain.Invalid("liability.cash_flows", "cash flow on %s precedes the valuation date %s",
				cf.Date.Format(time.DateOnly), curve.AsOf.Format(time.DateOnly))
		}
		rate, ok := curve.ZeroRate(t)
		if !ok {
			return 0, &domain.CurveGapError{Curve: curve.Name, Date: cf.Date, Maturity: t, MinTenor: lo, MaxTenor: hi}
		}
		pv += cf.Amount.InexactFloat64() * curve.DiscountFactor(rate, t)
	}
	return pv, nil
}
