package execution

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// ImpactModel holds the market-impact coefficients and exponents
//
//	permanent bps = PermanentCoefficient * sigma_bps * (Q / ADV)^PermanentExponent
//	temporary bps = TemporaryCoefficient * sigma_bps * participation^TemporaryExponent
type ImpactModel struct {
	PermanentCoefficient float64
	PermanentExponent    float64
	TemporaryCoefficient float64
	TemporaryExponent    float64
}

// DefaultImpactModel is the square-root permanent, linear temporary reference model
func DefaultImpactModel() ImpactModel {
	return ImpactModel{
		PermanentCoefficient: 0.1,
		PermanentExponent:    0.5,
		TemporaryCoefficient: 0.5,
		TemporaryExponent:    1,
	}
}

func (m ImpactModel) permanentBps(sigmaBps, sizeToADV float64) float64 {
	return m.PermanentCoefficient * sigmaBps * math.Pow(sizeToADV, m.PermanentExponent)
}

func (m ImpactModel) temporaryBps(sigmaBps, participation float64) float64 {
	return m.TemporaryCoefficient * sigmaBps * math.Pow(participation, m.TemporaryExponent)
}

var bpsDivisor = decimal.NewFromInt(10_000)

// estimateCost prices a sliced schedule and fills each slice's cost estimate
// Logic:
//  1. Permanent impact on the whole order from its size against ADV
//  2. Temporary impact per slice from that slice's participation
//  3. Half-spread on every unit traded
//  4. Timing-risk variance Sum sigma_k^2 * R_k^2, R_k the notional still open at slice k
func estimateCost(slices []domain.ChildSlice, g grid, notional decimal.Decimal, profile domain.MarketProfile, cfg Config) domain.TransactionCost {
	if notional.IsZero() {
		return domain.TransactionCost{
			PermanentImpact: decimal.Zero,
			TemporaryImpact: decimal.Zero,
			SpreadCost:      decimal.Zero,
			Total:           decimal.Zero,
			RiskAdjusted:    decimal.Zero,
		}
	}

	sigmaBps := profile.Volatility * 10_000
	n := notional.InexactFloat64()

	permanentBps := cfg.Impact.permanentBps(sigmaBps, n/profile.ADV.InexactFloat64())
	permanent := notional.Mul(decimal.NewFromFloat(permanentBps)).Div(bpsDivisor)
	spread := notional.Mul(decimal.NewFromFloat(profile.HalfSpreadBps)).Div(bpsDivisor)

	temporary := decimal.Zero
	variance := 0.0
	open := n
	for k := range slices {
		s := &slices[k]
		tempBps := cfg.Impact.temporaryBps(sigmaBps, s.Participation)
		s.EstimatedCostBps = tempBps + profile.HalfSpreadBps
		temporary = temporary.Add(s.Quantity.Mul(decimal.NewFromFloat(tempBps)).Div(bpsDivisor))

		sliceSigma := profile.Volatility * math.Sqrt(float64(g.duration(s.Index))/float64(profile.Session))
		variance += sliceSigma * sliceSigma * open * open
		open -= s.Quantity.InexactFloat64()
	}

	// Unrounded: any positive notional must carry a positive cost
	total := permanent.Add(temporary).Add(spread)
	return domain.TransactionCost{
		PermanentImpact:    permanent,
		TemporaryImpact:    temporary,
		SpreadCost:         spread,
		TimingRiskVariance: variance,
		Total:              total,
		TotalBps:           total.Div(notional).InexactFloat64() * 10_000,
		RiskAdjusted:       total.Add(decimal.NewFromFloat(cfg.RiskAversion * variance)),
	}
}
