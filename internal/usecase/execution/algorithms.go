package execution

import (
	"math"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// SelectAlgorithm picks a slicing strategy for AUTO requests
// Logic:
//  1. HIGH urgency trades off impact against timing risk: IS
//  2. Orders that are large against ADV follow the market's own volume: POV
//  3. Instruments with an intraday volume curve: VWAP
//  4. Otherwise spread evenly in time: TWAP
func SelectAlgorithm(req domain.OrderRequest, profile domain.MarketProfile, cfg Config) domain.Algorithm {
	if req.Urgency == domain.UrgencyHigh {
		return domain.AlgorithmIS
	}
	if sizeToADV(req, profile) >= cfg.LargeOrderADV {
		return domain.AlgorithmPOV
	}
	if len(profile.IntradayCurve) > 0 {
		return domain.AlgorithmVWAP
	}
	return domain.AlgorithmTWAP
}

func sizeToADV(req domain.OrderRequest, profile domain.MarketProfile) float64 {
	if !profile.ADV.IsPositive() {
		return math.Inf(1)
	}
	return req.Notional.Div(profile.ADV).InexactFloat64()
}

// twapWeights trades in proportion to slice duration
func twapWeights(g grid) []float64 {
	w := make([]float64, g.slices())
	for k := range w {
		w[k] = float64(g.duration(k))
	}
	return w
}

// vwapWeights trades in proportion to expected market volume
func vwapWeights(g grid) []float64 {
	w := make([]float64, g.slices())
	copy(w, g.volumes)
	return w
}

// povWeights trades a fixed share of market volume until the order is filled
// The rate is the configured target, raised when the horizon would not fill the order
func povWeights(g grid, notional, targetRate float64) []float64 {
	rate := targetRate
	if total := g.totalVolume(); total > 0 && notional/total > rate {
		rate = notional / total
	}
	w := make([]float64, g.slices())
	remaining := notional
	for k := range w {
		if remaining <= 0 {
			break
		}
		w[k] = math.Min(rate*g.volumes[k], remaining)
		remaining -= w[k]
	}
	return w
}

// isWeights follows the Almgren-Chriss trajectory x(t) = N sinh(k(T-t)) / sinh(kT),
// which front-loads trading as risk aversion grows
//
//	k = sqrt(lambda * sigma^2 / eta), eta = etaT * sigma / ADV
//
// with time measured in sessions
func isWeights(g grid, profile domain.MarketProfile, cfg Config) []float64 {
	horizon := float64(g.bounds[len(g.bounds)-1]) / float64(profile.Session)
	kappa := 0.0
	if sigma := profile.Volatility; sigma > 0 && cfg.Impact.TemporaryCoefficient > 0 {
		eta := cfg.Impact.TemporaryCoefficient * sigma / profile.ADV.InexactFloat64()
		kappa = math.Sqrt(cfg.RiskAversion * sigma * sigma / eta)
	}

	remaining := func(t float64) float64 {
		b := kappa * horizon
		if b < 1e-8 {
			return 1 - t/horizon
		}
		a := kappa * (horizon - t)
		// sinh(a)/sinh(b) rewritten to stay finite for large b
		return math.Exp(a-b) * (1 - math.Exp(-2*a)) / (1 - math.Exp(-2*b))
	}

	w := make([]float64, g.slices())
	for k := range w {
		t0 := float64(g.bounds[k]) / float64(profile.Session)
		t1 := float64(g.bounds[k+1]) / float64(profile.Session)
		w[k] = math.Max(0, remaining(t0)-remaining(t1))
	}
	return w
}
