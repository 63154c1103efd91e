package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

type constraintKind int

const (
	quadratic constraintKind = iota // (s_m' Sigma s_m) / scale - 1 <= 0
	linear                          // (a'w - b) / scale <= 0
)

// constraint is a normalized inequality g(w) <= 0
type constraint struct {
	name  string
	kind  constraintKind
	mask  []bool    // quadratic: assets in the bucket, nil for all assets
	raw   bool      // quadratic with zero allowance: g = s_m' Sigma s_m
	a     []float64 // linear coefficients
	b     float64
	scale float64
}

// problem is the fully materialized numerical form of a Request
type problem struct {
	n       int
	ids     []string
	buckets []domain.StrategyBucket
	sigma   *mat.SymDense
	hedge   []float64 // Liability-matching offset h; surplus exposure is w - h
	mu      []float64
	dur     []float64
	cvx     []float64
	lower   []float64
	upper   []float64
	current []float64
	illiq   []float64
	cons    []constraint
}

// surplus returns s = w - h and Sigma*s
func (p *problem) surplus(w []float64) ([]float64, []float64) {
	s := make([]float64, p.n)
	floats.SubTo(s, w, p.hedge)
	sigmaS := make([]float64, p.n)
	mat.NewVecDense(p.n, sigmaS).MulVec(p.sigma, mat.NewVecDense(p.n, s))
	return s, sigmaS
}

// maskedProduct returns Sigma*s_m where s_m is s with entries outside mask zeroed
func (p *problem) maskedProduct(s []float64, mask []bool) ([]float64, []float64) {
	sm := make([]float64, p.n)
	for i := range s {
		if mask == nil || mask[i] {
			sm[i] = s[i]
		}
	}
	out := make([]float64, p.n)
	mat.NewVecDense(p.n, out).MulVec(p.sigma, mat.NewVecDense(p.n, sm))
	return sm, out
}

// variance is the surplus variance s' Sigma s
func (p *problem) variance(w []float64) float64 {
	s, sigmaS := p.surplus(w)
	return floats.Dot(s, sigmaS)
}

// illiquidity is the non-convex trading penalty Sum k_i sqrt(|w_i - c_i|)
func (p *problem) illiquidity(w []float64) float64 {
	if p.illiq == nil {
		return 0
	}
	total := 0.0
	for i, k := range p.illiq {
		if k > 0 {
			total += k * math.Sqrt(math.Abs(w[i]-p.current[i]))
		}
	}
	return total
}

// objective is the full objective including non-convex penalties
func (p *problem) objective(w []float64) float64 {
	return p.variance(w) + p.illiquidity(w)
}

// constraintValue evaluates g_k(w)
func (p *problem) constraintValue(c *constraint, w, s []float64) float64 {
	switch c.kind {
	case quadratic:
		sm, prod := p.maskedProduct(s, c.mask)
		q := floats.Dot(sm, prod)
		if c.raw {
			return q
		}
		return q/c.scale - 1
	default:
		return (floats.Dot(c.a, w) - c.b) / c.scale
	}
}

// addConstraintGrad adds coef * grad g_k(w) to grad
func (p *problem) addConstraintGrad(c *constraint, coef float64, s, grad []float64) {
	switch c.kind {
	case quadratic:
		_, prod := p.maskedProduct(s, c.mask)
		scale := c.scale
		if c.raw {
			scale = 1
		}
		for i := range grad {
			if c.mask == nil || c.mask[i] {
				grad[i] += coef * 2 * prod[i] / scale
			}
		}
	default:
		for i := range grad {
			grad[i] += coef * c.a[i] / c.scale
		}
	}
}

// constraintValues evaluates every constraint and returns the max violation
func (p *problem) constraintValues(w []float64) ([]float64, float64) {
	s, _ := p.surplus(w)
	g := make([]float64, len(p.cons))
	maxViol := 0.0
	for k := range p.cons {
		g[k] = p.constraintValue(&p.cons[k], w, s)
		maxViol = math.Max(maxViol, g[k])
	}
	return g, maxViol
}

// augmented evaluates the augmented Lagrangian of the convex objective and its gradient
//
//	F(w) = f(w) + Sum (max(0, l_k + rho g_k)^2 - l_k^2) / (2 rho)
func (p *problem) augmented(w, lambda []float64, rho float64, grad []float64) float64 {
	s, sigmaS := p.surplus(w)
	value := floats.Dot(s, sigmaS)
	if grad != nil {
		for i := range grad {
			grad[i] = 2 * sigmaS[i]
		}
	}
	for k := range p.cons {
		c := &p.cons[k]
		g := p.constraintValue(c, w, s)
		shifted := math.Max(0, lambda[k]+rho*g)
		value += (shifted*shifted - lambda[k]*lambda[k]) / (2 * rho)
		if grad != nil && shifted > 0 {
			p.addConstraintGrad(c, shifted, s, grad)
		}
	}
	return value
}

// lagrangianGrad is grad f + Sum l_k grad g_k, used for the KKT stationarity test
func (p *problem) lagrangianGrad(w, lambda, grad []float64) {
	s, sigmaS := p.surplus(w)
	for i := range grad {
		grad[i] = 2 * sigmaS[i]
	}
	for k := range p.cons {
		if lambda[k] > 0 {
			p.addConstraintGrad(&p.cons[k], lambda[k], s, grad)
		}
	}
}

// violationPenalty is Sum max(0, g_k)^2 with its gradient, the phase-1 objective
func (p *problem) violationPenalty(w, grad []float64) float64 {
	s, _ := p.surplus(w)
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}
	total := 0.0
	for k := range p.cons {
		c := &p.cons[k]
		g := p.constraintValue(c, w, s)
		if g > 0 {
			total += g * g
			if grad != nil {
				p.addConstraintGrad(c, 2*g, s, grad)
			}
		}
	}
	return total
}

// project maps v onto {w : Sum w = 1, lower <= w <= upper}
// The shift tau solving Sum clip(v_i - tau) = 1 is found by bisection
func (p *problem) project(v, out []float64) {
	projectBoxSimplex(v, p.lower, p.upper, out)
}

func projectBoxSimplex(v, lower, upper, out []float64) {
	n := len(v)
	tLo, tHi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		tLo = math.Min(tLo, v[i]-upper[i])
		tHi = math.Max(tHi, v[i]-lower[i])
	}

	sumAt := func(tau float64) float64 {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += clamp(v[i]-tau, lower[i], upper[i])
		}
		return sum
	}

	for iter := 0; iter < 200 && tHi-tLo > 1e-16*math.Max(1, math.Abs(tHi)); iter++ {
		mid := 0.5 * (tLo + tHi)
		if sumAt(mid) > 1 {
			tLo = mid
		} else {
			tHi = mid
		}
	}
	tau := 0.5 * (tLo + tHi)
	sum := 0.0
	for i := 0; i < n; i++ {
		out[i] = clamp(v[i]-tau, lower[i], upper[i])
		sum += out[i]
	}

	// Push the last rounding residue onto coordinates that still have room
	residual := 1 - sum
	for i := 0; i < n && residual != 0; i++ {
		room := upper[i] - out[i]
		if residual < 0 {
			room = lower[i] - out[i]
		}
		step := residual
		if math.Abs(step) > math.Abs(room) {
			step = room
		}
		out[i] += step
		residual -= step
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// stationarity is the max-norm of w - P(w - grad), zero exactly at a stationary point
func (p *problem) stationarity(w, grad []float64) float64 {
	step := make([]float64, p.n)
	floats.SubTo(step, w, grad)
	proj := make([]float64, p.n)
	p.project(step, proj)
	return floats.Distance(w, proj, math.Inf(1))
}

// target assembles the reported allocation for w
func (p *problem) target(w []float64) TargetWeights {
	weights := make([]AssetWeight, p.n)
	for i := range w {
		weights[i] = AssetWeight{AssetID: p.ids[i], Bucket: p.buckets[i], Weight: w[i]}
	}

	s, _ := p.surplus(w)
	bucketRisk := make(map[domain.StrategyBucket]float64)
	for _, b := range uniqueBuckets(p.buckets) {
		mask := make([]bool, p.n)
		for i := range mask {
			mask[i] = p.buckets[i] == b
		}
		sm, prod := p.maskedProduct(s, mask)
		bucketRisk[b] = math.Sqrt(math.Max(0, floats.Dot(sm, prod)))
	}

	variance := p.variance(w)
	return TargetWeights{
		Weights:        weights,
		Variance:       variance,
		Volatility:     math.Sqrt(math.Max(0, variance)),
		Objective:      variance + p.illiquidity(w),
		ExpectedReturn: floats.Dot(p.mu, w),
		Duration:       floats.Dot(p.dur, w),
		Convexity:      floats.Dot(p.cvx, w),
		BucketRisk:     bucketRisk,
		Turnover:       floats.Distance(w, p.current, 1),
	}
}

func uniqueBuckets(buckets []domain.StrategyBucket) []domain.StrategyBucket {
	seen := make(map[domain.StrategyBucket]bool)
	out := make([]domain.StrategyBucket, 0)
	for _, b := range buckets {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

// withBounds returns a copy of the problem with new box constraints
func (p *problem) withBounds(lower, upper []float64) *problem {
	cp := *p
	cp.lower = lower
	cp.upper = upper
	return &cp
}
