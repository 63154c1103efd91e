package optimizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

func budget(t *testing.T, allocations map[domain.StrategyBucket]float64, ceiling float64) *domain.RiskBudget {
	t.Helper()
	b, err := domain.NewRiskBudget(allocations, ceiling)
	require.NoError(t, err)
	return b
}

func newOptimizer(t *testing.T) *Optimizer {
	cfg := DefaultConfig()
	cfg.Workers = 2
	return NewOptimizer(cfg, zaptest.NewLogger(t))
}

// ratesEquityRequest has an uncorrelated rates asset (vol 10%) and equity asset (vol 20%)
func ratesEquityRequest(b *domain.RiskBudget) Request {
	return Request{
		Universe: domain.Universe{Assets: []domain.AssetClass{
			{ID: "UST", Bucket: domain.BucketRates, ExpectedReturn: 0.04, Duration: 7},
			{ID: "SPX", Bucket: domain.BucketEquity, ExpectedReturn: 0.07},
		}},
		Covariance: domain.CovarianceMatrix{
			IDs:    []string{"UST", "SPX"},
			Values: [][]float64{{0.01, 0}, {0, 0.04}},
		},
		RiskBudget: b,
	}
}

func assertFullyInvested(t *testing.T, target TargetWeights) {
	t.Helper()
	sum := 0.0
	for _, w := range target.Weights {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "weights must sum to one")
}

func TestOptimize_IdenticalAssetsSplitEvenly(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.2, domain.BucketEquity: 0.2}, 0.4)
	req := Request{
		Universe: domain.Universe{Assets: []domain.AssetClass{
			{ID: "A", Bucket: domain.BucketRates},
			{ID: "B", Bucket: domain.BucketEquity},
		}},
		Covariance: domain.CovarianceMatrix{
			IDs:    []string{"A", "B"},
			Values: [][]float64{{0.04, 0}, {0, 0.04}},
		},
		RiskBudget: b,
	}

	result, err := newOptimizer(t).Optimize(context.Background(), req)

	require.NoError(t, err)
	target, ok := result.Converged()
	require.True(t, ok, "expected a converged result, got %v", result.Approximation)
	assert.InDelta(t, 0.5, target.Weight("A"), 1e-6)
	assert.InDelta(t, 0.5, target.Weight("B"), 1e-6)
	assert.InDelta(t, 0.02, target.Variance, 1e-9)
	assert.Equal(t, PathConvex, result.Path)
}

func TestOptimize_TighterBudgetNeverLowersVariance(t *testing.T) {
	opt := newOptimizer(t)

	loose := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.10, domain.BucketEquity: 0.10}, 0.25)
	tight := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.06, domain.BucketEquity: 0.10}, 0.25)

	looseResult, err := opt.Optimize(context.Background(), ratesEquityRequest(loose))
	require.NoError(t, err)
	tightResult, err := opt.Optimize(context.Background(), ratesEquityRequest(tight))
	require.NoError(t, err)

	// Unconstrained minimum variance puts 80% in rates: variance 0.008
	assert.InDelta(t, 0.8, looseResult.Target.Weight("UST"), 1e-4)
	assert.InDelta(t, 0.008, looseResult.Target.Variance, 1e-6)

	// A 6% rates allowance caps the rates weight at 60%: variance 0.01
	assert.InDelta(t, 0.6, tightResult.Target.Weight("UST"), 1e-4)
	assert.InDelta(t, 0.01, tightResult.Target.Variance, 1e-5)
	assert.LessOrEqual(t, tightResult.Target.BucketRisk[domain.BucketRates], 0.06+1e-6)

	assert.GreaterOrEqual(t, tightResult.Target.Variance, looseResult.Target.Variance-1e-12)
}

func TestOptimize_RespectsBoundsAndBudget(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{
		domain.BucketRates:  0.05,
		domain.BucketCredit: 0.05,
		domain.BucketEquity: 0.10,
	}, 0.20)
	req := Request{
		Universe: domain.Universe{Assets: []domain.AssetClass{
			{ID: "LDI", Bucket: domain.BucketRates},
			{ID: "IG", Bucket: domain.BucketCredit},
			{ID: "DM", Bucket: domain.BucketEquity},
			{ID: "EM", Bucket: domain.BucketEquity},
		}},
		Covariance: domain.CovarianceMatrix{
			IDs: []string{"LDI", "IG", "DM", "EM"},
			Values: [][]float64{
				{0.0100, 0.0040, 0.0010, 0.0010},
				{0.0040, 0.0090, 0.0060, 0.0070},
				{0.0010, 0.0060, 0.0256, 0.0250},
				{0.0010, 0.0070, 0.0250, 0.0441},
			},
		},
		RiskBudget: b,
		Constraints: Constraints{Bounds: map[string]domain.Bounds{
			"LDI": {Min: 0, Max: 0.40},
			"DM":  {Min: 0.15, Max: 0.50},
		}},
	}

	result, err := newOptimizer(t).Optimize(context.Background(), req)

	require.NoError(t, err)
	target := result.Target
	assertFullyInvested(t, target)
	assert.LessOrEqual(t, target.Weight("LDI"), 0.40+1e-12)
	assert.GreaterOrEqual(t, target.Weight("DM"), 0.15-1e-12)
	for _, w := range target.Weights {
		assert.GreaterOrEqual(t, w.Weight, -1e-12, "asset %s", w.AssetID)
	}
	for bucket, risk := range target.BucketRisk {
		allowance, _ := b.Allowance(bucket)
		assert.LessOrEqual(t, risk, allowance*(1+1e-6), "bucket %s", bucket)
	}
	assert.LessOrEqual(t, target.Volatility, 0.20*(1+1e-6))
}

func TestOptimize_RejectsNonPSDCovariance(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.2, domain.BucketEquity: 0.2}, 0.4)
	req := ratesEquityRequest(b)
	// Eigenvalues 0.09 and -0.01
	req.Covariance.Values = [][]float64{{0.04, 0.05}, {0.05, 0.04}}

	result, err := newOptimizer(t).Optimize(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, result)
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, domain.KindInput, domain.KindOf(err))
	assert.Contains(t, err.Error(), "positive semi-definite")
}

func TestOptimize_InvalidInputs(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.2}, 0.4)

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{
			name:   "Asset in an unbudgeted bucket should fail",
			mutate: func(r *Request) {},
		},
		{
			name: "Missing covariance row should fail",
			mutate: func(r *Request) {
				r.RiskBudget = budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.1, domain.BucketEquity: 0.1}, 0.4)
				r.Covariance = domain.CovarianceMatrix{IDs: []string{"UST"}, Values: [][]float64{{0.01}}}
			},
		},
		{
			name: "Bounds with min above max should fail",
			mutate: func(r *Request) {
				r.RiskBudget = budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.1, domain.BucketEquity: 0.1}, 0.4)
				r.Constraints.Bounds = map[string]domain.Bounds{"UST": {Min: 0.6, Max: 0.4}}
			},
		},
		{
			name: "Missing risk budget should fail",
			mutate: func(r *Request) {
				r.RiskBudget = nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ratesEquityRequest(b)
			tt.mutate(&req)

			_, err := newOptimizer(t).Optimize(context.Background(), req)

			require.Error(t, err)
			assert.Equal(t, domain.KindInput, domain.KindOf(err))
		})
	}
}

func TestOptimize_Infeasible(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.2, domain.BucketEquity: 0.2}, 0.4)

	tests := []struct {
		name      string
		mutate    func(r *Request)
		violation string
	}{
		{
			name: "Minimum weights above one",
			mutate: func(r *Request) {
				r.Constraints.Bounds = map[string]domain.Bounds{"UST": {Min: 0.6, Max: 1}, "SPX": {Min: 0.6, Max: 1}}
			},
			violation: "bounds",
		},
		{
			name: "Unreachable required return",
			mutate: func(r *Request) {
				// Needs 25% a year; the best asset returns 7%
				r.Funding = domain.FundingObjective{Current: 0.8, Target: 1.0, HorizonYears: 1}
			},
			violation: "required_return",
		},
		{
			name: "Duration band out of reach",
			mutate: func(r *Request) {
				r.Constraints.DurationMatch = &DurationMatch{Target: 15, Tolerance: 1}
			},
			violation: "duration_min",
		},
		{
			name: "Budget too small for any portfolio",
			mutate: func(r *Request) {
				r.RiskBudget = budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.01, domain.BucketEquity: 0.01}, 0.02)
			},
			violation: "risk_budget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ratesEquityRequest(b)
			tt.mutate(&req)

			_, err := newOptimizer(t).Optimize(context.Background(), req)

			var infeasible *domain.InfeasibleError
			require.True(t, errors.As(err, &infeasible), "expected InfeasibleError, got %v", err)
			assert.Contains(t, infeasible.Error(), tt.violation)
			assert.Equal(t, domain.KindInfeasible, domain.KindOf(err))
		})
	}
}

func TestOptimize_DurationBand(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.2}, 0.2)
	req := Request{
		Universe: domain.Universe{Assets: []domain.AssetClass{
			{ID: "SHORT", Bucket: domain.BucketRates, Duration: 2},
			{ID: "LONG", Bucket: domain.BucketRates, Duration: 20},
		}},
		Covariance: domain.CovarianceMatrix{
			IDs:    []string{"SHORT", "LONG"},
			Values: [][]float64{{0.0025, 0}, {0, 0.01}},
		},
		RiskBudget:  b,
		Constraints: Constraints{DurationMatch: &DurationMatch{Target: 14, Tolerance: 0.5}},
	}

	result, err := newOptimizer(t).Optimize(context.Background(), req)

	require.NoError(t, err)
	// Minimum variance alone gives duration 5.6, so the lower edge of the band binds
	assert.InDelta(t, 13.5, result.Target.Duration, 1e-4)
	assert.InDelta(t, 11.5/18, result.Target.Weight("LONG"), 1e-5)
}

func TestOptimize_LiabilityProxyHedges(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.2, domain.BucketEquity: 0.2}, 0.4)
	req := ratesEquityRequest(b)
	// Liabilities behave like the rates asset and the plan is fully funded
	req.Constraints.LiabilityProxy = map[string]float64{"UST": 1}
	req.Funding = domain.FundingObjective{Current: 1}

	result, err := newOptimizer(t).Optimize(context.Background(), req)

	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Target.Weight("UST"), 1e-5)
	assert.InDelta(t, 0, result.Target.Variance, 1e-9)
}

func TestOptimize_TiesPreferCurrentWeights(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketEquity: 0.3}, 0.3)
	req := Request{
		Universe: domain.Universe{Assets: []domain.AssetClass{
			{ID: "A", Bucket: domain.BucketEquity, MarketValue: decimal.NewFromInt(700)},
			{ID: "B", Bucket: domain.BucketEquity, MarketValue: decimal.NewFromInt(300)},
		}},
		// Perfectly correlated: every split has the same variance
		Covariance: domain.CovarianceMatrix{
			IDs:    []string{"A", "B"},
			Values: [][]float64{{0.04, 0.04}, {0.04, 0.04}},
		},
		RiskBudget: b,
	}

	result, err := newOptimizer(t).Optimize(context.Background(), req)

	require.NoError(t, err)
	assert.InDelta(t, 0.7, result.Target.Weight("A"), 1e-9)
	assert.InDelta(t, 0.0, result.Target.Turnover, 1e-9)
}

func TestOptimize_Deterministic(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.06, domain.BucketEquity: 0.10}, 0.25)
	opt := newOptimizer(t)

	first, err := opt.Optimize(context.Background(), ratesEquityRequest(b))
	require.NoError(t, err)
	second, err := opt.Optimize(context.Background(), ratesEquityRequest(b))
	require.NoError(t, err)

	assert.Equal(t, first.Target.Weights, second.Target.Weights)
	assert.Equal(t, first.Kind, second.Kind)
}

func TestOptimize_DeadlineReturnsApproximate(t *testing.T) {
	// Equal weights sit strictly inside this budget, so a feasible point exists before any iteration
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.10, domain.BucketEquity: 0.15}, 0.25)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	result, err := newOptimizer(t).Optimize(ctx, ratesEquityRequest(b))

	require.NoError(t, err)
	target, approx, ok := result.Approximate()
	require.True(t, ok)
	assert.Equal(t, domain.StopDeadline, approx.Reason)
	assertFullyInvested(t, *target)
}

func TestOptimize_CancelledContext(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.10, domain.BucketEquity: 0.15}, 0.25)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newOptimizer(t).Optimize(ctx, ratesEquityRequest(b))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimize_MaxAssets(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketEquity: 0.3}, 0.3)
	req := Request{
		Universe: domain.Universe{Assets: []domain.AssetClass{
			{ID: "A", Bucket: domain.BucketEquity},
			{ID: "B", Bucket: domain.BucketEquity},
			{ID: "C", Bucket: domain.BucketEquity},
		}},
		Covariance: domain.CovarianceMatrix{
			IDs:    []string{"A", "B", "C"},
			Values: [][]float64{{0.04, 0, 0}, {0, 0.05, 0}, {0, 0, 0.09}},
		},
		RiskBudget:  b,
		Constraints: Constraints{MaxAssets: 2},
	}

	result, err := newOptimizer(t).Optimize(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, PathNonConvex, result.Path)
	assertFullyInvested(t, result.Target)
	assert.InDelta(t, 0, result.Target.Weight("C"), 1e-12, "the smallest holding is dropped")
	// Two-asset minimum variance: w_A = 0.05 / 0.09
	assert.InDelta(t, 0.05/0.09, result.Target.Weight("A"), 1e-4)
}

func TestOptimize_MaxAssetsDeadlineKeepsConvexPoint(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketEquity: 0.12}, 0.12)
	req := Request{
		Universe: domain.Universe{Assets: []domain.AssetClass{
			{ID: "A", Bucket: domain.BucketEquity},
			{ID: "B", Bucket: domain.BucketEquity},
			{ID: "C", Bucket: domain.BucketEquity},
		}},
		Covariance: domain.CovarianceMatrix{
			IDs:    []string{"A", "B", "C"},
			Values: [][]float64{{0.01, 0, 0}, {0, 0.09, 0}, {0, 0, 0.09}},
		},
		RiskBudget: b,
		// The restricted equal-weight start (0.6, 0.4, 0) breaks the ceiling, so
		// restricting the support has to iterate past the deadline
		Constraints: Constraints{
			Bounds:    map[string]domain.Bounds{"A": {Min: 0.6, Max: 1}},
			MaxAssets: 2,
		},
	}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	result, err := newOptimizer(t).Optimize(ctx, req)

	require.NoError(t, err)
	target, approx, ok := result.Approximate()
	require.True(t, ok)
	assert.Equal(t, PathNonConvex, result.Path)
	assert.Equal(t, domain.StopDeadline, approx.Reason)
	assertFullyInvested(t, *target)
	assert.GreaterOrEqual(t, target.Weight("A"), 0.6-1e-12)
	assert.LessOrEqual(t, target.Volatility, 0.12+1e-6)

	held := 0
	for _, w := range target.Weights {
		if w.Weight > 1e-9 {
			held++
		}
	}
	if held > 2 {
		assert.Contains(t, approx.Detail, "max_assets")
	}
}

func TestOptimize_IlliquidityPenaltyUsesNonConvexPath(t *testing.T) {
	b := budget(t, map[domain.StrategyBucket]float64{domain.BucketRates: 0.10, domain.BucketEquity: 0.10}, 0.25)
	req := ratesEquityRequest(b)
	req.Universe.Assets[0].MarketValue = decimal.NewFromInt(500)
	req.Universe.Assets[1].MarketValue = decimal.NewFromInt(500)
	req.Constraints.Illiquidity = map[string]float64{"SPX": 0.002}

	convex, err := newOptimizer(t).Optimize(context.Background(), ratesEquityRequest(b))
	require.NoError(t, err)
	result, err := newOptimizer(t).Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, PathNonConvex, result.Path)
	assertFullyInvested(t, result.Target)
	assert.GreaterOrEqual(t, result.Target.Objective, result.Target.Variance)
	// Trading costs pull the target back towards the 50/50 holdings
	assert.LessOrEqual(t, result.Target.Weight("UST"), convex.Target.Weight("UST")+1e-9)
}

func TestProjectBoxSimplex(t *testing.T) {
	tests := []struct {
		name  string
		v     []float64
		lower []float64
		upper []float64
		want  []float64
	}{
		{
			name:  "Already feasible point is unchanged",
			v:     []float64{0.2, 0.3, 0.5},
			lower: []float64{0, 0, 0},
			upper: []float64{1, 1, 1},
			want:  []float64{0.2, 0.3, 0.5},
		},
		{
			name:  "Uniform shift",
			v:     []float64{1, 1},
			lower: []float64{0, 0},
			upper: []float64{1, 1},
			want:  []float64{0.5, 0.5},
		},
		{
			name:  "Upper bound clips",
			v:     []float64{2, 0, 0},
			lower: []float64{0, 0, 0},
			upper: []float64{0.6, 1, 1},
			want:  []float64{0.6, 0.2, 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]float64, len(tt.v))
			projectBoxSimplex(tt.v, tt.lower, tt.upper, out)
			assert.InDeltaSlice(t, tt.want, out, 1e-12)
		})
	}
}
