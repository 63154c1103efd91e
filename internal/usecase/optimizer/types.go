package optimizer

import (
	"runtime"
	"time"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// Config holds the numerical settings of the optimizer
type Config struct {
	FeasibilityTol float64       // Max normalized constraint violation accepted as feasible
	InfeasibleTol  float64       // Phase-1 residual above which the problem is declared infeasible
	OptimalityTol  float64       // Max projected-gradient norm accepted as stationary
	PSDTol         float64       // Tolerance for symmetry and eigenvalue checks
	MaxIterations  int           // Inner-iteration budget per start
	Starts         int           // Number of multi-start points, including warm and phase-1 starts
	Workers        int           // Parallel start workers
	Seed           int64         // Seed for the pseudo-random starts
	TieEpsilon     float64       // Objective difference treated as a tie
	Timeout        time.Duration // Zero means only the context deadline applies
	PenaltyGrowth  float64       // Factor applied to the penalty when violation stalls
}

// DefaultConfig returns the reference settings
func DefaultConfig() Config {
	return Config{
		FeasibilityTol: 1e-7,
		InfeasibleTol:  1e-6,
		OptimalityTol:  1e-9,
		PSDTol:         1e-10,
		MaxIterations:  50_000,
		Starts:         6,
		Workers:        runtime.NumCPU(),
		Seed:           1,
		TieEpsilon:     1e-10,
		PenaltyGrowth:  10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FeasibilityTol <= 0 {
		c.FeasibilityTol = d.FeasibilityTol
	}
	if c.InfeasibleTol <= 0 {
		c.InfeasibleTol = d.InfeasibleTol
	}
	if c.InfeasibleTol < c.FeasibilityTol {
		c.InfeasibleTol = c.FeasibilityTol
	}
	if c.OptimalityTol <= 0 {
		c.OptimalityTol = d.OptimalityTol
	}
	if c.PSDTol <= 0 {
		c.PSDTol = d.PSDTol
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Starts <= 0 {
		c.Starts = d.Starts
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.TieEpsilon <= 0 {
		c.TieEpsilon = d.TieEpsilon
	}
	if c.PenaltyGrowth <= 1 {
		c.PenaltyGrowth = d.PenaltyGrowth
	}
	return c
}

// DurationMatch keeps asset duration within Tolerance years of Target
type DurationMatch struct {
	Target    float64
	Tolerance float64
}

// Constraints are the optional constraints on top of the risk budget
type Constraints struct {
	Bounds         map[string]domain.Bounds // Missing assets default to [0, 1]
	LiabilityProxy map[string]float64       // Liability-matching portfolio in liability units
	DurationMatch  *DurationMatch
	MaxAssets      int                // Cardinality limit; makes the problem non-convex
	Illiquidity    map[string]float64 // Penalty k*sqrt(|w - current|); makes the problem non-convex
}

func (c Constraints) nonConvex() bool {
	if c.MaxAssets > 0 {
		return true
	}
	for _, k := range c.Illiquidity {
		if k > 0 {
			return true
		}
	}
	return false
}

// Request is everything one optimization needs
type Request struct {
	Universe        domain.Universe
	Covariance      domain.CovarianceMatrix
	ExpectedReturns map[string]float64 // Overrides the universe's expected returns when set
	RiskBudget      *domain.RiskBudget
	Funding         domain.FundingObjective
	Constraints     Constraints
	Previous        *TargetWeights // Last period's solution, used as a warm start
}

// AssetWeight is the target weight of one asset class
type AssetWeight struct {
	AssetID string
	Bucket  domain.StrategyBucket
	Weight  float64
}

// TargetWeights is the allocation produced by an optimization
type TargetWeights struct {
	Weights        []AssetWeight
	Variance       float64 // Surplus variance
	Volatility     float64
	Objective      float64 // Variance plus any illiquidity penalty
	ExpectedReturn float64
	Duration       float64
	Convexity      float64
	BucketRisk     map[domain.StrategyBucket]float64 // Standalone surplus volatility per bucket
	Turnover       float64                           // L1 distance from current weights
}

// Weight returns the target weight of an asset, zero if absent
func (t *TargetWeights) Weight(id string) float64 {
	for _, w := range t.Weights {
		if w.AssetID == id {
			return w.Weight
		}
	}
	return 0
}

// AsMap returns the weights keyed by asset ID
func (t *TargetWeights) AsMap() map[string]float64 {
	out := make(map[string]float64, len(t.Weights))
	for _, w := range t.Weights {
		out[w.AssetID] = w.Weight
	}
	return out
}

// ResultKind tags a result as fully converged or approximate
type ResultKind string

const (
	ResultConverged   ResultKind = "CONVERGED"
	ResultApproximate ResultKind = "APPROXIMATE"
)

// SolvePath records which solver produced the result
type SolvePath string

const (
	PathConvex    SolvePath = "CONVEX"
	PathNonConvex SolvePath = "NONCONVEX"
)

// Result is the tagged outcome of an optimization
// Approximation is non-nil exactly when Kind is ResultApproximate
type Result struct {
	Kind          ResultKind
	Target        TargetWeights
	Approximation *domain.NonConvergedError
	Path          SolvePath
	Starts        int
	Iterations    int
}

// Converged returns the target when the solve met its tolerances
func (r *Result) Converged() (*TargetWeights, bool) {
	if r.Kind != ResultConverged {
		return nil, false
	}
	return &r.Target, true
}

// Approximate returns the best feasible target and why the solve stopped early
func (r *Result) Approximate() (*TargetWeights, *domain.NonConvergedError, bool) {
	if r.Kind != ResultApproximate {
		return nil, nil, false
	}
	return &r.Target, r.Approximation, true
}
