package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// Optimizer turns a risk budget into target weights that minimize surplus variance
type Optimizer struct {
	cfg    Config
	logger *zap.Logger
}

// NewOptimizer creates a new optimizer; zero-valued settings take their defaults
func NewOptimizer(cfg Config, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective settings
func (o *Optimizer) Config() Config {
	return o.cfg
}

// Optimize computes target weights for the request
// Logic:
//  1. Validate inputs; a non-PSD covariance is rejected before any solve
//  2. Prove feasibility (InfeasibleError lists the violated constraints otherwise)
//  3. Solve the convex problem from several starts in parallel and reduce deterministically
//  4. Refine for cardinality and illiquidity when those constraints are present
//  5. On deadline, return the best feasible point as an approximate result
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Result, error) {
	cfg := o.cfg
	p, err := buildProblem(req, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	phase1, err := p.checkFeasibility(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.NonConvergedError{Reason: domain.StopDeadline, Detail: "deadline reached before a feasible point was found"}
		}
		return nil, err
	}

	var warm []float64
	if req.Previous != nil {
		warm = p.alignWeights(req.Previous.AsMap())
	} else if floats.Sum(p.current) > 0 {
		warm = p.current
	}

	starts := p.startPoints(warm, phase1, cfg)
	outcomes, err := p.solveMulti(ctx, starts, cfg)
	if err != nil {
		return nil, err
	}

	iterations := 0
	for _, out := range outcomes {
		iterations += out.iterations
	}

	best, ok := p.pick(outcomes, cfg)
	if !ok {
		_, violation := p.constraintValues(phase1)
		if ctx.Err() != nil && violation > cfg.FeasibilityTol {
			return nil, &domain.NonConvergedError{
				Reason:       domain.StopDeadline,
				Iterations:   iterations,
				MaxViolation: violation,
				Detail:       "deadline reached before a feasible point was found",
			}
		}
		best = outcome{
			index:     -1,
			w:         phase1,
			objective: p.objective(phase1),
			violation: violation,
			feasible:  true,
			stop:      domain.StopIterationLimit,
		}
		if ctx.Err() != nil {
			best.stop = domain.StopDeadline
		}
	}
	best.iterations = iterations

	path := PathConvex
	active := p
	if req.Constraints.nonConvex() {
		path = PathNonConvex
		active, best, err = p.refineNonConvex(ctx, best, req.Constraints, cfg)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{
		Kind:       ResultConverged,
		Target:     active.target(best.w),
		Path:       path,
		Starts:     len(starts),
		Iterations: best.iterations,
	}
	if !best.converged {
		result.Kind = ResultApproximate
		result.Approximation = &domain.NonConvergedError{
			Reason:       best.stop,
			Iterations:   best.iterations,
			MaxViolation: math.Max(0, best.violation),
			Stationarity: best.stationarity,
			Detail:       statusDetail(best),
		}
	}

	o.logger.Debug("optimization finished",
		zap.String("kind", string(result.Kind)),
		zap.String("path", string(result.Path)),
		zap.Int("starts", result.Starts),
		zap.Int("iterations", result.Iterations),
		zap.Float64("volatility", result.Target.Volatility),
	)
	return result, nil
}

// buildProblem validates the request and materializes its numerical form
func buildProblem(req Request, cfg Config) (*problem, error) {
	if err := req.Universe.Validate(); err != nil {
		return nil, err
	}
	if req.RiskBudget == nil {
		return nil, domain.Invalid("risk_budget", "is required")
	}

	ids := req.Universe.IDs()
	cov, err := req.Covariance.AlignTo(ids)
	if err != nil {
		return nil, err
	}
	if err := cov.Validate(cfg.PSDTol); err != nil {
		return nil, err
	}

	n := len(ids)
	p := &problem{
		n:       n,
		ids:     ids,
		buckets: make([]domain.StrategyBucket, n),
		sigma:   cov.Sym(),
		hedge:   make([]float64, n),
		mu:      make([]float64, n),
		dur:     make([]float64, n),
		cvx:     make([]float64, n),
		lower:   make([]float64, n),
		upper:   make([]float64, n),
		current: req.Universe.CurrentWeights(),
	}

	for i, a := range req.Universe.Assets {
		if _, ok := req.RiskBudget.Allowance(a.Bucket); !ok {
			return nil, domain.Invalid("risk_budget", "asset %s is in bucket %s, which has no allowance", a.ID, a.Bucket)
		}
		p.buckets[i] = a.Bucket
		p.mu[i] = a.ExpectedReturn
		if r, ok := req.ExpectedReturns[a.ID]; ok {
			p.mu[i] = r
		}
		p.dur[i] = a.Duration
		p.cvx[i] = a.Convexity
		p.lower[i], p.upper[i] = 0, 1
		if b, ok := req.Constraints.Bounds[a.ID]; ok {
			if b.Min > b.Max || math.IsNaN(b.Min) || math.IsNaN(b.Max) {
				return nil, domain.Invalid("constraints.bounds", "asset %s has min %v above max %v", a.ID, b.Min, b.Max)
			}
			p.lower[i], p.upper[i] = b.Min, b.Max
		}
	}
	for id := range req.Constraints.Bounds {
		if req.Universe.Index(id) < 0 {
			return nil, domain.Invalid("constraints.bounds", "unknown asset %s", id)
		}
	}

	if len(req.Constraints.LiabilityProxy) > 0 {
		scale := 1.0
		if req.Funding.Current > 0 {
			scale = 1 / req.Funding.Current
		}
		for id, v := range req.Constraints.LiabilityProxy {
			i := req.Universe.Index(id)
			if i < 0 {
				return nil, domain.Invalid("constraints.liability_proxy", "unknown asset %s", id)
			}
			p.hedge[i] = v * scale
		}
	}

	for id, k := range req.Constraints.Illiquidity {
		i := req.Universe.Index(id)
		if i < 0 {
			return nil, domain.Invalid("constraints.illiquidity", "unknown asset %s", id)
		}
		if k < 0 {
			return nil, domain.Invalid("constraints.illiquidity", "coefficient for %s cannot be negative", id)
		}
		if k > 0 {
			if p.illiq == nil {
				p.illiq = make([]float64, n)
			}
			p.illiq[i] = k
		}
	}
	if req.Constraints.MaxAssets < 0 {
		return nil, domain.Invalid("constraints.max_assets", "cannot be negative")
	}

	for _, bucket := range uniqueBuckets(p.buckets) {
		allowance, _ := req.RiskBudget.Allowance(bucket)
		mask := make([]bool, n)
		for i := range mask {
			mask[i] = p.buckets[i] == bucket
		}
		c := constraint{name: fmt.Sprintf("risk_budget[%s]", bucket), kind: quadratic, mask: mask}
		if allowance > 0 {
			c.scale = allowance * allowance
		} else {
			c.raw = true
		}
		p.cons = append(p.cons, c)
	}
	ceiling := req.RiskBudget.Ceiling()
	p.cons = append(p.cons, constraint{name: "risk_ceiling", kind: quadratic, scale: ceiling * ceiling})

	if dm := req.Constraints.DurationMatch; dm != nil {
		if dm.Tolerance < 0 {
			return nil, domain.Invalid("constraints.duration_match", "tolerance cannot be negative")
		}
		scale := math.Max(math.Abs(dm.Target), 1)
		neg := make([]float64, n)
		for i := range neg {
			neg[i] = -p.dur[i]
		}
		p.cons = append(p.cons,
			constraint{name: "duration_max", kind: linear, a: p.dur, b: dm.Target + dm.Tolerance, scale: scale},
			constraint{name: "duration_min", kind: linear, a: neg, b: -(dm.Target - dm.Tolerance), scale: scale},
		)
	}

	if r, ok := req.Funding.RequiredReturn(); ok {
		neg := make([]float64, n)
		for i := range neg {
			neg[i] = -p.mu[i]
		}
		p.cons = append(p.cons, constraint{name: "required_return", kind: linear, a: neg, b: -r, scale: math.Max(math.Abs(r), 0.01)})
	}

	return p, nil
}

// alignWeights orders a weight map by the problem's asset order
func (p *problem) alignWeights(weights map[string]float64) []float64 {
	out := make([]float64, p.n)
	for i, id := range p.ids {
		out[i] = weights[id]
	}
	return out
}
