package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

const (
	supportThreshold = 1e-9
	violationWeight  = 1e6
)

// restrictSupport keeps at most k assets: every asset with a positive lower bound,
// then the largest weights of the convex solution
// Returns nil when the support already fits
func (p *problem) restrictSupport(w []float64, k int) (*problem, error) {
	held := 0
	for _, v := range w {
		if v > supportThreshold {
			held++
		}
	}
	if held <= k {
		return nil, nil
	}

	order := make([]int, p.n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		fi, fj := p.lower[order[i]] > 0, p.lower[order[j]] > 0
		if fi != fj {
			return fi
		}
		return w[order[i]] > w[order[j]]
	})

	forced := 0
	for _, lo := range p.lower {
		if lo > 0 {
			forced++
		}
	}
	if forced > k {
		return nil, &domain.InfeasibleError{Violations: []string{
			fmt.Sprintf("max_assets: %d assets have a positive minimum weight, limit is %d", forced, k),
		}}
	}

	lower := make([]float64, p.n)
	upper := make([]float64, p.n)
	for rank, i := range order {
		if rank < k {
			lower[i], upper[i] = p.lower[i], p.upper[i]
		}
	}
	return p.withBounds(lower, upper), nil
}

// minimizeIlliquid refines w with Nelder-Mead on the penalized non-convex objective
// f(P(x)) + M * Sum max(0, g(P(x)))^2, where P is the box-simplex projection
func (p *problem) minimizeIlliquid(ctx context.Context, w []float64, cfg Config) (outcome, error) {
	proj := make([]float64, p.n)
	penalized := func(x []float64) float64 {
		p.project(x, proj)
		v := p.objective(proj)
		g, _ := p.constraintValues(proj)
		for _, gk := range g {
			if gk > 0 {
				v += violationWeight * gk * gk
			}
		}
		return v
	}

	settings := &optimize.Settings{
		MajorIterations: cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-14,
			Relative:   1e-12,
			Iterations: 200,
		},
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return outcome{}, context.DeadlineExceeded
		}
		settings.Runtime = remaining
	}

	result, err := optimize.Minimize(optimize.Problem{Func: penalized}, w, settings, &optimize.NelderMead{})
	if result == nil {
		if err == nil {
			err = errors.New("nelder-mead returned no result")
		}
		return outcome{}, err
	}

	x := make([]float64, p.n)
	p.project(result.X, x)
	_, viol := p.constraintValues(x)

	out := outcome{
		w:          x,
		objective:  p.objective(x),
		violation:  viol,
		iterations: result.Stats.MajorIterations,
		feasible:   viol <= cfg.FeasibilityTol,
	}
	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.GradientThreshold, optimize.MethodConverge:
		out.converged = true
	case optimize.RuntimeLimit:
		out.stop = domain.StopDeadline
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit:
		out.stop = domain.StopIterationLimit
	default:
		out.stop = domain.StopSolverStatus
	}
	return out, nil
}

// statusDetail describes a non-convex stop for the approximation record
func statusDetail(o outcome) string {
	if o.detail != "" {
		return o.detail
	}
	if o.stop == domain.StopSolverStatus {
		return "nelder-mead stopped without converging"
	}
	return ""
}

// refineNonConvex applies the cardinality heuristic and the illiquidity refinement
// to a convex solution, falling back to the convex point whenever the refinement
// is infeasible or worse
func (p *problem) refineNonConvex(ctx context.Context, convex outcome, cons Constraints, cfg Config) (*problem, outcome, error) {
	active := p
	best := convex

	if cons.MaxAssets > 0 {
		restricted, err := p.restrictSupport(best.w, cons.MaxAssets)
		if err != nil {
			return nil, outcome{}, err
		}
		if restricted != nil {
			phase1, err := restricted.checkFeasibility(ctx, cfg)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return p, cardinalityDeadline(convex, cons.MaxAssets), nil
				}
				var infeasible *domain.InfeasibleError
				if errors.As(err, &infeasible) {
					infeasible.Violations = append(infeasible.Violations,
						fmt.Sprintf("max_assets: no feasible portfolio on the %d largest holdings", cons.MaxAssets))
				}
				return nil, outcome{}, err
			}
			outcomes, err := restricted.solveMulti(ctx, restricted.startPoints(nil, phase1, cfg), cfg)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return p, cardinalityDeadline(convex, cons.MaxAssets), nil
				}
				return nil, outcome{}, err
			}
			picked, ok := restricted.pick(outcomes, cfg)
			if !ok {
				picked = outcome{w: phase1, objective: restricted.objective(phase1), feasible: true, stop: domain.StopIterationLimit}
			}
			picked.iterations += convex.iterations
			active, best = restricted, picked
		}
	}

	if active.illiq == nil {
		return active, best, nil
	}

	refined, err := active.minimizeIlliquid(ctx, best.w, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			best.converged = false
			best.stop = domain.StopDeadline
			return active, best, nil
		}
		return nil, outcome{}, err
	}
	refined.iterations += best.iterations
	if !refined.feasible || refined.objective > best.objective {
		best.iterations = refined.iterations
		if !refined.converged {
			best.converged = false
			best.stop = refined.stop
		}
		return active, best, nil
	}
	return active, refined, nil
}

// cardinalityDeadline keeps the convex point when the deadline hits before the
// support could be restricted; the detail records a broken holdings limit
func cardinalityDeadline(convex outcome, limit int) outcome {
	convex.converged = false
	convex.stop = domain.StopDeadline
	held := 0
	for _, v := range convex.w {
		if v > supportThreshold {
			held++
		}
	}
	if held > limit {
		convex.detail = fmt.Sprintf("max_assets: deadline reached before restricting %d holdings to %d", held, limit)
	}
	return convex
}
