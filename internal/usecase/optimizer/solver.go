package optimizer

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

const (
	initialPenalty = 10.0
	maxPenalty     = 1e8
	maxOuter       = 200
	ctxCheckEvery  = 32
)

// outcome is what one start of the convex solver produced
type outcome struct {
	index        int
	w            []float64
	objective    float64
	violation    float64
	stationarity float64
	iterations   int
	converged    bool
	feasible     bool
	stop         domain.StopReason
	detail       string
}

// tracker remembers the best feasible iterate seen so a stopped solve can still report something
type tracker struct {
	p       *problem
	tol     float64
	best    []float64
	bestObj float64
}

func (t *tracker) offer(w []float64, violation float64) {
	if violation > t.tol {
		return
	}
	obj := t.p.objective(w)
	if t.best == nil || obj < t.bestObj {
		t.best = append(t.best[:0], w...)
		t.bestObj = obj
	}
}

// solveConvex minimizes surplus variance under the normalized constraints with an
// augmented Lagrangian whose subproblems are solved by projected gradient
// Logic:
//  1. Project the start onto the box-simplex
//  2. Minimize the augmented Lagrangian to the current inner tolerance
//  3. Update multipliers l = max(0, l + rho*g); grow rho when violation stalls
//  4. Stop when the point is feasible and KKT-stationary, or a budget runs out
func (p *problem) solveConvex(ctx context.Context, start []float64, cfg Config) (outcome, error) {
	w := make([]float64, p.n)
	p.project(start, w)

	lambda := make([]float64, len(p.cons))
	rho := initialPenalty
	innerTol := math.Max(1e-3, cfg.OptimalityTol)
	prevViolation := math.Inf(1)
	track := &tracker{p: p, tol: cfg.FeasibilityTol}

	grad := make([]float64, p.n)
	cand := make([]float64, p.n)
	trial := make([]float64, p.n)
	diff := make([]float64, p.n)

	res := outcome{stop: domain.StopIterationLimit}
	step := 1.0

	for outer := 0; outer < maxOuter && res.iterations < cfg.MaxIterations; outer++ {
		value := p.augmented(w, lambda, rho, grad)
		for res.iterations < cfg.MaxIterations {
			if res.iterations%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					if errors.Is(err, context.DeadlineExceeded) {
						_, viol := p.constraintValues(w)
						track.offer(w, viol)
						res.stop = domain.StopDeadline
						return p.finish(res, w, track, lambda, cfg), nil
					}
					return res, err
				}
			}
			if p.stationarity(w, grad) <= innerTol {
				break
			}
			res.iterations++

			// Backtrack until the projected step gives sufficient decrease
			t := step
			accepted := false
			for t > 1e-20 {
				floats.AddScaledTo(trial, w, -t, grad)
				p.project(trial, cand)
				floats.SubTo(diff, cand, w)
				next := p.augmented(cand, lambda, rho, nil)
				bound := value + floats.Dot(grad, diff) + floats.Dot(diff, diff)/(2*t)
				if next <= bound+1e-15*math.Abs(value) {
					accepted = true
					value = next
					break
				}
				t *= 0.5
			}
			if !accepted {
				break
			}
			copy(w, cand)
			value = p.augmented(w, lambda, rho, grad)
			step = 2 * t
		}

		g, violation := p.constraintValues(w)
		for k := range lambda {
			lambda[k] = math.Max(0, lambda[k]+rho*g[k])
		}
		track.offer(w, violation)

		p.lagrangianGrad(w, lambda, grad)
		res.stationarity = p.stationarity(w, grad)
		res.violation = violation
		if violation <= cfg.FeasibilityTol && res.stationarity <= cfg.OptimalityTol {
			res.converged = true
			break
		}

		if violation > 0.25*prevViolation {
			rho = math.Min(rho*cfg.PenaltyGrowth, maxPenalty)
		}
		prevViolation = violation
		innerTol = math.Max(innerTol*0.1, 0.1*cfg.OptimalityTol)
	}

	return p.finish(res, w, track, lambda, cfg), nil
}

// finish fills the outcome from the last iterate, or from the best feasible one
// when the last iterate is not feasible
func (p *problem) finish(res outcome, w []float64, track *tracker, lambda []float64, cfg Config) outcome {
	_, violation := p.constraintValues(w)
	if violation > cfg.FeasibilityTol && track.best != nil {
		w = track.best
		res.converged = false
	}
	if res.converged {
		res.violation = violation
	} else {
		res.violation, res.stationarity = p.kkt(w, lambda)
	}

	res.w = append([]float64(nil), w...)
	res.objective = p.objective(res.w)
	res.feasible = res.violation <= cfg.FeasibilityTol
	if res.converged {
		res.stop = ""
	}
	return res
}

// kkt returns the max violation and Lagrangian stationarity at w
func (p *problem) kkt(w, lambda []float64) (float64, float64) {
	_, violation := p.constraintValues(w)
	grad := make([]float64, p.n)
	p.lagrangianGrad(w, lambda, grad)
	return violation, p.stationarity(w, grad)
}

// minimizeViolation runs projected gradient on Sum max(0, g)^2, the phase-1 problem
func (p *problem) minimizeViolation(ctx context.Context, start []float64, maxIter int) ([]float64, float64, error) {
	w := make([]float64, p.n)
	p.project(start, w)

	grad := make([]float64, p.n)
	cand := make([]float64, p.n)
	trial := make([]float64, p.n)
	diff := make([]float64, p.n)
	value := p.violationPenalty(w, grad)
	step := 1.0

	for iter := 0; iter < maxIter && value > 0; iter++ {
		if iter%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return w, value, err
			}
		}
		t := step
		accepted := false
		for t > 1e-20 {
			floats.AddScaledTo(trial, w, -t, grad)
			p.project(trial, cand)
			floats.SubTo(diff, cand, w)
			next := p.violationPenalty(cand, nil)
			if next <= value+floats.Dot(grad, diff)+floats.Dot(diff, diff)/(2*t) {
				accepted = true
				value = next
				break
			}
			t *= 0.5
		}
		if !accepted || floats.Norm(diff, math.Inf(1)) < 1e-16 {
			break
		}
		copy(w, cand)
		value = p.violationPenalty(w, grad)
		step = 2 * t
	}
	return w, value, nil
}
