package optimizer

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// checkFeasibility proves the constraint set non-empty before any solve and returns
// a feasible (phase-1) point
// Logic:
//  1. Box bounds must admit a fully-invested portfolio
//  2. Linear constraints are checked exactly by greedy fill over the box-simplex
//  3. Everything else is settled by minimizing the squared violation from equal weights
func (p *problem) checkFeasibility(ctx context.Context, cfg Config) ([]float64, error) {
	var violations []string

	lowSum, highSum := floats.Sum(p.lower), floats.Sum(p.upper)
	if lowSum > 1+1e-12 {
		violations = append(violations, fmt.Sprintf("bounds: minimum weights sum to %.6g, above 1", lowSum))
	}
	if highSum < 1-1e-12 {
		violations = append(violations, fmt.Sprintf("bounds: maximum weights sum to %.6g, below 1", highSum))
	}
	if len(violations) > 0 {
		return nil, &domain.InfeasibleError{Violations: violations}
	}

	for _, c := range p.cons {
		if c.kind != linear {
			continue
		}
		// a'w <= b must hold at the minimizer of a'w
		if best := p.minLinear(c.a); best > c.b+1e-12*maxAbs(c.b, 1) {
			violations = append(violations, fmt.Sprintf("%s: best achievable %.6g, limit %.6g", c.name, best, c.b))
		}
	}
	if len(violations) > 0 {
		return nil, &domain.InfeasibleError{Violations: violations}
	}

	start := make([]float64, p.n)
	for i := range start {
		start[i] = 1 / float64(p.n)
	}
	w, _, err := p.minimizeViolation(ctx, start, cfg.MaxIterations)
	if err != nil {
		return nil, err
	}

	g, maxViolation := p.constraintValues(w)
	if maxViolation > cfg.InfeasibleTol {
		for k, v := range g {
			if v > cfg.InfeasibleTol {
				violations = append(violations, fmt.Sprintf("%s: violated by %.3g at the least-violating point", p.cons[k].name, v))
			}
		}
		return nil, &domain.InfeasibleError{Violations: violations}
	}
	return w, nil
}

// minLinear returns min a'w over {Sum w = 1, lower <= w <= upper} by filling the
// cheapest coordinates first
func (p *problem) minLinear(a []float64) float64 {
	order := make([]int, p.n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return a[order[i]] < a[order[j]] })

	value := floats.Dot(a, p.lower)
	remaining := 1 - floats.Sum(p.lower)
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		room := p.upper[i] - p.lower[i]
		if room > remaining {
			room = remaining
		}
		value += a[i] * room
		remaining -= room
	}
	return value
}

func maxAbs(x, floor float64) float64 {
	if x < 0 {
		x = -x
	}
	if x < floor {
		return floor
	}
	return x
}
