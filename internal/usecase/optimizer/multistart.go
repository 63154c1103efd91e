package optimizer

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"golang.org/x/sync/errgroup"
)

// startPoints builds the deterministic list of starting points
// Order: warm start, phase-1 point, equal weights, then seeded random draws
func (p *problem) startPoints(warm, phase1 []float64, cfg Config) [][]float64 {
	starts := make([][]float64, 0, cfg.Starts)
	if warm != nil {
		starts = append(starts, warm)
	}
	if phase1 != nil {
		starts = append(starts, phase1)
	}
	equal := make([]float64, p.n)
	for i := range equal {
		equal[i] = 1 / float64(p.n)
	}
	starts = append(starts, equal)

	rng := rand.New(rand.NewSource(cfg.Seed))
	for len(starts) < cfg.Starts {
		draw := make([]float64, p.n)
		for i := range draw {
			draw[i] = rng.ExpFloat64()
		}
		floats.Scale(1/floats.Sum(draw), draw)
		starts = append(starts, draw)
	}
	return starts
}

// solveMulti runs the convex solver from every start in parallel and reduces
// the outcomes deterministically
func (p *problem) solveMulti(ctx context.Context, starts [][]float64, cfg Config) ([]outcome, error) {
	outcomes := make([]outcome, len(starts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, start := range starts {
		g.Go(func() error {
			out, err := p.solveConvex(gctx, start, cfg)
			if err != nil {
				return err
			}
			out.index = i
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// pick selects the winning outcome
// Converged outcomes beat unconverged ones; then lowest objective, with
// objectives within TieEpsilon broken by L1 distance to the current weights,
// then by start index
func (p *problem) pick(outcomes []outcome, cfg Config) (outcome, bool) {
	var best *outcome
	for i := range outcomes {
		o := &outcomes[i]
		if !o.feasible {
			continue
		}
		if best == nil || p.better(o, best, cfg) {
			best = o
		}
	}
	if best == nil {
		return outcome{}, false
	}
	return *best, true
}

func (p *problem) better(a, b *outcome, cfg Config) bool {
	if a.converged != b.converged {
		return a.converged
	}
	if math.Abs(a.objective-b.objective) > cfg.TieEpsilon {
		return a.objective < b.objective
	}
	da := floats.Distance(a.w, p.current, 1)
	db := floats.Distance(b.w, p.current, 1)
	if da != db {
		return da < db
	}
	return a.index < b.index
}
