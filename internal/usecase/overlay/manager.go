package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// Gap is the exposure mismatch the overlay has to offset, assets minus liabilities
type Gap struct {
	Duration  float64 // Dollar duration gap
	Convexity float64 // Dollar convexity gap
	Equity    float64 // Equity exposure to remove, zero for none
}

// IsZero reports whether there is nothing to hedge
func (g Gap) IsZero() bool {
	return g.Duration == 0 && g.Convexity == 0 && g.Equity == 0
}

// GapFromFunding reads the dollar gaps off a funding snapshot
func GapFromFunding(fr *domain.FundingRatio, equity float64) Gap {
	return Gap{Duration: fr.DollarDurationGap, Convexity: fr.DollarConvexityGap, Equity: equity}
}

// Config holds the tolerance band of the overlay
// The band for each exposure is max(absolute, RelativeTolerance * |gap|)
type Config struct {
	RelativeTolerance float64
	AbsDuration       float64
	AbsConvexity      float64
	AbsEquity         float64
	MatchConvexity    bool
	SolverTolerance   float64
}

// DefaultConfig returns the reference settings
func DefaultConfig() Config {
	return Config{
		RelativeTolerance: 0.01,
		AbsDuration:       1_000,
		AbsConvexity:      10_000,
		AbsEquity:         1_000,
		MatchConvexity:    true,
		SolverTolerance:   1e-10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RelativeTolerance < 0 {
		c.RelativeTolerance = d.RelativeTolerance
	}
	if c.AbsDuration <= 0 {
		c.AbsDuration = d.AbsDuration
	}
	if c.AbsConvexity <= 0 {
		c.AbsConvexity = d.AbsConvexity
	}
	if c.AbsEquity <= 0 {
		c.AbsEquity = d.AbsEquity
	}
	if c.SolverTolerance <= 0 {
		c.SolverTolerance = d.SolverTolerance
	}
	return c
}

// Manager sizes derivative overlays that close duration, convexity and equity gaps
type Manager struct {
	cfg Config
}

// NewManager creates a new overlay manager
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults()}
}

// exposure is one matched sensitivity: a gap, its tolerance and each instrument's coefficient
type exposure struct {
	name  string
	gap   float64
	tol   float64
	coefs []float64
}

func (e exposure) reachable() bool {
	for _, c := range e.coefs {
		if c != 0 {
			return true
		}
	}
	return false
}

// column is one LP variable: the positive or negative leg of an instrument
type column struct {
	instrument int
	sign       float64
}

// SizeOverlay finds the overlay with the least collateral usage whose contribution
// offsets the gap within tolerance
// Logic:
//  1. A zero gap needs no overlay
//  2. Each instrument's signed notional is split into non-negative legs x = p - n;
//     legs for disallowed directions are left out
//  3. Each matched exposure adds two rows, |gap + Sum coef*x| <= tol, with slacks
//  4. Capacities add rows p + n + slack = capacity
//  5. Minimize Sum collateral*(p + n) with the simplex method
//  6. An infeasible program means the instruments cannot reach the gap
func (m *Manager) SizeOverlay(gap Gap, instruments []domain.OverlayInstrument) (*domain.OverlayStrategy, error) {
	for _, v := range []float64{gap.Duration, gap.Convexity, gap.Equity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, domain.Invalid("overlay.gap", "gap must be finite")
		}
	}
	for i := range instruments {
		if err := instruments[i].Validate(); err != nil {
			return nil, err
		}
	}

	strategy := &domain.OverlayStrategy{
		ID:              uuid.New(),
		Positions:       []domain.OverlayPosition{},
		TotalNotional:   decimal.Zero,
		TargetDuration:  -gap.Duration,
		TargetConvexity: -gap.Convexity,
		TargetEquity:    -gap.Equity,
	}
	if gap.IsZero() {
		strategy.WithinTolerance = true
		return strategy, nil
	}

	matchEquity := gap.Equity != 0
	for _, inst := range instruments {
		if inst.EquityDelta != 0 {
			matchEquity = true
		}
	}

	// Instruments with no sensitivity to any matched exposure cannot contribute
	usable := make([]domain.OverlayInstrument, 0, len(instruments))
	for _, inst := range instruments {
		if inst.Duration != 0 || (m.cfg.MatchConvexity && inst.Convexity != 0) || (matchEquity && inst.EquityDelta != 0) {
			usable = append(usable, inst)
		}
	}

	exposures := m.exposures(gap, usable, matchEquity)
	for _, e := range exposures {
		if math.Abs(e.gap) > e.tol && !e.reachable() {
			return nil, unhedgeable(gap, fmt.Sprintf("no instrument has a %s sensitivity", e.name))
		}
	}
	if len(usable) == 0 {
		m.fill(strategy, gap, exposures, usable, nil)
		return strategy, nil
	}

	x, err := m.solve(exposures, usable)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return nil, unhedgeable(gap, "no combination of the available instruments offsets the gap within tolerance")
		}
		return nil, fmt.Errorf("solve overlay program: %w", err)
	}

	m.fill(strategy, gap, exposures, usable, x)
	return strategy, nil
}

func (m *Manager) exposures(gap Gap, instruments []domain.OverlayInstrument, matchEquity bool) []exposure {
	band := func(g, abs float64) float64 {
		return math.Max(abs, m.cfg.RelativeTolerance*math.Abs(g))
	}

	duration := exposure{name: "duration", gap: gap.Duration, tol: band(gap.Duration, m.cfg.AbsDuration), coefs: make([]float64, len(instruments))}
	convexity := exposure{name: "convexity", gap: gap.Convexity, tol: band(gap.Convexity, m.cfg.AbsConvexity), coefs: make([]float64, len(instruments))}
	equity := exposure{name: "equity", gap: gap.Equity, tol: band(gap.Equity, m.cfg.AbsEquity), coefs: make([]float64, len(instruments))}

	for j, inst := range instruments {
		duration.coefs[j] = inst.Duration
		convexity.coefs[j] = inst.Convexity
		equity.coefs[j] = inst.EquityDelta
	}

	out := []exposure{duration}
	if m.cfg.MatchConvexity {
		out = append(out, convexity)
	}
	if matchEquity {
		out = append(out, equity)
	}
	return out
}

// solve builds the standard-form program min c'z, Az = b, z >= 0 and returns signed notionals
func (m *Manager) solve(exposures []exposure, instruments []domain.OverlayInstrument) ([]float64, error) {
	// Notional scale keeps the simplex tableau well conditioned
	scale := 1.0
	for _, e := range exposures {
		maxCoef := 0.0
		for _, c := range e.coefs {
			maxCoef = math.Max(maxCoef, math.Abs(c))
		}
		if maxCoef > 0 {
			scale = math.Max(scale, math.Abs(e.gap)/maxCoef)
		}
	}

	var cols []column
	for j, inst := range instruments {
		if !inst.NegativeOnly {
			cols = append(cols, column{instrument: j, sign: 1})
		}
		if !inst.PositiveOnly {
			cols = append(cols, column{instrument: j, sign: -1})
		}
	}

	var capped []int
	for j, inst := range instruments {
		if inst.Capacity.IsPositive() {
			capped = append(capped, j)
		}
	}

	rows := 2*len(exposures) + len(capped)
	vars := len(cols) + rows
	a := mat.NewDense(rows, vars, nil)
	b := make([]float64, rows)
	c := make([]float64, vars)

	for k, col := range cols {
		weight := instruments[col.instrument].CollateralWeight
		if weight == 0 {
			weight = 1
		}
		c[k] = weight
	}

	row := 0
	for _, e := range exposures {
		rowScale := math.Max(math.Abs(e.gap), e.tol)
		for _, dir := range []float64{1, -1} {
			// dir * (gap + Sum coef*x) <= tol
			for k, col := range cols {
				a.Set(row, k, dir*e.coefs[col.instrument]*col.sign*scale/rowScale)
			}
			a.Set(row, len(cols)+row, 1)
			b[row] = (e.tol - dir*e.gap) / rowScale
			row++
		}
	}
	for _, j := range capped {
		for k, col := range cols {
			if col.instrument == j {
				a.Set(row, k, 1)
			}
		}
		a.Set(row, len(cols)+row, 1)
		b[row] = instruments[j].Capacity.InexactFloat64() / scale
		row++
	}

	for i := range b {
		if b[i] < 0 {
			b[i] = -b[i]
			for k := 0; k < vars; k++ {
				a.Set(i, k, -a.At(i, k))
			}
		}
	}

	_, z, err := lp.Simplex(c, a, b, m.cfg.SolverTolerance, nil)
	if err != nil {
		return nil, err
	}

	x := make([]float64, len(instruments))
	for k, col := range cols {
		x[col.instrument] += col.sign * z[k] * scale
	}
	return x, nil
}

// fill turns signed notionals into positions, contributions and residual gaps
func (m *Manager) fill(strategy *domain.OverlayStrategy, gap Gap, exposures []exposure, instruments []domain.OverlayInstrument, x []float64) {
	contribution := map[string]float64{}
	for j, inst := range instruments {
		notional := decimal.NewFromFloat(math.Abs(x[j])).Round(2)
		if notional.IsZero() {
			continue
		}
		signed := x[j]
		pos := domain.OverlayPosition{
			InstrumentID:          inst.ID,
			Type:                  inst.Type,
			Direction:             inst.DirectionFor(signed),
			Notional:              notional,
			DurationContribution:  inst.Duration * signed,
			ConvexityContribution: inst.Convexity * signed,
			EquityContribution:    inst.EquityDelta * signed,
		}
		strategy.Positions = append(strategy.Positions, pos)
		strategy.TotalNotional = strategy.TotalNotional.Add(notional)
		contribution["duration"] += pos.DurationContribution
		contribution["convexity"] += pos.ConvexityContribution
		contribution["equity"] += pos.EquityContribution
	}

	strategy.ResidualDurationGap = gap.Duration + contribution["duration"]
	strategy.ResidualConvexityGap = gap.Convexity + contribution["convexity"]
	strategy.ResidualEquityGap = gap.Equity + contribution["equity"]

	residual := map[string]float64{
		"duration":  strategy.ResidualDurationGap,
		"convexity": strategy.ResidualConvexityGap,
		"equity":    strategy.ResidualEquityGap,
	}
	strategy.WithinTolerance = true
	for _, e := range exposures {
		if math.Abs(residual[e.name]) > e.tol*(1+1e-6) {
			strategy.WithinTolerance = false
		}
	}
}

func unhedgeable(gap Gap, reason string) error {
	return &domain.UnhedgeableGapError{
		DurationGap:  gap.Duration,
		ConvexityGap: gap.Convexity,
		EquityGap:    gap.Equity,
		Reason:       reason,
	}
}
