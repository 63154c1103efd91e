package execution

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// Config holds the scheduler's execution and cost-model settings
type Config struct {
	SliceInterval    time.Duration
	MaxParticipation float64 // Per-slice share of market volume that may not be exceeded
	POVRate          float64 // Target participation for POV when the horizon allows it
	LargeOrderADV    float64 // Size/ADV at which AUTO switches to POV
	RiskAversion     float64 // Lambda for IS trajectories and risk-adjusted cost, per currency unit
	Impact           ImpactModel
	UrgencySessions  map[domain.Urgency]float64 // Initial horizon per urgency, in sessions
	MaxHorizonDays   int                        // Longest horizon an urgency-driven order may stretch to
}

// DefaultConfig returns the reference settings
func DefaultConfig() Config {
	return Config{
		SliceInterval:    30 * time.Minute,
		MaxParticipation: 0.10,
		POVRate:          0.08,
		LargeOrderADV:    0.20,
		RiskAversion:     1e-6,
		Impact:           DefaultImpactModel(),
		UrgencySessions: map[domain.Urgency]float64{
			domain.UrgencyHigh:   0.25,
			domain.UrgencyMedium: 1,
			domain.UrgencyLow:    2,
		},
		MaxHorizonDays: 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SliceInterval <= 0 {
		c.SliceInterval = d.SliceInterval
	}
	if c.MaxParticipation <= 0 {
		c.MaxParticipation = d.MaxParticipation
	}
	if c.POVRate <= 0 {
		c.POVRate = d.POVRate
	}
	if c.POVRate > c.MaxParticipation {
		c.POVRate = c.MaxParticipation
	}
	if c.LargeOrderADV <= 0 {
		c.LargeOrderADV = d.LargeOrderADV
	}
	if c.RiskAversion < 0 {
		c.RiskAversion = d.RiskAversion
	}
	if c.Impact == (ImpactModel{}) {
		c.Impact = d.Impact
	}
	if c.UrgencySessions == nil {
		c.UrgencySessions = d.UrgencySessions
	}
	if c.MaxHorizonDays <= 0 {
		c.MaxHorizonDays = d.MaxHorizonDays
	}
	return c
}

// Scheduler turns parent order requests into sliced execution orders
type Scheduler struct {
	cfg Config
	now func() time.Time
}

// NewScheduler creates a new scheduler; zero-valued settings take their defaults
func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg.withDefaults(), now: func() time.Time { return time.Now().UTC() }}
}

// Config returns the effective settings
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Schedule builds an execution order for the request
// Logic:
//  1. Validate the request and the market profile
//  2. Resolve AUTO to a concrete algorithm
//  3. Zero notional: no slices; below one lot: a single slice in the first bucket
//  4. Fixed horizon: slice it once, failing on any participation breach
//  5. Urgency: start from the urgency's horizon and add a session at a time
//     until the schedule respects the participation cap
func (s *Scheduler) Schedule(req domain.OrderRequest, profile domain.MarketProfile, algo domain.Algorithm) (*domain.ExecutionOrder, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if profile.Instrument != "" && profile.Instrument != req.Instrument {
		return nil, domain.Invalid("profile.instrument", "profile for %s cannot schedule %s", profile.Instrument, req.Instrument)
	}

	switch algo {
	case "", domain.AlgorithmAuto:
		algo = SelectAlgorithm(req, profile, s.cfg)
	case domain.AlgorithmTWAP, domain.AlgorithmVWAP, domain.AlgorithmPOV, domain.AlgorithmIS:
	default:
		return nil, domain.Invalid("algorithm", "unknown algorithm %q", algo)
	}

	clock := newTradingClock(req.Start, profile)

	if req.Notional.IsZero() {
		return s.order(req, algo, req.Horizon, nil, estimateCost(nil, grid{}, req.Notional, profile, s.cfg)), nil
	}

	if profile.LotSize.IsPositive() && req.Notional.LessThan(profile.LotSize) {
		return s.singleSlice(req, profile, clock, algo)
	}

	if req.Horizon > 0 {
		return s.build(req, profile, clock, algo, req.Horizon)
	}

	base, ok := s.cfg.UrgencySessions[req.Urgency]
	if !ok || base <= 0 {
		base = 1
	}
	horizon := time.Duration(base * float64(profile.Session))
	limit := time.Duration(s.cfg.MaxHorizonDays) * profile.Session
	for {
		order, err := s.build(req, profile, clock, algo, horizon)
		var capErr *domain.ParticipationCapExceededError
		if err == nil || !errors.As(err, &capErr) || horizon >= limit {
			return order, err
		}
		horizon += profile.Session
		if horizon > limit {
			horizon = limit
		}
	}
}

// build slices the order over a fixed horizon
func (s *Scheduler) build(req domain.OrderRequest, profile domain.MarketProfile, clock *tradingClock, algo domain.Algorithm, horizon time.Duration) (*domain.ExecutionOrder, error) {
	g := newGrid(clock, horizon, s.cfg.SliceInterval)

	var weights []float64
	switch algo {
	case domain.AlgorithmTWAP:
		weights = twapWeights(g)
	case domain.AlgorithmVWAP:
		weights = vwapWeights(g)
	case domain.AlgorithmPOV:
		weights = povWeights(g, req.Notional.InexactFloat64(), s.cfg.POVRate)
	case domain.AlgorithmIS:
		weights = isWeights(g, profile, s.cfg)
	}

	quantities, err := allocateLots(req.Notional, weights, profile.LotSize)
	if err != nil {
		return nil, domain.Invalid("order.notional", "cannot slice %s over %s: %v", req.Notional.String(), horizon, err)
	}

	slices := make([]domain.ChildSlice, 0, len(quantities))
	for k, q := range quantities {
		slice, err := s.slice(req, profile, clock, g, k, q)
		if err != nil {
			return nil, err
		}
		slices = append(slices, slice)
	}
	if algo == domain.AlgorithmPOV {
		for len(slices) > 1 && slices[len(slices)-1].Quantity.IsZero() {
			slices = slices[:len(slices)-1]
		}
	}

	cost := estimateCost(slices, g, req.Notional, profile, s.cfg)
	return s.order(req, algo, horizon, slices, cost), nil
}

// slice builds child slice k and enforces the participation cap
// Lot rounding may push a slice above the cap by less than one lot
func (s *Scheduler) slice(req domain.OrderRequest, profile domain.MarketProfile, clock *tradingClock, g grid, k int, q decimal.Decimal) (domain.ChildSlice, error) {
	volume := g.volumes[k]
	participation := 0.0
	if q.IsPositive() {
		if volume <= 0 {
			return domain.ChildSlice{}, &domain.ParticipationCapExceededError{
				Instrument: req.Instrument, SliceIndex: k, Participation: 1, Cap: s.cfg.MaxParticipation,
			}
		}
		participation = q.InexactFloat64() / volume
	}

	lot := profile.LotSize
	if !lot.IsPositive() {
		lot = minimumIncrement
	}
	allowed := decimal.NewFromFloat(s.cfg.MaxParticipation * volume).Add(lot)
	if participation > s.cfg.MaxParticipation && q.GreaterThan(allowed) {
		return domain.ChildSlice{}, &domain.ParticipationCapExceededError{
			Instrument: req.Instrument, SliceIndex: k, Participation: participation, Cap: s.cfg.MaxParticipation,
		}
	}

	return domain.ChildSlice{
		Index:          k,
		Window:         clock.window(g.bounds[k], g.bounds[k+1]),
		Quantity:       q,
		ExpectedVolume: g.volumeDecimal(k),
		Participation:  participation,
	}, nil
}

// singleSlice schedules a sub-lot order as one slice in the first bucket
func (s *Scheduler) singleSlice(req domain.OrderRequest, profile domain.MarketProfile, clock *tradingClock, algo domain.Algorithm) (*domain.ExecutionOrder, error) {
	horizon := s.cfg.SliceInterval
	if req.Horizon > 0 && req.Horizon < horizon {
		horizon = req.Horizon
	}
	g := newGrid(clock, horizon, horizon)
	slice, err := s.slice(req, profile, clock, g, 0, req.Notional)
	if err != nil {
		return nil, err
	}
	slices := []domain.ChildSlice{slice}
	cost := estimateCost(slices, g, req.Notional, profile, s.cfg)
	return s.order(req, algo, horizon, slices, cost), nil
}

func (s *Scheduler) order(req domain.OrderRequest, algo domain.Algorithm, horizon time.Duration, slices []domain.ChildSlice, cost domain.TransactionCost) *domain.ExecutionOrder {
	if slices == nil {
		slices = []domain.ChildSlice{}
	}
	return &domain.ExecutionOrder{
		ID:         uuid.New(),
		RequestID:  req.ID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Notional:   req.Notional,
		Algorithm:  algo,
		Horizon:    horizon,
		Slices:     slices,
		Cost:       cost,
		CreatedAt:  s.now(),
	}
}
