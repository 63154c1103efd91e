package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/execution"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/liability"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/optimizer"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/overlay"
)

// Providers are the external data sources a run reads from
type Providers struct {
	Curves      domain.CurveProvider
	Market      domain.MarketDataProvider
	Positions   domain.PositionProvider
	Liabilities domain.LiabilityProvider
	Policies    domain.PolicyProvider
}

// Engine bundles the four components a run chains together
type Engine struct {
	Liability *liability.Model
	Optimizer *optimizer.Optimizer
	Scheduler *execution.Scheduler
	Overlay   *overlay.Manager
}

// Config holds the orchestration settings
type Config struct {
	Parallelism int           // Portfolios run at the same time by RunAll
	SessionOpen time.Duration // Offset from UTC midnight of the first trading session
}

// Runner orchestrates portfolio runs
type Runner struct {
	providers Providers
	engine    Engine
	cfg       Config
	logger    *zap.Logger
	recorder  Recorder
	sink      ReportSink
}

// NewRunner creates a new runner; a nil logger or recorder disables that output
func NewRunner(providers Providers, engine Engine, cfg Config, logger *zap.Logger, recorder Recorder) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Runner{
		providers: providers,
		engine:    engine,
		cfg:       cfg,
		logger:    logger,
		recorder:  recorder,
	}
}

// WithSink stores every finished report in sink
func (r *Runner) WithSink(sink ReportSink) *Runner {
	r.sink = sink
	return r
}

// RunPortfolio runs every stage for one portfolio
// Logic:
//  1. Load the policy, liability, curve, universe, holdings and covariance
//  2. Liability model: funding snapshot and rate risk of the liability
//  3. Optimizer: target weights under the policy's risk budget
//  4. Execution: one scheduled parent order per instrument whose weight moves
//  5. Overlay: size derivatives against the gap left after rebalancing
//  6. Hand the report to the sink, if any
func (r *Runner) RunPortfolio(ctx context.Context, portfolioID string, asOf time.Time) (report *Report, err error) {
	began := time.Now()
	log := r.logger.With(zap.String("portfolio", portfolioID), zap.Time("as_of", asOf))
	defer func() {
		r.recorder.ObserveRun(portfolioID, time.Since(began), err)
		if err != nil {
			log.Error("portfolio run failed", zap.String("kind", string(domain.KindOf(err))), zap.Error(err))
		}
	}()

	in, err := r.load(ctx, portfolioID, asOf)
	if err != nil {
		return nil, err
	}

	stage := time.Now()
	exposure := assetExposure(in.universe)
	funding, risk, err := r.engine.Liability.Snapshot(exposure, in.liability, in.curve)
	if err != nil {
		return nil, fmt.Errorf("value liabilities of %s: %w", portfolioID, err)
	}
	r.recorder.ObserveStage("liability", time.Since(stage))
	r.recorder.ObserveFunding(portfolioID, funding.Ratio)
	log.Info("funding snapshot",
		zap.Float64("funding_ratio", funding.Ratio),
		zap.Float64("liability_duration", risk.Duration),
		zap.Float64("duration_gap", funding.DurationGap),
	)

	stage = time.Now()
	result, err := r.engine.Optimizer.Optimize(ctx, optimizationRequest(in, funding, risk))
	if err != nil {
		return nil, fmt.Errorf("optimize %s: %w", portfolioID, err)
	}
	r.recorder.ObserveStage("optimizer", time.Since(stage))
	if _, reason, ok := result.Approximate(); ok {
		r.recorder.ObserveApproximate(portfolioID, reason.Reason)
		log.Warn("optimizer returned an approximate allocation", zap.String("reason", string(reason.Reason)), zap.Error(reason))
	}

	stage = time.Now()
	orders, err := r.schedule(ctx, in, result, asOf)
	if err != nil {
		return nil, fmt.Errorf("schedule trades for %s: %w", portfolioID, err)
	}
	r.recorder.ObserveStage("execution", time.Since(stage))

	stage = time.Now()
	post := postRebalance(funding, risk, result.Target)
	strategy, err := r.engine.Overlay.SizeOverlay(overlay.GapFromFunding(post, in.policy.EquityExposureGap), in.policy.OverlayInstruments)
	if err != nil {
		return nil, fmt.Errorf("size overlay for %s: %w", portfolioID, err)
	}
	r.recorder.ObserveStage("overlay", time.Since(stage))

	report = &Report{
		ID:            uuid.New(),
		PortfolioID:   portfolioID,
		AsOf:          asOf,
		Funding:       funding,
		Liability:     risk,
		Optimization:  result,
		PostRebalance: post,
		Orders:        orders,
		Overlay:       strategy,
		Elapsed:       time.Since(began),
	}

	if r.sink != nil {
		if err := r.sink.SaveReport(ctx, report); err != nil {
			return nil, fmt.Errorf("save report for %s: %w", portfolioID, err)
		}
	}

	log.Info("portfolio run finished",
		zap.String("kind", string(result.Kind)),
		zap.Int("orders", len(orders)),
		zap.Float64("expected_cost", report.TotalCost()),
		zap.String("overlay_notional", strategy.TotalNotional.StringFixed(2)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// RunAll runs every portfolio with a policy, Parallelism at a time
// A failing portfolio does not stop the others; its error is kept in its outcome
func (r *Runner) RunAll(ctx context.Context, asOf time.Time) ([]Outcome, error) {
	ids, err := r.providers.Policies.ListPortfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}

	outcomes := make([]Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(r.cfg.Parallelism)
	for i, id := range ids {
		g.Go(func() error {
			report, err := r.RunPortfolio(ctx, id, asOf)
			outcomes[i] = Outcome{PortfolioID: id, Report: report, Err: err}
			if err != nil {
				outcomes[i].Error = err.Error()
				outcomes[i].Kind = string(domain.KindOf(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// inputs is everything loaded from the providers for one run
type inputs struct {
	policy     *domain.PortfolioPolicy
	liability  *domain.Liability
	curve      *domain.DiscountCurve
	universe   domain.Universe
	holdings   map[string]decimal.Decimal
	covariance *domain.CovarianceMatrix
}

func (r *Runner) load(ctx context.Context, portfolioID string, asOf time.Time) (*inputs, error) {
	policy, err := r.providers.Policies.GetPolicy(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("get policy of %s: %w", portfolioID, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	liab, err := r.providers.Liabilities.GetLiability(ctx, portfolioID, asOf)
	if err != nil {
		return nil, fmt.Errorf("get liability of %s: %w", portfolioID, err)
	}

	curve, err := r.providers.Curves.GetCurve(ctx, asOf, liab.Curve.Name)
	if err != nil {
		return nil, fmt.Errorf("get curve %s: %w", liab.Curve.Name, err)
	}

	assets, err := r.providers.Market.GetUniverse(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("get universe: %w", err)
	}

	holdings, err := r.providers.Positions.GetHoldings(ctx, portfolioID, asOf)
	if err != nil {
		return nil, fmt.Errorf("get holdings of %s: %w", portfolioID, err)
	}

	universe := domain.Universe{Assets: make([]domain.AssetClass, len(assets))}
	copy(universe.Assets, assets)
	for id, value := range holdings {
		i := universe.Index(id)
		if i < 0 {
			return nil, domain.Invalid("holdings", "portfolio %s holds %s which is not in the universe", portfolioID, id)
		}
		universe.Assets[i].MarketValue = value
	}

	covariance, err := r.providers.Market.GetCovariance(ctx, asOf, universe.IDs())
	if err != nil {
		return nil, fmt.Errorf("get covariance: %w", err)
	}

	return &inputs{
		policy:     policy,
		liability:  liab,
		curve:      curve,
		universe:   universe,
		holdings:   holdings,
		covariance: covariance,
	}, nil
}

func (r *Runner) schedule(ctx context.Context, in *inputs, result *optimizer.Result, asOf time.Time) ([]*domain.ExecutionOrder, error) {
	urgency := in.policy.Urgency
	if urgency == "" {
		urgency = domain.UrgencyMedium
	}
	algo := in.policy.Algorithm
	if algo == "" {
		algo = domain.AlgorithmAuto
	}

	requests, err := execution.BuildOrderRequests(
		in.holdings,
		result.Target.AsMap(),
		in.universe.TotalValue(),
		in.policy.MinTradeNotional,
		r.nextSession(asOf),
		urgency,
	)
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.ExecutionOrder, 0, len(requests))
	for _, req := range requests {
		profile, err := r.providers.Market.GetLiquidityProfile(ctx, asOf, req.Instrument)
		if err != nil {
			return nil, fmt.Errorf("get liquidity profile of %s: %w", req.Instrument, err)
		}
		order, err := r.engine.Scheduler.Schedule(req, *profile, algo)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// nextSession returns the first session open at or after asOf
func (r *Runner) nextSession(asOf time.Time) time.Time {
	asOf = asOf.UTC()
	open := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC).Add(r.cfg.SessionOpen)
	if open.Before(asOf) {
		open = open.Add(24 * time.Hour)
	}
	return open
}

// assetExposure aggregates holdings into value, duration and convexity
func assetExposure(u domain.Universe) domain.AssetExposure {
	exposure := domain.AssetExposure{MarketValue: u.TotalValue()}
	for i, w := range u.CurrentWeights() {
		exposure.Duration += w * u.Assets[i].Duration
		exposure.Convexity += w * u.Assets[i].Convexity
	}
	return exposure
}

func optimizationRequest(in *inputs, funding *domain.FundingRatio, risk *domain.RiskProfile) optimizer.Request {
	req := optimizer.Request{
		Universe:   in.universe,
		Covariance: *in.covariance,
		RiskBudget: in.policy.RiskBudget,
		Funding: domain.FundingObjective{
			Current:         funding.Ratio,
			Target:          in.policy.FundingTarget,
			HorizonYears:    in.policy.FundingHorizonYears,
			LiabilityGrowth: in.policy.LiabilityGrowth,
		},
		Constraints: optimizer.Constraints{
			Bounds:         in.policy.Bounds,
			LiabilityProxy: in.policy.LiabilityProxy,
			MaxAssets:      in.policy.MaxAssets,
			Illiquidity:    in.policy.Illiquidity,
		},
	}
	if in.policy.DurationTolerance > 0 {
		req.Constraints.DurationMatch = &optimizer.DurationMatch{
			Target:    risk.Duration,
			Tolerance: in.policy.DurationTolerance,
		}
	}
	if len(in.policy.PreviousWeights) > 0 {
		previous := &optimizer.TargetWeights{}
		for _, a := range in.universe.Assets {
			if w, ok := in.policy.PreviousWeights[a.ID]; ok {
				previous.Weights = append(previous.Weights, optimizer.AssetWeight{AssetID: a.ID, Bucket: a.Bucket, Weight: w})
			}
		}
		req.Previous = previous
	}
	return req
}

// postRebalance is the funding snapshot with the asset side moved to the target weights
func postRebalance(funding *domain.FundingRatio, risk *domain.RiskProfile, target optimizer.TargetWeights) *domain.FundingRatio {
	post := *funding
	a := funding.AssetValue.InexactFloat64()
	l := risk.PresentValue
	post.AssetDuration = target.Duration
	post.AssetConvexity = target.Convexity
	post.DurationGap = target.Duration - risk.Duration
	post.ConvexityGap = target.Convexity - risk.Convexity
	post.DollarDurationGap = a*target.Duration - l*risk.Duration
	post.DollarConvexityGap = a*target.Convexity - l*risk.Convexity
	return &post
}
