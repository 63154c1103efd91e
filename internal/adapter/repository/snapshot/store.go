package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// ErrNotFound is returned when a snapshot has no record for the requested key
var ErrNotFound = errors.New("not found in snapshot")

// Store serves every provider interface from a single in-memory snapshot
// It is read-only after Load and safe for concurrent use
type Store struct {
	curves     map[string]*domain.DiscountCurve
	assets     []domain.AssetClass
	profiles   map[string]*domain.MarketProfile
	covariance *domain.CovarianceMatrix
	portfolios map[string]*portfolio
	order      []string
}

type portfolio struct {
	holdings  map[string]decimal.Decimal
	liability *domain.Liability
	policy    *domain.PortfolioPolicy
}

var (
	_ domain.CurveProvider      = (*Store)(nil)
	_ domain.MarketDataProvider = (*Store)(nil)
	_ domain.PositionProvider   = (*Store)(nil)
	_ domain.LiabilityProvider  = (*Store)(nil)
	_ domain.PolicyProvider     = (*Store)(nil)
)

// LoadFile reads a YAML snapshot from disk
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML snapshot and converts it into domain values
func Load(r io.Reader) (*Store, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return New(file)
}

// New builds a store from an already decoded snapshot
func New(file File) (*Store, error) {
	s := &Store{
		curves:     make(map[string]*domain.DiscountCurve, len(file.Curves)),
		profiles:   make(map[string]*domain.MarketProfile, len(file.Assets)),
		portfolios: make(map[string]*portfolio, len(file.Portfolios)),
	}

	for _, rec := range file.Curves {
		curve := &domain.DiscountCurve{
			Name:          rec.Name,
			AsOf:          rec.AsOf,
			Currency:      rec.Currency,
			Compounding:   domain.Compounding(rec.Compounding),
			Extrapolation: domain.Extrapolation(rec.Extrapolation),
		}
		for _, p := range rec.Points {
			curve.Points = append(curve.Points, domain.CurvePoint{Tenor: p.Tenor, ZeroRate: p.Rate})
		}
		if err := curve.Validate(); err != nil {
			return nil, err
		}
		s.curves[curve.Name] = curve
	}

	for _, rec := range file.Assets {
		s.assets = append(s.assets, domain.AssetClass{
			ID:             rec.ID,
			Name:           rec.Name,
			Bucket:         domain.StrategyBucket(rec.Bucket),
			ExpectedReturn: rec.ExpectedReturn,
			Duration:       rec.Duration,
			Convexity:      rec.Convexity,
		})
		if rec.Liquidity == nil {
			continue
		}
		profile := &domain.MarketProfile{
			Instrument:    rec.ID,
			ADV:           rec.Liquidity.ADV,
			IntradayCurve: rec.Liquidity.IntradayCurve,
			Volatility:    rec.Liquidity.Volatility,
			HalfSpreadBps: rec.Liquidity.HalfSpreadBps,
			LotSize:       rec.Liquidity.LotSize,
			Session:       rec.Liquidity.Session,
		}
		if profile.Session == 0 {
			profile.Session = 390 * time.Minute
		}
		if err := profile.Validate(); err != nil {
			return nil, err
		}
		s.profiles[rec.ID] = profile
	}
	universe := domain.Universe{Assets: s.assets}
	if err := universe.Validate(); err != nil {
		return nil, err
	}

	if len(file.Covariance.IDs) > 0 {
		s.covariance = &domain.CovarianceMatrix{IDs: file.Covariance.IDs, Values: file.Covariance.Values}
	}

	for _, rec := range file.Portfolios {
		if rec.ID == "" {
			return nil, domain.Invalid("snapshot.portfolios", "portfolio without an ID")
		}
		if _, dup := s.portfolios[rec.ID]; dup {
			return nil, domain.Invalid("snapshot.portfolios", "duplicate portfolio %s", rec.ID)
		}
		p, err := convertPortfolio(rec)
		if err != nil {
			return nil, fmt.Errorf("portfolio %s: %w", rec.ID, err)
		}
		s.portfolios[rec.ID] = p
		s.order = append(s.order, rec.ID)
	}
	sort.Strings(s.order)

	return s, nil
}

func convertPortfolio(rec PortfolioRecord) (*portfolio, error) {
	liab := &domain.Liability{
		ID:    uuid.NewSHA1(uuid.NameSpaceOID, []byte("liability/"+rec.ID)),
		Name:  rec.Liability.Name,
		Type:  domain.LiabilityType(rec.Liability.Type),
		Curve: domain.CurveRef{Name: rec.Liability.Curve},
	}
	for _, cf := range rec.Liability.CashFlows {
		liab.CashFlows = append(liab.CashFlows, domain.CashFlow{Date: cf.Date, Amount: cf.Amount, Currency: cf.Currency})
	}
	if err := liab.Validate(); err != nil {
		return nil, err
	}

	buckets := make(map[domain.StrategyBucket]float64, len(rec.Policy.RiskBudget.Buckets))
	for name, allowance := range rec.Policy.RiskBudget.Buckets {
		buckets[domain.StrategyBucket(name)] = allowance
	}
	budget, err := domain.NewRiskBudget(buckets, rec.Policy.RiskBudget.Ceiling)
	if err != nil {
		return nil, err
	}

	pol := rec.Policy
	policy := &domain.PortfolioPolicy{
		PortfolioID:         rec.ID,
		Name:                rec.Name,
		RiskBudget:          budget,
		FundingTarget:       pol.FundingTarget,
		FundingHorizonYears: pol.FundingHorizonYears,
		LiabilityGrowth:     pol.LiabilityGrowth,
		Bounds:              pol.Bounds,
		LiabilityProxy:      pol.LiabilityProxy,
		DurationTolerance:   pol.DurationTolerance,
		MaxAssets:           pol.MaxAssets,
		Illiquidity:         pol.Illiquidity,
		PreviousWeights:     pol.PreviousWeights,
		Algorithm:           domain.Algorithm(pol.Algorithm),
		Urgency:             domain.Urgency(pol.Urgency),
		MinTradeNotional:    pol.MinTradeNotional,
		EquityExposureGap:   pol.EquityExposureGap,
	}
	for _, o := range pol.Overlay {
		policy.OverlayInstruments = append(policy.OverlayInstruments, domain.OverlayInstrument{
			ID:               o.ID,
			Type:             domain.InstrumentType(o.Type),
			Tenor:            o.Tenor,
			Duration:         o.Duration,
			Convexity:        o.Convexity,
			EquityDelta:      o.EquityDelta,
			Capacity:         o.Capacity,
			CollateralWeight: o.CollateralWeight,
			PositiveOnly:     o.PositiveOnly,
			NegativeOnly:     o.NegativeOnly,
		})
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	holdings := make(map[string]decimal.Decimal, len(rec.Holdings))
	for id, v := range rec.Holdings {
		holdings[id] = v
	}
	return &portfolio{holdings: holdings, liability: liab, policy: policy}, nil
}

// GetCurve returns the named curve; a curve without a date is taken as of asOf
func (s *Store) GetCurve(ctx context.Context, asOf time.Time, name string) (*domain.DiscountCurve, error) {
	curve, ok := s.curves[name]
	if !ok {
		return nil, fmt.Errorf("curve %q: %w", name, ErrNotFound)
	}
	out := *curve
	out.Points = append([]domain.CurvePoint(nil), curve.Points...)
	if out.AsOf.IsZero() {
		out.AsOf = asOf
	}
	return &out, nil
}

// GetUniverse returns the tracked asset classes in snapshot order
func (s *Store) GetUniverse(ctx context.Context, asOf time.Time) ([]domain.AssetClass, error) {
	out := make([]domain.AssetClass, len(s.assets))
	copy(out, s.assets)
	return out, nil
}

// GetCovariance returns the covariance estimate reordered to ids
func (s *Store) GetCovariance(ctx context.Context, asOf time.Time, ids []string) (*domain.CovarianceMatrix, error) {
	if s.covariance == nil {
		return nil, fmt.Errorf("covariance: %w", ErrNotFound)
	}
	return s.covariance.AlignTo(ids)
}

// GetLiquidityProfile returns the liquidity profile of an asset
func (s *Store) GetLiquidityProfile(ctx context.Context, asOf time.Time, instrument string) (*domain.MarketProfile, error) {
	profile, ok := s.profiles[instrument]
	if !ok {
		return nil, fmt.Errorf("liquidity profile of %s: %w", instrument, ErrNotFound)
	}
	out := *profile
	return &out, nil
}

// GetHoldings returns a copy of the portfolio's holdings
func (s *Store) GetHoldings(ctx context.Context, portfolioID string, asOf time.Time) (map[string]decimal.Decimal, error) {
	p, err := s.portfolio(portfolioID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(p.holdings))
	for id, v := range p.holdings {
		out[id] = v
	}
	return out, nil
}

// GetLiability returns the portfolio's liability schedule
func (s *Store) GetLiability(ctx context.Context, portfolioID string, asOf time.Time) (*domain.Liability, error) {
	p, err := s.portfolio(portfolioID)
	if err != nil {
		return nil, err
	}
	out := *p.liability
	out.CashFlows = append([]domain.CashFlow(nil), p.liability.CashFlows...)
	out.Curve.AsOf = asOf
	return &out, nil
}

// GetPolicy returns the portfolio's investment policy
func (s *Store) GetPolicy(ctx context.Context, portfolioID string) (*domain.PortfolioPolicy, error) {
	p, err := s.portfolio(portfolioID)
	if err != nil {
		return nil, err
	}
	out := *p.policy
	return &out, nil
}

// ListPortfolios returns the portfolio IDs in sorted order
func (s *Store) ListPortfolios(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.order...), nil
}

func (s *Store) portfolio(id string) (*portfolio, error) {
	p, ok := s.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("portfolio %s: %w", id, ErrNotFound)
	}
	return p, nil
}
