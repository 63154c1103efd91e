package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CurveProvider defines how discount curves are retrieved before a run
type CurveProvider interface {
	// GetCurve retrieves the curve with the given name as of a date
	GetCurve(ctx context.Context, asOf time.Time, name string) (*DiscountCurve, error)
}

// MarketDataProvider defines how prices, risk estimates and liquidity are retrieved
type MarketDataProvider interface {
	// GetUniverse retrieves the tracked asset classes with expected returns and durations
	// Market values are left at zero; holdings come from the PositionProvider
	GetUniverse(ctx context.Context, asOf time.Time) ([]AssetClass, error)

	// GetCovariance retrieves the covariance estimate for the given asset IDs
	GetCovariance(ctx context.Context, asOf time.Time, ids []string) (*CovarianceMatrix, error)

	// GetLiquidityProfile retrieves the liquidity profile of an instrument
	GetLiquidityProfile(ctx context.Context, asOf time.Time, instrument string) (*MarketProfile, error)
}

// PositionProvider defines how current holdings are retrieved
type PositionProvider interface {
	// GetHoldings returns the market value held per asset ID for a portfolio
	GetHoldings(ctx context.Context, portfolioID string, asOf time.Time) (map[string]decimal.Decimal, error)
}

// LiabilityProvider defines how liability schedules are retrieved
type LiabilityProvider interface {
	// GetLiability returns the liability snapshot of a portfolio
	GetLiability(ctx context.Context, portfolioID string, asOf time.Time) (*Liability, error)
}

// PolicyProvider defines how a portfolio's investment policy is retrieved
type PolicyProvider interface {
	// GetPolicy returns the risk budget, constraints and overlay instruments of a portfolio
	GetPolicy(ctx context.Context, portfolioID string) (*PortfolioPolicy, error)

	// ListPortfolios returns the IDs of all portfolios with a policy
	ListPortfolios(ctx context.Context) ([]string, error)
}
