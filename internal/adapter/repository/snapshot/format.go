package snapshot

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// File is the YAML layout of a market and portfolio snapshot
type File struct {
	Curves     []CurveRecord     `yaml:"curves"`
	Assets     []AssetRecord     `yaml:"assets"`
	Covariance CovarianceRecord  `yaml:"covariance"`
	Portfolios []PortfolioRecord `yaml:"portfolios"`
}

type CurveRecord struct {
	Name          string        `yaml:"name"`
	AsOf          time.Time     `yaml:"as_of"`
	Currency      string        `yaml:"currency"`
	Compounding   string        `yaml:"compounding"`
	Extrapolation string        `yaml:"extrapolation"`
	Points        []PointRecord `yaml:"points"`
}

type PointRecord struct {
	Tenor float64 `yaml:"tenor"`
	Rate  float64 `yaml:"rate"`
}

type AssetRecord struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	Bucket         string           `yaml:"bucket"`
	ExpectedReturn float64          `yaml:"expected_return"`
	Duration       float64          `yaml:"duration"`
	Convexity      float64          `yaml:"convexity"`
	Liquidity      *LiquidityRecord `yaml:"liquidity"`
}

type LiquidityRecord struct {
	ADV           decimal.Decimal `yaml:"adv"`
	IntradayCurve []float64       `yaml:"intraday_curve"`
	Volatility    float64         `yaml:"volatility"`
	HalfSpreadBps float64         `yaml:"half_spread_bps"`
	LotSize       decimal.Decimal `yaml:"lot_size"`
	Session       time.Duration   `yaml:"session"`
}

type CovarianceRecord struct {
	IDs    []string    `yaml:"ids"`
	Values [][]float64 `yaml:"values"`
}

type PortfolioRecord struct {
	ID        string                     `yaml:"id"`
	Name      string                     `yaml:"name"`
	Holdings  map[string]decimal.Decimal `yaml:"holdings"`
	Liability LiabilityRecord            `yaml:"liability"`
	Policy    PolicyRecord               `yaml:"policy"`
}

type LiabilityRecord struct {
	Name      string           `yaml:"name"`
	Type      string           `yaml:"type"`
	Curve     string           `yaml:"curve"`
	CashFlows []CashFlowRecord `yaml:"cash_flows"`
}

type CashFlowRecord struct {
	Date     time.Time       `yaml:"date"`
	Amount   decimal.Decimal `yaml:"amount"`
	Currency string          `yaml:"currency"`
}

type PolicyRecord struct {
	RiskBudget          RiskBudgetRecord         `yaml:"risk_budget"`
	FundingTarget       float64                  `yaml:"funding_target"`
	FundingHorizonYears float64                  `yaml:"funding_horizon_years"`
	LiabilityGrowth     float64                  `yaml:"liability_growth"`
	Bounds              map[string]domain.Bounds `yaml:"bounds"`
	LiabilityProxy      map[string]float64       `yaml:"liability_proxy"`
	DurationTolerance   float64                  `yaml:"duration_tolerance"`
	MaxAssets           int                      `yaml:"max_assets"`
	Illiquidity         map[string]float64       `yaml:"illiquidity"`
	PreviousWeights     map[string]float64       `yaml:"previous_weights"`
	Algorithm           string                   `yaml:"algorithm"`
	Urgency             string                   `yaml:"urgency"`
	MinTradeNotional    decimal.Decimal          `yaml:"min_trade_notional"`
	EquityExposureGap   float64                  `yaml:"equity_exposure_gap"`
	Overlay             []OverlayRecord          `yaml:"overlay"`
}

type RiskBudgetRecord struct {
	Ceiling float64            `yaml:"ceiling"`
	Buckets map[string]float64 `yaml:"buckets"`
}

type OverlayRecord struct {
	ID               string          `yaml:"id"`
	Type             string          `yaml:"type"`
	Tenor            float64         `yaml:"tenor"`
	Duration         float64         `yaml:"duration"`
	Convexity        float64         `yaml:"convexity"`
	EquityDelta      float64         `yaml:"equity_delta"`
	Capacity         decimal.Decimal `yaml:"capacity"`
	CollateralWeight float64         `yaml:"collateral_weight"`
	PositiveOnly     bool            `yaml:"positive_only"`
	NegativeOnly     bool            `yaml:"negative_only"`
}
