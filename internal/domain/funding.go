package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetExposure summarises the asset side of a portfolio for a funding snapshot
type AssetExposure struct {
	MarketValue decimal.Decimal
	Duration    float64
	Convexity   float64
}

// FundingRatio is a point-in-time derived value: never persisted by the core
type FundingRatio struct {
	AsOf               time.Time
	AssetValue         decimal.Decimal
	LiabilityPV        decimal.Decimal
	Ratio              float64
	Surplus            decimal.Decimal // AssetValue - LiabilityPV
	AssetDuration      float64
	LiabilityDuration  float64
	AssetConvexity     float64
	LiabilityConvexity float64
	DurationGap        float64 // AssetDuration - LiabilityDuration
	ConvexityGap       float64 // AssetConvexity - LiabilityConvexity
	DollarDurationGap  float64 // A*D_A - L*D_L
	DollarConvexityGap float64 // A*C_A - L*C_L
}

// IsFunded reports whether assets cover liabilities
func (f *FundingRatio) IsFunded() bool {
	return f.Ratio >= 1
}
