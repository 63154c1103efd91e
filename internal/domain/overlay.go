package domain

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InstrumentType is the kind of derivative used in an overlay
type InstrumentType string

const (
	InstrumentSwap   InstrumentType = "SWAP"
	InstrumentFuture InstrumentType = "FUTURE"
)

// Direction is the side of an overlay position
// Swaps are RECEIVE or PAY fixed; futures are LONG or SHORT
type Direction string

const (
	DirectionReceive Direction = "RECEIVE"
	DirectionPay     Direction = "PAY"
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
)

// OverlayInstrument is a derivative available to the overlay manager
// Sensitivities are per unit of notional for the positive direction
// (receive fixed for swaps, long for futures)
type OverlayInstrument struct {
	ID               string
	Type             InstrumentType
	Tenor            float64
	Duration         float64         // Dollar duration per unit notional
	Convexity        float64         // Dollar convexity per unit notional
	EquityDelta      float64         // Equity exposure per unit notional
	Capacity         decimal.Decimal // Max absolute notional, zero = unlimited
	CollateralWeight float64         // Cost of one unit of notional, zero defaults to 1
	PositiveOnly     bool            // Only receive/long allowed
	NegativeOnly     bool            // Only pay/short allowed
}

// Validate ensures the instrument can be used in an overlay solve
func (i *OverlayInstrument) Validate() error {
	if i.ID == "" {
		return Invalid("overlay.instrument", "ID cannot be empty")
	}
	if i.Type != InstrumentSwap && i.Type != InstrumentFuture {
		return Invalid("overlay.instrument", "%s has unknown type %q", i.ID, i.Type)
	}
	for _, v := range []float64{i.Duration, i.Convexity, i.EquityDelta, i.CollateralWeight} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Invalid("overlay.instrument", "%s has a non-finite sensitivity", i.ID)
		}
	}
	if i.CollateralWeight < 0 {
		return Invalid("overlay.instrument", "%s has a negative collateral weight", i.ID)
	}
	if i.Capacity.LessThan(decimal.Zero) {
		return Invalid("overlay.instrument", "%s has a negative capacity", i.ID)
	}
	if i.PositiveOnly && i.NegativeOnly {
		return Invalid("overlay.instrument", "%s cannot be both positive-only and negative-only", i.ID)
	}
	return nil
}

// DirectionFor maps a signed notional to the instrument's direction vocabulary
func (i *OverlayInstrument) DirectionFor(signed float64) Direction {
	if i.Type == InstrumentSwap {
		if signed >= 0 {
			return DirectionReceive
		}
		return DirectionPay
	}
	if signed >= 0 {
		return DirectionLong
	}
	return DirectionShort
}

// OverlayPosition is a sized derivative position
type OverlayPosition struct {
	InstrumentID          string
	Type                  InstrumentType
	Direction             Direction
	Notional              decimal.Decimal // Absolute notional
	DurationContribution  float64
	ConvexityContribution float64
	EquityContribution    float64
}

// OverlayStrategy is a set of positions whose aggregate effect closes a gap
type OverlayStrategy struct {
	ID                   uuid.UUID
	Positions            []OverlayPosition
	TotalNotional        decimal.Decimal
	TargetDuration       float64 // Contribution required: the negative of the duration gap
	TargetConvexity      float64
	TargetEquity         float64
	ResidualDurationGap  float64
	ResidualConvexityGap float64
	ResidualEquityGap    float64
	WithinTolerance      bool
}
