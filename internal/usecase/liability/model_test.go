package liability

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

var asOf = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

func flatCurve(rate float64, maxTenor float64) *domain.DiscountCurve {
	return &domain.DiscountCurve{
		Name:     "USD-SOFR",
		AsOf:     asOf,
		Currency: "USD",
		Points: []domain.CurvePoint{
			{Tenor: 0, ZeroRate: rate},
			{Tenor: maxTenor, ZeroRate: rate},
		},
	}
}

func singleFlow(amount int64, years int) *domain.Liability {
	return &domain.Liability{
		ID:   uuid.New(),
		Name: "Test Pension",
		Type: domain.LiabilityTypeDefinedBenefit,
		CashFlows: []domain.CashFlow{
			{Date: asOf.AddDate(years, 0, 0), Amount: decimal.NewFromInt(amount), Currency: "USD"},
		},
	}
}

func pensionSchedule() *domain.Liability {
	flows := make([]domain.CashFlow, 0, 30)
	for y := 1; y <= 30; y++ {
		flows = append(flows, domain.CashFlow{
			Date:     asOf.AddDate(y, 0, 0),
			Amount:   decimal.NewFromInt(1_000_000),
			Currency: "USD",
		})
	}
	return &domain.Liability{
		ID:        uuid.New(),
		Name:      "Retiree Payroll",
		Type:      domain.LiabilityTypeDefinedBenefit,
		CashFlows: flows,
	}
}

func TestValueLiabilities_SingleFlowTenYearsAtFivePercent(t *testing.T) {
	// $100 in 10 years on a flat 5% curve is worth 100 / 1.05^10
	model := NewModel(0, 0)

	pv, err := model.ValueLiabilities(singleFlow(100, 10), flatCurve(0.05, 30))

	require.NoError(t, err)
	assert.InDelta(t, 61.39, pv.Amount.InexactFloat64(), 0.005)
	assert.InDelta(t, 100/math.Pow(1.05, 10), pv.Amount.InexactFloat64(), 1e-9)
	assert.Equal(t, "USD", pv.Currency)
	assert.Equal(t, 1, pv.CashFlows)
}

func TestValueLiabilities_ContinuousCompounding(t *testing.T) {
	curve := flatCurve(0.05, 30)
	curve.Compounding = domain.CompoundingContinuous

	pv, err := NewModel(0, 0).ValueLiabilities(singleFlow(100, 10), curve)

	require.NoError(t, err)
	assert.InDelta(t, 100*math.Exp(-0.5), pv.Amount.InexactFloat64(), 1e-9)
}

func TestValueLiabilities_MonotonicInRateLevel(t *testing.T) {
	model := NewModel(0, 0)
	liability := pensionSchedule()
	base := &domain.DiscountCurve{
		Name:     "USD-SOFR",
		AsOf:     asOf,
		Currency: "USD",
		Points: []domain.CurvePoint{
			{Tenor: 0, ZeroRate: 0.030},
			{Tenor: 5, ZeroRate: 0.035},
			{Tenor: 10, ZeroRate: 0.041},
			{Tenor: 30, ZeroRate: 0.046},
		},
	}

	previous := math.Inf(1)
	for _, shift := range []float64{-200, -50, -1, 0, 1, 25, 100, 300} {
		pv, err := model.ValueLiabilities(liability, base.Shifted(shift))
		require.NoError(t, err)

		value := pv.Amount.InexactFloat64()
		assert.Less(t, value, previous, "PV must strictly fall as rates rise (shift %vbp)", shift)
		previous = value
	}
}

func TestValueLiabilities_CurveGap(t *testing.T) {
	model := NewModel(0, 0)
	liability := singleFlow(100, 40)

	_, err := model.ValueLiabilities(liability, flatCurve(0.05, 30))

	var gapErr *domain.CurveGapError
	require.True(t, errors.As(err, &gapErr), "expected CurveGapError, got %v", err)
	assert.InDelta(t, 40, gapErr.Maturity, 1e-9)
	assert.Equal(t, 30.0, gapErr.MaxTenor)
	assert.Equal(t, domain.KindInput, domain.KindOf(err))
}

func TestValueLiabilities_ExtrapolationIsOptIn(t *testing.T) {
	model := NewModel(0, 0)
	liability := singleFlow(100, 40)
	curve := flatCurve(0.05, 30)
	curve.Extrapolation = domain.ExtrapolationFlat

	pv, err := model.ValueLiabilities(liability, curve)

	require.NoError(t, err)
	assert.InDelta(t, 100/math.Pow(1.05, 40), pv.Amount.InexactFloat64(), 1e-9)
}

func TestValueLiabilities_InvalidInputs(t *testing.T) {
	model := NewModel(0, 0)

	tests := []struct {
		name      string
		liability *domain.Liability
		curve     *domain.DiscountCurve
	}{
		{
			name:      "Currency mismatch should fail",
			liability: singleFlow(100, 5),
			curve: func() *domain.DiscountCurve {
				c := flatCurve(0.05, 30)
				c.Currency = "EUR"
				return c
			}(),
		},
		{
			name: "Empty schedule should fail",
			liability: &domain.Liability{
				ID:   uuid.New(),
				Type: domain.LiabilityTypeAnnuity,
			},
			curve: flatCurve(0.05, 30),
		},
		{
			name: "Negative amount should fail",
			liability: func() *domain.Liability {
				l := singleFlow(100, 5)
				l.CashFlows[0].Amount = decimal.NewFromInt(-1)
				return l
			}(),
			curve: flatCurve(0.05, 30),
		},
		{
			name: "Cash flow before valuation date should fail",
			liability: func() *domain.Liability {
				l := singleFlow(100, 5)
				l.CashFlows[0].Date = asOf.AddDate(-1, 0, 0)
				return l
			}(),
			curve: flatCurve(0.05, 30),
		},
		{
			name:      "Curve with unordered tenors should fail",
			liability: singleFlow(100, 5),
			curve: &domain.DiscountCurve{
				Name:   "BROKEN",
				AsOf:   asOf,
				Points: []domain.CurvePoint{{Tenor: 10, ZeroRate: 0.04}, {Tenor: 5, ZeroRate: 0.03}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.ValueLiabilities(tt.liability, tt.curve)
			var vErr *domain.ValidationError
			assert.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
		})
	}
}

func TestComputeFundingRatio(t *testing.T) {
	model := NewModel(0, 0)

	fr, err := model.ComputeFundingRatio(decimal.NewFromInt(1_100), decimal.NewFromInt(1_000))

	require.NoError(t, err)
	assert.InDelta(t, 1.1, fr.Ratio, 1e-12)
	assert.True(t, fr.Surplus.Equal(decimal.NewFromInt(100)))
	assert.True(t, fr.IsFunded())
}

func TestComputeFundingRatio_ScaleInvariant(t *testing.T) {
	model := NewModel(0, 0)
	assets := decimal.NewFromFloat(873_421.17)
	liabilities := decimal.NewFromFloat(1_012_554.91)

	base, err := model.ComputeFundingRatio(assets, liabilities)
	require.NoError(t, err)

	for _, k := range []float64{0.001, 0.5, 3, 1_000, 7_777.77} {
		scale := decimal.NewFromFloat(k)
		scaled, err := model.ComputeFundingRatio(assets.Mul(scale), liabilities.Mul(scale))
		require.NoError(t, err)
		assert.InDelta(t, base.Ratio, scaled.Ratio, 1e-12, "scale %v", k)
	}
}

func TestComputeFundingRatio_DegenerateLiability(t *testing.T) {
	model := NewModel(0, 0)

	for _, pv := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := model.ComputeFundingRatio(decimal.NewFromInt(100), pv)

		var degErr *domain.DegenerateLiabilityError
		require.True(t, errors.As(err, &degErr))
		assert.True(t, degErr.PresentValue.Equal(pv))
	}
}

func TestDurationConvexity_ZeroCouponMatchesClosedForm(t *testing.T) {
	// For a zero coupon under annual compounding: D = T/(1+r), C = T(T+1)/(1+r)^2
	model := NewModel(0, 0)

	profile, err := model.DurationConvexity(singleFlow(1_000_000, 10), flatCurve(0.05, 30))

	require.NoError(t, err)
	assert.InDelta(t, 10/1.05, profile.Duration, 1e-4)
	assert.InDelta(t, 10*11/(1.05*1.05), profile.Convexity, 1e-2)
	assert.InDelta(t, profile.Duration*profile.PresentValue*0.0001, profile.DV01, 1e-9)
}

func TestDurationConvexity_LongerScheduleHasHigherDuration(t *testing.T) {
	model := NewModel(0, 0)
	curve := flatCurve(0.04, 40)

	short, err := model.DurationConvexity(singleFlow(100, 5), curve)
	require.NoError(t, err)
	long, err := model.DurationConvexity(pensionSchedule(), curve)
	require.NoError(t, err)

	assert.Greater(t, long.Duration, short.Duration)
	assert.Greater(t, long.Convexity, short.Convexity)
}

func TestSnapshot_ComputesGaps(t *testing.T) {
	model := NewModel(0, 0)
	liability := singleFlow(1_000_000, 10)
	curve := flatCurve(0.05, 30)
	assets := domain.AssetExposure{
		MarketValue: decimal.NewFromInt(700_000),
		Duration:    6,
		Convexity:   50,
	}

	fr, profile, err := model.Snapshot(assets, liability, curve)

	require.NoError(t, err)
	assert.InDelta(t, 700_000/profile.PresentValue, fr.Ratio, 1e-9)
	assert.InDelta(t, 6-profile.Duration, fr.DurationGap, 1e-12)
	assert.InDelta(t, 50-profile.Convexity, fr.ConvexityGap, 1e-12)
	assert.InDelta(t, 700_000*6-profile.PresentValue*profile.Duration, fr.DollarDurationGap, 1e-3)
	assert.Equal(t, asOf, fr.AsOf)
}
