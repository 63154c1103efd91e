package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

var sessionOpen = time.Date(2026, time.March, 2, 14, 30, 0, 0, time.UTC)

func liquidProfile() domain.MarketProfile {
	return domain.MarketProfile{
		Instrument:    "UST-10Y",
		ADV:           decimal.NewFromInt(50_000_000),
		Volatility:    0.01,
		HalfSpreadBps: 1,
		LotSize:       decimal.NewFromInt(1_000),
		Session:       390 * time.Minute,
	}
}

func request(notional int64, horizon time.Duration, urgency domain.Urgency) domain.OrderRequest {
	return domain.OrderRequest{
		ID:         uuid.New(),
		Instrument: "UST-10Y",
		Side:       domain.SideBuy,
		Notional:   decimal.NewFromInt(notional),
		Start:      sessionOpen,
		Horizon:    horizon,
		Urgency:    urgency,
	}
}

func tradingDays(order *domain.ExecutionOrder) int {
	days := make(map[string]bool)
	for _, s := range order.Slices {
		days[s.Window.Start.Format(time.DateOnly)] = true
	}
	return len(days)
}

func TestSchedule_TWAPSliceCountAndExactSum(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig())

	tests := []struct {
		name    string
		horizon time.Duration
		want    int
	}{
		{name: "Horizon divisible by the interval", horizon: 5 * time.Hour, want: 10},
		{name: "Partial last slice", horizon: 5*time.Hour + 10*time.Minute, want: 11},
		{name: "Single short slice", horizon: 20 * time.Minute, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Small enough to stay under the participation cap in every slice
			req := request(100_003, tt.horizon, "")
			order, err := scheduler.Schedule(req, liquidProfile(), domain.AlgorithmTWAP)

			require.NoError(t, err)
			assert.Len(t, order.Slices, tt.want)
			assert.True(t, order.ScheduledQuantity().Equal(req.Notional), "slices sum to %s", order.ScheduledQuantity())
			assert.Equal(t, domain.AlgorithmTWAP, order.Algorithm)

			for i, s := range order.Slices[:len(order.Slices)-1] {
				assert.True(t, s.Quantity.Mod(decimal.NewFromInt(1_000)).IsZero(), "slice %d is not whole lots", i)
			}
			assert.Equal(t, sessionOpen, order.Slices[0].Window.Start)
			assert.Equal(t, sessionOpen.Add(tt.horizon), order.Slices[len(order.Slices)-1].Window.End)
		})
	}
}

func TestSchedule_TWAPEqualSlices(t *testing.T) {
	order, err := NewScheduler(DefaultConfig()).Schedule(request(1_000_000, 5*time.Hour, ""), liquidProfile(), domain.AlgorithmTWAP)

	require.NoError(t, err)
	for _, s := range order.Slices {
		assert.True(t, s.Quantity.Equal(decimal.NewFromInt(100_000)))
	}
}

func TestSchedule_LargeOrderSpreadsOverSeveralDays(t *testing.T) {
	// $10M against $50M ADV with a 10% cap needs at least two full sessions
	scheduler := NewScheduler(DefaultConfig())
	profile := liquidProfile()

	for _, algo := range []domain.Algorithm{domain.AlgorithmTWAP, domain.AlgorithmVWAP, domain.AlgorithmPOV} {
		t.Run(string(algo), func(t *testing.T) {
			order, err := scheduler.Schedule(request(10_000_000, 0, domain.UrgencyMedium), profile, algo)

			require.NoError(t, err)
			assert.GreaterOrEqual(t, tradingDays(order), 2)
			assert.GreaterOrEqual(t, order.Horizon, 2*profile.Session)
			assert.True(t, order.ScheduledQuantity().Equal(decimal.NewFromInt(10_000_000)))
			for _, s := range order.Slices {
				allowed := s.ExpectedVolume.Mul(decimal.NewFromFloat(0.10)).Add(profile.LotSize)
				assert.True(t, s.Quantity.LessThanOrEqual(allowed), "slice %d trades %s of %s", s.Index, s.Quantity, s.ExpectedVolume)
			}
		})
	}
}

func TestSchedule_FixedHorizonBreachingCapIsRejected(t *testing.T) {
	profile := liquidProfile()
	req := request(10_000_000, profile.Session, "")

	_, err := NewScheduler(DefaultConfig()).Schedule(req, profile, domain.AlgorithmVWAP)

	var capErr *domain.ParticipationCapExceededError
	require.True(t, errors.As(err, &capErr), "expected ParticipationCapExceededError, got %v", err)
	assert.InDelta(t, 0.2, capErr.Participation, 1e-3)
	assert.Equal(t, 0.10, capErr.Cap)
	assert.Equal(t, domain.KindInput, domain.KindOf(err))
}

func TestSchedule_VWAPFollowsIntradayCurve(t *testing.T) {
	profile := liquidProfile()
	// Two buckets of 195 minutes: heavy morning, light afternoon
	profile.IntradayCurve = []float64{0.75, 0.25}
	req := request(2_000_000, profile.Session, "")

	order, err := NewScheduler(DefaultConfig()).Schedule(req, profile, domain.AlgorithmVWAP)

	require.NoError(t, err)
	require.Len(t, order.Slices, 13)
	morning, afternoon := order.Slices[0].Quantity, order.Slices[12].Quantity
	assert.True(t, morning.GreaterThan(afternoon), "morning %s should exceed afternoon %s", morning, afternoon)
	assert.True(t, order.ScheduledQuantity().Equal(req.Notional))

	// Participation is flat under VWAP
	for _, s := range order.Slices {
		assert.InDelta(t, 0.04, s.Participation, 1e-3)
	}
}

func TestSchedule_ISFrontLoads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RiskAversion = 1e-5
	profile := liquidProfile()
	req := request(1_000_000, profile.Session, "")

	is, err := NewScheduler(cfg).Schedule(req, profile, domain.AlgorithmIS)
	require.NoError(t, err)
	twap, err := NewScheduler(cfg).Schedule(req, profile, domain.AlgorithmTWAP)
	require.NoError(t, err)

	require.Len(t, is.Slices, len(twap.Slices))
	assert.True(t, is.Slices[0].Quantity.GreaterThan(twap.Slices[0].Quantity))
	assert.True(t, is.Slices[len(is.Slices)-1].Quantity.LessThan(twap.Slices[len(twap.Slices)-1].Quantity))
	for i := 1; i < len(is.Slices)-1; i++ {
		assert.True(t, is.Slices[i].Quantity.LessThanOrEqual(is.Slices[i-1].Quantity.Add(profile.LotSize)))
	}
	// Front-loading trades impact for lower timing risk
	assert.Less(t, is.Cost.TimingRiskVariance, twap.Cost.TimingRiskVariance)
	assert.True(t, is.ScheduledQuantity().Equal(req.Notional))
}

func TestSchedule_SubLotOrderIsSingleSlice(t *testing.T) {
	profile := liquidProfile()
	req := request(400, 3*time.Hour, "")

	order, err := NewScheduler(DefaultConfig()).Schedule(req, profile, domain.AlgorithmTWAP)

	require.NoError(t, err)
	require.Len(t, order.Slices, 1)
	assert.True(t, order.Slices[0].Quantity.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, sessionOpen, order.Slices[0].Window.Start)
	assert.True(t, order.Cost.Total.IsPositive())
}

func TestSchedule_TinyOrderStillCosts(t *testing.T) {
	profile := liquidProfile()
	profile.Volatility = 0.02
	profile.HalfSpreadBps = 5
	profile.LotSize = decimal.NewFromInt(1)

	order, err := NewScheduler(DefaultConfig()).Schedule(request(5, time.Hour, ""), profile, domain.AlgorithmTWAP)

	require.NoError(t, err)
	cost := order.Cost
	// Half a cent of spread on $5
	assert.True(t, cost.SpreadCost.Equal(decimal.RequireFromString("0.0025")), "spread %s", cost.SpreadCost)
	assert.True(t, cost.PermanentImpact.IsPositive())
	assert.True(t, cost.Total.IsPositive())
	assert.Greater(t, cost.TotalBps, profile.HalfSpreadBps)
	assert.True(t, cost.RiskAdjusted.GreaterThanOrEqual(cost.Total))
}

func TestSchedule_ZeroNotional(t *testing.T) {
	order, err := NewScheduler(DefaultConfig()).Schedule(request(0, time.Hour, ""), liquidProfile(), domain.AlgorithmTWAP)

	require.NoError(t, err)
	assert.Empty(t, order.Slices)
	assert.True(t, order.Cost.Total.IsZero())
	assert.True(t, order.ScheduledQuantity().IsZero())
}

func TestSchedule_CostComponents(t *testing.T) {
	profile := liquidProfile()
	req := request(5_000_000, 2*profile.Session, "")

	order, err := NewScheduler(DefaultConfig()).Schedule(req, profile, domain.AlgorithmTWAP)

	require.NoError(t, err)
	cost := order.Cost
	// Spread: 1bp on $5M
	assert.True(t, cost.SpreadCost.Equal(decimal.NewFromInt(500)), "spread %s", cost.SpreadCost)
	// Permanent: 0.1 * 100bps * sqrt(0.1) on $5M
	assert.InDelta(t, 5_000_000*0.1*100*0.31622776601683794/10_000, cost.PermanentImpact.InexactFloat64(), 0.01)
	assert.True(t, cost.TemporaryImpact.IsPositive())
	assert.Greater(t, cost.TimingRiskVariance, 0.0)
	components := cost.PermanentImpact.Add(cost.TemporaryImpact).Add(cost.SpreadCost)
	assert.InDelta(t, components.InexactFloat64(), cost.Total.InexactFloat64(), 0.02)
	assert.True(t, cost.RiskAdjusted.GreaterThanOrEqual(cost.Total))
	assert.InDelta(t, cost.Total.InexactFloat64()/5_000_000*10_000, cost.TotalBps, 1e-9)
	for _, s := range order.Slices {
		assert.Greater(t, s.EstimatedCostBps, profile.HalfSpreadBps)
	}
}

func TestSchedule_AutoSelection(t *testing.T) {
	cfg := DefaultConfig()
	profile := liquidProfile()

	tests := []struct {
		name    string
		req     domain.OrderRequest
		profile func() domain.MarketProfile
		want    domain.Algorithm
	}{
		{name: "High urgency uses IS", req: request(1_000_000, 0, domain.UrgencyHigh), profile: liquidProfile, want: domain.AlgorithmIS},
		{name: "Large order uses POV", req: request(20_000_000, 0, domain.UrgencyLow), profile: liquidProfile, want: domain.AlgorithmPOV},
		{
			name: "Volume curve uses VWAP",
			req:  request(1_000_000, 0, domain.UrgencyMedium),
			profile: func() domain.MarketProfile {
				p := liquidProfile()
				p.IntradayCurve = []float64{0.5, 0.5}
				return p
			},
			want: domain.AlgorithmVWAP,
		},
		{name: "Default is TWAP", req: request(1_000_000, 0, domain.UrgencyMedium), profile: liquidProfile, want: domain.AlgorithmTWAP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectAlgorithm(tt.req, tt.profile(), cfg))
		})
	}

	order, err := NewScheduler(cfg).Schedule(request(1_000_000, 0, domain.UrgencyMedium), profile, domain.AlgorithmAuto)
	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmTWAP, order.Algorithm)
}

func TestSchedule_InvalidInputs(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig())

	tests := []struct {
		name    string
		req     domain.OrderRequest
		profile domain.MarketProfile
		algo    domain.Algorithm
	}{
		{name: "Negative notional", req: request(-5, time.Hour, ""), profile: liquidProfile(), algo: domain.AlgorithmTWAP},
		{name: "No horizon and no urgency", req: request(5, 0, ""), profile: liquidProfile(), algo: domain.AlgorithmTWAP},
		{
			name: "Zero ADV",
			req:  request(5, time.Hour, ""),
			profile: func() domain.MarketProfile {
				p := liquidProfile()
				p.ADV = decimal.Zero
				return p
			}(),
			algo: domain.AlgorithmTWAP,
		},
		{
			name: "Curve not summing to one",
			req:  request(5, time.Hour, ""),
			profile: func() domain.MarketProfile {
				p := liquidProfile()
				p.IntradayCurve = []float64{0.5, 0.4}
				return p
			}(),
			algo: domain.AlgorithmVWAP,
		},
		{name: "Unknown algorithm", req: request(5, time.Hour, ""), profile: liquidProfile(), algo: "ICEBERG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scheduler.Schedule(tt.req, tt.profile, tt.algo)
			var vErr *domain.ValidationError
			assert.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
		})
	}
}

func TestSchedule_WindowsSkipOvernight(t *testing.T) {
	profile := liquidProfile()
	req := request(1_000_000, 2*profile.Session, "")

	order, err := NewScheduler(DefaultConfig()).Schedule(req, profile, domain.AlgorithmTWAP)

	require.NoError(t, err)
	require.Len(t, order.Slices, 26)
	assert.Equal(t, sessionOpen.Add(profile.Session), order.Slices[12].Window.End)
	assert.Equal(t, sessionOpen.Add(24*time.Hour), order.Slices[13].Window.Start)
	assert.Equal(t, 2, tradingDays(order))
}
