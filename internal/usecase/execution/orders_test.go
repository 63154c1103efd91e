package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

func TestBuildOrderRequests(t *testing.T) {
	positions := map[string]decimal.Decimal{
		"UST": decimal.NewFromInt(600_000),
		"SPX": decimal.NewFromInt(400_000),
		"OLD": decimal.NewFromInt(2_000),
	}
	targets := map[string]float64{
		"UST": 0.5,
		"SPX": 0.3,
		"IG":  0.2,
	}

	requests, err := BuildOrderRequests(positions, targets, decimal.NewFromInt(1_000_000), decimal.NewFromInt(5_000), sessionOpen, domain.UrgencyLow)

	require.NoError(t, err)
	require.Len(t, requests, 3)

	// Sorted by instrument; OLD's 2,000 sale is below the minimum trade
	assert.Equal(t, "IG", requests[0].Instrument)
	assert.Equal(t, domain.SideBuy, requests[0].Side)
	assert.True(t, requests[0].Notional.Equal(decimal.NewFromInt(200_000)))

	assert.Equal(t, "SPX", requests[1].Instrument)
	assert.Equal(t, domain.SideSell, requests[1].Side)
	assert.True(t, requests[1].Notional.Equal(decimal.NewFromInt(100_000)))

	assert.Equal(t, "UST", requests[2].Instrument)
	assert.Equal(t, domain.SideSell, requests[2].Side)
	assert.True(t, requests[2].Notional.Equal(decimal.NewFromInt(100_000)))

	for _, r := range requests {
		assert.Equal(t, domain.UrgencyLow, r.Urgency)
		assert.Equal(t, sessionOpen, r.Start)
		assert.NoError(t, r.Validate())
	}
}

func TestBuildOrderRequests_RejectsNegativeWeights(t *testing.T) {
	_, err := BuildOrderRequests(nil, map[string]float64{"UST": -0.1}, decimal.NewFromInt(100), decimal.Zero, sessionOpen, domain.UrgencyLow)
	assert.Equal(t, domain.KindInput, domain.KindOf(err))
}

func TestReschedule_SupersedesWithoutMutating(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig())
	profile := liquidProfile()
	original, err := scheduler.Schedule(request(1_000_000, 5*time.Hour, ""), profile, domain.AlgorithmTWAP)
	require.NoError(t, err)
	sliceCount := len(original.Slices)

	next, err := scheduler.Reschedule(original, decimal.NewFromInt(400_000), sessionOpen.Add(24*time.Hour), profile)

	require.NoError(t, err)
	require.NotNil(t, next.SupersedesID)
	assert.Equal(t, original.ID, *next.SupersedesID)
	assert.NotEqual(t, original.ID, next.ID)
	assert.Equal(t, original.RequestID, next.RequestID)
	assert.True(t, next.Notional.Equal(decimal.NewFromInt(600_000)))
	assert.True(t, next.ScheduledQuantity().Equal(decimal.NewFromInt(600_000)))
	assert.Equal(t, sessionOpen.Add(24*time.Hour), next.Slices[0].Window.Start)

	assert.Nil(t, original.SupersedesID)
	assert.Len(t, original.Slices, sliceCount)
	assert.True(t, original.Notional.Equal(decimal.NewFromInt(1_000_000)))
}

func TestReschedule_RejectsOverExecution(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig())
	original, err := scheduler.Schedule(request(1_000_000, 5*time.Hour, ""), liquidProfile(), domain.AlgorithmTWAP)
	require.NoError(t, err)

	_, err = scheduler.Reschedule(original, decimal.NewFromInt(1_000_001), sessionOpen, liquidProfile())

	assert.Equal(t, domain.KindInput, domain.KindOf(err))
}
