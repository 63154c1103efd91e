package execution

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// tradingClock maps trading time (time elapsed inside sessions) onto wall-clock time
// and expected market volume. Session d opens at start + d*24h.
type tradingClock struct {
	start      time.Time
	session    time.Duration
	adv        float64
	cumulative []float64 // cumulative[i] = share of daily volume traded before bucket i
}

func newTradingClock(start time.Time, profile domain.MarketProfile) *tradingClock {
	c := &tradingClock{
		start:   start,
		session: profile.Session,
		adv:     profile.ADV.InexactFloat64(),
	}
	if len(profile.IntradayCurve) > 0 {
		c.cumulative = make([]float64, len(profile.IntradayCurve)+1)
		for i, f := range profile.IntradayCurve {
			c.cumulative[i+1] = c.cumulative[i] + f
		}
	}
	return c
}

// wall converts a trading-time offset into a timestamp
// The close of a session maps to that session's close, not the next open
func (c *tradingClock) wall(offset time.Duration, isEnd bool) time.Time {
	day := offset / c.session
	within := offset - day*c.session
	if isEnd && within == 0 && day > 0 {
		day--
		within = c.session
	}
	return c.start.Add(time.Duration(day)*24*time.Hour + within)
}

func (c *tradingClock) window(from, to time.Duration) domain.TimeWindow {
	return domain.TimeWindow{Start: c.wall(from, false), End: c.wall(to, true)}
}

// sessionShare is the fraction of a day's volume traded before the given point in a session
// Volume is uniform within each curve bucket, and across the session when there is no curve
func (c *tradingClock) sessionShare(within time.Duration) float64 {
	x := float64(within) / float64(c.session)
	if c.cumulative == nil {
		return x
	}
	buckets := len(c.cumulative) - 1
	pos := x * float64(buckets)
	i := int(math.Floor(pos))
	if i >= buckets {
		return c.cumulative[buckets]
	}
	return c.cumulative[i] + (pos-float64(i))*(c.cumulative[i+1]-c.cumulative[i])
}

// volumeTo is the expected market volume from the first open up to the trading offset
func (c *tradingClock) volumeTo(offset time.Duration) float64 {
	day := offset / c.session
	within := offset - day*c.session
	return c.adv * (float64(day) + c.sessionShare(within))
}

// volume is the expected market volume between two trading offsets
func (c *tradingClock) volume(from, to time.Duration) float64 {
	return c.volumeTo(to) - c.volumeTo(from)
}

// grid splits a horizon into slices of at most interval each
type grid struct {
	bounds  []time.Duration // len(slices)+1 trading-time offsets
	volumes []float64
}

func newGrid(clock *tradingClock, horizon, interval time.Duration) grid {
	count := int((horizon + interval - 1) / interval)
	g := grid{bounds: make([]time.Duration, count+1), volumes: make([]float64, count)}
	for k := 1; k <= count; k++ {
		end := time.Duration(k) * interval
		if end > horizon {
			end = horizon
		}
		g.bounds[k] = end
		g.volumes[k-1] = clock.volume(g.bounds[k-1], end)
	}
	return g
}

func (g grid) slices() int {
	return len(g.volumes)
}

func (g grid) duration(k int) time.Duration {
	return g.bounds[k+1] - g.bounds[k]
}

func (g grid) totalVolume() float64 {
	total := 0.0
	for _, v := range g.volumes {
		total += v
	}
	return total
}

func (g grid) volumeDecimal(k int) decimal.Decimal {
	return decimal.NewFromFloat(g.volumes[k]).Round(2)
}
