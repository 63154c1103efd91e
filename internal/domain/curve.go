package domain

import (
	"math"
	"time"
)

// Compounding selects how a zero rate turns into a discount factor
type Compounding string

const (
	CompoundingAnnual     Compounding = "ANNUAL"
	CompoundingContinuous Compounding = "CONTINUOUS"
)

// Extrapolation selects what happens to maturities outside the curve's tenor range
type Extrapolation string

const (
	ExtrapolationNone   Extrapolation = "NONE" // Default: outside the domain is an error
	ExtrapolationFlat   Extrapolation = "FLAT"
	ExtrapolationLinear Extrapolation = "LINEAR"
)

// CurvePoint is a single zero rate at a tenor expressed in years
type CurvePoint struct {
	Tenor    float64
	ZeroRate float64 // Decimal rate, 0.05 = 5%
}

// DiscountCurve is a zero-rate curve as of a date
// Values are never mutated after construction; shifts produce a new curve
type DiscountCurve struct {
	Name          string
	AsOf          time.Time
	Currency      string
	Points        []CurvePoint // Ordered by strictly increasing Tenor
	Compounding   Compounding
	Extrapolation Extrapolation
}

// Validate ensures the curve can be evaluated
func (c *DiscountCurve) Validate() error {
	if c.Name == "" {
		return Invalid("curve.name", "cannot be empty")
	}
	if len(c.Points) == 0 {
		return Invalid("curve.points", "curve %q has no points", c.Name)
	}
	for i, p := range c.Points {
		if p.Tenor < 0 || math.IsNaN(p.Tenor) || math.IsInf(p.Tenor, 0) {
			return Invalid("curve.points", "tenor %v at index %d must be a finite non-negative number", p.Tenor, i)
		}
		if math.IsNaN(p.ZeroRate) || math.IsInf(p.ZeroRate, 0) || p.ZeroRate <= -1 {
			return Invalid("curve.points", "zero rate %v at index %d is not usable", p.ZeroRate, i)
		}
		if i > 0 && p.Tenor <= c.Points[i-1].Tenor {
			return Invalid("curve.points", "tenors must be strictly increasing (index %d)", i)
		}
	}
	switch c.Compounding {
	case "", CompoundingAnnual, CompoundingContinuous:
	default:
		return Invalid("curve.compounding", "unknown compounding %q", c.Compounding)
	}
	switch c.Extrapolation {
	case "", ExtrapolationNone, ExtrapolationFlat, ExtrapolationLinear:
	default:
		return Invalid("curve.extrapolation", "unknown extrapolation %q", c.Extrapolation)
	}
	return nil
}

// Domain returns the tenor range the curve is defined over
func (c *DiscountCurve) Domain() (float64, float64) {
	return c.Points[0].Tenor, c.Points[len(c.Points)-1].Tenor
}

// ZeroRate returns the interpolated zero rate at maturity t (years)
// ok is false when t lies outside the domain and extrapolation is disabled
func (c *DiscountCurve) ZeroRate(t float64) (rate float64, ok bool) {
	lo, hi := c.Domain()
	pts := c.Points

	if t < lo || t > hi {
		switch c.Extrapolation {
		case ExtrapolationFlat:
			if t < lo {
				return pts[0].ZeroRate, true
			}
			return pts[len(pts)-1].ZeroRate, true
		case ExtrapolationLinear:
			if len(pts) == 1 {
				return pts[0].ZeroRate, true
			}
			if t < lo {
				return lerp(pts[0], pts[1], t), true
			}
			return lerp(pts[len(pts)-2], pts[len(pts)-1], t), true
		default:
			return 0, false
		}
	}

	if len(pts) == 1 {
		return pts[0].ZeroRate, true
	}
	for i := 1; i < len(pts); i++ {
		if t <= pts[i].Tenor {
			return lerp(pts[i-1], pts[i], t), true
		}
	}
	return pts[len(pts)-1].ZeroRate, true
}

func lerp(a, b CurvePoint, t float64) float64 {
	w := (t - a.Tenor) / (b.Tenor - a.Tenor)
	return a.ZeroRate + w*(b.ZeroRate-a.ZeroRate)
}

// DiscountFactor converts a zero rate at maturity t into a discount factor
func (c *DiscountCurve) DiscountFactor(rate, t float64) float64 {
	if c.Compounding == CompoundingContinuous {
		return math.Exp(-rate * t)
	}
	return math.Pow(1+rate, -t)
}

// Shifted returns a copy of the curve with every zero rate moved by bp basis points
func (c *DiscountCurve) Shifted(bp float64) *DiscountCurve {
	shifted := *c
	shifted.Points = make([]CurvePoint, len(c.Points))
	for i, p := range c.Points {
		shifted.Points[i] = CurvePoint{Tenor: p.Tenor, ZeroRate: p.ZeroRate + bp/10000}
	}
	return &shifted
}

// YearFraction measures the time between two dates in years
// Whole calendar years count exactly; the remainder is a fraction of the following year
func YearFraction(from, to time.Time) float64 {
	if to.Before(from) {
		return -YearFraction(to, from)
	}
	years := to.Year() - from.Year()
	anchor := from.AddDate(years, 0, 0)
	for anchor.After(to) {
		years--
		anchor = from.AddDate(years, 0, 0)
	}
	next := from.AddDate(years+1, 0, 0)
	return float64(years) + float64(to.Sub(anchor))/float64(next.Sub(anchor))
}
