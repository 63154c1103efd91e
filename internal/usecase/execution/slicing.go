package execution

import (
	"errors"

	"github.com/shopspring/decimal"
)

// minimumIncrement is the rounding grid when an instrument has no lot size
var minimumIncrement = decimal.New(1, -2)

// allocateLots splits total across slices in proportion to weights on the lot grid
// Logic:
//  1. Cumulative target C_k = total * (w_0 + ... + w_k) / Sum(w)
//  2. Round every cumulative target to the nearest lot
//  3. Slice k gets round(C_k) - round(C_k-1), so rounding never accumulates
//  4. The final slice takes the leftover, which differs from its share by less than one lot
//
// Safety: Ensures the slice quantities sum to total exactly (no penny lost)
func allocateLots(total decimal.Decimal, weights []float64, lot decimal.Decimal) ([]decimal.Decimal, error) {
	if len(weights) == 0 {
		return nil, errors.New("weights cannot be empty")
	}
	if !lot.IsPositive() {
		lot = minimumIncrement
	}

	sumWeights := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, errors.New("weights cannot be negative")
		}
		sumWeights += w
	}
	if sumWeights <= 0 {
		return nil, errors.New("weights must not all be zero")
	}

	quantities := make([]decimal.Decimal, len(weights))
	allocated := decimal.Zero
	cumWeight := 0.0
	for k := 0; k < len(weights)-1; k++ {
		cumWeight += weights[k]
		target := total.Mul(decimal.NewFromFloat(cumWeight / sumWeights))
		rounded := roundToLot(target, lot)
		if rounded.GreaterThan(total) {
			rounded = total
		}
		if rounded.LessThan(allocated) {
			rounded = allocated
		}
		quantities[k] = rounded.Sub(allocated)
		allocated = rounded
	}
	quantities[len(weights)-1] = total.Sub(allocated)

	// Safety check: Ensure the slices add back to the parent notional
	sum := decimal.Zero
	for _, q := range quantities {
		sum = sum.Add(q)
	}
	if !sum.Equal(total) {
		return nil, errors.New("slice quantities do not sum to the parent notional")
	}
	return quantities, nil
}

func roundToLot(x, lot decimal.Decimal) decimal.Decimal {
	return x.Div(lot).Round(0).Mul(lot)
}
