package domain

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// StrategyBucket groups asset classes that share a risk allowance
type StrategyBucket string

const (
	BucketRates        StrategyBucket = "RATES"
	BucketCredit       StrategyBucket = "CREDIT"
	BucketEquity       StrategyBucket = "EQUITY"
	BucketAlternatives StrategyBucket = "ALTERNATIVES"
)

// RiskBudget maps strategy buckets to a volatility allowance under a total ceiling
// Construct it with NewRiskBudget; the zero value allows no risk at all
type RiskBudget struct {
	allocations map[StrategyBucket]float64
	ceiling     float64
}

// NewRiskBudget validates and builds a risk budget
// CRITICAL: Rejects configurations whose allocations sum above the ceiling
func NewRiskBudget(allocations map[StrategyBucket]float64, ceiling float64) (*RiskBudget, error) {
	if len(allocations) == 0 {
		return nil, Invalid("risk_budget.allocations", "at least one bucket is required")
	}
	if !(ceiling > 0) || math.IsInf(ceiling, 0) {
		return nil, Invalid("risk_budget.ceiling", "must be a positive finite number, got %v", ceiling)
	}

	// Summed in decimal so that 0.1+0.2 against a 0.3 ceiling is not rejected by float noise
	sum := decimal.Zero
	copied := make(map[StrategyBucket]float64, len(allocations))
	for bucket, allowance := range allocations {
		if bucket == "" {
			return nil, Invalid("risk_budget.allocations", "bucket name cannot be empty")
		}
		if allowance < 0 || math.IsNaN(allowance) || math.IsInf(allowance, 0) {
			return nil, Invalid("risk_budget.allocations", "allowance for %s must be a finite non-negative number", bucket)
		}
		sum = sum.Add(decimal.NewFromFloat(allowance))
		copied[bucket] = allowance
	}

	if sum.GreaterThan(decimal.NewFromFloat(ceiling)) {
		return nil, Invalid("risk_budget.allocations", "allocations sum to %s, above the ceiling %v", sum.String(), ceiling)
	}

	return &RiskBudget{allocations: copied, ceiling: ceiling}, nil
}

// Allowance returns the allocation for a bucket and whether the bucket is budgeted
func (b *RiskBudget) Allowance(bucket StrategyBucket) (float64, bool) {
	a, ok := b.allocations[bucket]
	return a, ok
}

// Ceiling returns the total-risk ceiling
func (b *RiskBudget) Ceiling() float64 {
	return b.ceiling
}

// Buckets returns the budgeted buckets in a stable order
func (b *RiskBudget) Buckets() []StrategyBucket {
	out := make([]StrategyBucket, 0, len(b.allocations))
	for bucket := range b.allocations {
		out = append(out, bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Scaled returns a new budget with every allowance and the ceiling multiplied by f
func (b *RiskBudget) Scaled(f float64) (*RiskBudget, error) {
	allocations := make(map[StrategyBucket]float64, len(b.allocations))
	for bucket, a := range b.allocations {
		allocations[bucket] = a * f
	}
	return NewRiskBudget(allocations, b.ceiling*f)
}
