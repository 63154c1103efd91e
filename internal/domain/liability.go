package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LiabilityType represents the kind of obligation a cash-flow schedule models
type LiabilityType string

const (
	LiabilityTypeDefinedBenefit    LiabilityType = "DEFINED_BENEFIT"
	LiabilityTypeInsuranceReserve  LiabilityType = "INSURANCE_RESERVE"
	LiabilityTypeAnnuity           LiabilityType = "ANNUITY"
	LiabilityTypeEndowmentSpending LiabilityType = "ENDOWMENT_SPENDING"
)

// CashFlow is a single projected liability payment
type CashFlow struct {
	Date     time.Time
	Amount   decimal.Decimal // Always positive: the amount owed
	Currency string
}

// CurveRef identifies the discount curve a liability is valued against
type CurveRef struct {
	Name string
	AsOf time.Time
}

// Liability is an immutable snapshot of a liability schedule for one valuation run
type Liability struct {
	ID        uuid.UUID
	Name      string
	Type      LiabilityType
	CashFlows []CashFlow // Ordered by Date
	Curve     CurveRef
}

// Validate ensures the liability schedule adheres to domain rules
func (l *Liability) Validate() error {
	switch l.Type {
	case LiabilityTypeDefinedBenefit, LiabilityTypeInsuranceReserve, LiabilityTypeAnnuity, LiabilityTypeEndowmentSpending:
	default:
		return Invalid("liability.type", "unknown liability type %q", l.Type)
	}

	if len(l.CashFlows) == 0 {
		return Invalid("liability.cash_flows", "liability %s has no cash flows", l.ID)
	}

	currency := l.CashFlows[0].Currency
	for i, cf := range l.CashFlows {
		if cf.Amount.LessThanOrEqual(decimal.Zero) {
			return Invalid("liability.cash_flows", "amount at index %d must be positive", i)
		}
		if cf.Currency != currency {
			return Invalid("liability.cash_flows", "mixed currencies %s and %s", currency, cf.Currency)
		}
		if i > 0 && cf.Date.Before(l.CashFlows[i-1].Date) {
			return Invalid("liability.cash_flows", "cash flows must be ordered by date (index %d)", i)
		}
	}

	return nil
}

// Currency returns the currency shared by all cash flows
func (l *Liability) Currency() string {
	if len(l.CashFlows) == 0 {
		return ""
	}
	return l.CashFlows[0].Currency
}

// PresentValue is the discounted value of a liability schedule
type PresentValue struct {
	LiabilityID uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	AsOf        time.Time
	CashFlows   int
}

// RiskProfile holds the rate sensitivities of a liability measured by bump-and-reprice
type RiskProfile struct {
	PresentValue float64
	Duration     float64 // Effective duration in years
	Convexity    float64 // Effective convexity in years squared
	DV01         float64 // Value change for a 1bp parallel move
}
