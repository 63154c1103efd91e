package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLiability_Validate(t *testing.T) {
	d := func(year int) time.Time { return time.Date(year, 6, 30, 0, 0, 0, 0, time.UTC) }
	flow := func(year int, amount int64, currency string) CashFlow {
		return CashFlow{Date: d(year), Amount: decimal.NewFromInt(amount), Currency: currency}
	}

	tests := []struct {
		name    string
		typ     LiabilityType
		flows   []CashFlow
		wantErr bool
		errMsg  string
	}{
		{
			name:  "Valid pension schedule",
			typ:   LiabilityTypeDefinedBenefit,
			flows: []CashFlow{flow(2027, 5_000_000, "USD"), flow(2028, 5_100_000, "USD")},
		},
		{
			name:  "Same-day flows are allowed",
			typ:   LiabilityTypeAnnuity,
			flows: []CashFlow{flow(2027, 1, "USD"), flow(2027, 2, "USD")},
		},
		{
			name:    "Unknown type",
			typ:     "LOTTERY",
			flows:   []CashFlow{flow(2027, 1, "USD")},
			wantErr: true,
			errMsg:  "unknown liability type",
		},
		{
			name:    "No cash flows",
			typ:     LiabilityTypeInsuranceReserve,
			wantErr: true,
			errMsg:  "has no cash flows",
		},
		{
			name:    "Zero amount",
			typ:     LiabilityTypeDefinedBenefit,
			flows:   []CashFlow{flow(2027, 0, "USD")},
			wantErr: true,
			errMsg:  "must be positive",
		},
		{
			name:    "Mixed currencies",
			typ:     LiabilityTypeDefinedBenefit,
			flows:   []CashFlow{flow(2027, 1, "USD"), flow(2028, 1, "EUR")},
			wantErr: true,
			errMsg:  "mixed currencies",
		},
		{
			name:    "Out of order",
			typ:     LiabilityTypeEndowmentSpending,
			flows:   []CashFlow{flow(2028, 1, "USD"), flow(2027, 1, "USD")},
			wantErr: true,
			errMsg:  "ordered by date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Liability{ID: uuid.New(), Type: tt.typ, CashFlows: tt.flows, Curve: CurveRef{Name: "USD-SOFR"}}
			err := l.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Equal(t, KindInput, KindOf(err))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "USD", l.Currency())
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{name: "Validation", err: Invalid("curve.name", "cannot be empty"), expected: KindInput},
		{name: "Curve gap", err: &CurveGapError{Curve: "USD-SOFR"}, expected: KindInput},
		{name: "Degenerate liability", err: &DegenerateLiabilityError{}, expected: KindInput},
		{name: "Participation cap", err: &ParticipationCapExceededError{Instrument: "EQUITY"}, expected: KindInput},
		{name: "Infeasible", err: &InfeasibleError{Violations: []string{"budget"}}, expected: KindInfeasible},
		{name: "Unhedgeable", err: &UnhedgeableGapError{Reason: "no swaps"}, expected: KindInfeasible},
		{name: "Non-converged", err: &NonConvergedError{Reason: StopDeadline}, expected: KindNumerical},
		{name: "Wrapped", err: fmt.Errorf("optimize PENSION-A: %w", &InfeasibleError{}), expected: KindInfeasible},
		{name: "Unclassified", err: errors.New("boom"), expected: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}
