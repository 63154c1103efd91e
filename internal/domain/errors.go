package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a failure so callers can tell bad input from an unsolvable
// problem from a solver that could not finish
type ErrorKind string

const (
	KindInput      ErrorKind = "INPUT"
	KindInfeasible ErrorKind = "INFEASIBLE"
	KindNumerical  ErrorKind = "NUMERICAL"
	KindUnknown    ErrorKind = "UNKNOWN"
)

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) ErrorKind {
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// ValidationError reports malformed input detected before any computation starts
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Kind() ErrorKind { return KindInput }

// Invalid is a shorthand for building a ValidationError
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CurveGapError reports a cash flow whose maturity falls outside the discount curve's domain
type CurveGapError struct {
	Curve    string
	Date     time.Time
	Maturity float64
	MinTenor float64
	MaxTenor float64
}

func (e *CurveGapError) Error() string {
	return fmt.Sprintf("curve %q has no rate for maturity %.4fy (%s): domain is [%.4fy, %.4fy]",
		e.Curve, e.Maturity, e.Date.Format(time.DateOnly), e.MinTenor, e.MaxTenor)
}

func (e *CurveGapError) Kind() ErrorKind { return KindInput }

// DegenerateLiabilityError reports a liability present value that cannot be used as a denominator
type DegenerateLiabilityError struct {
	PresentValue decimal.Decimal
}

func (e *DegenerateLiabilityError) Error() string {
	return fmt.Sprintf("liability present value must be positive, got %s", e.PresentValue.String())
}

func (e *DegenerateLiabilityError) Kind() ErrorKind { return KindInput }

// InfeasibleError reports that no weight vector satisfies all constraints at once
type InfeasibleError struct {
	Violations []string
}

func (e *InfeasibleError) Error() string {
	return "allocation problem is infeasible: " + strings.Join(e.Violations, "; ")
}

func (e *InfeasibleError) Kind() ErrorKind { return KindInfeasible }

// StopReason says why a solve stopped before meeting its tolerance
type StopReason string

const (
	StopIterationLimit StopReason = "ITERATION_LIMIT"
	StopDeadline       StopReason = "DEADLINE"
	StopSolverStatus   StopReason = "SOLVER_STATUS"
)

// NonConvergedError describes an approximate solve. It travels inside an approximate
// optimizer result and is returned as an error only when no feasible point exists.
type NonConvergedError struct {
	Reason       StopReason
	Iterations   int
	MaxViolation float64
	Stationarity float64
	Detail       string
}

func (e *NonConvergedError) Error() string {
	msg := fmt.Sprintf("solver stopped before convergence (%s) after %d iterations: max violation %.3g, stationarity %.3g",
		e.Reason, e.Iterations, e.MaxViolation, e.Stationarity)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *NonConvergedError) Kind() ErrorKind { return KindNumerical }

// ParticipationCapExceededError rejects a schedule that would trade too large a share of market volume
type ParticipationCapExceededError struct {
	Instrument    string
	SliceIndex    int
	Participation float64
	Cap           float64
}

func (e *ParticipationCapExceededError) Error() string {
	return fmt.Sprintf("instrument %s: slice %d participation %.2f%% exceeds cap %.2f%%",
		e.Instrument, e.SliceIndex, e.Participation*100, e.Cap*100)
}

func (e *ParticipationCapExceededError) Kind() ErrorKind { return KindInput }

// UnhedgeableGapError reports a gap that the available overlay instruments cannot close
type UnhedgeableGapError struct {
	DurationGap  float64
	ConvexityGap float64
	EquityGap    float64
	Reason       string
}

func (e *UnhedgeableGapError) Error() string {
	return fmt.Sprintf("cannot hedge gap (duration %.4g, convexity %.4g, equity %.4g): %s",
		e.DurationGap, e.ConvexityGap, e.EquityGap, e.Reason)
}

func (e *UnhedgeableGapError) Kind() ErrorKind { return KindInfeasible }
