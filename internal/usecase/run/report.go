package run

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/optimizer"
)

// Report is the full output of one portfolio run
// It is only built once every stage has completed
type Report struct {
	ID            uuid.UUID                `json:"id"`
	PortfolioID   string                   `json:"portfolio_id"`
	AsOf          time.Time                `json:"as_of"`
	Funding       *domain.FundingRatio     `json:"funding"`
	Liability     *domain.RiskProfile      `json:"liability_risk"`
	Optimization  *optimizer.Result        `json:"optimization"`
	PostRebalance *domain.FundingRatio     `json:"post_rebalance"`
	Orders        []*domain.ExecutionOrder `json:"orders"`
	Overlay       *domain.OverlayStrategy  `json:"overlay"`
	Elapsed       time.Duration            `json:"elapsed"`
}

// Approximate reports whether the optimizer stopped before meeting its tolerances
func (r *Report) Approximate() bool {
	return r.Optimization != nil && r.Optimization.Kind == optimizer.ResultApproximate
}

// TotalCost sums the expected transaction cost of every scheduled order
func (r *Report) TotalCost() float64 {
	total := 0.0
	for _, o := range r.Orders {
		total += o.Cost.Total.InexactFloat64()
	}
	return total
}

// Outcome is the result of one portfolio in a batch run: a report or the error that stopped it
type Outcome struct {
	PortfolioID string  `json:"portfolio_id"`
	Report      *Report `json:"report,omitempty"`
	Err         error   `json:"-"`
	Error       string  `json:"error,omitempty"`
	Kind        string  `json:"kind,omitempty"`
}

// ReportSink stores finished reports
type ReportSink interface {
	SaveReport(ctx context.Context, report *Report) error
}

// Recorder receives run telemetry
type Recorder interface {
	ObserveStage(stage string, elapsed time.Duration)
	ObserveRun(portfolioID string, elapsed time.Duration, err error)
	ObserveApproximate(portfolioID string, reason domain.StopReason)
	ObserveFunding(portfolioID string, ratio float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) ObserveRun(string, time.Duration, error) {}
func (nopRecorder) ObserveApproximate(string, domain.StopReason) {}
func (nopRecorder) ObserveFunding(string, float64) {}
