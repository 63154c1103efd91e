package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/simaogato/wealthflow-ldi/internal/usecase/run"
)

// reportRepository implements run.ReportSink
type reportRepository struct {
	db *DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *DB) run.ReportSink {
	return &reportRepository{db: db}
}

// SaveReport stores the headline figures of a run next to the full report document
func (r *reportRepository) SaveReport(ctx context.Context, report *run.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO run_reports (id, portfolio_id, as_of, funding_ratio, result_kind, order_count, overlay_notional, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		report.ID,
		report.PortfolioID,
		report.AsOf,
		report.Funding.Ratio,
		string(report.Optimization.Kind),
		len(report.Orders),
		report.Overlay.TotalNotional.String(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run report: %w", err)
	}

	return nil
}
