package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// liabilityRepository implements domain.LiabilityProvider
type liabilityRepository struct {
	db *DB
}

// NewLiabilityRepository creates a new liability repository
func NewLiabilityRepository(db *DB) domain.LiabilityProvider {
	return &liabilityRepository{db: db}
}

// GetLiability retrieves the portfolio's liability with the cash flows still due after asOf
func (r *liabilityRepository) GetLiability(ctx context.Context, portfolioID string, asOf time.Time) (*domain.Liability, error) {
	query := `
		SELECT id, name, liability_type, curve_name
		FROM liabilities
		WHERE portfolio_id = $1
	`

	var liability domain.Liability
	var name sql.NullString

	err := r.db.QueryRowContext(ctx, query, portfolioID).Scan(
		&liability.ID,
		&name,
		&liability.Type,
		&liability.Curve.Name,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("liability not found for portfolio %s: %w", portfolioID, err)
		}
		return nil, fmt.Errorf("failed to get liability: %w", err)
	}
	if name.Valid {
		liability.Name = name.String
	}
	liability.Curve.AsOf = asOf

	flows, err := r.cashFlows(ctx, liability.ID, asOf)
	if err != nil {
		return nil, err
	}
	liability.CashFlows = flows

	return &liability, nil
}

func (r *liabilityRepository) cashFlows(ctx context.Context, liabilityID uuid.UUID, asOf time.Time) ([]domain.CashFlow, error) {
	query := `
		SELECT pay_date, amount, currency
		FROM liability_cash_flows
		WHERE liability_id = $1 AND pay_date > $2
		ORDER BY pay_date
	`

	rows, err := r.db.QueryContext(ctx, query, liabilityID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.CashFlow
	for rows.Next() {
		var cf domain.CashFlow
		var amountStr string
		if err := rows.Scan(&cf.Date, &amountStr, &cf.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan cash flow: %w", err)
		}

		// Parse amount (NUMERIC)
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		cf.Amount = amount
		flows = append(flows, cf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cash flows: %w", err)
	}

	return flows, nil
}

// CreateLiability stores a liability and its cash flows in one database transaction
func CreateLiability(ctx context.Context, db *DB, portfolioID string, liability *domain.Liability) error {
	if err := liability.Validate(); err != nil {
		return err
	}

	dbTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	insertLiability := `
		INSERT INTO liabilities (id, portfolio_id, name, liability_type, curve_name)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = dbTx.ExecContext(ctx, insertLiability,
		liability.ID,
		portfolioID,
		liability.Name,
		string(liability.Type),
		liability.Curve.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert liability: %w", err)
	}

	insertFlow := `
		INSERT INTO liability_cash_flows (liability_id, pay_date, amount, currency)
		VALUES ($1, $2, $3, $4)
	`
	for _, cf := range liability.CashFlows {
		if _, err := dbTx.ExecContext(ctx, insertFlow, liability.ID, cf.Date, cf.Amount.String(), cf.Currency); err != nil {
			return fmt.Errorf("failed to insert cash flow: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
