package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// holdingRepository implements domain.PositionProvider
type holdingRepository struct {
	db *DB
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *DB) domain.PositionProvider {
	return &holdingRepository{db: db}
}

// GetHoldings returns the latest market value per asset on or before asOf
func (r *holdingRepository) GetHoldings(ctx context.Context, portfolioID string, asOf time.Time) (map[string]decimal.Decimal, error) {
	query := `
		SELECT DISTINCT ON (asset_id) asset_id, market_value
		FROM holdings
		WHERE portfolio_id = $1 AND as_of <= $2
		ORDER BY asset_id, as_of DESC
	`

	rows, err := r.db.QueryContext(ctx, query, portfolioID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := make(map[string]decimal.Decimal)
	for rows.Next() {
		var assetID, marketValueStr string
		if err := rows.Scan(&assetID, &marketValueStr); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}

		// Parse market_value (NUMERIC)
		marketValue, err := decimal.NewFromString(marketValueStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse market_value of %s: %w", assetID, err)
		}
		holdings[assetID] = marketValue
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}

	return holdings, nil
}

// AddHolding records a market value for an asset as of a date
func AddHolding(ctx context.Context, db *DB, portfolioID, assetID string, asOf time.Time, marketValue decimal.Decimal) error {
	query := `
		INSERT INTO holdings (portfolio_id, asset_id, as_of, market_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (portfolio_id, asset_id, as_of) DO UPDATE SET market_value = EXCLUDED.market_value
	`

	if _, err := db.ExecContext(ctx, query, portfolioID, assetID, asOf, marketValue.String()); err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}
