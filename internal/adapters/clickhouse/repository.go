package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/pkg/logger"
	"github.com/selivandex/riskpulse/pkg/models"
)

// Repository reads and writes daily market history in ClickHouse
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the market history tables if they do not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS daily_bars (
			date Date,
			ticker LowCardinality(String),
			close Decimal64(8)
		) ENGINE = ReplacingMergeTree()
		ORDER BY (ticker, date)`,
		`CREATE TABLE IF NOT EXISTS daily_factors (
			date Date,
			name LowCardinality(String),
			value Float64
		) ENGINE = ReplacingMergeTree()
		ORDER BY (name, date)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure clickhouse schema: %w", err)
		}
	}
	logger.Debug("clickhouse schema ensured")
	return nil
}

// SaveBars stores daily close bars
func (r *Repository) SaveBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO daily_bars (date, ticker, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err = stmt.ExecContext(ctx,
			bar.Date,
			bar.Ticker,
			bar.Close.InexactFloat64(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved daily bars to ClickHouse",
		zap.Int("count", len(bars)),
	)

	return nil
}

// GetBars returns daily bars for the given tickers ordered by date
func (r *Repository) GetBars(ctx context.Context, tickers []string, from, to time.Time) ([]models.Bar, error) {
	query, args, err := sqlx.In(`
		SELECT date, ticker, close
		FROM daily_bars
		WHERE ticker IN (?) AND date >= ? AND date <= ?
		ORDER BY date ASC, ticker ASC
	`, tickers, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows := []struct {
		Date   time.Time `db:"date"`
		Ticker string    `db:"ticker"`
		Close  float64   `db:"close"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}

	bars := make([]models.Bar, len(rows))
	for i, row := range rows {
		bars[i] = models.Bar{
			Date:   row.Date,
			Ticker: row.Ticker,
			Close:  models.NewDecimal(row.Close),
		}
	}

	return bars, nil
}

// GetLevelSeries returns one named non-price series (spread changes,
// index changes, macro factors) ordered by date
func (r *Repository) GetLevelSeries(ctx context.Context, name string, from, to time.Time) (*models.LevelSeries, error) {
	rows := []struct {
		Date  time.Time `db:"date"`
		Value float64   `db:"value"`
	}{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT date, value
		FROM daily_factors
		WHERE name = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, name, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query factor series %s: %w", name, err)
	}

	out := &models.LevelSeries{Name: name}
	for _, row := range rows {
		out.Dates = append(out.Dates, row.Date)
		out.Values = append(out.Values, row.Value)
	}

	return out, nil
}
