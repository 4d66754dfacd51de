package marketdata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/internal/adapters/clickhouse"
	"github.com/selivandex/riskpulse/pkg/logger"
	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

// StoreProvider serves panels out of the ClickHouse daily-bar store
type StoreProvider struct {
	repo *clickhouse.Repository
}

// NewStoreProvider creates a provider backed by the ClickHouse repository
func NewStoreProvider(repo *clickhouse.Repository) *StoreProvider {
	return &StoreProvider{repo: repo}
}

// ReturnPanel implements Provider
func (p *StoreProvider) ReturnPanel(ctx context.Context, tickers []string, from, to time.Time) (*series.Frame, error) {
	bars, err := p.repo.GetBars(ctx, tickers, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUpstreamFetch, err)
	}

	panel := PanelFromBars(bars, tickers)
	logger.Debug("built return panel",
		zap.Int("bars", len(bars)),
		zap.Int("rows", panel.Len()),
		zap.Int("tickers", len(tickers)),
	)

	return panel, nil
}

// FactorSeries implements Provider
func (p *StoreProvider) FactorSeries(ctx context.Context, name string, from, to time.Time) (series.Series, error) {
	level, err := p.repo.GetLevelSeries(ctx, name, from, to)
	if err != nil {
		return series.Series{}, fmt.Errorf("%w: %v", models.ErrUpstreamFetch, err)
	}
	return series.New(name, level.Dates, level.Values), nil
}
