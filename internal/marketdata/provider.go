package marketdata

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

// Provider supplies the return panel and auxiliary factor series the risk
// pipeline consumes. Implementations may fail on network errors; callers
// are expected to tolerate that and fall back to cached data.
type Provider interface {
	// ReturnPanel returns a cleaned frame of daily percentage returns,
	// one column per ticker, strictly increasing unique dates, no NaN/Inf.
	ReturnPanel(ctx context.Context, tickers []string, from, to time.Time) (*series.Frame, error)

	// FactorSeries returns one named auxiliary series (spread changes,
	// macro factors, credit ratio levels) aligned by date.
	FactorSeries(ctx context.Context, name string, from, to time.Time) (series.Series, error)
}

// PanelFromBars pivots raw daily bars into a cleaned return panel.
// Closes are forward-filled per ticker across the union of dates before
// differencing, so a ticker's missing day carries a zero return rather
// than a hole; leading rows with any remaining gap are dropped.
func PanelFromBars(bars []models.Bar, tickers []string) *series.Frame {
	closesByTicker := make(map[string]map[int64]float64, len(tickers))
	dateSet := make(map[int64]time.Time)
	for _, bar := range bars {
		m, ok := closesByTicker[bar.Ticker]
		if !ok {
			m = make(map[int64]float64)
			closesByTicker[bar.Ticker] = m
		}
		m[bar.Date.Unix()] = bar.Close.InexactFloat64()
		dateSet[bar.Date.Unix()] = bar.Date
	}

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	closes := series.NewFrame(dates)
	for _, ticker := range tickers {
		values := make([]float64, len(dates))
		for i, d := range dates {
			if v, ok := closesByTicker[ticker][d.Unix()]; ok && v > 0 {
				values[i] = v
			} else {
				values[i] = math.NaN()
			}
		}
		filled := series.New(ticker, dates, values).ForwardFill()
		closes.SetColumn(ticker, filled.Values)
	}

	returns := series.NewFrame(dates)
	for _, ticker := range tickers {
		returns.SetColumn(ticker, closes.Column(ticker).PctChange().Values)
	}

	return returns.DropNARows()
}
