package marketdata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	redisAdapter "github.com/selivandex/riskpulse/internal/adapters/redis"
	"github.com/selivandex/riskpulse/pkg/logger"
	"github.com/selivandex/riskpulse/pkg/series"
)

// panelPayload is the cache representation of a cleaned panel
type panelPayload struct {
	Dates   []time.Time          `json:"dates"`
	Columns map[string][]float64 `json:"columns"`
	Order   []string             `json:"order"`
}

func encodePanel(f *series.Frame) panelPayload {
	payload := panelPayload{
		Dates:   f.Dates(),
		Columns: make(map[string][]float64, len(f.Columns())),
		Order:   f.Columns(),
	}
	for _, name := range f.Columns() {
		payload.Columns[name] = f.Column(name).Values
	}
	return payload
}

func decodePanel(payload panelPayload) *series.Frame {
	f := series.NewFrame(payload.Dates)
	for _, name := range payload.Order {
		f.SetColumn(name, payload.Columns[name])
	}
	return f
}

// CachedProvider caches panels in Redis: a short hot tier absorbs rapid
// polling, and a long-lived stale tier is served when the store is down
type CachedProvider struct {
	inner    Provider
	cache    *redisAdapter.Client
	hotTTL   time.Duration
	staleTTL time.Duration
}

// NewCachedProvider wraps a provider with the two cache tiers
func NewCachedProvider(inner Provider, cache *redisAdapter.Client, hotTTL, staleTTL time.Duration) *CachedProvider {
	return &CachedProvider{
		inner:    inner,
		cache:    cache,
		hotTTL:   hotTTL,
		staleTTL: staleTTL,
	}
}

func panelKey(tickers []string, from, to time.Time) string {
	key := "marketdata:panel"
	for _, t := range tickers {
		key += ":" + t
	}
	return fmt.Sprintf("%s:%d:%d", key, from.Unix(), to.Unix())
}

// ReturnPanel implements Provider
func (p *CachedProvider) ReturnPanel(ctx context.Context, tickers []string, from, to time.Time) (*series.Frame, error) {
	key := panelKey(tickers, from, to)

	var payload panelPayload
	if found, err := p.cache.GetJSON(ctx, key, &payload); err == nil && found {
		return decodePanel(payload), nil
	}

	panel, err := p.inner.ReturnPanel(ctx, tickers, from, to)
	if err != nil {
		// Upstream down: serve the stale copy when one survives
		if found, cacheErr := p.cache.GetJSON(ctx, key+":stale", &payload); cacheErr == nil && found {
			logger.Warn("serving stale return panel after fetch failure",
				zap.Error(err),
			)
			return decodePanel(payload), nil
		}
		return nil, err
	}

	encoded := encodePanel(panel)
	if err := p.cache.SetJSON(ctx, key, encoded, p.hotTTL); err != nil {
		logger.Warn("failed to cache return panel", zap.Error(err))
	}
	if err := p.cache.SetJSON(ctx, key+":stale", encoded, p.staleTTL); err != nil {
		logger.Warn("failed to cache stale return panel", zap.Error(err))
	}

	return panel, nil
}

// FactorSeries implements Provider
func (p *CachedProvider) FactorSeries(ctx context.Context, name string, from, to time.Time) (series.Series, error) {
	key := fmt.Sprintf("marketdata:factor:%s:%d:%d", name, from.Unix(), to.Unix())

	var payload struct {
		Dates  []time.Time `json:"dates"`
		Values []float64   `json:"values"`
	}
	if found, err := p.cache.GetJSON(ctx, key, &payload); err == nil && found {
		return series.New(name, payload.Dates, payload.Values), nil
	}

	s, err := p.inner.FactorSeries(ctx, name, from, to)
	if err != nil {
		return series.Series{}, err
	}

	payload.Dates = s.Dates
	payload.Values = s.Values
	if err := p.cache.SetJSON(ctx, key, payload, p.hotTTL); err != nil {
		logger.Warn("failed to cache factor series",
			zap.String("name", name),
			zap.Error(err),
		)
	}

	return s, nil
}
