package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/selivandex/riskpulse/internal/adapters/config"
	"github.com/selivandex/riskpulse/internal/notify"
	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) ttlOf(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type fakeStore struct {
	mu     sync.Mutex
	saved  []*models.RiskMetricsSnapshot
	latest *models.RiskMetricsSnapshot
}

func (s *fakeStore) Save(_ context.Context, snapshot *models.RiskMetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snapshot)
	return nil
}

func (s *fakeStore) GetLatest(_ context.Context) (*models.RiskMetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, nil
}

type fakeProvider struct {
	panel    *series.Frame
	panelErr error
}

func (p *fakeProvider) ReturnPanel(_ context.Context, _ []string, _, _ time.Time) (*series.Frame, error) {
	if p.panelErr != nil {
		return nil, p.panelErr
	}
	return p.panel.Clone(), nil
}

func (p *fakeProvider) FactorSeries(_ context.Context, name string, _, _ time.Time) (series.Series, error) {
	if p.panel == nil || p.panel.Len() == 0 {
		return series.Series{}, fmt.Errorf("no data for %s", name)
	}
	dates := p.panel.Dates()
	seed := uint64(len(name))
	values := make([]float64, len(dates))
	for i := range values {
		seed = seed*6364136223846793005 + 1442695040888963407
		values[i] = (float64(seed>>40)/float64(1<<24) - 0.5) * 0.05
	}
	return series.New(name, dates, values), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Universe: config.UniverseConfig{
			Tickers:        []string{"SPY", "XLK", "XLF", "HYG"},
			ReferenceAsset: "XLK",
			CreditETF:      "HYG",
			CreditRatio:    "credit_ratio",
			MarketProxy:    "SPY",
			CorrBase:       "XLK",
			CorrQuote:      "XLF",
		},
		Risk: config.RiskConfig{
			PCAWindow:        20,
			SignalSmoothing:  5,
			MinDCCRows:       100,
			StressWindow:     10,
			StressMultiplier: 1.5,
			FitTimeout:       30 * time.Second,
			HistoryDays:      400,
		},
		Cache: config.CacheConfig{
			HotTTL:      30 * time.Second,
			ResultTTL:   15 * time.Minute,
			SnapshotTTL: time.Hour,
		},
	}
}

func syntheticPanel(n int) *series.Frame {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	frame := series.NewFrame(dates)
	seed := uint64(101)
	next := func() float64 {
		seed = seed*6364136223846793005 + 1442695040888963407
		return float64(seed>>40)/float64(1<<24) - 0.5
	}
	common := make([]float64, n)
	for i := range common {
		common[i] = next() * 0.01
	}
	for _, ticker := range []string{"SPY", "XLK", "XLF", "HYG"} {
		values := make([]float64, n)
		for i := range values {
			values[i] = common[i] + next()*0.008
		}
		frame.SetColumn(ticker, values)
	}
	return frame
}

func newTestEngine(provider *fakeProvider, cache *fakeCache, store *fakeStore, bus *notify.Bus) *Engine {
	if bus == nil {
		bus = notify.NewBus(8, nil)
	}
	return NewEngine(testConfig(), provider, cache, store, bus, nil)
}

func TestComputeFullRisk(t *testing.T) {
	cache := newFakeCache()
	store := &fakeStore{}
	engine := newTestEngine(&fakeProvider{panel: syntheticPanel(250)}, cache, store, nil)

	snapshot, err := engine.ComputeFullRisk(context.Background(), Options{})
	if err != nil {
		t.Fatalf("ComputeFullRisk failed: %v", err)
	}

	t.Run("snapshot is populated", func(t *testing.T) {
		if snapshot.ID == uuid.Nil {
			t.Error("snapshot ID not set")
		}
		if snapshot.Source != "risk_engine" {
			t.Errorf("unexpected source %q", snapshot.Source)
		}
		if snapshot.DataPoints == 0 {
			t.Error("data points not recorded")
		}
		if snapshot.RiskLevel == "" {
			t.Error("risk level not classified")
		}
		found := false
		for _, name := range snapshot.AvailableSignals {
			if name == "Systemic" {
				found = true
			}
		}
		if !found {
			t.Errorf("Systemic missing from signals: %v", snapshot.AvailableSignals)
		}
		if snapshot.DateRange.ActualStart.IsZero() || snapshot.DateRange.ActualEnd.IsZero() {
			t.Error("actual date range not recorded")
		}
	})

	t.Run("persisted and cached", func(t *testing.T) {
		if len(store.saved) != 1 {
			t.Fatalf("expected one persisted snapshot, got %d", len(store.saved))
		}
		if !cache.has(cacheKey(Options{})) {
			t.Error("result cache entry missing")
		}
		if !cache.has(latestSnapshotKey) {
			t.Error("latest snapshot cache entry missing")
		}
	})

	t.Run("cache tiers use their configured TTLs", func(t *testing.T) {
		if got := cache.ttlOf(cacheKey(Options{})); got != 15*time.Minute {
			t.Errorf("result cache ttl = %v, want %v", got, 15*time.Minute)
		}
		if got := cache.ttlOf(latestSnapshotKey); got != time.Hour {
			t.Errorf("latest snapshot ttl = %v, want %v", got, time.Hour)
		}
	})
}

func TestComputeFullRiskServesHotCache(t *testing.T) {
	cache := newFakeCache()
	cached := &models.RiskMetricsSnapshot{SystemicRisk: 9.9, Source: "risk_engine"}
	if err := cache.SetJSON(context.Background(), cacheKey(Options{}), cached, time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	// Provider failure proves the cached path never computes
	engine := newTestEngine(&fakeProvider{panelErr: errors.New("source down")}, cache, &fakeStore{}, nil)

	snapshot, err := engine.ComputeFullRisk(context.Background(), Options{})
	if err != nil {
		t.Fatalf("expected cached snapshot, got error: %v", err)
	}
	if snapshot.SystemicRisk != 9.9 {
		t.Errorf("got systemic risk %v, want cached 9.9", snapshot.SystemicRisk)
	}
}

func TestComputeFullRiskForceRefreshBypassesCache(t *testing.T) {
	cache := newFakeCache()
	if err := cache.SetJSON(context.Background(), cacheKey(Options{ForceRefresh: true}), &models.RiskMetricsSnapshot{SystemicRisk: 9.9}, time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	engine := newTestEngine(&fakeProvider{panel: syntheticPanel(250)}, cache, &fakeStore{}, nil)

	snapshot, err := engine.ComputeFullRisk(context.Background(), Options{ForceRefresh: true})
	if err != nil {
		t.Fatalf("ComputeFullRisk failed: %v", err)
	}
	if snapshot.SystemicRisk == 9.9 {
		t.Error("force refresh served the stale cached snapshot")
	}
}

func TestComputeFullRiskStaleFallback(t *testing.T) {
	t.Run("from long-tier cache", func(t *testing.T) {
		cache := newFakeCache()
		stale := &models.RiskMetricsSnapshot{SystemicRisk: 4.2}
		if err := cache.SetJSON(context.Background(), latestSnapshotKey, stale, time.Hour); err != nil {
			t.Fatalf("seed cache: %v", err)
		}

		engine := newTestEngine(&fakeProvider{panelErr: errors.New("source down")}, cache, &fakeStore{}, nil)

		snapshot, err := engine.ComputeFullRisk(context.Background(), Options{})
		if err != nil {
			t.Fatalf("expected stale snapshot, got error: %v", err)
		}
		if snapshot.SystemicRisk != 4.2 {
			t.Errorf("got systemic risk %v, want stale 4.2", snapshot.SystemicRisk)
		}
	})

	t.Run("from durable store", func(t *testing.T) {
		store := &fakeStore{latest: &models.RiskMetricsSnapshot{SystemicRisk: 3.3}}
		engine := newTestEngine(&fakeProvider{panelErr: errors.New("source down")}, newFakeCache(), store, nil)

		snapshot, err := engine.ComputeFullRisk(context.Background(), Options{})
		if err != nil {
			t.Fatalf("expected stored snapshot, got error: %v", err)
		}
		if snapshot.SystemicRisk != 3.3 {
			t.Errorf("got systemic risk %v, want stored 3.3", snapshot.SystemicRisk)
		}
	})
}

func TestComputeFullRiskFailsWithoutFallback(t *testing.T) {
	bus := notify.NewBus(8, nil)
	var mu sync.Mutex
	var events []notify.Event
	bus.Subscribe(func(e notify.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	engine := newTestEngine(&fakeProvider{panelErr: errors.New("source down")}, newFakeCache(), &fakeStore{}, bus)

	if _, err := engine.ComputeFullRisk(context.Background(), Options{}); err == nil {
		t.Fatal("expected error with no fallback available")
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("expected a risk_error event")
	}
	if events[len(events)-1].Kind != "risk_error" {
		t.Errorf("unexpected event kind %q", events[len(events)-1].Kind)
	}
}

func TestComputeFullRiskFatalOnEmptyFactorSignal(t *testing.T) {
	// Panel shorter than the PCA window yields an empty factor signal
	engine := newTestEngine(&fakeProvider{panel: syntheticPanel(5)}, newFakeCache(), &fakeStore{}, nil)

	_, err := engine.ComputeFullRisk(context.Background(), Options{})
	if !errors.Is(err, models.ErrFatalComputation) {
		t.Fatalf("expected ErrFatalComputation, got %v", err)
	}
}

func TestFilterByDateRange(t *testing.T) {
	frame := syntheticPanel(100)
	dates := frame.Dates()

	t.Run("days takes precedence", func(t *testing.T) {
		start := dates[0]
		got := filterByDateRange(frame, Options{Days: 10, StartDate: &start})
		if got.Len() > 11 {
			t.Errorf("expected at most 11 rows, got %d", got.Len())
		}
	})

	t.Run("explicit bounds", func(t *testing.T) {
		start, end := dates[20], dates[29]
		got := filterByDateRange(frame, Options{StartDate: &start, EndDate: &end})
		if got.Len() != 10 {
			t.Errorf("expected 10 rows, got %d", got.Len())
		}
	})

	t.Run("no options is identity", func(t *testing.T) {
		if got := filterByDateRange(frame, Options{}); got.Len() != frame.Len() {
			t.Errorf("expected %d rows, got %d", frame.Len(), got.Len())
		}
	})
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey(Options{}); got != "risk:full:0::" {
		t.Errorf("unexpected key %q", got)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	got := cacheKey(Options{Days: 30, StartDate: &start, EndDate: &end})
	if got != "risk:full:30:2024-01-01:2024-06-01" {
		t.Errorf("unexpected key %q", got)
	}
}
