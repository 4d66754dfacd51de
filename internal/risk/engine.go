package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/selivandex/riskpulse/internal/adapters/config"
	"github.com/selivandex/riskpulse/internal/aggregator"
	"github.com/selivandex/riskpulse/internal/credit"
	"github.com/selivandex/riskpulse/internal/dcc"
	"github.com/selivandex/riskpulse/internal/factors"
	"github.com/selivandex/riskpulse/internal/marketdata"
	"github.com/selivandex/riskpulse/internal/notify"
	"github.com/selivandex/riskpulse/internal/tailrisk"
	"github.com/selivandex/riskpulse/internal/volatility"
	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

// latestSnapshotKey is the long-tier cache entry served when a fresh
// computation fails
const latestSnapshotKey = "risk:snapshot:latest"

// CacheStore is the key/value tier the engine caches snapshots in
type CacheStore interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SnapshotStore is the append-only durable store for computed snapshots
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *models.RiskMetricsSnapshot) error
	GetLatest(ctx context.Context) (*models.RiskMetricsSnapshot, error)
}

// Options select the computation window. Days takes precedence over the
// explicit date bounds.
type Options struct {
	ForceRefresh bool
	Days         int
	StartDate    *time.Time
	EndDate      *time.Time
}

// Engine sequences the full risk pipeline: market data, factor
// decomposition, credit extraction, signal aggregation, correlation
// modelling, tail estimation, regime classification, persistence.
type Engine struct {
	cfg      *config.Config
	provider marketdata.Provider
	cache    CacheStore
	store    SnapshotStore
	bus      *notify.Bus
	log      *zap.Logger

	decomposer *factors.Decomposer
	extractor  *credit.Extractor
	forecaster *volatility.Forecaster
	aggregator *aggregator.Aggregator
	estimator  *tailrisk.Estimator

	dccMu    sync.Mutex
	dccModel *dcc.Model

	flight singleflight.Group
}

// NewEngine wires the pipeline stages from configuration
func NewEngine(cfg *config.Config, provider marketdata.Provider, cache CacheStore, store SnapshotStore, bus *notify.Bus, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	forecaster := volatility.NewForecaster(log.Named("har"))
	return &Engine{
		cfg:      cfg,
		provider: provider,
		cache:    cache,
		store:    store,
		bus:      bus,
		log:      log,
		decomposer: factors.NewDecomposer(
			cfg.Risk.PCAWindow, 0, cfg.Risk.SignalSmoothing,
			cfg.Universe.ReferenceAsset, log.Named("pca"),
		),
		extractor: credit.NewExtractor(
			cfg.Universe.CreditETF, 5, 20, log.Named("credit"),
		),
		forecaster: forecaster,
		aggregator: aggregator.New(aggregator.Config{
			CreditETF:   cfg.Universe.CreditETF,
			CorrBase:    cfg.Universe.CorrBase,
			CorrQuote:   cfg.Universe.CorrQuote,
			MarketProxy: cfg.Universe.MarketProxy,
		}, forecaster, log.Named("aggregator")),
		estimator: tailrisk.NewEstimator(tailrisk.Config{
			Target:       aggregator.ColSystemic,
			CorrColumn:   aggregator.ColDCCCorr,
			VolColumn:    aggregator.ColHARExcessVolZ,
			VIXColumn:    aggregator.ColVIXChange,
			SpreadColumn: aggregator.ColCreditSpreadChange,
		}, log.Named("tailrisk")),
		dccModel: dcc.NewModel(
			cfg.Risk.MinDCCRows, cfg.Risk.StressWindow, cfg.Risk.StressMultiplier, log.Named("dcc"),
		),
	}
}

// ComputeFullRisk is the single public entry point. Identical option sets
// within the hot-TTL window return the cached snapshot; concurrent callers
// for the same key share one in-flight computation. On computation failure
// the last good long-tier snapshot is served before giving up.
func (e *Engine) ComputeFullRisk(ctx context.Context, opts Options) (*models.RiskMetricsSnapshot, error) {
	key := cacheKey(opts)

	if !opts.ForceRefresh {
		var cached models.RiskMetricsSnapshot
		found, err := e.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			e.log.Warn("snapshot cache read failed", zap.Error(err))
		} else if found {
			e.log.Debug("serving cached snapshot", zap.String("key", key))
			return &cached, nil
		}
	}

	result, err, shared := e.flight.Do(key, func() (interface{}, error) {
		return e.compute(ctx, opts, key)
	})
	if err != nil {
		e.log.Error("risk computation failed", zap.String("key", key), zap.Error(err))
		if stale := e.staleSnapshot(ctx); stale != nil {
			e.log.Warn("serving stale snapshot after computation failure")
			return stale, nil
		}
		e.bus.Publish(notify.Event{
			Kind:    "risk_error",
			Message: "full risk computation failed",
			Err:     err.Error(),
		})
		return nil, err
	}
	if shared {
		e.log.Debug("joined in-flight computation", zap.String("key", key))
	}
	return result.(*models.RiskMetricsSnapshot), nil
}

// staleSnapshot tries the long-tier cache, then durable storage
func (e *Engine) staleSnapshot(ctx context.Context) *models.RiskMetricsSnapshot {
	var cached models.RiskMetricsSnapshot
	if found, err := e.cache.GetJSON(ctx, latestSnapshotKey, &cached); err == nil && found {
		return &cached
	}
	if e.store == nil {
		return nil
	}
	stored, err := e.store.GetLatest(ctx)
	if err != nil {
		e.log.Warn("stale snapshot lookup failed", zap.Error(err))
		return nil
	}
	return stored
}

func cacheKey(opts Options) string {
	start, end := "", ""
	if opts.StartDate != nil {
		start = opts.StartDate.Format("2006-01-02")
	}
	if opts.EndDate != nil {
		end = opts.EndDate.Format("2006-01-02")
	}
	return fmt.Sprintf("risk:full:%d:%s:%s", opts.Days, start, end)
}

func (e *Engine) compute(ctx context.Context, opts Options, key string) (*models.RiskMetricsSnapshot, error) {
	started := time.Now().UTC()
	e.log.Info("starting full risk computation",
		zap.Int("days", opts.Days),
		zap.Bool("force_refresh", opts.ForceRefresh),
	)

	market, err := e.fetchMarketFrame(ctx)
	if err != nil {
		return nil, err
	}

	base, pcaResult, creditResult, err := e.buildBaseFrame(ctx, market)
	if err != nil {
		return nil, err
	}

	aggregated := e.aggregator.Aggregate(base, market)
	aggregated = filterByDateRange(aggregated, opts)
	if aggregated.Len() == 0 {
		return nil, fmt.Errorf("%w: no rows in requested date range", models.ErrFatalComputation)
	}

	dccMetrics := e.computeDCCMetrics(ctx, aggregated, market)

	quantileSummary := e.computeQuantileSummary(aggregated)

	snapshot := e.assembleSnapshot(aggregated, pcaResult, creditResult, dccMetrics, quantileSummary, opts)
	snapshot.ComputationDuration = time.Since(started).Seconds()

	e.persistAndCache(ctx, key, snapshot)

	e.log.Info("full risk computation completed",
		zap.Int("signals", len(snapshot.AvailableSignals)),
		zap.String("risk_level", string(snapshot.RiskLevel)),
		zap.Float64("duration_seconds", snapshot.ComputationDuration),
	)
	return snapshot, nil
}

// fetchMarketFrame fans out the independent data fetches and joins them
// into one panel. Factor-series branches fail soft; the return panel is
// required.
func (e *Engine) fetchMarketFrame(ctx context.Context) (*series.Frame, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -e.cfg.Risk.HistoryDays)

	factorNames := []string{
		e.cfg.Universe.CreditRatio,
		aggregator.ColCreditSpreadChange,
		aggregator.ColIGSpreadChange,
		aggregator.ColVIXChange,
		aggregator.ColOilReturn,
		aggregator.ColFXChange,
	}

	var wg sync.WaitGroup
	var panel *series.Frame
	var panelErr error
	factorSeries := make([]series.Series, len(factorNames))
	factorErrs := make([]error, len(factorNames))

	wg.Add(1)
	go func() {
		defer wg.Done()
		panel, panelErr = e.provider.ReturnPanel(ctx, e.cfg.Universe.Tickers, from, to)
	}()
	for i, name := range factorNames {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			factorSeries[i], factorErrs[i] = e.provider.FactorSeries(ctx, name, from, to)
		}(i, name)
	}
	wg.Wait()

	if panelErr != nil {
		return nil, fmt.Errorf("return panel unavailable: %w", panelErr)
	}

	market := panel.Clone()
	for i, name := range factorNames {
		if factorErrs[i] != nil {
			e.log.Warn("factor series unavailable",
				zap.String("name", name),
				zap.Error(factorErrs[i]),
			)
			continue
		}
		market.MergeOuter(name, factorSeries[i])
	}
	return market, nil
}

// buildBaseFrame runs the factor decomposition and credit extraction
// concurrently, then aligns them into the Systemic/PCA/Credit table.
// A failed decomposition with no usable signal is fatal; a missing credit
// overlap degrades to a PCA-only series with zero credit.
func (e *Engine) buildBaseFrame(ctx context.Context, market *series.Frame) (*series.Frame, *factors.Result, *credit.Result, error) {
	panel := restrictToTickers(market, e.cfg.Universe.Tickers)

	var wg sync.WaitGroup
	var pcaResult *factors.Result
	var pcaErr error
	var creditResult credit.Result

	wg.Add(1)
	go func() {
		defer wg.Done()
		pcaResult, pcaErr = e.decomposer.Decompose(panel)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		ratio := series.Series{}
		if market.HasColumn(e.cfg.Universe.CreditRatio) {
			ratio = market.Column(e.cfg.Universe.CreditRatio)
		}
		creditResult = e.extractor.Extract(panel, ratio, panel.Dates())
	}()
	wg.Wait()

	if pcaErr != nil {
		e.log.Warn("factor decomposition failed", zap.Error(pcaErr))
	}

	var pcaSignal series.Series
	if pcaResult != nil {
		pcaSignal = pcaResult.Signal.DropNA()
	}
	if pcaSignal.Len() == 0 {
		e.bus.Publish(notify.Event{
			Kind:    "risk_error",
			Message: "base systemic series is empty",
		})
		return nil, nil, nil, fmt.Errorf("%w: factor signal empty", models.ErrFatalComputation)
	}

	creditSignal := creditResult.Series.DropNA()
	alignedPCA, alignedCredit := series.AlignIntersection(pcaSignal, creditSignal)
	if alignedPCA.Len() == 0 {
		e.log.Warn("no overlap between factor and credit series, using factor signal only")
		alignedPCA = pcaSignal
		alignedCredit = series.Constant("Credit", pcaSignal.Dates, 0)
	}

	systemic := make([]float64, alignedPCA.Len())
	for i := range systemic {
		systemic[i] = (alignedPCA.Values[i] + alignedCredit.Values[i]) / 2
	}

	base := series.NewFrame(alignedPCA.Dates)
	base.SetColumn(aggregator.ColSystemic, systemic)
	base.SetColumn(aggregator.ColPCA, alignedPCA.Values)
	base.SetColumn(aggregator.ColCredit, alignedCredit.Values)
	return base, pcaResult, &creditResult, nil
}

// computeQuantileSummary runs the tail estimator on the aggregated table,
// excluding the columns derived from the target itself
func (e *Engine) computeQuantileSummary(aggregated *series.Frame) *models.QuantileSummary {
	design := series.NewFrame(aggregated.Dates())
	for _, name := range aggregated.Columns() {
		if name == aggregator.ColIsWarning || name == aggregator.ColCompositeScore {
			continue
		}
		design.SetSeries(name, aggregated.Column(name))
	}

	summary, err := e.estimator.Estimate(design)
	if err != nil {
		e.log.Warn("tail risk estimation failed", zap.Error(err))
		return nil
	}
	tailrisk.EnhanceComponents(summary,
		aggregated.Column(aggregator.ColPCA),
		aggregated.Column(aggregator.ColCredit),
	)
	return summary
}

func (e *Engine) persistAndCache(ctx context.Context, key string, snapshot *models.RiskMetricsSnapshot) {
	if e.store != nil {
		if err := e.store.Save(ctx, snapshot); err != nil {
			e.log.Warn("failed to persist snapshot", zap.Error(err))
		}
	}
	if err := e.cache.SetJSON(ctx, key, snapshot, e.cfg.Cache.ResultTTL); err != nil {
		e.log.Warn("failed to cache snapshot", zap.Error(err))
	}
	if err := e.cache.SetJSON(ctx, latestSnapshotKey, snapshot, e.cfg.Cache.SnapshotTTL); err != nil {
		e.log.Warn("failed to cache latest snapshot", zap.Error(err))
	}
}

// filterByDateRange restricts the table to the requested window. Days
// counts back from the newest row and takes precedence.
func filterByDateRange(frame *series.Frame, opts Options) *series.Frame {
	if frame.Len() == 0 {
		return frame
	}
	if opts.Days > 0 {
		dates := frame.Dates()
		end := dates[len(dates)-1]
		start := end.AddDate(0, 0, -opts.Days)
		return frame.SliceDateRange(&start, &end)
	}
	if opts.StartDate != nil || opts.EndDate != nil {
		return frame.SliceDateRange(opts.StartDate, opts.EndDate)
	}
	return frame
}

func restrictToTickers(market *series.Frame, tickers []string) *series.Frame {
	panel := series.NewFrame(market.Dates())
	for _, ticker := range tickers {
		if market.HasColumn(ticker) {
			panel.SetSeries(ticker, market.Column(ticker))
		}
	}
	return panel
}

func newSnapshotID() uuid.UUID {
	return uuid.New()
}
