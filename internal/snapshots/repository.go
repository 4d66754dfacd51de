package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/selivandex/riskpulse/internal/adapters/database"
	"github.com/selivandex/riskpulse/pkg/models"
)

// Repository handles append-only persistence of risk snapshots
type Repository struct {
	db *database.DB
}

// NewRepository creates new snapshot repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Save appends a snapshot. Records are never updated: each computation
// writes a new row keyed by its own ID.
func (r *Repository) Save(ctx context.Context, snapshot *models.RiskMetricsSnapshot) error {
	docs, err := encodeDocuments(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot documents: %w", err)
	}

	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO risk_snapshots (
			id, created_at, start_date, end_date,
			systemic_risk, systemic_mean, systemic_std, risk_level,
			dcc_correlation, credit_spread, market_volatility,
			macro_oil, macro_fx, forecast_next_risk,
			composite_warning, composite_risk_score,
			data_points, available_signals, computation_duration, source,
			regime_details, signal_analysis, component_analysis,
			quantile_summary, pca_variance, extra_metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
	`,
		snapshot.ID, snapshot.Timestamp,
		snapshot.DateRange.ActualStart, snapshot.DateRange.ActualEnd,
		snapshot.SystemicRisk, snapshot.SystemicMean, snapshot.SystemicStd, string(snapshot.RiskLevel),
		snapshot.DCCCorrelation, snapshot.CreditSpread, snapshot.MarketVolatility,
		snapshot.MacroOil, snapshot.MacroFX, snapshot.ForecastNextRisk,
		snapshot.CompositeWarning, snapshot.CompositeRiskScore,
		snapshot.DataPoints, pq.Array(snapshot.AvailableSignals), snapshot.ComputationDuration, snapshot.Source,
		docs.regimeDetails, docs.signalAnalysis, docs.componentAnalysis,
		docs.quantileSummary, docs.pcaVariance, docs.extraMetadata,
	)
	if err != nil {
		return fmt.Errorf("failed to save risk snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot, or nil when none exists
func (r *Repository) GetLatest(ctx context.Context) (*models.RiskMetricsSnapshot, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT
			id, created_at, start_date, end_date,
			systemic_risk, systemic_mean, systemic_std, risk_level,
			dcc_correlation, credit_spread, market_volatility,
			macro_oil, macro_fx, forecast_next_risk,
			composite_warning, composite_risk_score,
			data_points, available_signals, computation_duration, source,
			regime_details, signal_analysis, component_analysis,
			quantile_summary, pca_variance, extra_metadata
		FROM risk_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`)
	snapshot, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest risk snapshot: %w", err)
	}
	return snapshot, nil
}

// ListRecent returns up to limit snapshots, newest first
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*models.RiskMetricsSnapshot, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT
			id, created_at, start_date, end_date,
			systemic_risk, systemic_mean, systemic_std, risk_level,
			dcc_correlation, credit_spread, market_volatility,
			macro_oil, macro_fx, forecast_next_risk,
			composite_warning, composite_risk_score,
			data_points, available_signals, computation_duration, source,
			regime_details, signal_analysis, component_analysis,
			quantile_summary, pca_variance, extra_metadata
		FROM risk_snapshots
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk snapshots: %w", err)
	}
	defer rows.Close()

	var out []*models.RiskMetricsSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk snapshot: %w", err)
		}
		out = append(out, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk snapshots: %w", err)
	}
	return out, nil
}

type documents struct {
	regimeDetails     []byte
	signalAnalysis    []byte
	componentAnalysis []byte
	quantileSummary   []byte
	pcaVariance       []byte
	extraMetadata     []byte
}

type extraMetadata struct {
	DCCRegimeAnalysis *models.DCCRegimeAnalysis               `json:"dcc_regime_analysis,omitempty"`
	PairCorrelations  map[string]models.PairCorrelationStats  `json:"dcc_pair_correlations,omitempty"`
	QuantileSignal    *float64                                `json:"quantile_signal,omitempty"`
	HARExcessVolZ     *float64                                `json:"har_excess_vol,omitempty"`
	SpreadChange      *float64                                `json:"credit_spread_change,omitempty"`
	VIXChange         *float64                                `json:"vix_change,omitempty"`
	CreditSource      string                                  `json:"credit_source,omitempty"`
	DateRange         models.DateRange                        `json:"date_range"`
}

func encodeDocuments(snapshot *models.RiskMetricsSnapshot) (*documents, error) {
	var docs documents
	var err error

	if docs.regimeDetails, err = json.Marshal(snapshot.RegimeDetails); err != nil {
		return nil, err
	}
	if docs.signalAnalysis, err = json.Marshal(snapshot.SignalAnalysis); err != nil {
		return nil, err
	}
	if docs.componentAnalysis, err = json.Marshal(snapshot.ComponentAnalysis); err != nil {
		return nil, err
	}
	if docs.quantileSummary, err = json.Marshal(snapshot.QuantileSummary); err != nil {
		return nil, err
	}
	if docs.pcaVariance, err = json.Marshal(snapshot.PCAVariance); err != nil {
		return nil, err
	}
	extra := extraMetadata{
		DCCRegimeAnalysis: snapshot.DCCRegimeAnalysis,
		PairCorrelations:  snapshot.PairCorrelations,
		QuantileSignal:    snapshot.QuantileSignal,
		HARExcessVolZ:     snapshot.HARExcessVolZ,
		SpreadChange:      snapshot.CreditSpreadChange,
		VIXChange:         snapshot.VIXChange,
		CreditSource:      snapshot.CreditSource,
		DateRange:         snapshot.DateRange,
	}
	if docs.extraMetadata, err = json.Marshal(extra); err != nil {
		return nil, err
	}
	return &docs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*models.RiskMetricsSnapshot, error) {
	var snapshot models.RiskMetricsSnapshot
	var riskLevel string
	var docs documents
	var signals pq.StringArray

	err := row.Scan(
		&snapshot.ID, &snapshot.Timestamp,
		&snapshot.DateRange.ActualStart, &snapshot.DateRange.ActualEnd,
		&snapshot.SystemicRisk, &snapshot.SystemicMean, &snapshot.SystemicStd, &riskLevel,
		&snapshot.DCCCorrelation, &snapshot.CreditSpread, &snapshot.MarketVolatility,
		&snapshot.MacroOil, &snapshot.MacroFX, &snapshot.ForecastNextRisk,
		&snapshot.CompositeWarning, &snapshot.CompositeRiskScore,
		&snapshot.DataPoints, &signals, &snapshot.ComputationDuration, &snapshot.Source,
		&docs.regimeDetails, &docs.signalAnalysis, &docs.componentAnalysis,
		&docs.quantileSummary, &docs.pcaVariance, &docs.extraMetadata,
	)
	if err != nil {
		return nil, err
	}

	snapshot.RiskLevel = models.RiskLevel(riskLevel)
	snapshot.AvailableSignals = []string(signals)

	if err := json.Unmarshal(docs.regimeDetails, &snapshot.RegimeDetails); err != nil {
		return nil, fmt.Errorf("failed to decode regime details: %w", err)
	}
	if err := json.Unmarshal(docs.signalAnalysis, &snapshot.SignalAnalysis); err != nil {
		return nil, fmt.Errorf("failed to decode signal analysis: %w", err)
	}
	if err := json.Unmarshal(docs.componentAnalysis, &snapshot.ComponentAnalysis); err != nil {
		return nil, fmt.Errorf("failed to decode component analysis: %w", err)
	}
	if err := json.Unmarshal(docs.quantileSummary, &snapshot.QuantileSummary); err != nil {
		return nil, fmt.Errorf("failed to decode quantile summary: %w", err)
	}
	if err := json.Unmarshal(docs.pcaVariance, &snapshot.PCAVariance); err != nil {
		return nil, fmt.Errorf("failed to decode pca variance: %w", err)
	}
	var extra extraMetadata
	if err := json.Unmarshal(docs.extraMetadata, &extra); err != nil {
		return nil, fmt.Errorf("failed to decode extra metadata: %w", err)
	}
	snapshot.DCCRegimeAnalysis = extra.DCCRegimeAnalysis
	snapshot.PairCorrelations = extra.PairCorrelations
	snapshot.QuantileSignal = extra.QuantileSignal
	snapshot.HARExcessVolZ = extra.HARExcessVolZ
	snapshot.CreditSpreadChange = extra.SpreadChange
	snapshot.VIXChange = extra.VIXChange
	snapshot.CreditSource = extra.CreditSource
	extra.DateRange.ActualStart = snapshot.DateRange.ActualStart
	extra.DateRange.ActualEnd = snapshot.DateRange.ActualEnd
	snapshot.DateRange = extra.DateRange

	return &snapshot, nil
}
