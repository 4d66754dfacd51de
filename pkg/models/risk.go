package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel classifies the current risk regime
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// CorrelationRegime classifies the cross-asset correlation state
type CorrelationRegime string

const (
	RegimeHighlyCorrelated     CorrelationRegime = "highly_correlated"
	RegimeModeratelyCorrelated CorrelationRegime = "moderately_correlated"
	RegimeLowCorrelation       CorrelationRegime = "low_correlation"
)

// SignalStats summarizes one named signal at snapshot time
type SignalStats struct {
	Current   float64 `json:"current"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	IsExtreme bool    `json:"is_extreme"`
}

// RegimeContrast compares pair correlation between stress and normal dates
type RegimeContrast struct {
	StressMean float64 `json:"stress_mean"`
	NormalMean float64 `json:"normal_mean"`
	Contrast   float64 `json:"contrast"`
	StressVol  float64 `json:"stress_vol"`
	NormalVol  float64 `json:"normal_vol"`
}

// PairCorrelationStats summarizes one dynamic-correlation pair series
type PairCorrelationStats struct {
	Current        float64        `json:"current"`
	Mean           float64        `json:"mean"`
	Std            float64        `json:"std"`
	Trend          float64        `json:"trend"`
	RegimeContrast RegimeContrast `json:"regime_contrast"`
}

// DCCRegimeAnalysis aggregates pair correlations into a regime view
type DCCRegimeAnalysis struct {
	CurrentRegime             CorrelationRegime `json:"current_regime"`
	AverageCorrelation        float64           `json:"average_correlation"`
	CorrelationDispersion     float64           `json:"correlation_dispersion"`
	StressRegime              bool              `json:"stress_regime"`
	StressCorrelationContrast float64           `json:"stress_correlation_contrast"`
	PairCount                 int               `json:"n_pairs"`
	ExtremePairs              int               `json:"extreme_pairs"`
}

// ComponentZScores holds the standardized component readings behind the regime score
type ComponentZScores struct {
	Systemic float64 `json:"systemic"`
	PCA      float64 `json:"pca"`
	Credit   float64 `json:"credit"`
	DCC      float64 `json:"dcc"`
}

// RegimeThresholds are the fixed cutoffs for the weighted regime score
type RegimeThresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// RegimeDetails explains how the risk level was derived
type RegimeDetails struct {
	RegimeScore      float64          `json:"regime_score"`
	ComponentZScores ComponentZScores `json:"component_z_scores"`
	CurrentPCA       float64          `json:"current_pca"`
	CurrentCredit    float64          `json:"current_credit"`
	Thresholds       RegimeThresholds `json:"thresholds"`
}

// ComponentAnalysis breaks the systemic score into its PCA/credit parts
type ComponentAnalysis struct {
	CorrelationMatrix  map[string]map[string]float64 `json:"correlation_matrix"`
	PCAContribution    float64                       `json:"pca_contribution"`
	CreditContribution float64                       `json:"credit_contribution"`
	PCAVolatility      float64                       `json:"pca_volatility"`
	CreditVolatility   float64                       `json:"credit_volatility"`
	PCATrend           float64                       `json:"pca_trend"`
	CreditTrend        float64                       `json:"credit_trend"`
	CurrentPCA         float64                       `json:"current_pca"`
	CurrentCredit      float64                       `json:"current_credit"`
	DCCCorrelation     *float64                      `json:"dcc_correlation,omitempty"`
	DCCRegime          CorrelationRegime             `json:"dcc_regime,omitempty"`
	DCCStressContrast  *float64                      `json:"dcc_stress_contrast,omitempty"`
}

// QuantileFit is one fitted quantile regression
type QuantileFit struct {
	Quantile     float64            `json:"quantile"`
	Coefficients map[string]float64 `json:"coefficients"`
	PValues      map[string]float64 `json:"p_values"`
	PseudoR2     float64            `json:"pseudo_r2"`
	MeanFitted   float64            `json:"mean_fitted"`
}

// CorrelationRisk reports the tail sensitivity to the named correlation predictor
type CorrelationRisk struct {
	Predictor        string  `json:"predictor"`
	MeanCorr         float64 `json:"mean_corr"`
	VolCorr          float64 `json:"vol_corr"`
	Beta             float64 `json:"corr_beta"`
	LossContribution float64 `json:"corr_contrib_to_loss"`
}

// ComponentQuantiles holds percentile ladders for the PCA and credit components
type ComponentQuantiles struct {
	PCA    map[string]float64 `json:"pca"`
	Credit map[string]float64 `json:"credit"`
}

// QuantileSummary condenses the tail-risk estimates.
// CapitalBuffer is VaR95 minus VaRNormal and is deliberately not clamped:
// a crossed quantile fit can make it negative, which is itself a signal of
// an unstable tail model.
type QuantileSummary struct {
	VaR95              float64             `json:"var_95"`
	VaRNormal          float64             `json:"var_normal"`
	CapitalBuffer      float64             `json:"capital_buffer"`
	CorrelationRisk    *CorrelationRisk    `json:"correlation_risk,omitempty"`
	Fits               []QuantileFit       `json:"fits,omitempty"`
	ComponentQuantiles *ComponentQuantiles `json:"component_quantiles,omitempty"`
	PCAPercentile      *float64            `json:"pca_percentile,omitempty"`
	CreditPercentile   *float64            `json:"credit_percentile,omitempty"`
	PCAExtreme         bool                `json:"pca_extreme"`
	CreditExtreme      bool                `json:"credit_extreme"`
}

// DateRange describes the requested and actual span of a computation
type DateRange struct {
	Days        int        `json:"days,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	ActualStart time.Time  `json:"actual_start"`
	ActualEnd   time.Time  `json:"actual_end"`
}

// RiskMetricsSnapshot is the immutable result of one full risk computation
type RiskMetricsSnapshot struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	SystemicRisk float64   `json:"systemic_risk"`
	SystemicMean float64   `json:"systemic_mean"`
	SystemicStd  float64   `json:"systemic_std"`
	RiskLevel    RiskLevel `json:"risk_level"`

	RegimeDetails     RegimeDetails                   `json:"regime_details"`
	DCCCorrelation    *float64                        `json:"dcc_correlation,omitempty"`
	DCCRegimeAnalysis *DCCRegimeAnalysis              `json:"dcc_regime_analysis,omitempty"`
	PairCorrelations  map[string]PairCorrelationStats `json:"dcc_pair_correlations,omitempty"`

	QuantileSignal     *float64 `json:"quantile_signal,omitempty"`
	HARExcessVolZ      *float64 `json:"har_excess_vol,omitempty"`
	CreditSpreadChange *float64 `json:"credit_spread_change,omitempty"`
	VIXChange          *float64 `json:"vix_change,omitempty"`
	CompositeWarning   bool     `json:"composite_warning"`
	CompositeRiskScore *float64 `json:"composite_risk_score,omitempty"`

	SignalAnalysis    map[string]SignalStats `json:"signal_analysis"`
	ComponentAnalysis ComponentAnalysis      `json:"component_analysis"`

	CreditSpread     *float64 `json:"credit_spread,omitempty"`
	MarketVolatility *float64 `json:"market_volatility,omitempty"`
	MacroOil         *float64 `json:"macro_oil,omitempty"`
	MacroFX          *float64 `json:"macro_fx,omitempty"`
	ForecastNextRisk *float64 `json:"forecast_next_risk,omitempty"`

	PCAVariance     map[string]float64 `json:"pca_variance"`
	QuantileSummary *QuantileSummary   `json:"quantile_summary,omitempty"`

	CreditSource        string    `json:"credit_source,omitempty"`
	DataPoints          int       `json:"data_points"`
	AvailableSignals    []string  `json:"available_signals"`
	ComputationDuration float64   `json:"computation_duration"`
	DateRange           DateRange `json:"date_range"`
	Source              string    `json:"source"`
}

// Float64Ptr returns a pointer to v, for optional snapshot fields
func Float64Ptr(v float64) *float64 {
	return &v
}
