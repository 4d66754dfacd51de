package snapshots

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/selivandex/riskpulse/pkg/models"
)

// fakeRow replays stored column values positionally
type fakeRow struct {
	values []interface{}
}

func (f fakeRow) Scan(dest ...interface{}) error {
	if len(dest) != len(f.values) {
		return fmt.Errorf("expected %d destinations, got %d", len(f.values), len(dest))
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *uuid.UUID:
			*d = f.values[i].(uuid.UUID)
		case *time.Time:
			*d = f.values[i].(time.Time)
		case *float64:
			*d = f.values[i].(float64)
		case **float64:
			*d = f.values[i].(*float64)
		case *string:
			*d = f.values[i].(string)
		case *bool:
			*d = f.values[i].(bool)
		case *int:
			*d = f.values[i].(int)
		case *pq.StringArray:
			*d = pq.StringArray(f.values[i].([]string))
		case *[]byte:
			*d = f.values[i].([]byte)
		default:
			return fmt.Errorf("unsupported destination type %T", d)
		}
	}
	return nil
}

func sampleSnapshot() *models.RiskMetricsSnapshot {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	return &models.RiskMetricsSnapshot{
		ID:           uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Timestamp:    end.Add(12 * time.Hour),
		SystemicRisk: 1.42,
		SystemicMean: 0.1,
		SystemicStd:  0.9,
		RiskLevel:    models.RiskHigh,
		RegimeDetails: models.RegimeDetails{
			RegimeScore: 1.2,
			ComponentZScores: models.ComponentZScores{
				Systemic: 1.5, PCA: 1.1, Credit: 0.4, DCC: 0.8,
			},
			CurrentPCA:    1.3,
			CurrentCredit: 0.2,
			Thresholds:    models.RegimeThresholds{High: 1.0, Medium: 0.5},
		},
		DCCCorrelation: models.Float64Ptr(0.63),
		DCCRegimeAnalysis: &models.DCCRegimeAnalysis{
			CurrentRegime:      models.RegimeModeratelyCorrelated,
			AverageCorrelation: 0.63,
			PairCount:          3,
		},
		PairCorrelations: map[string]models.PairCorrelationStats{
			"SPY_HYG": {Current: 0.7, Mean: 0.5, Std: 0.1, Trend: 0.05},
		},
		QuantileSignal:     models.Float64Ptr(-0.021),
		HARExcessVolZ:      models.Float64Ptr(1.8),
		CreditSpreadChange: models.Float64Ptr(0.004),
		VIXChange:          models.Float64Ptr(0.12),
		CompositeWarning:   true,
		CompositeRiskScore: models.Float64Ptr(1.1),
		SignalAnalysis: map[string]models.SignalStats{
			"HAR_ExcessVol_Z": {Current: 1.8, Mean: 0, Std: 1, IsExtreme: false},
		},
		ComponentAnalysis: models.ComponentAnalysis{
			PCAContribution:    0.6,
			CreditContribution: 0.4,
			CurrentPCA:         1.3,
			CurrentCredit:      0.2,
		},
		CreditSpread:     models.Float64Ptr(0.31),
		MarketVolatility: models.Float64Ptr(0.18),
		MacroOil:         models.Float64Ptr(0.02),
		MacroFX:          nil,
		ForecastNextRisk: models.Float64Ptr(1.3),
		PCAVariance:      map[string]float64{"EVR1": 0.55, "EVR2": 0.25},
		QuantileSummary: &models.QuantileSummary{
			VaR95:         -1.9,
			VaRNormal:     0.1,
			CapitalBuffer: -2.0,
		},
		CreditSource:        "credit_etf_returns",
		DataPoints:          252,
		AvailableSignals:    []string{"Systemic", "PCA", "Credit"},
		ComputationDuration: 3.4,
		DateRange: models.DateRange{
			Days:        180,
			ActualStart: start,
			ActualEnd:   end,
		},
		Source: "risk_engine",
	}
}

func TestSnapshotRoundtrip(t *testing.T) {
	original := sampleSnapshot()

	docs, err := encodeDocuments(original)
	if err != nil {
		t.Fatalf("encodeDocuments failed: %v", err)
	}

	row := fakeRow{values: []interface{}{
		original.ID, original.Timestamp,
		original.DateRange.ActualStart, original.DateRange.ActualEnd,
		original.SystemicRisk, original.SystemicMean, original.SystemicStd, string(original.RiskLevel),
		original.DCCCorrelation, original.CreditSpread, original.MarketVolatility,
		original.MacroOil, original.MacroFX, original.ForecastNextRisk,
		original.CompositeWarning, original.CompositeRiskScore,
		original.DataPoints, original.AvailableSignals, original.ComputationDuration, original.Source,
		docs.regimeDetails, docs.signalAnalysis, docs.componentAnalysis,
		docs.quantileSummary, docs.pcaVariance, docs.extraMetadata,
	}}

	restored, err := scanSnapshot(row)
	if err != nil {
		t.Fatalf("scanSnapshot failed: %v", err)
	}

	if !reflect.DeepEqual(original, restored) {
		t.Errorf("roundtrip mismatch:\noriginal: %+v\nrestored: %+v", original, restored)
	}
}

func TestScanSnapshotRejectsBadDocuments(t *testing.T) {
	original := sampleSnapshot()
	docs, err := encodeDocuments(original)
	if err != nil {
		t.Fatalf("encodeDocuments failed: %v", err)
	}

	row := fakeRow{values: []interface{}{
		original.ID, original.Timestamp,
		original.DateRange.ActualStart, original.DateRange.ActualEnd,
		original.SystemicRisk, original.SystemicMean, original.SystemicStd, string(original.RiskLevel),
		original.DCCCorrelation, original.CreditSpread, original.MarketVolatility,
		original.MacroOil, original.MacroFX, original.ForecastNextRisk,
		original.CompositeWarning, original.CompositeRiskScore,
		original.DataPoints, original.AvailableSignals, original.ComputationDuration, original.Source,
		[]byte("{not json"), docs.signalAnalysis, docs.componentAnalysis,
		docs.quantileSummary, docs.pcaVariance, docs.extraMetadata,
	}}

	if _, err := scanSnapshot(row); err == nil {
		t.Fatal("expected decode error for malformed document")
	}
}
