package credit

import (
	"time"

	"github.com/cinar/indicator"
	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/pkg/series"
)

// Source identifies which input produced the credit factor
type Source string

const (
	SourceETF   Source = "credit_etf_returns"
	SourceRatio Source = "credit_ratio"
	SourceZero  Source = "zero_fallback"
)

// Result carries the extracted credit-stress proxy plus provenance, so a
// zero series can be told apart from a real one downstream
type Result struct {
	Series        series.Series
	Source        Source
	FallbackLevel int
}

// Extractor derives a single credit-stress proxy series. The fallback
// chain is: credit ETF returns with a short trailing average, then the
// credit-ratio level with a longer trailing average, then zeros aligned
// to the factor-signal index.
type Extractor struct {
	etf         string
	shortSmooth int
	longSmooth  int
	log         *zap.Logger
}

// NewExtractor creates a credit factor extractor
func NewExtractor(etf string, shortSmooth, longSmooth int, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		etf:         etf,
		shortSmooth: shortSmooth,
		longSmooth:  longSmooth,
		log:         log,
	}
}

// Extract walks the fallback chain. panel holds the cleaned return panel,
// ratio the credit-ratio level series (possibly empty), and signalIndex
// the factor-signal dates used to align the zero fallback.
func (e *Extractor) Extract(panel *series.Frame, ratio series.Series, signalIndex []time.Time) Result {
	if panel != nil && panel.HasColumn(e.etf) {
		etfReturns := panel.Column(e.etf).DropNA()
		if etfReturns.Len() > 0 {
			smoothed := indicator.Sma(e.shortSmooth, etfReturns.Values)
			e.log.Debug("credit factor from ETF returns",
				zap.String("etf", e.etf),
				zap.Int("observations", etfReturns.Len()),
			)
			return Result{
				Series:        series.New("Credit", etfReturns.Dates, smoothed),
				Source:        SourceETF,
				FallbackLevel: 0,
			}
		}
	}

	if clean := ratio.DropNA(); clean.Len() > 0 {
		smoothed := indicator.Sma(e.longSmooth, clean.Values)
		e.log.Info("credit factor falling back to credit ratio",
			zap.Int("observations", clean.Len()),
		)
		return Result{
			Series:        series.New("Credit", clean.Dates, smoothed),
			Source:        SourceRatio,
			FallbackLevel: 1,
		}
	}

	e.log.Warn("no usable credit data, using zero series")
	return Result{
		Series:        series.Constant("Credit", signalIndex, 0),
		Source:        SourceZero,
		FallbackLevel: 2,
	}
}
