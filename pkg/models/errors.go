package models

import "errors"

// Pipeline error taxonomy. Stages return these wrapped with context; the
// orchestrator decides per class whether to default, fall back, or abort.
var (
	// ErrDataInsufficiency means a model had too few observations to fit.
	// Recoverable: the stage is skipped and its signals marked absent.
	ErrDataInsufficiency = errors.New("insufficient observations")

	// ErrOptimizationFailure means a numeric solver did not converge.
	// Recoverable: documented fallback parameters are substituted.
	ErrOptimizationFailure = errors.New("optimization did not converge")

	// ErrAlignment means two required series share no overlapping dates.
	// Recoverable: the available subset (or a zero series) is used instead.
	ErrAlignment = errors.New("no overlapping dates between series")

	// ErrUpstreamFetch means an external data source was unavailable.
	// Recoverable: a stale cached value is served when one exists.
	ErrUpstreamFetch = errors.New("upstream data source unavailable")

	// ErrFatalComputation means the base systemic series came out empty.
	// Unrecoverable: propagated to the caller and broadcast to observers.
	ErrFatalComputation = errors.New("base systemic series is empty")
)
