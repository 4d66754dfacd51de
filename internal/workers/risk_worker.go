package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/internal/adapters/redis"
	"github.com/selivandex/riskpulse/internal/risk"
	"github.com/selivandex/riskpulse/pkg/logger"
)

const refreshLockKey = "riskpulse:lock:risk_refresh"

// RiskWorker periodically recomputes the full risk snapshot so polling
// consumers hit a warm cache. The distributed lock keeps exactly one
// instance refreshing when several replicas run.
type RiskWorker struct {
	engine   *risk.Engine
	locks    *redis.Client
	lockTTL  time.Duration
	interval time.Duration
}

// NewRiskWorker creates new risk refresh worker
func NewRiskWorker(engine *risk.Engine, locks *redis.Client, interval time.Duration) *RiskWorker {
	return &RiskWorker{
		engine:   engine,
		locks:    locks,
		lockTTL:  interval,
		interval: interval,
	}
}

// Name returns worker name
func (rw *RiskWorker) Name() string {
	return "risk_refresh"
}

// Run executes one refresh iteration
// Called periodically by pkg/worker.PeriodicWorker
func (rw *RiskWorker) Run(ctx context.Context) error {
	release, err := rw.locks.Lock(ctx, refreshLockKey, rw.lockTTL)
	if err != nil {
		logger.Debug("risk refresh lock held elsewhere, skipping cycle",
			zap.Error(err),
		)
		return nil
	}
	defer release()

	startTime := time.Now()
	snapshot, err := rw.engine.ComputeFullRisk(ctx, risk.Options{ForceRefresh: true})
	if err != nil {
		logger.Warn("scheduled risk refresh failed",
			zap.Error(err),
		)
		return nil
	}

	logger.Info("risk snapshot refreshed",
		zap.String("risk_level", string(snapshot.RiskLevel)),
		zap.Int("data_points", snapshot.DataPoints),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return nil
}
