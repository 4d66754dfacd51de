package clickhouse

import (
	"context"
	"fmt"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/internal/adapters/config"
	"github.com/selivandex/riskpulse/pkg/logger"
)

// DB wraps the ClickHouse connection holding daily market history
type DB struct {
	conn *sqlx.DB
}

// New connects to ClickHouse using the native protocol
func New(cfg *config.ClickHouseConfig) (*DB, error) {
	conn, err := sqlx.Connect("clickhouse", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	logger.Info("clickhouse connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &DB{conn: conn}, nil
}

// Close closes the connection
func (db *DB) Close() error {
	if db.conn != nil {
		logger.Info("closing clickhouse connection")
		return db.conn.Close()
	}
	return nil
}

// DB returns the sqlx handle
func (db *DB) DB() *sqlx.DB {
	return db.conn
}

// PingContext checks liveness under a deadline
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
