package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Universe   UniverseConfig   `envconfig:"UNIVERSE"`
	Risk       RiskConfig       `envconfig:"RISK"`
	Cache      CacheConfig      `envconfig:"CACHE"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Worker     WorkerConfig     `envconfig:"WORKER"`
	Health     HealthConfig     `envconfig:"HEALTH"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// UniverseConfig defines the tracked ticker universe
type UniverseConfig struct {
	Tickers        []string `envconfig:"UNIVERSE_TICKERS" default:"SPY,XLK,XLF,HYG,LQD"`
	ReferenceAsset string   `envconfig:"UNIVERSE_REFERENCE_ASSET" default:"XLK"`
	CreditETF      string   `envconfig:"UNIVERSE_CREDIT_ETF" default:"HYG"`
	CreditRatio    string   `envconfig:"UNIVERSE_CREDIT_RATIO" default:"credit_ratio"`
	MarketProxy    string   `envconfig:"UNIVERSE_MARKET_PROXY" default:"SPY"`
	CorrBase       string   `envconfig:"UNIVERSE_CORR_BASE" default:"XLK"`
	CorrQuote      string   `envconfig:"UNIVERSE_CORR_QUOTE" default:"XLF"`
}

// RiskConfig holds model parameters for the risk pipeline
type RiskConfig struct {
	PCAWindow        int           `envconfig:"RISK_PCA_WINDOW" default:"60"`
	SignalSmoothing  int           `envconfig:"RISK_SIGNAL_SMOOTHING" default:"20"`
	MinDCCRows       int           `envconfig:"RISK_MIN_DCC_ROWS" default:"100"`
	StressWindow     int           `envconfig:"RISK_STRESS_WINDOW" default:"30"`
	StressMultiplier float64       `envconfig:"RISK_STRESS_MULTIPLIER" default:"1.5"`
	FitTimeout       time.Duration `envconfig:"RISK_FIT_TIMEOUT" default:"2m"`
	HistoryDays      int           `envconfig:"RISK_HISTORY_DAYS" default:"730"`
}

// CacheConfig holds the TTLs of the three caching tiers
type CacheConfig struct {
	HotTTL      time.Duration `envconfig:"CACHE_HOT_TTL" default:"30s"`
	ResultTTL   time.Duration `envconfig:"CACHE_RESULT_TTL" default:"15m"`
	SnapshotTTL time.Duration `envconfig:"CACHE_SNAPSHOT_TTL" default:"150m"`
}

// DatabaseConfig represents Postgres connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"riskpulse"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// GetDSN builds the Postgres connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}

// ClickHouseConfig represents the ClickHouse market store connection
type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"market"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// GetDSN builds the ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig represents Redis connection parameters
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// WorkerConfig represents background worker intervals
type WorkerConfig struct {
	RefreshInterval time.Duration `envconfig:"WORKER_REFRESH_INTERVAL" default:"10m"`
	StopTimeout     time.Duration `envconfig:"WORKER_STOP_TIMEOUT" default:"30s"`
}

// HealthConfig represents the health probe server
type HealthConfig struct {
	Port string `envconfig:"HEALTH_PORT" default:"8081"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:""`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if len(c.Universe.Tickers) < 2 {
		return fmt.Errorf("universe must contain at least two tickers")
	}

	found := false
	for _, t := range c.Universe.Tickers {
		if t == c.Universe.ReferenceAsset {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("reference asset %s is not part of the universe", c.Universe.ReferenceAsset)
	}

	if c.Risk.PCAWindow < 2 {
		return fmt.Errorf("PCA window must be at least 2")
	}
	if c.Risk.StressMultiplier <= 0 {
		return fmt.Errorf("stress multiplier must be positive")
	}
	if c.Cache.HotTTL <= 0 || c.Cache.ResultTTL <= 0 || c.Cache.SnapshotTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	return nil
}
