package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"atlas/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Chain         ChainConfig
	Aggregator    AggregatorConfig
	Ledger        LedgerConfig
	Router        RouterConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"atlas"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`

	// Admin is seeded with every capability at startup
	Admin string `envconfig:"APP_ADMIN" required:"true"`

	// MetricsAddr serves Prometheus metrics and health probes
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"settlement"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"atlas"`
}

// ChainConfig identifies the local chain and the destinations the router
// is allowed to send to
type ChainConfig struct {
	LocalChainID uint64   `envconfig:"CHAIN_LOCAL_ID" required:"true"`
	Family       string   `envconfig:"CHAIN_FAMILY" default:"evm"`
	RemoteIDs    []uint64 `envconfig:"CHAIN_REMOTE_IDS"`

	// Per-destination base fee in native units, e.g. "1337:0.0005,8453:0.0002"
	BaseFees map[string]string `envconfig:"CHAIN_BASE_FEES"`

	// Fee charged per payload byte on top of the base fee
	FeePerByte string `envconfig:"CHAIN_FEE_PER_BYTE" default:"0.000001"`

	// Conversion rate from native fee to the alternative fee token
	AltFeeRate string `envconfig:"CHAIN_ALT_FEE_RATE" default:"1"`
}

type AggregatorConfig struct {
	MinSources  int           `envconfig:"AGGREGATOR_MIN_SOURCES" default:"3"`
	MaxQuoteAge time.Duration `envconfig:"AGGREGATOR_MAX_QUOTE_AGE" default:"5m"`

	// Per-source quote write rate limit (quotes per second, 0 disables)
	QuoteRateLimit float64 `envconfig:"AGGREGATOR_QUOTE_RATE_LIMIT" default:"0"`
	QuoteRateBurst int     `envconfig:"AGGREGATOR_QUOTE_RATE_BURST" default:"10"`

	// TTL for cached aggregated price snapshots in Redis
	SnapshotTTL time.Duration `envconfig:"AGGREGATOR_SNAPSHOT_TTL" default:"30s"`

	// Quote archive batching
	HistoryBatchSize int           `envconfig:"AGGREGATOR_HISTORY_BATCH_SIZE" default:"500"`
	HistoryFlushAge  time.Duration `envconfig:"AGGREGATOR_HISTORY_FLUSH_AGE" default:"5s"`
}

type LedgerConfig struct {
	// Minimum shares per redemption; zero disables the floor
	MinRedeemShares string `envconfig:"LEDGER_MIN_REDEEM_SHARES" default:"0"`
}

type RouterConfig struct {
	// Inbound messages older than this are rejected as stale
	FreshnessWindow time.Duration `envconfig:"ROUTER_FRESHNESS_WINDOW" default:"10m"`

	// Transport send retry policy (external to the state machine)
	SendRetries    uint          `envconfig:"ROUTER_SEND_RETRIES" default:"3"`
	SendRetryDelay time.Duration `envconfig:"ROUTER_SEND_RETRY_DELAY" default:"500ms"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for all background workers
type WorkerConfig struct {
	RebalanceMonitorInterval time.Duration `envconfig:"WORKER_REBALANCE_MONITOR_INTERVAL" default:"1m"`
	QuotePrunerInterval      time.Duration `envconfig:"WORKER_QUOTE_PRUNER_INTERVAL" default:"1m"`
	PriceSnapshotInterval    time.Duration `envconfig:"WORKER_PRICE_SNAPSHOT_INTERVAL" default:"15s"`

	// Deviation thresholds in basis points; policy, not contract
	RebalanceScheduledBps int `envconfig:"WORKER_REBALANCE_SCHEDULED_BPS" default:"400"`
	RebalancePriorityBps  int `envconfig:"WORKER_REBALANCE_PRIORITY_BPS" default:"600"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
