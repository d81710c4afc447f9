// Package config defines the projector's configuration structure and loading hooks.
//
// Conventions:
// - Keys are flat and snake_case so that every field maps to one env variable.
// - New() returns defaults; Load layers .env, an optional YAML file and the environment.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// DBDriver is postgres or sqlite.
	DBDriver string `koanf:"db_driver"`

	// DBDSN is the driver-specific data source name.
	DBDSN string `koanf:"db_dsn"`

	// DBMaxOpenConns and DBMaxIdleConns size the connection pool.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`
	DBMaxIdleConns int `koanf:"db_max_idle_conns"`

	// DBConnMaxLifetimeSec recycles pooled connections.
	DBConnMaxLifetimeSec int `koanf:"db_conn_max_lifetime_sec"`

	// DBQueryTimeoutMS bounds every single statement.
	DBQueryTimeoutMS int `koanf:"db_query_timeout_ms"`

	// WorkerCount sets the number of projection workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets the capacity of the job key deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// WriteBatchSize is the number of projections per upsert transaction.
	WriteBatchSize int `koanf:"write_batch_size"`

	// WriteConcurrency caps concurrent upsert transactions.
	WriteConcurrency int `koanf:"write_concurrency"`

	// FlagLogPath receives review/rejected projections as JSON Lines. Empty disables it.
	FlagLogPath string `koanf:"flag_log_path"`

	// ScoringWeights maps stat names to fantasy points; merged onto the defaults.
	ScoringWeights map[string]float64 `koanf:"scoring_weights"`

	// Gate thresholds.
	GateWarnPoints   float64 `koanf:"gate_warn_points"`
	GateRejectPoints float64 `koanf:"gate_reject_points"`
	GateZScore       float64 `koanf:"gate_z_score"`

	// StandardizeVOPA divides offensive value by the positional standard deviation.
	StandardizeVOPA bool `koanf:"standardize_vopa"`

	// Backtest tuning.
	BootstrapSamples       int     `koanf:"bootstrap_samples"`
	BootstrapMinSuccessful int     `koanf:"bootstrap_min_successful"`
	Seed                   uint64  `koanf:"seed"`
	LeakageThreshold       float64 `koanf:"leakage_threshold"`
	CautionThreshold       float64 `koanf:"caution_threshold"`

	// MetricsTextfile is where metrics are dumped after a run. Empty disables it.
	MetricsTextfile string `koanf:"metrics_textfile"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		DBDriver:               DriverSQLite,
		DBDSN:                  "file:projector.db?_pragma=busy_timeout(5000)",
		DBMaxOpenConns:         8,
		DBMaxIdleConns:         4,
		DBConnMaxLifetimeSec:   300,
		DBQueryTimeoutMS:       5_000,
		WorkerCount:            runtime.NumCPU(),
		QueueSize:              10_000,
		DedupeSize:             100_000,
		WriteBatchSize:         500,
		WriteConcurrency:       4,
		ScoringWeights:         map[string]float64{},
		GateWarnPoints:         25,
		GateRejectPoints:       35,
		GateZScore:             3,
		BootstrapSamples:       1000,
		BootstrapMinSuccessful: 100,
		Seed:                   42,
		LeakageThreshold:       0.7,
		CautionThreshold:       0.6,
	}
}

// Validate rejects invalid combinations.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: db_driver %q must be %s or %s", ErrInvalidConfig, c.DBDriver, DriverPostgres, DriverSQLite)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log_format %q must be text or json", ErrInvalidConfig, c.LogFormat)
	}
	for name, v := range map[string]int{
		"worker_count":        c.WorkerCount,
		"queue_size":          c.QueueSize,
		"dedupe_size":         c.DedupeSize,
		"write_batch_size":    c.WriteBatchSize,
		"write_concurrency":   c.WriteConcurrency,
		"db_max_open_conns":   c.DBMaxOpenConns,
		"db_query_timeout_ms": c.DBQueryTimeoutMS,
		"bootstrap_samples":   c.BootstrapSamples,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, name, v)
		}
	}
	if c.GateWarnPoints <= 0 || c.GateZScore <= 0 {
		return fmt.Errorf("%w: gate thresholds must be positive", ErrInvalidConfig)
	}
	if c.GateRejectPoints < c.GateWarnPoints {
		return fmt.Errorf("%w: gate_reject_points %.2f is below gate_warn_points %.2f", ErrInvalidConfig, c.GateRejectPoints, c.GateWarnPoints)
	}
	if c.BootstrapMinSuccessful <= 0 || c.BootstrapMinSuccessful > c.BootstrapSamples {
		return fmt.Errorf("%w: bootstrap_min_successful must be in 1..bootstrap_samples", ErrInvalidConfig)
	}
	if c.CautionThreshold <= 0 || c.CautionThreshold > c.LeakageThreshold || c.LeakageThreshold > 1 {
		return fmt.Errorf("%w: need 0 < caution_threshold <= leakage_threshold <= 1", ErrInvalidConfig)
	}
	return nil
}
