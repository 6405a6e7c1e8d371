// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/rebalancer/internal/utils"
)

// Price sources
const (
	PriceSourceCSV    = "csv"
	PriceSourceSQLite = "sqlite"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Directory of per-asset price CSV files (always absolute)
	PriceSource  string // csv or sqlite
	CSVPrefix    string
	CSVSuffix    string
	HistoryDB    string // Path of the SQLite history database when PriceSource is sqlite
	HistoryCheck string // cron expression of the history database check
	HistoryAge   time.Duration
	HoldingsFile string // YAML or JSON portfolio snapshot
	Schedule     string // cron expression with seconds
	OrdersDir    string // Where the file order sink writes decisions, empty to only log them
	OrdersFormat string // json or msgpack
	StrategyFile string
	LogLevel     string
	LogPretty    bool
	Port         int
	DevMode      bool
	Strategy     StrategyConfig
}

// StrategyConfig is the rebalancing policy, read from a YAML file
type StrategyConfig struct {
	RebalanceWeekday  string   `yaml:"rebalance_weekday" default:"monday" validate:"required"`
	EligibilityMetric string   `yaml:"eligibility_metric" default:"cagr" validate:"oneof=slope coefficient intercept r_squared r2 cagr"`
	MinSignal         float64  `yaml:"min_signal"`
	ExcludedAssets    []string `yaml:"excluded_assets"` // nil selects the built-in stable asset list
	Leverage          float64  `yaml:"leverage" default:"1" validate:"gt=0,lte=1"`
	Regression        string   `yaml:"regression" default:"theil_sen" validate:"oneof=theil_sen siegel"`
	Covariance        string   `yaml:"covariance" default:"ledoit_wolf" validate:"oneof=ledoit_wolf sample"`
	MaxIterations     int      `yaml:"max_iterations" default:"1000" validate:"gt=0"`
	GradientTolerance float64  `yaml:"gradient_tolerance" default:"1e-9" validate:"gt=0"`
	LookbackDays      int      `yaml:"lookback_days" validate:"gte=0"`
}

var validate = validator.New()

// Load reads configuration from environment variables and the strategy file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("REBALANCER_DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:      dataDir,
		PriceSource:  getEnv("REBALANCER_PRICE_SOURCE", PriceSourceCSV),
		CSVPrefix:    getEnv("REBALANCER_CSV_PREFIX", "COINBASE_SPOT_"),
		CSVSuffix:    getEnv("REBALANCER_CSV_SUFFIX", "_USD"),
		HistoryDB:    getEnv("REBALANCER_HISTORY_DB", filepath.Join(dataDir, "history.db")),
		HistoryCheck: getEnv("REBALANCER_HISTORY_CHECK_SCHEDULE", "0 30 0 * * *"),
		HistoryAge:   getEnvAsDuration("REBALANCER_HISTORY_MAX_AGE", 72*time.Hour),
		HoldingsFile: getEnv("REBALANCER_HOLDINGS_FILE", ""),
		Schedule:     getEnv("REBALANCER_SCHEDULE", "0 0 1 * * MON"),
		OrdersDir:    getEnv("REBALANCER_ORDERS_DIR", ""),
		OrdersFormat: getEnv("REBALANCER_ORDERS_FORMAT", "json"),
		StrategyFile: getEnv("REBALANCER_STRATEGY_FILE", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),
		Port:         getEnvAsInt("GO_PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
	}

	strategy, err := LoadStrategy(cfg.StrategyFile)
	if err != nil {
		return nil, err
	}
	cfg.Strategy = *strategy
	if excluded := os.Getenv("REBALANCER_EXCLUDED_ASSETS"); excluded != "" {
		cfg.Strategy.ExcludedAssets = utils.ParseList(excluded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadStrategy reads a strategy YAML file. An empty path yields the defaults.
func LoadStrategy(path string) (*StrategyConfig, error) {
	strategy := &StrategyConfig{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read strategy file: %w", err)
		}
		if err := yaml.Unmarshal(raw, strategy); err != nil {
			return nil, fmt.Errorf("failed to parse strategy file %s: %w", path, err)
		}
	}

	if err := defaults.Set(strategy); err != nil {
		return nil, fmt.Errorf("failed to apply strategy defaults: %w", err)
	}
	if err := validate.Struct(strategy); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}
	return strategy, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.PriceSource {
	case PriceSourceCSV, PriceSourceSQLite:
	default:
		return fmt.Errorf("unknown price source %q", c.PriceSource)
	}
	switch c.OrdersFormat {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown orders format %q", c.OrdersFormat)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
