package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// Config holds all application configuration
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Optimize OptimizeConfig `mapstructure:"optimize"`
	Bot      BotConfig      `mapstructure:"bot"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Data     DataConfig     `mapstructure:"data"`
	API      APIConfig      `mapstructure:"api"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// OptimizeConfig contains the evolutionary-loop settings
type OptimizeConfig struct {
	PopulationSize       int                  `mapstructure:"population_size"`
	Iters                int                  `mapstructure:"iters"`
	CrossoverProbability float64              `mapstructure:"crossover_probability"`
	MutationProbability  float64              `mapstructure:"mutation_probability"`
	NCPUs                int                  `mapstructure:"n_cpus"` // 0 uses every core
	Scoring              []string             `mapstructure:"scoring"`
	Limits               optimize.Limits      `mapstructure:"limits"`
	Bounds               map[string][]float64 `mapstructure:"bounds"`
	StartingConfigs      string               `mapstructure:"starting_configs"`
	ResultsDir           string               `mapstructure:"results_dir"`
	RandomSeed           int64                `mapstructure:"random_seed"` // 0 picks a time-based seed
}

// BotConfig is the strategy template the optimizer mutates. Parameter
// names double as genome dimension names under a long_/short_ prefix.
type BotConfig struct {
	Long  map[string]float64 `mapstructure:"long"`
	Short map[string]float64 `mapstructure:"short"`
}

// BacktestConfig contains the simulation settings shared by every
// evaluation of a run
type BacktestConfig struct {
	StartingBalance float64                   `mapstructure:"starting_balance"`
	MakerFee        float64                   `mapstructure:"maker_fee"`
	Symbols         []string                  `mapstructure:"symbols"`
	StepsPerDay     int                       `mapstructure:"steps_per_day"`
	Exchange        map[string]ExchangeConfig `mapstructure:"exchange"`
}

// ExchangeConfig contains per-symbol order rounding constraints
type ExchangeConfig struct {
	QtyStep   float64 `mapstructure:"qty_step"`
	PriceStep float64 `mapstructure:"price_step"`
	MinQty    float64 `mapstructure:"min_qty"`
	MinCost   float64 `mapstructure:"min_cost"`
	CMult     float64 `mapstructure:"c_mult"`
}

// DataConfig contains candle-source settings
type DataConfig struct {
	Source          string           `mapstructure:"source"` // csv, clickhouse
	CSVDir          string           `mapstructure:"csv_dir"`
	ClickHouse      ClickHouseConfig `mapstructure:"clickhouse"`
	VolumeWindow    int              `mapstructure:"volume_window"`    // rolling window for preference ranking, in steps
	PreferenceSlots int              `mapstructure:"preference_slots"` // tradable coins per step, 0 keeps every coin
}

// ClickHouseConfig contains ClickHouse candle-source settings
type ClickHouseConfig struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

// APIConfig contains status-server settings
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// DatabaseConfig contains the optional run-store settings. An empty URL
// disables the store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig contains the optional evaluation-cache settings. An empty
// URL disables the cache.
type CacheConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("OPTIBOT")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Optimize defaults
	v.SetDefault("optimize.population_size", 500)
	v.SetDefault("optimize.iters", 100000)
	v.SetDefault("optimize.crossover_probability", 0.64)
	v.SetDefault("optimize.mutation_probability", 0.34)
	v.SetDefault("optimize.n_cpus", 0)
	v.SetDefault("optimize.scoring", []string{"mdg", "sharpe_ratio"})
	v.SetDefault("optimize.limits.lower_bound_drawdown_worst", 0.333)
	v.SetDefault("optimize.limits.lower_bound_equity_balance_diff_mean", 0.01)
	v.SetDefault("optimize.limits.lower_bound_loss_profit_ratio", 0.5)
	v.SetDefault("optimize.results_dir", "opt_results")
	v.SetDefault("optimize.random_seed", 0)

	// Backtest defaults
	v.SetDefault("backtest.starting_balance", 100000.0)
	v.SetDefault("backtest.maker_fee", 0.0002)
	v.SetDefault("backtest.steps_per_day", 1440)

	// Data defaults
	v.SetDefault("data.source", "csv")
	v.SetDefault("data.csv_dir", "historical_data")
	v.SetDefault("data.volume_window", 1440)
	v.SetDefault("data.preference_slots", 0)
	v.SetDefault("data.clickhouse.addr", "localhost:9000")
	v.SetDefault("data.clickhouse.database", "default")
	v.SetDefault("data.clickhouse.table", "candles_1m")

	// API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.prometheus_port", 9100)

	// Cache defaults
	v.SetDefault("cache.ttl", 24*time.Hour)
}

// Workers resolves n_cpus to a concrete worker count
func (c *OptimizeConfig) Workers() int {
	if c.NCPUs > 0 {
		return c.NCPUs
	}
	return runtime.NumCPU()
}

// ScoringPair returns the two scoring metric names as a fixed pair. Only
// valid after Validate has passed.
func (c *OptimizeConfig) ScoringPair() [2]string {
	return [2]string{c.Scoring[0], c.Scoring[1]}
}

// BoundsMap converts the configured bounds into per-dimension intervals.
// A single-element entry pins the dimension to that value. Only valid
// after Validate has passed.
func (c *OptimizeConfig) BoundsMap() map[string][2]float64 {
	out := make(map[string][2]float64, len(c.Bounds))
	for name, vals := range c.Bounds {
		switch len(vals) {
		case 1:
			out[name] = [2]float64{vals[0], vals[0]}
		case 2:
			out[name] = [2]float64{vals[0], vals[1]}
		}
	}
	return out
}

// Template returns the bot template as a strategy configuration
func (c *BotConfig) Template() *optimize.StrategyConfig {
	tpl := &optimize.StrategyConfig{
		Long:  make(map[string]float64, len(c.Long)),
		Short: make(map[string]float64, len(c.Short)),
	}
	for name, v := range c.Long {
		tpl.Long[name] = v
	}
	for name, v := range c.Short {
		tpl.Short[name] = v
	}
	return tpl
}

// Params returns the run-wide backtest parameters
func (c *BacktestConfig) Params() optimize.BacktestParams {
	return optimize.BacktestParams{
		StartingBalance: c.StartingBalance,
		MakerFee:        c.MakerFee,
		Symbols:         c.Symbols,
	}
}

// ExchangeParams returns per-symbol exchange constraints in symbol order.
// Symbols without an exchange entry fall back to unconstrained rounding
// with a contract multiplier of 1.
func (c *BacktestConfig) ExchangeParams() []optimize.ExchangeParams {
	out := make([]optimize.ExchangeParams, len(c.Symbols))
	for i, sym := range c.Symbols {
		ex, ok := c.Exchange[sym]
		if !ok {
			// viper lowercases map keys on read
			ex, ok = c.Exchange[strings.ToLower(sym)]
		}
		if !ok {
			out[i] = optimize.ExchangeParams{CMult: 1}
			continue
		}
		out[i] = optimize.ExchangeParams{
			QtyStep:   ex.QtyStep,
			PriceStep: ex.PriceStep,
			MinQty:    ex.MinQty,
			MinCost:   ex.MinCost,
			CMult:     ex.CMult,
		}
	}
	return out
}

// GetAPIAddr returns the status-server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetMetricsAddr returns the Prometheus listen address
func (c *MetricsConfig) GetMetricsAddr() string {
	return fmt.Sprintf(":%d", c.PrometheusPort)
}

// Enabled reports whether the run store is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// Enabled reports whether the evaluation cache is configured
func (c *CacheConfig) Enabled() bool {
	return c.URL != ""
}
