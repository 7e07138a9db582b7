package config

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateLog()...)
	errors = append(errors, c.validateOptimize()...)
	errors = append(errors, c.validateBounds()...)
	errors = append(errors, c.validateBacktest()...)
	errors = append(errors, c.validateData()...)
	errors = append(errors, c.validateServers()...)
	errors = append(errors, c.validateCache()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateLog() ValidationErrors {
	var errors ValidationErrors

	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	valid := false
	for _, level := range validLevels {
		if c.Log.Level == level {
			valid = true
			break
		}
	}
	if !valid {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("Invalid log level '%s'. Must be one of: %v", c.Log.Level, validLevels),
		})
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be 'console' or 'json'", c.Log.Format),
		})
	}

	return errors
}

func (c *Config) validateOptimize() ValidationErrors {
	var errors ValidationErrors

	if c.Optimize.PopulationSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "optimize.population_size",
			Message: fmt.Sprintf("Population size must be at least 1, got %d", c.Optimize.PopulationSize),
		})
	}

	if c.Optimize.Iters < 1 {
		errors = append(errors, ValidationError{
			Field:   "optimize.iters",
			Message: fmt.Sprintf("Iteration budget must be at least 1, got %d", c.Optimize.Iters),
		})
	}

	cx, mut := c.Optimize.CrossoverProbability, c.Optimize.MutationProbability
	if cx < 0 || cx > 1 {
		errors = append(errors, ValidationError{
			Field:   "optimize.crossover_probability",
			Message: fmt.Sprintf("Crossover probability must be in [0, 1], got %v", cx),
		})
	}
	if mut < 0 || mut > 1 {
		errors = append(errors, ValidationError{
			Field:   "optimize.mutation_probability",
			Message: fmt.Sprintf("Mutation probability must be in [0, 1], got %v", mut),
		})
	}
	if cx >= 0 && mut >= 0 && cx+mut > 1 {
		errors = append(errors, ValidationError{
			Field:   "optimize.mutation_probability",
			Message: fmt.Sprintf("Crossover and mutation probabilities must sum to at most 1, got %v", cx+mut),
		})
	}

	if c.Optimize.NCPUs < 0 {
		errors = append(errors, ValidationError{
			Field:   "optimize.n_cpus",
			Message: fmt.Sprintf("Worker count must not be negative, got %d", c.Optimize.NCPUs),
		})
	}

	if len(c.Optimize.Scoring) != 2 {
		errors = append(errors, ValidationError{
			Field:   "optimize.scoring",
			Message: fmt.Sprintf("Scoring requires exactly 2 metric names, got %d", len(c.Optimize.Scoring)),
		})
	} else {
		var probe optimize.Analysis
		for _, name := range c.Optimize.Scoring {
			if _, ok := probe.Metric(name); !ok {
				errors = append(errors, ValidationError{
					Field:   "optimize.scoring",
					Message: fmt.Sprintf("Unknown scoring metric '%s'", name),
				})
			}
		}
	}

	if c.Optimize.ResultsDir == "" {
		errors = append(errors, ValidationError{
			Field:   "optimize.results_dir",
			Message: "Results directory is required",
		})
	}

	limits := c.Optimize.Limits
	if limits.LowerBoundDrawdownWorst < 0 || limits.LowerBoundEquityBalanceDiffMean < 0 || limits.LowerBoundLossProfitRatio < 0 {
		errors = append(errors, ValidationError{
			Field:   "optimize.limits",
			Message: "Constraint lower bounds must not be negative",
		})
	}

	return errors
}

func (c *Config) validateBounds() ValidationErrors {
	var errors ValidationErrors

	if len(c.Bot.Long)+len(c.Bot.Short) == 0 {
		errors = append(errors, ValidationError{
			Field:   "bot",
			Message: "Bot template requires at least one long or short parameter",
		})
		return errors
	}

	for name, vals := range c.Optimize.Bounds {
		if len(vals) < 1 || len(vals) > 2 {
			errors = append(errors, ValidationError{
				Field:   "optimize.bounds." + name,
				Message: fmt.Sprintf("Bound requires 1 or 2 values, got %d", len(vals)),
			})
			continue
		}
		if len(vals) == 2 && vals[0] > vals[1] {
			errors = append(errors, ValidationError{
				Field:   "optimize.bounds." + name,
				Message: fmt.Sprintf("Bound low %v exceeds high %v", vals[0], vals[1]),
			})
		}
	}

	for side, params := range map[string]map[string]float64{"long": c.Bot.Long, "short": c.Bot.Short} {
		for name := range params {
			key := side + "_" + name
			if _, ok := c.Optimize.Bounds[key]; !ok {
				errors = append(errors, ValidationError{
					Field:   "optimize.bounds." + key,
					Message: fmt.Sprintf("No bound configured for bot parameter %s.%s", side, name),
				})
			}
		}
	}

	return errors
}

func (c *Config) validateBacktest() ValidationErrors {
	var errors ValidationErrors

	if c.Backtest.StartingBalance <= 0 {
		errors = append(errors, ValidationError{
			Field:   "backtest.starting_balance",
			Message: fmt.Sprintf("Starting balance must be positive, got %v", c.Backtest.StartingBalance),
		})
	}

	if c.Backtest.MakerFee < 0 || c.Backtest.MakerFee >= 1 {
		errors = append(errors, ValidationError{
			Field:   "backtest.maker_fee",
			Message: fmt.Sprintf("Maker fee must be in [0, 1), got %v", c.Backtest.MakerFee),
		})
	}

	if len(c.Backtest.Symbols) == 0 {
		errors = append(errors, ValidationError{
			Field:   "backtest.symbols",
			Message: "At least one symbol is required",
		})
	}

	if c.Backtest.StepsPerDay < 1 {
		errors = append(errors, ValidationError{
			Field:   "backtest.steps_per_day",
			Message: fmt.Sprintf("Steps per day must be at least 1, got %d", c.Backtest.StepsPerDay),
		})
	}

	for sym, ex := range c.Backtest.Exchange {
		if ex.QtyStep < 0 || ex.PriceStep < 0 || ex.MinQty < 0 || ex.MinCost < 0 || ex.CMult < 0 {
			errors = append(errors, ValidationError{
				Field:   "backtest.exchange." + sym,
				Message: "Exchange constraints must not be negative",
			})
		}
	}

	return errors
}

func (c *Config) validateData() ValidationErrors {
	var errors ValidationErrors

	switch c.Data.Source {
	case "csv":
		if c.Data.CSVDir == "" {
			errors = append(errors, ValidationError{
				Field:   "data.csv_dir",
				Message: "CSV directory is required when data.source is 'csv'",
			})
		}
	case "clickhouse":
		if c.Data.ClickHouse.Addr == "" {
			errors = append(errors, ValidationError{
				Field:   "data.clickhouse.addr",
				Message: "ClickHouse address is required when data.source is 'clickhouse'",
			})
		}
		if c.Data.ClickHouse.Table == "" {
			errors = append(errors, ValidationError{
				Field:   "data.clickhouse.table",
				Message: "ClickHouse table is required when data.source is 'clickhouse'",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "data.source",
			Message: fmt.Sprintf("Invalid data source '%s'. Must be 'csv' or 'clickhouse'", c.Data.Source),
		})
	}

	if c.Data.VolumeWindow < 1 {
		errors = append(errors, ValidationError{
			Field:   "data.volume_window",
			Message: fmt.Sprintf("Volume window must be at least 1, got %d", c.Data.VolumeWindow),
		})
	}

	if c.Data.PreferenceSlots < 0 {
		errors = append(errors, ValidationError{
			Field:   "data.preference_slots",
			Message: fmt.Sprintf("Preference slots must not be negative, got %d", c.Data.PreferenceSlots),
		})
	}

	return errors
}

func (c *Config) validateServers() ValidationErrors {
	var errors ValidationErrors

	if c.API.Enabled {
		if c.API.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "api.host",
				Message: "API host is required when the API server is enabled",
			})
		}
		if c.API.Port < 1 || c.API.Port > 65535 {
			errors = append(errors, ValidationError{
				Field:   "api.port",
				Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.API.Port),
			})
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.PrometheusPort < 1 || c.Metrics.PrometheusPort > 65535 {
			errors = append(errors, ValidationError{
				Field:   "metrics.prometheus_port",
				Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Metrics.PrometheusPort),
			})
		}
	}

	if c.API.Enabled && c.Metrics.Enabled && c.API.Port == c.Metrics.PrometheusPort {
		errors = append(errors, ValidationError{
			Field:   "metrics.prometheus_port",
			Message: fmt.Sprintf("Port %d collides with api.port", c.Metrics.PrometheusPort),
		})
	}

	return errors
}

func (c *Config) validateCache() ValidationErrors {
	var errors ValidationErrors

	if c.Cache.Enabled() && c.Cache.TTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.ttl",
			Message: fmt.Sprintf("Cache TTL must not be negative, got %v", c.Cache.TTL),
		})
	}

	return errors
}
