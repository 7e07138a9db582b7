// Optimizer CLI
// Searches a bounded strategy-parameter space for configurations that
// minimize two risk/performance scores over historical market data.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/optibot/internal/api"
	"github.com/ajitpratap0/optibot/internal/config"
	"github.com/ajitpratap0/optibot/internal/data"
	"github.com/ajitpratap0/optibot/internal/metrics"
	"github.com/ajitpratap0/optibot/internal/store"
	"github.com/ajitpratap0/optibot/pkg/backtest"
	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

var (
	configPath = flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")

	// Overrides for the most commonly tuned run settings
	population = flag.Int("population", 0, "Population size (overrides config)")
	iters      = flag.Int("iters", 0, "Iteration budget (overrides config)")
	workers    = flag.Int("workers", 0, "Worker count (overrides config)")
	seedsPath  = flag.String("seeds", "", "Starting config file or directory (overrides config)")
	resultsDir = flag.String("results", "", "Results directory (overrides config)")

	verbose = flag.Bool("verbose", false, "Enable verbose logging")
)

// ============================================================================
// MAIN
// ============================================================================

func main() {
	flag.Parse()

	// Bootstrap logging so config errors are readable; the configured
	// logger replaces this once the file is loaded.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyOverrides(cfg)

	if *verbose {
		cfg.Log.Level = "debug"
	}
	config.InitLogger(cfg.Log.Level, cfg.Log.Format)
	logger := config.NewLogger("optimize")

	// An interrupt requests prompt, clean termination: the context stops
	// the loop and the cleanup path below still runs.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runOptimization(ctx, cfg, logger)
	switch {
	case err == nil:
		logger.Info().Str("results", summary.ResultsPath).Msg("Run complete")
	case errors.Is(err, context.Canceled):
		logger.Warn().Msg("Run cancelled")
	default:
		log.Fatal().Err(err).Msg("Optimization failed")
	}
}

// applyOverrides copies the set CLI flags over the loaded configuration.
func applyOverrides(cfg *config.Config) {
	if *population > 0 {
		cfg.Optimize.PopulationSize = *population
	}
	if *iters > 0 {
		cfg.Optimize.Iters = *iters
	}
	if *workers > 0 {
		cfg.Optimize.NCPUs = *workers
	}
	if *seedsPath != "" {
		cfg.Optimize.StartingConfigs = *seedsPath
	}
	if *resultsDir != "" {
		cfg.Optimize.ResultsDir = *resultsDir
	}
}

// ============================================================================
// RUN WIRING
// ============================================================================

func runOptimization(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*optimize.RunSummary, error) {
	// Load history and stage it for the workers
	dataset, err := data.Load(ctx, cfg.Data, cfg.Backtest.Symbols, config.NewLogger("data"))
	if err != nil {
		return nil, err
	}

	stage, err := optimize.NewStage(dataset.HLCs, dataset.Steps, dataset.Coins, dataset.Prefs, dataset.Slots)
	if err != nil {
		return nil, err
	}
	// The staged regions now hold the data; drop the private copies.
	dataset.HLCs, dataset.Prefs = nil, nil

	// Until the evaluator takes ownership of the stage, release it here on
	// the way out.
	var evaluator *optimize.Evaluator
	defer func() {
		if evaluator == nil {
			if rerr := stage.Release(); rerr != nil {
				logger.Error().Err(rerr).Msg("Failed to release staged arrays")
			}
		}
	}()

	template := cfg.Bot.Template()
	bounds, err := optimize.NewParamBounds(template, cfg.Optimize.BoundsMap())
	if err != nil {
		return nil, err
	}

	// Optional collaborators degrade gracefully
	var recorder optimize.Metrics
	if cfg.Metrics.Enabled {
		recorder = metrics.Recorder{}
		srv := metrics.NewServer(cfg.Metrics.PrometheusPort, logger)
		if err := srv.Start(); err != nil {
			logger.Warn().Err(err).Msg("Metrics server failed to start, continuing without it")
		} else {
			defer shutdownServer(srv.Shutdown, logger, "metrics")
		}
	}

	var cache *optimize.EvalCache
	if cfg.Cache.Enabled() {
		cache, err = optimize.NewEvalCache(ctx, cfg.Cache.URL, cfg.Cache.TTL, config.NewLogger("eval_cache"))
		if err != nil {
			logger.Warn().Err(err).Msg("Evaluation cache unavailable, continuing without it")
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	var runStore *store.Store
	if cfg.Database.Enabled() {
		runStore, err = store.New(ctx, cfg.Database.URL, config.NewLogger("store"))
		if err != nil {
			logger.Warn().Err(err).Msg("Run store unavailable, continuing without it")
			runStore = nil
		} else {
			defer runStore.Close()
		}
	}

	if err := os.MkdirAll(cfg.Optimize.ResultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	resultsPath := optimize.ResultsPath(cfg.Optimize.ResultsDir, cfg.Backtest.Symbols, time.Now())

	evaluator, err = optimize.NewEvaluator(optimize.EvaluatorConfig{
		Engine:      backtest.New(backtest.Config{StepsPerDay: cfg.Backtest.StepsPerDay, Logger: config.NewLogger("engine")}),
		Stage:       stage,
		Template:    template,
		Limits:      cfg.Optimize.Limits,
		Scoring:     cfg.Optimize.ScoringPair(),
		Exchange:    cfg.Backtest.ExchangeParams(),
		Backtest:    cfg.Backtest.Params(),
		ResultsPath: resultsPath,
		Cache:       cache,
		Metrics:     recorder,
		Logger:      config.NewLogger("evaluator"),
	})
	if err != nil {
		return nil, err
	}
	// Exactly-once release of the staged arrays, run failed or not.
	defer func() {
		if cerr := evaluator.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to release evaluator resources")
		}
	}()

	optimizer, err := optimize.NewOptimizer(optimize.OptimizerConfig{
		Bounds:         bounds,
		Evaluator:      evaluator,
		PopulationSize: cfg.Optimize.PopulationSize,
		Iters:          cfg.Optimize.Iters,
		CrossoverProb:  cfg.Optimize.CrossoverProbability,
		MutationProb:   cfg.Optimize.MutationProbability,
		Workers:        cfg.Optimize.Workers(),
		Seeds:          optimize.LoadSeedConfigs(cfg.Optimize.StartingConfigs, config.NewLogger("seeds")),
		RandSeed:       cfg.Optimize.RandomSeed,
		Metrics:        recorder,
		Logger:         config.NewLogger("optimizer"),
	})
	if err != nil {
		return nil, err
	}

	ngen := (cfg.Optimize.Iters + cfg.Optimize.PopulationSize - 1) / cfg.Optimize.PopulationSize
	if cfg.API.Enabled {
		srv := api.NewServer(api.Config{
			Host:     cfg.API.Host,
			Port:     cfg.API.Port,
			Logbook:  optimizer.Logbook(),
			Archive:  optimizer.Archive(),
			Template: template,
			Info: api.RunInfo{
				Symbols:        cfg.Backtest.Symbols,
				PopulationSize: cfg.Optimize.PopulationSize,
				Generations:    ngen,
				Scoring:        cfg.Optimize.ScoringPair(),
				ResultsPath:    resultsPath,
				StartedAt:      time.Now(),
			},
			Logger: config.NewLogger("api"),
		})
		go func() {
			if err := srv.Start(); err != nil {
				logger.Warn().Err(err).Msg("Status server stopped")
			}
		}()
		defer shutdownServer(srv.Stop, logger, "api")
	}

	var run *store.Run
	if runStore != nil {
		run = &store.Run{
			Symbols:        cfg.Backtest.Symbols,
			PopulationSize: cfg.Optimize.PopulationSize,
			Generations:    ngen,
			Scoring:        cfg.Optimize.Scoring,
			Config: map[string]any{
				"optimize": cfg.Optimize,
				"bot":      cfg.Bot,
				"backtest": cfg.Backtest,
			},
			ResultsPath: resultsPath,
		}
		if err := runStore.CreateRun(ctx, run); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run, continuing without the store")
			runStore = nil
		}
	}

	summary, runErr := optimizer.Run(ctx)

	// The archive is worth keeping even after a cancelled or failed run.
	if err := writePareto(paretoPath(resultsPath), optimizer.Archive(), template); err != nil {
		logger.Error().Err(err).Msg("Failed to write Pareto front")
	}
	if runStore != nil {
		persistRun(runStore, run.ID, optimizer, template, summary, runErr, logger)
	}
	if runErr != nil {
		return nil, runErr
	}
	return summary, nil
}

func shutdownServer(stopFn func(context.Context) error, logger zerolog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stopFn(ctx); err != nil {
		logger.Warn().Err(err).Str("server", name).Msg("Server shutdown failed")
	}
}

// ============================================================================
// RUN PERSISTENCE
// ============================================================================

// paretoEntry is one archive member in the Pareto dump.
type paretoEntry struct {
	W0     float64                  `json:"w_0"`
	W1     float64                  `json:"w_1"`
	Config *optimize.StrategyConfig `json:"config"`
}

// paretoPath places the archive dump next to the result log.
func paretoPath(resultsPath string) string {
	return strings.TrimSuffix(resultsPath, "_all_results.txt") + "_pareto.json"
}

func frontEntries(archive *optimize.ParetoArchive, template *optimize.StrategyConfig) []paretoEntry {
	members := archive.Snapshot()
	entries := make([]paretoEntry, len(members))
	for i, m := range members {
		entries[i] = paretoEntry{
			W0:     m.Fitness.W0,
			W1:     m.Fitness.W1,
			Config: optimize.Decode(m.Genome, template),
		}
	}
	return entries
}

func writePareto(path string, archive *optimize.ParetoArchive, template *optimize.StrategyConfig) error {
	buf, err := json.MarshalIndent(frontEntries(archive, template), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal Pareto front: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write Pareto front: %w", err)
	}
	return nil
}

// persistRun records the run's terminal state with a fresh context; the
// run context may already be cancelled.
func persistRun(runStore *store.Store, runID uuid.UUID, optimizer *optimize.Optimizer, template *optimize.StrategyConfig, summary *optimize.RunSummary, runErr error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runStore.RecordGenerations(ctx, runID, optimizer.Logbook().Entries()); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist generation stats")
	}

	members := make([]store.FrontMember, 0, optimizer.Archive().Len())
	for _, e := range frontEntries(optimizer.Archive(), template) {
		members = append(members, store.FrontMember{W0: e.W0, W1: e.W1, Config: e.Config})
	}
	if err := runStore.SaveFront(ctx, runID, members); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist Pareto front")
	}

	status := store.RunStatusCompleted
	errMsg := ""
	evaluations, frontSize := 0, optimizer.Archive().Len()
	switch {
	case runErr == nil:
		evaluations = summary.Evaluations
	case errors.Is(runErr, context.Canceled):
		status = store.RunStatusCancelled
	default:
		status = store.RunStatusFailed
		errMsg = runErr.Error()
	}
	if err := runStore.FinishRun(ctx, runID, status, evaluations, frontSize, errMsg); err != nil {
		logger.Warn().Err(err).Msg("Failed to finish run record")
	}
}
