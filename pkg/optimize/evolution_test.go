package optimize

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetrics struct {
	evals       atomic.Int64
	generations atomic.Int64
}

func (m *fakeMetrics) EvalDone(_ time.Duration, _, _ bool) { m.evals.Add(1) }

func (m *fakeMetrics) Generation(_, _ int) { m.generations.Add(1) }

func newTestOptimizer(t *testing.T, engine Engine, template *StrategyConfig, table map[string][2]float64, mutate func(cfg *OptimizerConfig)) *Optimizer {
	t.Helper()
	bounds, err := NewParamBounds(template, table)
	require.NoError(t, err)

	cfg := OptimizerConfig{
		Bounds:         bounds,
		PopulationSize: 4,
		Iters:          8,
		CrossoverProb:  0.4,
		MutationProb:   0.4,
		Workers:        2,
		RandSeed:       42,
		Logger:         zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	eval, err := NewEvaluator(EvaluatorConfig{
		Engine:      engine,
		Stage:       stageFixture(t),
		Template:    template,
		Limits:      testLimits(),
		Scoring:     [2]string{"mdg", "sharpe_ratio"},
		Exchange:    []ExchangeParams{{}, {}},
		Backtest:    BacktestParams{StartingBalance: 1000, Symbols: []string{"BTC", "ETH"}},
		ResultsPath: filepath.Join(t.TempDir(), "results.txt"),
		Metrics:     cfg.Metrics,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eval.Close() })
	cfg.Evaluator = eval

	opt, err := NewOptimizer(cfg)
	require.NoError(t, err)
	return opt
}

func TestOptimizerValidation(t *testing.T) {
	bounds, err := NewParamBounds(testTemplate(), testBoundsTable(testTemplate()))
	require.NoError(t, err)
	eval := newTestEvaluator(t, &stubEngine{}, nil)
	defer func() { _ = eval.Close() }()

	valid := OptimizerConfig{
		Bounds:         bounds,
		Evaluator:      eval,
		PopulationSize: 4,
		Iters:          8,
		CrossoverProb:  0.5,
		MutationProb:   0.4,
		Workers:        2,
	}
	_, err = NewOptimizer(valid)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(cfg *OptimizerConfig)
	}{
		{"nil bounds", func(cfg *OptimizerConfig) { cfg.Bounds = nil }},
		{"nil evaluator", func(cfg *OptimizerConfig) { cfg.Evaluator = nil }},
		{"zero population", func(cfg *OptimizerConfig) { cfg.PopulationSize = 0 }},
		{"zero iters", func(cfg *OptimizerConfig) { cfg.Iters = 0 }},
		{"probabilities exceed one", func(cfg *OptimizerConfig) { cfg.CrossoverProb = 0.7; cfg.MutationProb = 0.5 }},
		{"negative crossover", func(cfg *OptimizerConfig) { cfg.CrossoverProb = -0.1 }},
		{"zero workers", func(cfg *OptimizerConfig) { cfg.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewOptimizer(cfg)
			assert.Error(t, err)
		})
	}
}

// A dimension whose bounds collapse to a single value must stay pinned
// through every generation of crossover and mutation.
func TestOptimizerPinnedDimension(t *testing.T) {
	template := &StrategyConfig{
		Long:  map[string]float64{"a": 0, "b": 3},
		Short: map[string]float64{},
	}
	table := map[string][2]float64{
		"long_a": {0, 0},
		"long_b": {1, 5},
	}

	var mu sync.Mutex
	var seen []*StrategyConfig
	engine := &stubEngine{analysis: func(cfg *StrategyConfig) Analysis {
		mu.Lock()
		seen = append(seen, cfg.Clone())
		mu.Unlock()
		a := goodAnalysis()
		a.MDG = 0.01 - math.Abs(cfg.Long["b"]-3)*0.001
		a.SharpeRatio = 0.1 + cfg.Long["b"]*0.01
		return a
	}}

	opt := newTestOptimizer(t, engine, template, table, func(cfg *OptimizerConfig) {
		cfg.PopulationSize = 1
		cfg.Iters = 8
		cfg.Workers = 1
		cfg.Seeds = []*StrategyConfig{{
			Long:  map[string]float64{"a": 0, "b": 3},
			Short: map[string]float64{},
		}}
	})

	summary, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Generations)
	assert.GreaterOrEqual(t, summary.Evaluations, 1)
	assert.Len(t, opt.Logbook().Entries(), 9)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, cfg := range seen {
		assert.Equal(t, 0.0, cfg.Long["a"], "pinned parameter drifted")
		assert.GreaterOrEqual(t, cfg.Long["b"], 1.0)
		assert.LessOrEqual(t, cfg.Long["b"], 5.0)
	}
	for _, member := range opt.Archive().Snapshot() {
		assert.Equal(t, 0.0, member.Genome[0])
	}
}

func TestOptimizerGenerationBudget(t *testing.T) {
	tests := []struct {
		name    string
		popSize int
		iters   int
		want    int
	}{
		{"exact multiple", 4, 8, 2},
		{"rounds up", 4, 10, 3},
		{"single iteration", 4, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := newTestOptimizer(t, &stubEngine{}, testTemplate(), testBoundsTable(testTemplate()), func(cfg *OptimizerConfig) {
				cfg.PopulationSize = tt.popSize
				cfg.Iters = tt.iters
			})
			summary, err := opt.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, summary.Generations)
		})
	}
}

func TestOptimizerGrowsPopulationForSeeds(t *testing.T) {
	template := testTemplate()
	seeds := make([]*StrategyConfig, 4)
	for i := range seeds {
		cfg := template.Clone()
		cfg.Long["n_positions"] = float64(i + 1)
		seeds[i] = cfg
	}

	opt := newTestOptimizer(t, &stubEngine{}, template, testBoundsTable(template), func(cfg *OptimizerConfig) {
		cfg.PopulationSize = 2
		cfg.Iters = 4
		cfg.Seeds = seeds
	})

	summary, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, opt.PopulationSize())
	assert.Equal(t, 1, summary.Generations)

	entries := opt.Logbook().Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, 4, entries[0].Evals)
}

func TestOptimizerSkipsValidOffspring(t *testing.T) {
	engine := &stubEngine{}
	opt := newTestOptimizer(t, engine, testTemplate(), testBoundsTable(testTemplate()), func(cfg *OptimizerConfig) {
		cfg.PopulationSize = 3
		cfg.Iters = 9
		cfg.CrossoverProb = 0
		cfg.MutationProb = 0
	})

	summary, err := opt.Run(context.Background())
	require.NoError(t, err)

	// with zero variation probability every offspring is a copy that keeps
	// its fitness, so only generation zero evaluates
	assert.Equal(t, 3, summary.Evaluations)
	assert.Equal(t, int64(3), engine.calls.Load())
	for _, entry := range opt.Logbook().Entries()[1:] {
		assert.Equal(t, 0, entry.Evals)
	}
}

func TestOptimizerCancellation(t *testing.T) {
	opt := newTestOptimizer(t, &stubEngine{}, testTemplate(), testBoundsTable(testTemplate()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := opt.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizerEngineErrorAborts(t *testing.T) {
	engine := &stubEngine{err: assert.AnError}
	opt := newTestOptimizer(t, engine, testTemplate(), testBoundsTable(testTemplate()), nil)

	_, err := opt.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation 0 evaluation failed")
}

func TestOptimizerDeterministicWithFixedSeed(t *testing.T) {
	run := func() ([]GenerationStats, *RunSummary) {
		opt := newTestOptimizer(t, &stubEngine{analysis: func(cfg *StrategyConfig) Analysis {
			a := goodAnalysis()
			a.MDG = cfg.Long["ema_span_0"] * 1e-6
			a.SharpeRatio = cfg.Short["ema_span_0"] * 1e-4
			return a
		}}, testTemplate(), testBoundsTable(testTemplate()), func(cfg *OptimizerConfig) {
			cfg.Workers = 1
			cfg.RandSeed = 1234
		})
		summary, err := opt.Run(context.Background())
		require.NoError(t, err)
		return opt.Logbook().Entries(), summary
	}

	entries1, summary1 := run()
	entries2, summary2 := run()

	assert.Equal(t, entries1, entries2)
	assert.Equal(t, summary1.Evaluations, summary2.Evaluations)
	assert.Equal(t, summary1.FrontSize, summary2.FrontSize)
}

func TestOptimizerReportsMetrics(t *testing.T) {
	metrics := &fakeMetrics{}
	opt := newTestOptimizer(t, &stubEngine{}, testTemplate(), testBoundsTable(testTemplate()), func(cfg *OptimizerConfig) {
		cfg.Iters = 8
		cfg.PopulationSize = 4
		cfg.Metrics = metrics
	})

	summary, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(summary.Generations+1), metrics.generations.Load())
	assert.Equal(t, int64(summary.Evaluations), metrics.evals.Load())
}
