package optimize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Disqualification policy: a run that loses everything or whose equity
// never meaningfully diverges from its balance is scored by its constraint
// modifier alone. Fixed policy, not configurable.
const (
	disqualifyDrawdown   = 1.0
	minEquityBalanceDiff = 0.1
)

// constraintOrder lists the constrained statistics highest priority first.
// The power-of-ten weights keep any violation of a higher-priority
// constraint larger than the sum of all lower-priority ones.
var constraintOrder = []struct {
	power  float64
	metric string
}{
	{4, "drawdown_worst"},
	{3, "equity_balance_diff_mean"},
	{2, "loss_profit_ratio"},
}

// Limits are the configured lower bounds of the constrained statistics.
// Values at or below a lower bound contribute nothing to the modifier.
type Limits struct {
	LowerBoundDrawdownWorst         float64 `json:"lower_bound_drawdown_worst" yaml:"lower_bound_drawdown_worst" mapstructure:"lower_bound_drawdown_worst"`
	LowerBoundEquityBalanceDiffMean float64 `json:"lower_bound_equity_balance_diff_mean" yaml:"lower_bound_equity_balance_diff_mean" mapstructure:"lower_bound_equity_balance_diff_mean"`
	LowerBoundLossProfitRatio       float64 `json:"lower_bound_loss_profit_ratio" yaml:"lower_bound_loss_profit_ratio" mapstructure:"lower_bound_loss_profit_ratio"`
}

func (l Limits) lower(metric string) float64 {
	switch metric {
	case "drawdown_worst":
		return l.LowerBoundDrawdownWorst
	case "equity_balance_diff_mean":
		return l.LowerBoundEquityBalanceDiffMean
	case "loss_profit_ratio":
		return l.LowerBoundLossProfitRatio
	}
	return 0
}

// Disqualified reports whether the analysis trips either fixed
// disqualification condition.
func Disqualified(a *Analysis) bool {
	return a.DrawdownWorst >= disqualifyDrawdown || a.EquityBalanceDiffMax < minEquityBalanceDiff
}

// CalcFitness folds an analysis into the two minimization scores. The
// constraint modifier sums each constrained statistic's excess over its
// lower bound, weighted by decreasing powers of ten in priority order. A
// disqualified run scores the modifier alone on both objectives; otherwise
// each score is the modifier minus its configured objective metric.
func CalcFitness(a *Analysis, limits Limits, scoring [2]string) Fitness {
	modifier := 0.0
	for _, c := range constraintOrder {
		actual, _ := a.Metric(c.metric)
		lb := limits.lower(c.metric)
		modifier += (math.Max(lb, actual) - lb) * math.Pow(10, c.power)
	}

	if Disqualified(a) {
		return Fitness{W0: modifier, W1: modifier, Valid: true}
	}

	v0, _ := a.Metric(scoring[0])
	v1, _ := a.Metric(scoring[1])
	return Fitness{W0: modifier - v0, W1: modifier - v1, Valid: true}
}

// Metrics receives instrumentation events from the optimizer. All methods
// must be safe for concurrent use; a nil Metrics disables reporting.
type Metrics interface {
	EvalDone(d time.Duration, disqualified, cached bool)
	Generation(gen, front int)
}

// EvaluatorConfig wires an Evaluator.
type EvaluatorConfig struct {
	Engine      Engine
	Stage       *Stage
	Template    *StrategyConfig
	Limits      Limits
	Scoring     [2]string
	Exchange    []ExchangeParams
	Backtest    BacktestParams
	ResultsPath string
	Cache       *EvalCache // optional
	Metrics     Metrics    // optional
	Logger      zerolog.Logger
}

// Evaluator scores genomes. It owns the staged arrays and the result log;
// Close releases both. Evaluate is safe for concurrent workers: the engine
// is called concurrently and every result is appended as one atomic line.
type Evaluator struct {
	engine   Engine
	stage    *Stage
	template *StrategyConfig
	limits   Limits
	scoring  [2]string
	exchange []ExchangeParams
	params   BacktestParams
	results  *ResultWriter
	cache    *EvalCache
	metrics  Metrics
	log      zerolog.Logger
}

// NewEvaluator validates the wiring, precomputes nothing further (exchange
// and backtest parameters are already run-invariant) and opens the result
// log.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("evaluator: nil engine")
	}
	if cfg.Stage == nil {
		return nil, fmt.Errorf("evaluator: nil stage")
	}
	if cfg.Template == nil {
		return nil, fmt.Errorf("evaluator: nil template")
	}
	var probe Analysis
	for _, name := range cfg.Scoring {
		if _, ok := probe.Metric(name); !ok {
			return nil, fmt.Errorf("evaluator: unknown scoring metric %q", name)
		}
	}
	coins := cfg.Stage.HLCs().Coins()
	if len(cfg.Exchange) != coins {
		return nil, fmt.Errorf("evaluator: %d exchange params for %d coins", len(cfg.Exchange), coins)
	}
	if len(cfg.Backtest.Symbols) != coins {
		return nil, fmt.Errorf("evaluator: %d symbols for %d coins", len(cfg.Backtest.Symbols), coins)
	}

	results, err := NewResultWriter(cfg.ResultsPath)
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		engine:   cfg.Engine,
		stage:    cfg.Stage,
		template: cfg.Template,
		limits:   cfg.Limits,
		scoring:  cfg.Scoring,
		exchange: cfg.Exchange,
		params:   cfg.Backtest,
		results:  results,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}, nil
}

// ResultsPath returns the path of the run's result log.
func (e *Evaluator) ResultsPath() string {
	return e.results.Path()
}

// Evaluate decodes the genome, obtains its analysis (engine call, or cache
// hit when a cache is wired), attaches the fitness to the individual and
// appends the result record. Engine errors abort the evaluation and
// propagate.
func (e *Evaluator) Evaluate(ctx context.Context, ind *Individual) error {
	start := time.Now()
	config := Decode(ind.Genome, e.template)

	var analysis *Analysis
	cached := false
	hash := ""
	if e.cache != nil {
		hash = ind.Hash()
		if a, ok := e.cache.Get(ctx, hash); ok {
			analysis = a
			cached = true
		}
	}
	if analysis == nil {
		res, err := e.engine.Backtest(ctx, e.stage.HLCs(), e.stage.Preferred(), config, e.exchange, e.params)
		if err != nil {
			return fmt.Errorf("backtest failed: %w", err)
		}
		analysis = &res.Analysis
		if e.cache != nil {
			e.cache.Set(ctx, hash, analysis)
		}
	}

	ind.Fitness = CalcFitness(analysis, e.limits, e.scoring)

	rec := ResultRecord{
		Analysis: AnalysisRecord{Analysis: *analysis, W0: ind.Fitness.W0, W1: ind.Fitness.W1},
		Config:   config,
	}
	if err := e.results.Append(rec); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.EvalDone(time.Since(start), Disqualified(analysis), cached)
	}
	return nil
}

// Close releases the staged arrays and the result log. The stage release
// happens exactly once across all Close calls; a second Close returns
// ErrStageReleased.
func (e *Evaluator) Close() error {
	err := e.stage.Release()
	if cerr := e.results.Close(); err == nil {
		err = cerr
	}
	return err
}
