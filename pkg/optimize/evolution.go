// Package optimize implements a multi-objective genetic optimizer for
// trading-strategy parameters: a (mu+lambda) evolutionary loop with
// NSGA-II survivor selection, bounded crossover and mutation, parallel
// fitness evaluation against a backtest engine, and append-only result
// persistence.
package optimize

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// OptimizerConfig wires an Optimizer.
type OptimizerConfig struct {
	Bounds         *ParamBounds
	Evaluator      *Evaluator
	PopulationSize int
	Iters          int
	CrossoverProb  float64
	MutationProb   float64
	Workers        int
	Seeds          []*StrategyConfig // starting configurations, may be empty
	RandSeed       int64             // 0 selects a time-based seed
	Metrics        Metrics           // optional
	Logger         zerolog.Logger
}

// Optimizer drives the generational loop. The coordinator does all
// selection and variation sequentially; only fitness evaluation fans out
// to workers, and each generation is a full synchronization barrier.
type Optimizer struct {
	bounds    *ParamBounds
	evaluator *Evaluator
	popSize   int
	iters     int
	cxpb      float64
	mutpb     float64
	workers   int
	seeds     []*StrategyConfig
	rng       *rand.Rand
	ops       *Operators
	archive   *ParetoArchive
	logbook   *Logbook
	metrics   Metrics
	log       zerolog.Logger
	progress  *rate.Limiter
}

// RunSummary is what a completed run reports.
type RunSummary struct {
	Generations int           `json:"generations"`
	Evaluations int           `json:"evaluations"`
	Duration    time.Duration `json:"duration"`
	FrontSize   int           `json:"front_size"`
	ResultsPath string        `json:"results_path"`
}

// NewOptimizer validates the configuration and prepares the loop.
func NewOptimizer(cfg OptimizerConfig) (*Optimizer, error) {
	if cfg.Bounds == nil {
		return nil, fmt.Errorf("optimizer: nil bounds")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("optimizer: nil evaluator")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("optimizer: population size %d", cfg.PopulationSize)
	}
	if cfg.Iters <= 0 {
		return nil, fmt.Errorf("optimizer: iteration budget %d", cfg.Iters)
	}
	if cfg.CrossoverProb < 0 || cfg.MutationProb < 0 || cfg.CrossoverProb+cfg.MutationProb > 1.0 {
		return nil, fmt.Errorf("optimizer: crossover %v + mutation %v must stay within [0, 1]",
			cfg.CrossoverProb, cfg.MutationProb)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("optimizer: worker count %d", cfg.Workers)
	}

	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 -- statistical sampling, not crypto

	return &Optimizer{
		bounds:    cfg.Bounds,
		evaluator: cfg.Evaluator,
		popSize:   cfg.PopulationSize,
		iters:     cfg.Iters,
		cxpb:      cfg.CrossoverProb,
		mutpb:     cfg.MutationProb,
		workers:   cfg.Workers,
		seeds:     cfg.Seeds,
		rng:       rng,
		ops:       NewOperators(cfg.Bounds, rng),
		archive:   NewParetoArchive(),
		logbook:   NewLogbook(),
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		progress:  rate.NewLimiter(rate.Every(2*time.Second), 1),
	}, nil
}

// Archive returns the run's Pareto archive.
func (o *Optimizer) Archive() *ParetoArchive { return o.archive }

// Logbook returns the run's generation statistics.
func (o *Optimizer) Logbook() *Logbook { return o.logbook }

// PopulationSize returns the effective population size, which may exceed
// the configured one when more seeds were supplied.
func (o *Optimizer) PopulationSize() int { return o.popSize }

// initPopulation samples the initial population and overlays the seed
// individuals. When the deduplicated seeds outnumber the configured
// population, the population size grows to fit them all.
func (o *Optimizer) initPopulation() []*Individual {
	seeded := seedIndividuals(o.seeds, o.evaluator.template, o.bounds, o.log)
	if len(seeded) > o.popSize {
		o.log.Info().
			Int("population_size", o.popSize).
			Int("seeds", len(seeded)).
			Msg("increasing population size to fit starting configs")
		o.popSize = len(seeded)
	}

	pop := make([]*Individual, o.popSize)
	for i := range pop {
		pop[i] = &Individual{Genome: o.bounds.Sample(o.rng)}
	}
	copy(pop, seeded)
	return pop
}

// evaluate runs every individual without a valid fitness through the
// evaluator, fanned out over the worker pool. The first error cancels the
// batch and propagates.
func (o *Optimizer) evaluate(ctx context.Context, pop []*Individual) (int, error) {
	var invalid []*Individual
	for _, ind := range pop {
		if !ind.Fitness.Valid {
			invalid = append(invalid, ind)
		}
	}
	if len(invalid) == 0 {
		return 0, nil
	}

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, ind := range invalid {
		g.Go(func() error {
			if err := o.evaluator.Evaluate(ctx, ind); err != nil {
				return err
			}
			n := done.Add(1)
			if o.progress.Allow() {
				o.log.Debug().Int64("done", n).Int("batch", len(invalid)).Msg("evaluating")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(done.Load()), err
	}
	return len(invalid), nil
}

// pick returns one random member of the population.
func (o *Optimizer) pick(pop []*Individual) *Individual {
	return pop[o.rng.Intn(len(pop))]
}

// pickPair returns two distinct random members. A single-member population
// mates an individual with itself, which leaves the genome untouched.
func (o *Optimizer) pickPair(pop []*Individual) (*Individual, *Individual) {
	if len(pop) < 2 {
		return pop[0], pop[0]
	}
	i := o.rng.Intn(len(pop))
	j := o.rng.Intn(len(pop) - 1)
	if j >= i {
		j++
	}
	return pop[i], pop[j]
}

// varOr produces lambda offspring. Each slot independently rolls crossover
// (clone two distinct parents, mate, keep the first child), mutation
// (perturb a cloned parent), or reproduction (copy a parent unchanged).
// Crossed and mutated offspring lose their fitness and are re-evaluated;
// copies keep theirs.
func (o *Optimizer) varOr(pop []*Individual) []*Individual {
	offspring := make([]*Individual, 0, o.popSize)
	for i := 0; i < o.popSize; i++ {
		switch r := o.rng.Float64(); {
		case r < o.cxpb:
			p1, p2 := o.pickPair(pop)
			c1, c2 := p1.Clone(), p2.Clone()
			o.ops.Crossover(c1, c2)
			c1.Invalidate()
			offspring = append(offspring, c1)
		case r < o.cxpb+o.mutpb:
			c := o.pick(pop).Clone()
			o.ops.Mutate(c)
			c.Invalidate()
			offspring = append(offspring, c)
		default:
			offspring = append(offspring, o.pick(pop).Clone())
		}
	}
	return offspring
}

// Run executes the full optimization: initial population and seeding, a
// fixed budget of ceil(iters/population) generations of variation,
// parallel evaluation and NSGA-II survivor selection, archive and logbook
// updates throughout. Cancelling the context stops the run between
// generations and inside evaluation batches; the caller remains
// responsible for releasing the evaluator.
func (o *Optimizer) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()

	pop := o.initPopulation()
	ngen := (o.iters + o.popSize - 1) / o.popSize
	evalTotal := 0

	o.log.Info().
		Int("population_size", o.popSize).
		Int("generations", ngen).
		Int("dimensions", o.bounds.Len()).
		Int("workers", o.workers).
		Str("results", o.evaluator.ResultsPath()).
		Msg("starting optimization")

	n, err := o.evaluate(ctx, pop)
	if err != nil {
		return nil, fmt.Errorf("generation 0 evaluation failed: %w", err)
	}
	evalTotal += n
	o.archive.Update(pop)
	o.record(computeStats(0, n, o.archive.Len(), pop))

	for gen := 1; gen <= ngen; gen++ {
		if err := ctx.Err(); err != nil {
			o.log.Warn().Int("gen", gen).Msg("optimization cancelled")
			return nil, err
		}

		offspring := o.varOr(pop)
		n, err := o.evaluate(ctx, offspring)
		if err != nil {
			return nil, fmt.Errorf("generation %d evaluation failed: %w", gen, err)
		}
		evalTotal += n
		o.archive.Update(offspring)
		pop = SelectNSGA2(append(pop, offspring...), o.popSize)
		o.record(computeStats(gen, n, o.archive.Len(), pop))
	}

	summary := &RunSummary{
		Generations: ngen,
		Evaluations: evalTotal,
		Duration:    time.Since(start),
		FrontSize:   o.archive.Len(),
		ResultsPath: o.evaluator.ResultsPath(),
	}
	o.log.Info().
		Int("generations", summary.Generations).
		Int("evaluations", summary.Evaluations).
		Int("front_size", summary.FrontSize).
		Dur("duration", summary.Duration).
		Msg("optimization complete")
	return summary, nil
}

func (o *Optimizer) record(s GenerationStats) {
	o.logbook.Record(s)
	if o.metrics != nil {
		o.metrics.Generation(s.Gen, s.Front)
	}
	o.log.Info().
		Int("gen", s.Gen).
		Int("evals", s.Evals).
		Int("front", s.Front).
		Floats64("avg", s.Avg[:]).
		Floats64("min", s.Min[:]).
		Floats64("max", s.Max[:]).
		Msg("generation complete")
}
