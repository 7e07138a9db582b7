// Package store persists optimization runs to PostgreSQL: run metadata with
// a config snapshot, per-generation statistics and the final Pareto front.
// The store is an optional collaborator; the optimizer runs without it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

// RunStatus represents the lifecycle state of a persisted run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// PoolInterface defines the pool operations the store uses.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Run is the metadata recorded when an optimization starts.
type Run struct {
	ID             uuid.UUID
	StartedAt      time.Time
	Symbols        []string
	PopulationSize int
	Generations    int
	Scoring        []string
	Config         any // full run configuration, stored as JSON
	ResultsPath    string
}

// FrontMember is one entry of the persisted Pareto front.
type FrontMember struct {
	W0     float64
	W1     float64
	Config *optimize.StrategyConfig
}

// Store records optimization runs.
type Store struct {
	pool PoolInterface
	log  zerolog.Logger
}

// New connects to the database, verifies the connection and prepares the
// schema.
func New(ctx context.Context, url string, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, log: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool without touching the schema.
func NewWithPool(pool PoolInterface, logger zerolog.Logger) *Store {
	return &Store{pool: pool, log: logger}
}

// EnsureSchema creates the run tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS optimization_runs (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			symbols TEXT[] NOT NULL,
			population_size INT NOT NULL,
			generations INT NOT NULL,
			scoring TEXT[] NOT NULL,
			config JSONB NOT NULL,
			results_path TEXT NOT NULL,
			evaluations INT NOT NULL DEFAULT 0,
			front_size INT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS run_generations (
			run_id UUID NOT NULL REFERENCES optimization_runs(id) ON DELETE CASCADE,
			gen INT NOT NULL,
			evals INT NOT NULL,
			avg_w0 DOUBLE PRECISION NOT NULL,
			avg_w1 DOUBLE PRECISION NOT NULL,
			std_w0 DOUBLE PRECISION NOT NULL,
			std_w1 DOUBLE PRECISION NOT NULL,
			min_w0 DOUBLE PRECISION NOT NULL,
			min_w1 DOUBLE PRECISION NOT NULL,
			max_w0 DOUBLE PRECISION NOT NULL,
			max_w1 DOUBLE PRECISION NOT NULL,
			front INT NOT NULL,
			PRIMARY KEY (run_id, gen)
		);
		CREATE TABLE IF NOT EXISTS run_front (
			run_id UUID NOT NULL REFERENCES optimization_runs(id) ON DELETE CASCADE,
			w0 DOUBLE PRECISION NOT NULL,
			w1 DOUBLE PRECISION NOT NULL,
			config JSONB NOT NULL
		);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create run schema: %w", err)
	}
	return nil
}

// CreateRun inserts the run in the running state. A missing ID or start
// time is filled in.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal run config: %w", err)
	}

	query := `
		INSERT INTO optimization_runs (
			id, status, symbols, population_size, generations,
			scoring, config, results_path, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(ctx, query,
		run.ID, RunStatusRunning, run.Symbols, run.PopulationSize, run.Generations,
		run.Scoring, configJSON, run.ResultsPath, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert optimization run: %w", err)
	}

	s.log.Info().Str("run_id", run.ID.String()).Msg("optimization run recorded")
	return nil
}

// RecordGeneration inserts one generation's statistics.
func (s *Store) RecordGeneration(ctx context.Context, runID uuid.UUID, stats optimize.GenerationStats) error {
	query := `
		INSERT INTO run_generations (
			run_id, gen, evals,
			avg_w0, avg_w1, std_w0, std_w1,
			min_w0, min_w1, max_w0, max_w1, front
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, gen) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		runID, stats.Gen, stats.Evals,
		stats.Avg[0], stats.Avg[1], stats.Std[0], stats.Std[1],
		stats.Min[0], stats.Min[1], stats.Max[0], stats.Max[1], stats.Front,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation stats: %w", err)
	}
	return nil
}

// RecordGenerations inserts a batch of generation statistics.
func (s *Store) RecordGenerations(ctx context.Context, runID uuid.UUID, entries []optimize.GenerationStats) error {
	for _, stats := range entries {
		if err := s.RecordGeneration(ctx, runID, stats); err != nil {
			return err
		}
	}
	return nil
}

// SaveFront replaces the run's persisted Pareto front.
func (s *Store) SaveFront(ctx context.Context, runID uuid.UUID, members []FrontMember) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM run_front WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear previous front: %w", err)
	}
	for _, m := range members {
		configJSON, err := json.Marshal(m.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal front config: %w", err)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO run_front (run_id, w0, w1, config) VALUES ($1, $2, $3, $4)`,
			runID, m.W0, m.W1, configJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert front member: %w", err)
		}
	}
	return nil
}

// FinishRun records the run's terminal state.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, status RunStatus, evaluations, frontSize int, errMsg string) error {
	query := `
		UPDATE optimization_runs
		SET status = $1,
		    evaluations = $2,
		    front_size = $3,
		    error_message = $4,
		    finished_at = $5
		WHERE id = $6
	`
	_, err := s.pool.Exec(ctx, query, status, evaluations, frontSize, errMsg, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	s.log.Info().
		Str("run_id", runID.String()).
		Str("status", string(status)).
		Int("evaluations", evaluations).
		Int("front_size", frontSize).
		Msg("optimization run finished")
	return nil
}

// GetRun retrieves a run's metadata and counters.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*Run, RunStatus, error) {
	query := `
		SELECT id, status, symbols, population_size, generations,
		       scoring, config, results_path, evaluations, front_size, started_at
		FROM optimization_runs
		WHERE id = $1
	`
	var (
		run        Run
		status     RunStatus
		configJSON []byte
		evals      int
		frontSize  int
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID, &status, &run.Symbols, &run.PopulationSize, &run.Generations,
		&run.Scoring, &configJSON, &run.ResultsPath, &evals, &frontSize, &run.StartedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to retrieve run: %w", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal run config: %w", err)
	}
	run.Config = cfg
	return &run, status, nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
