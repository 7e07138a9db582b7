package optimize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnalysisRecord is the statistics block of one persisted evaluation: the
// engine's analysis plus the two computed scores.
type AnalysisRecord struct {
	Analysis
	W0 float64 `json:"w_0"`
	W1 float64 `json:"w_1"`
}

// ResultRecord is one line of the result log: everything needed to rank and
// reproduce a single evaluation.
type ResultRecord struct {
	Analysis AnalysisRecord  `json:"analysis"`
	Config   *StrategyConfig `json:"config"`
}

// ResultsPath builds the run's result-log path inside dir: a UTC timestamp,
// the symbols joined by underscores (or a count when the list is long) and
// a short random suffix.
func ResultsPath(dir string, symbols []string, now time.Time) string {
	coins := strings.Join(symbols, "_")
	if len(coins) > 32 || coins == "" {
		coins = fmt.Sprintf("%d_coins", len(symbols))
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("%s_%s_%s_all_results.txt", now.UTC().Format("2006-01-02T15_04_05"), coins, suffix)
	return filepath.Join(dir, name)
}

// ResultWriter appends one JSON record per evaluation to an append-only
// log. Every Append is a single whole-line write under a lock, so records
// from concurrent workers never interleave, and a crash mid-run leaves a
// complete log of everything evaluated so far.
type ResultWriter struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewResultWriter creates the log's directory if needed and opens the log
// for appending.
func NewResultWriter(path string) (*ResultWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results log: %w", err)
	}
	return &ResultWriter{f: f, path: path}, nil
}

// Path returns the log file path.
func (w *ResultWriter) Path() string { return w.path }

// Append writes one record as a single JSON line.
func (w *ResultWriter) Append(rec ResultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal result record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("results log %s is closed", w.path)
	}
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("failed to append result record: %w", err)
	}
	return nil
}

// Close closes the underlying file. Safe to call once.
func (w *ResultWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	return f.Close()
}
