package optimize

import (
	"math"
	"sync"
)

// GenerationStats summarizes the fitness spread of one generation's
// surviving population, per objective.
type GenerationStats struct {
	Gen   int        `json:"gen"`
	Evals int        `json:"evals"`
	Avg   [2]float64 `json:"avg"`
	Std   [2]float64 `json:"std"`
	Min   [2]float64 `json:"min"`
	Max   [2]float64 `json:"max"`
	Front int        `json:"front"`
}

// computeStats folds the population's fitness values into avg/std/min/max
// per objective. Individuals without a valid fitness are skipped.
func computeStats(gen, evals, front int, pop []*Individual) GenerationStats {
	s := GenerationStats{Gen: gen, Evals: evals, Front: front}
	for i := range s.Min {
		s.Min[i] = math.Inf(1)
		s.Max[i] = math.Inf(-1)
	}

	n := 0
	var sum, sumSq [2]float64
	for _, ind := range pop {
		if !ind.Fitness.Valid {
			continue
		}
		n++
		for i, v := range [2]float64{ind.Fitness.W0, ind.Fitness.W1} {
			sum[i] += v
			sumSq[i] += v * v
			s.Min[i] = math.Min(s.Min[i], v)
			s.Max[i] = math.Max(s.Max[i], v)
		}
	}
	if n == 0 {
		return GenerationStats{Gen: gen, Evals: evals, Front: front}
	}
	for i := range sum {
		s.Avg[i] = sum[i] / float64(n)
		variance := sumSq[i]/float64(n) - s.Avg[i]*s.Avg[i]
		if variance > 0 {
			s.Std[i] = math.Sqrt(variance)
		}
	}
	return s
}

// Logbook is the run's chronological record of generation statistics. Safe
// for concurrent readers while the run appends.
type Logbook struct {
	mu      sync.RWMutex
	entries []GenerationStats
}

// NewLogbook returns an empty logbook.
func NewLogbook() *Logbook {
	return &Logbook{}
}

// Record appends one generation's statistics.
func (l *Logbook) Record(s GenerationStats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

// Entries returns a copy of all recorded statistics.
func (l *Logbook) Entries() []GenerationStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]GenerationStats, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the most recent entry, if any.
func (l *Logbook) Last() (GenerationStats, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return GenerationStats{}, false
	}
	return l.entries[len(l.entries)-1], true
}
