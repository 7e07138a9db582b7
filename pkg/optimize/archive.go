package optimize

import "sync"

// ParetoArchive retains the non-dominated individuals seen across a whole
// run. Membership is decided by fitness alone: a candidate dominated by any
// member is rejected, a candidate with a fitness equal to a member's is a
// duplicate and rejected, and an accepted candidate evicts every member it
// dominates. Safe for concurrent readers while the run appends.
type ParetoArchive struct {
	mu      sync.RWMutex
	members []*Individual
}

// NewParetoArchive returns an empty archive.
func NewParetoArchive() *ParetoArchive {
	return &ParetoArchive{}
}

// Update offers every individual in the batch to the archive. Individuals
// without a valid fitness are ignored.
func (a *ParetoArchive) Update(batch []*Individual) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ind := range batch {
		if !ind.Fitness.Valid {
			continue
		}
		a.offer(ind)
	}
}

func (a *ParetoArchive) offer(ind *Individual) {
	for _, m := range a.members {
		if m.Fitness.Dominates(ind.Fitness) || m.Fitness.Equal(ind.Fitness) {
			return
		}
	}
	kept := a.members[:0]
	for _, m := range a.members {
		if !ind.Fitness.Dominates(m.Fitness) {
			kept = append(kept, m)
		}
	}
	a.members = append(kept, ind.Clone())
}

// Len returns the current archive size.
func (a *ParetoArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.members)
}

// Snapshot returns a copy of the archive members.
func (a *ParetoArchive) Snapshot() []*Individual {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Individual, len(a.members))
	for i, m := range a.members {
		out[i] = m.Clone()
	}
	return out
}
