package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParetoArchive(t *testing.T) {
	t.Run("keeps mutually non-dominated members", func(t *testing.T) {
		a := NewParetoArchive()
		a.Update([]*Individual{ind(1, 4), ind(4, 1), ind(2, 2)})
		assert.Equal(t, 3, a.Len())
	})

	t.Run("rejects dominated candidates", func(t *testing.T) {
		a := NewParetoArchive()
		a.Update([]*Individual{ind(1, 1)})
		a.Update([]*Individual{ind(2, 2)})
		require.Equal(t, 1, a.Len())
		assert.Equal(t, Fitness{W0: 1, W1: 1, Valid: true}, a.Snapshot()[0].Fitness)
	})

	t.Run("evicts members a candidate dominates", func(t *testing.T) {
		a := NewParetoArchive()
		a.Update([]*Individual{ind(2, 2), ind(1, 5)})
		a.Update([]*Individual{ind(1, 1)})
		snap := a.Snapshot()
		require.Len(t, snap, 2)
		for _, m := range snap {
			assert.NotEqual(t, Fitness{W0: 2, W1: 2, Valid: true}, m.Fitness)
		}
	})

	t.Run("deduplicates by fitness, not genome", func(t *testing.T) {
		a := NewParetoArchive()
		first := &Individual{Genome: []float64{1, 2}, Fitness: Fitness{W0: 1, W1: 1, Valid: true}}
		twin := &Individual{Genome: []float64{9, 9}, Fitness: Fitness{W0: 1, W1: 1, Valid: true}}
		a.Update([]*Individual{first, twin})
		assert.Equal(t, 1, a.Len())
	})

	t.Run("ignores unevaluated individuals", func(t *testing.T) {
		a := NewParetoArchive()
		a.Update([]*Individual{{Genome: []float64{1}}})
		assert.Equal(t, 0, a.Len())
	})

	t.Run("snapshot is detached from the archive", func(t *testing.T) {
		a := NewParetoArchive()
		a.Update([]*Individual{ind(1, 1)})
		snap := a.Snapshot()
		snap[0].Fitness.W0 = 99
		assert.Equal(t, 1.0, a.Snapshot()[0].Fitness.W0)
	})
}

func TestComputeStats(t *testing.T) {
	pop := []*Individual{ind(1, 10), ind(2, 20), ind(3, 30), {Genome: []float64{0}}}
	s := computeStats(7, 3, 2, pop)

	assert.Equal(t, 7, s.Gen)
	assert.Equal(t, 3, s.Evals)
	assert.Equal(t, 2, s.Front)
	assert.InDelta(t, 2.0, s.Avg[0], 1e-9)
	assert.InDelta(t, 20.0, s.Avg[1], 1e-9)
	assert.Equal(t, 1.0, s.Min[0])
	assert.Equal(t, 3.0, s.Max[0])
	assert.Equal(t, 10.0, s.Min[1])
	assert.Equal(t, 30.0, s.Max[1])
	assert.InDelta(t, 0.8164965809, s.Std[0], 1e-6)
}

func TestLogbook(t *testing.T) {
	l := NewLogbook()
	_, ok := l.Last()
	assert.False(t, ok)

	l.Record(GenerationStats{Gen: 0, Evals: 10})
	l.Record(GenerationStats{Gen: 1, Evals: 7})

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Gen)
	assert.Len(t, l.Entries(), 2)
}
