package optimize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ind(w0, w1 float64) *Individual {
	return &Individual{Fitness: Fitness{W0: w0, W1: w1, Valid: true}}
}

func TestNonDominatedSort(t *testing.T) {
	t.Run("three clean fronts", func(t *testing.T) {
		pop := []*Individual{
			ind(5, 5), // rank 2
			ind(1, 4), // rank 0
			ind(4, 1), // rank 0
			ind(2, 2), // rank 0
			ind(3, 3), // rank 1
		}
		fronts := nonDominatedSort(pop)

		require.Len(t, fronts, 3)
		assert.Len(t, fronts[0], 3)
		assert.Len(t, fronts[1], 1)
		assert.Len(t, fronts[2], 1)
		assert.Equal(t, 0, pop[1].Rank)
		assert.Equal(t, 0, pop[2].Rank)
		assert.Equal(t, 0, pop[3].Rank)
		assert.Equal(t, 1, pop[4].Rank)
		assert.Equal(t, 2, pop[0].Rank)
	})

	t.Run("all mutually non-dominated", func(t *testing.T) {
		pop := []*Individual{ind(1, 4), ind(2, 3), ind(3, 2), ind(4, 1)}
		fronts := nonDominatedSort(pop)
		require.Len(t, fronts, 1)
		assert.Len(t, fronts[0], 4)
	})

	t.Run("duplicated fitness shares a front", func(t *testing.T) {
		pop := []*Individual{ind(1, 1), ind(1, 1), ind(2, 2)}
		fronts := nonDominatedSort(pop)
		require.Len(t, fronts, 2)
		assert.Len(t, fronts[0], 2)
	})
}

func TestCrowdingDistance(t *testing.T) {
	t.Run("boundary individuals are infinite", func(t *testing.T) {
		front := []*Individual{ind(1, 5), ind(2, 4), ind(3, 3), ind(4, 2), ind(5, 1)}
		crowdingDistance(front)

		assert.True(t, math.IsInf(front[0].Distance, 1))
		assert.True(t, math.IsInf(front[4].Distance, 1))
		for _, m := range front[1:4] {
			assert.False(t, math.IsInf(m.Distance, 1))
			assert.Greater(t, m.Distance, 0.0)
		}
	})

	t.Run("spread individuals beat crowded ones", func(t *testing.T) {
		// b sits in a dense cluster, c in open space
		a := ind(0, 10)
		b := ind(1, 8.9)
		bNeighbor := ind(1.1, 8.8)
		c := ind(5, 4)
		d := ind(10, 0)
		front := []*Individual{a, b, bNeighbor, c, d}
		crowdingDistance(front)
		assert.Greater(t, c.Distance, b.Distance)
	})

	t.Run("two members are both boundaries", func(t *testing.T) {
		front := []*Individual{ind(1, 2), ind(2, 1)}
		crowdingDistance(front)
		assert.True(t, math.IsInf(front[0].Distance, 1))
		assert.True(t, math.IsInf(front[1].Distance, 1))
	})
}

func TestSelectNSGA2(t *testing.T) {
	t.Run("keeps whole better fronts", func(t *testing.T) {
		best0 := ind(1, 4)
		best1 := ind(4, 1)
		mid := ind(3, 3)
		worst := ind(9, 9)
		selected := SelectNSGA2([]*Individual{worst, best0, mid, best1}, 3)

		require.Len(t, selected, 3)
		assert.Contains(t, selected, best0)
		assert.Contains(t, selected, best1)
		assert.Contains(t, selected, mid)
	})

	t.Run("cuts the last front by crowding distance", func(t *testing.T) {
		// one front of five, select four: the crowded middle one is dropped
		a := ind(0, 10)
		b := ind(1, 8.9)
		bNeighbor := ind(1.05, 8.85)
		c := ind(5, 4)
		d := ind(10, 0)
		selected := SelectNSGA2([]*Individual{a, b, bNeighbor, c, d}, 4)

		require.Len(t, selected, 4)
		assert.Contains(t, selected, a)
		assert.Contains(t, selected, d)
		assert.Contains(t, selected, c)
		assert.NotContains(t, selected, b)
	})

	t.Run("selection of everything keeps everything", func(t *testing.T) {
		pop := []*Individual{ind(1, 1), ind(2, 2)}
		assert.Len(t, SelectNSGA2(pop, 5), 2)
	})
}
