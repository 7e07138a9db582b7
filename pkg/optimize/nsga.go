package optimize

import (
	"math"
	"sort"
)

// nonDominatedSort partitions the population into Pareto fronts and writes
// each individual's rank: 0 for the non-dominated set, 1 for the set that
// becomes non-dominated once rank 0 is removed, and so on.
func nonDominatedSort(pop []*Individual) [][]*Individual {
	n := len(pop)
	dominated := make([][]int, n) // indices each individual dominates
	counts := make([]int, n)      // how many individuals dominate i

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case pop[i].Fitness.Dominates(pop[j].Fitness):
				dominated[i] = append(dominated[i], j)
				counts[j]++
			case pop[j].Fitness.Dominates(pop[i].Fitness):
				dominated[j] = append(dominated[j], i)
				counts[i]++
			}
		}
	}

	var current []int
	for i := 0; i < n; i++ {
		if counts[i] == 0 {
			pop[i].Rank = 0
			current = append(current, i)
		}
	}

	var fronts [][]*Individual
	rank := 0
	for len(current) > 0 {
		front := make([]*Individual, 0, len(current))
		var next []int
		for _, i := range current {
			pop[i].Rank = rank
			front = append(front, pop[i])
			for _, j := range dominated[i] {
				counts[j]--
				if counts[j] == 0 {
					next = append(next, j)
				}
			}
		}
		fronts = append(fronts, front)
		current = next
		rank++
	}
	return fronts
}

// crowdingDistance writes each front member's crowding distance: boundary
// individuals per objective get +Inf, interior ones accumulate the
// normalized span of their neighbors. Larger means less crowded.
func crowdingDistance(front []*Individual) {
	n := len(front)
	if n == 0 {
		return
	}
	for _, ind := range front {
		ind.Distance = 0
	}
	if n <= 2 {
		for _, ind := range front {
			ind.Distance = math.Inf(1)
		}
		return
	}

	objectives := [2]func(*Individual) float64{
		func(ind *Individual) float64 { return ind.Fitness.W0 },
		func(ind *Individual) float64 { return ind.Fitness.W1 },
	}
	order := make([]*Individual, n)
	copy(order, front)

	for _, obj := range objectives {
		sort.Slice(order, func(i, j int) bool { return obj(order[i]) < obj(order[j]) })
		order[0].Distance = math.Inf(1)
		order[n-1].Distance = math.Inf(1)
		span := obj(order[n-1]) - obj(order[0])
		if span == 0 {
			continue
		}
		for i := 1; i < n-1; i++ {
			order[i].Distance += (obj(order[i+1]) - obj(order[i-1])) / span
		}
	}
}

// SelectNSGA2 selects k survivors by non-dominated sorting: whole fronts are
// taken in rank order, and the last front that does not fit entirely is cut
// by descending crowding distance.
func SelectNSGA2(pop []*Individual, k int) []*Individual {
	if k >= len(pop) {
		for _, front := range nonDominatedSort(pop) {
			crowdingDistance(front)
		}
		return pop
	}

	selected := make([]*Individual, 0, k)
	for _, front := range nonDominatedSort(pop) {
		crowdingDistance(front)
		if len(selected)+len(front) <= k {
			selected = append(selected, front...)
			continue
		}
		rest := make([]*Individual, len(front))
		copy(rest, front)
		sort.SliceStable(rest, func(i, j int) bool { return rest[i].Distance > rest[j].Distance })
		selected = append(selected, rest[:k-len(selected)]...)
		break
	}
	return selected
}
