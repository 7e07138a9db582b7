package optimize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// operatorFixture builds a layout with a pinned dimension sandwiched
// between free ones.
func operatorFixture(t *testing.T) *ParamBounds {
	t.Helper()
	template := &StrategyConfig{
		Long:  map[string]float64{"a": 0.5, "b": 0.25, "c": 100},
		Short: map[string]float64{"a": 0.5, "b": 0.25, "c": 100},
	}
	pb, err := NewParamBounds(template, map[string][2]float64{
		"long_a":  {0, 1},
		"long_b":  {0.25, 0.25}, // pinned
		"long_c":  {10, 500},
		"short_a": {0, 1},
		"short_b": {0.25, 0.25}, // pinned
		"short_c": {10, 500},
	})
	require.NoError(t, err)
	return pb
}

func assertWithinBounds(t *testing.T, pb *ParamBounds, genome []float64) {
	t.Helper()
	for i, d := range pb.Dims() {
		assert.GreaterOrEqual(t, genome[i], d.Bound.Low, "dim %s", d.Key())
		assert.LessOrEqual(t, genome[i], d.Bound.High, "dim %s", d.Key())
	}
}

func TestCrossoverPreservesFixedDimensions(t *testing.T) {
	pb := operatorFixture(t)
	rng := rand.New(rand.NewSource(42))
	ops := NewOperators(pb, rng)

	for i := 0; i < 200; i++ {
		a := &Individual{Genome: pb.Sample(rng)}
		b := &Individual{Genome: pb.Sample(rng)}
		ops.Crossover(a, b)

		assert.Equal(t, 0.25, a.Genome[1])
		assert.Equal(t, 0.25, b.Genome[1])
		assert.Equal(t, 0.25, a.Genome[4])
		assert.Equal(t, 0.25, b.Genome[4])
		assertWithinBounds(t, pb, a.Genome)
		assertWithinBounds(t, pb, b.Genome)
	}
}

func TestMutatePreservesFixedDimensions(t *testing.T) {
	pb := operatorFixture(t)
	rng := rand.New(rand.NewSource(42))
	ops := NewOperators(pb, rng)

	for i := 0; i < 500; i++ {
		ind := &Individual{Genome: pb.Sample(rng)}
		ops.Mutate(ind)

		assert.Equal(t, 0.25, ind.Genome[1])
		assert.Equal(t, 0.25, ind.Genome[4])
		assertWithinBounds(t, pb, ind.Genome)
	}
}

func TestCrossoverPerturbsFreeDimensions(t *testing.T) {
	pb := operatorFixture(t)
	rng := rand.New(rand.NewSource(7))
	ops := NewOperators(pb, rng)

	changed := false
	for i := 0; i < 50 && !changed; i++ {
		a := &Individual{Genome: pb.Sample(rng)}
		b := &Individual{Genome: pb.Sample(rng)}
		beforeA := append([]float64(nil), a.Genome...)
		ops.Crossover(a, b)
		for j := range beforeA {
			if a.Genome[j] != beforeA[j] {
				changed = true
				break
			}
		}
	}
	assert.True(t, changed, "crossover never changed a free dimension")
}

func TestMutatePerturbsFreeDimensions(t *testing.T) {
	pb := operatorFixture(t)
	rng := rand.New(rand.NewSource(7))
	ops := NewOperators(pb, rng)

	changed := false
	for i := 0; i < 200 && !changed; i++ {
		ind := &Individual{Genome: pb.Sample(rng)}
		before := append([]float64(nil), ind.Genome...)
		ops.Mutate(ind)
		for j := range before {
			if ind.Genome[j] != before[j] {
				changed = true
				break
			}
		}
	}
	assert.True(t, changed, "mutation never changed a free dimension")
}

func TestOperatorsOnAllFixedLayout(t *testing.T) {
	template := &StrategyConfig{
		Long:  map[string]float64{"a": 1.0},
		Short: map[string]float64{"a": 2.0},
	}
	pb, err := NewParamBounds(template, map[string][2]float64{
		"long_a":  {1.0, 1.0},
		"short_a": {2.0, 2.0},
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	ops := NewOperators(pb, rng)

	for i := 0; i < 100; i++ {
		a := &Individual{Genome: []float64{1.0, 2.0}}
		b := &Individual{Genome: []float64{1.0, 2.0}}
		ops.Crossover(a, b)
		ops.Mutate(a)

		assert.Equal(t, []float64{1.0, 2.0}, a.Genome)
		assert.Equal(t, []float64{1.0, 2.0}, b.Genome)
	}
}
