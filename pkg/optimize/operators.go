package optimize

import (
	"math"
	"math/rand"
)

const (
	// distribution index for both operators
	defaultEta = 20.0

	// fixed (zero-width) dimensions are widened by this much before an
	// operator runs, then snapped back to the bound afterwards
	fixedBoundEps = 1e-6
)

// Operators applies simulated-binary crossover and polynomial mutation
// confined to the run's parameter bounds. Both operators divide by the bound
// range, so zero-width dimensions are widened by a small epsilon before
// delegating and every originally fixed dimension is forced back to its
// bound in the offspring afterwards. Only free dimensions are ever actually
// perturbed.
type Operators struct {
	low   []float64  // widened lower bounds
	up    []float64  // widened upper bounds
	fixed []fixedDim // zero-width dimensions and their pinned values
	eta   float64
	indpb float64 // per-dimension mutation probability
	rng   *rand.Rand
}

type fixedDim struct {
	index int
	value float64
}

// NewOperators prepares operators for the given layout. The mutation applies
// per dimension with probability 1/Len.
func NewOperators(bounds *ParamBounds, rng *rand.Rand) *Operators {
	n := bounds.Len()
	ops := &Operators{
		low:   make([]float64, n),
		up:    make([]float64, n),
		eta:   defaultEta,
		indpb: 1.0 / float64(n),
		rng:   rng,
	}
	for i, d := range bounds.Dims() {
		ops.low[i] = d.Bound.Low
		ops.up[i] = d.Bound.High
		if d.Bound.Fixed() {
			ops.low[i] -= fixedBoundEps
			ops.up[i] += fixedBoundEps
			ops.fixed = append(ops.fixed, fixedDim{index: i, value: d.Bound.Low})
		}
	}
	return ops
}

// resetFixed snaps every originally fixed dimension back to its bound,
// discarding whatever the bounded operator computed there.
func (o *Operators) resetFixed(genomes ...[]float64) {
	for _, g := range genomes {
		for _, f := range o.fixed {
			g[f.index] = f.value
		}
	}
}

// Crossover mates two individuals in place with simulated binary crossover,
// producing two children.
func (o *Operators) Crossover(a, b *Individual) {
	o.cxSimulatedBinaryBounded(a.Genome, b.Genome)
	o.resetFixed(a.Genome, b.Genome)
}

// Mutate perturbs an individual in place with polynomial mutation, each
// dimension independently with probability indpb.
func (o *Operators) Mutate(ind *Individual) {
	o.mutPolynomialBounded(ind.Genome)
	o.resetFixed(ind.Genome)
}

// cxSimulatedBinaryBounded is Deb's simulated binary crossover with bounds,
// distribution index eta. Each dimension crosses with probability 0.5; the
// children are clipped to the bounds and randomly swapped per dimension.
func (o *Operators) cxSimulatedBinaryBounded(g1, g2 []float64) {
	for i := range g1 {
		if o.rng.Float64() > 0.5 {
			continue
		}
		if math.Abs(g1[i]-g2[i]) <= 1e-14 {
			continue
		}

		x1 := math.Min(g1[i], g2[i])
		x2 := math.Max(g1[i], g2[i])
		xl, xu := o.low[i], o.up[i]
		r := o.rng.Float64()

		beta := 1.0 + 2.0*(x1-xl)/(x2-x1)
		alpha := 2.0 - math.Pow(beta, -(o.eta+1))
		var betaQ float64
		if r <= 1.0/alpha {
			betaQ = math.Pow(r*alpha, 1.0/(o.eta+1))
		} else {
			betaQ = math.Pow(1.0/(2.0-r*alpha), 1.0/(o.eta+1))
		}
		c1 := 0.5 * (x1 + x2 - betaQ*(x2-x1))

		beta = 1.0 + 2.0*(xu-x2)/(x2-x1)
		alpha = 2.0 - math.Pow(beta, -(o.eta+1))
		if r <= 1.0/alpha {
			betaQ = math.Pow(r*alpha, 1.0/(o.eta+1))
		} else {
			betaQ = math.Pow(1.0/(2.0-r*alpha), 1.0/(o.eta+1))
		}
		c2 := 0.5 * (x1 + x2 + betaQ*(x2-x1))

		c1 = math.Min(math.Max(c1, xl), xu)
		c2 = math.Min(math.Max(c2, xl), xu)

		if o.rng.Float64() <= 0.5 {
			g1[i], g2[i] = c2, c1
		} else {
			g1[i], g2[i] = c1, c2
		}
	}
}

// mutPolynomialBounded is Deb's polynomial bounded mutation with
// distribution index eta.
func (o *Operators) mutPolynomialBounded(g []float64) {
	for i := range g {
		if o.rng.Float64() > o.indpb {
			continue
		}

		x := g[i]
		xl, xu := o.low[i], o.up[i]
		delta1 := (x - xl) / (xu - xl)
		delta2 := (xu - x) / (xu - xl)
		r := o.rng.Float64()
		mutPow := 1.0 / (o.eta + 1)

		var deltaQ float64
		if r < 0.5 {
			xy := 1.0 - delta1
			val := 2.0*r + (1.0-2.0*r)*math.Pow(xy, o.eta+1)
			deltaQ = math.Pow(val, mutPow) - 1.0
		} else {
			xy := 1.0 - delta2
			val := 2.0*(1.0-r) + 2.0*(r-0.5)*math.Pow(xy, o.eta+1)
			deltaQ = 1.0 - math.Pow(val, mutPow)
		}

		x += deltaQ * (xu - xl)
		g[i] = math.Min(math.Max(x, xl), xu)
	}
}
