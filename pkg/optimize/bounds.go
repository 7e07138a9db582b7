package optimize

import (
	"fmt"
	"math/rand"
	"sort"
)

// sides of a strategy configuration, in genome order
var sides = [2]string{"long", "short"}

// Bound is a closed parameter interval.
type Bound struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Fixed reports whether the interval has zero width, i.e. the parameter is
// pinned to a single value.
func (b Bound) Fixed() bool {
	return b.Low == b.High
}

// Clamp forces v into the interval.
func (b Bound) Clamp(v float64) float64 {
	if v < b.Low {
		return b.Low
	}
	if v > b.High {
		return b.High
	}
	return v
}

// Dimension names one genome slot: the side and parameter it maps to, and the
// interval its values are confined to.
type Dimension struct {
	Side  string `json:"side"`
	Name  string `json:"name"`
	Bound Bound  `json:"bound"`
}

// Key returns the bounds-table key for the dimension, "<side>_<name>".
func (d Dimension) Key() string {
	return d.Side + "_" + d.Name
}

// ParamBounds fixes the genome layout for a run: one dimension per side and
// parameter, sides in "long" then "short" order, parameter names sorted
// within a side. The same layout is what Encode and Decode walk, so a genome
// index always addresses the same configuration field.
type ParamBounds struct {
	dims []Dimension
}

// NewParamBounds derives the genome layout from a template configuration and
// a bounds table keyed "<side>_<name>". Every template parameter must have a
// bound, and every bound must satisfy low <= high.
func NewParamBounds(template *StrategyConfig, bounds map[string][2]float64) (*ParamBounds, error) {
	if template == nil {
		return nil, fmt.Errorf("bounds: nil template")
	}

	dims := make([]Dimension, 0, len(template.Long)+len(template.Short))
	for _, side := range sides {
		params := template.Side(side)
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			key := side + "_" + name
			interval, ok := bounds[key]
			if !ok {
				return nil, fmt.Errorf("bounds: no interval configured for %s", key)
			}
			if interval[0] > interval[1] {
				return nil, fmt.Errorf("bounds: %s has low %v > high %v", key, interval[0], interval[1])
			}
			dims = append(dims, Dimension{
				Side:  side,
				Name:  name,
				Bound: Bound{Low: interval[0], High: interval[1]},
			})
		}
	}

	if len(dims) == 0 {
		return nil, fmt.Errorf("bounds: template has no parameters")
	}

	return &ParamBounds{dims: dims}, nil
}

// Len returns the genome dimensionality.
func (pb *ParamBounds) Len() int {
	return len(pb.dims)
}

// Dims returns the ordered dimensions backing the genome layout.
func (pb *ParamBounds) Dims() []Dimension {
	return pb.dims
}

// Sample draws a genome uniformly within every dimension's interval.
func (pb *ParamBounds) Sample(rng *rand.Rand) []float64 {
	genome := make([]float64, len(pb.dims))
	for i, d := range pb.dims {
		genome[i] = d.Bound.Low + rng.Float64()*(d.Bound.High-d.Bound.Low)
	}
	return genome
}

// Clamp forces every genome value into its dimension's interval, in place.
func (pb *ParamBounds) Clamp(genome []float64) {
	for i, d := range pb.dims {
		if i >= len(genome) {
			return
		}
		genome[i] = d.Bound.Clamp(genome[i])
	}
}
