package optimize

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
)

// StrategyConfig is the structured form of one candidate: the same named bot
// parameters held independently for the long and the short side.
type StrategyConfig struct {
	Long  map[string]float64 `json:"long" yaml:"long"`
	Short map[string]float64 `json:"short" yaml:"short"`
}

// Side returns the parameter set for "long" or "short".
func (c *StrategyConfig) Side(name string) map[string]float64 {
	if name == "long" {
		return c.Long
	}
	return c.Short
}

// Clone deep-copies the configuration.
func (c *StrategyConfig) Clone() *StrategyConfig {
	out := &StrategyConfig{
		Long:  make(map[string]float64, len(c.Long)),
		Short: make(map[string]float64, len(c.Short)),
	}
	for k, v := range c.Long {
		out.Long[k] = v
	}
	for k, v := range c.Short {
		out.Short[k] = v
	}
	return out
}

// MatchesTemplate reports whether the configuration holds exactly the same
// parameter names per side as the template, which is what makes its encoding
// decodable against that template.
func (c *StrategyConfig) MatchesTemplate(template *StrategyConfig) bool {
	for _, side := range sides {
		have, want := c.Side(side), template.Side(side)
		if len(have) != len(want) {
			return false
		}
		for name := range want {
			if _, ok := have[name]; !ok {
				return false
			}
		}
	}
	return true
}

// sortedNames returns a side's parameter names in genome order.
func sortedNames(params map[string]float64) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode flattens a configuration into a genome: sides in "long" then
// "short" order, parameter names sorted within each side. The order is
// stable across calls, so equal configurations encode to equal genomes.
func Encode(config *StrategyConfig) []float64 {
	genome := make([]float64, 0, len(config.Long)+len(config.Short))
	for _, side := range sides {
		params := config.Side(side)
		for _, name := range sortedNames(params) {
			genome = append(genome, params[name])
		}
	}
	return genome
}

// Decode writes genome values into a deep copy of the template, walking the
// same side and name order as Encode. The template is never mutated.
// Decode(Encode(c), template) reproduces c whenever c's parameter set
// matches the template's.
func Decode(genome []float64, template *StrategyConfig) *StrategyConfig {
	config := template.Clone()
	i := 0
	for _, side := range sides {
		params := config.Side(side)
		for _, name := range sortedNames(params) {
			if i < len(genome) {
				params[name] = genome[i]
			}
			i++
		}
	}
	return config
}

// hashGenome produces a content hash of the value sequence, used to
// deduplicate seed configurations that encode to the same genome.
func hashGenome(genome []float64) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range genome {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fitness is the pair of scores attached to an evaluated individual. Both
// are minimized. Valid distinguishes evaluated individuals from fresh or
// perturbed ones that still need an engine run.
type Fitness struct {
	W0    float64 `json:"w_0"`
	W1    float64 `json:"w_1"`
	Valid bool    `json:"-"`
}

// Dominates reports whether f is no worse than other in both scores and
// strictly better in at least one.
func (f Fitness) Dominates(other Fitness) bool {
	if f.W0 > other.W0 || f.W1 > other.W1 {
		return false
	}
	return f.W0 < other.W0 || f.W1 < other.W1
}

// Equal reports whether both score pairs coincide exactly.
func (f Fitness) Equal(other Fitness) bool {
	return f.W0 == other.W0 && f.W1 == other.W1
}

// Individual is one member of the population: a genome plus its fitness and
// the rank and crowding distance survivor selection assigns.
type Individual struct {
	Genome  []float64
	Fitness Fitness

	// set by non-dominated sorting
	Rank     int
	Distance float64
}

// Clone copies the individual, genome included.
func (ind *Individual) Clone() *Individual {
	genome := make([]float64, len(ind.Genome))
	copy(genome, ind.Genome)
	return &Individual{
		Genome:   genome,
		Fitness:  ind.Fitness,
		Rank:     ind.Rank,
		Distance: ind.Distance,
	}
}

// Invalidate drops the fitness so the individual is re-evaluated.
func (ind *Individual) Invalidate() {
	ind.Fitness = Fitness{}
}

// Hash returns the genome's content hash.
func (ind *Individual) Hash() string {
	return hashGenome(ind.Genome)
}
