package optimize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTemplate() *StrategyConfig {
	return &StrategyConfig{
		Long: map[string]float64{
			"ema_span_0":            1320.0,
			"ema_span_1":            1440.0,
			"entry_initial_qty_pct": 0.01,
			"n_positions":           8.0,
			"wallet_exposure_limit": 1.0,
			"close_grid_min_markup": 0.003,
		},
		Short: map[string]float64{
			"ema_span_0":            1320.0,
			"ema_span_1":            1440.0,
			"entry_initial_qty_pct": 0.01,
			"n_positions":           8.0,
			"wallet_exposure_limit": 1.0,
			"close_grid_min_markup": 0.003,
		},
	}
}

func testBoundsTable(template *StrategyConfig) map[string][2]float64 {
	bounds := make(map[string][2]float64)
	for _, side := range sides {
		for name := range template.Side(side) {
			bounds[side+"_"+name] = [2]float64{0, 2000}
		}
	}
	return bounds
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	template := testTemplate()

	t.Run("roundtrip reproduces the config", func(t *testing.T) {
		config := template.Clone()
		config.Long["ema_span_0"] = 55.5
		config.Short["n_positions"] = 3.0

		decoded := Decode(Encode(config), template)
		assert.Equal(t, config, decoded)
	})

	t.Run("encode order is stable", func(t *testing.T) {
		config := template.Clone()
		assert.Equal(t, Encode(config), Encode(config.Clone()))
	})

	t.Run("decode never mutates the template", func(t *testing.T) {
		genome := make([]float64, len(template.Long)+len(template.Short))
		for i := range genome {
			genome[i] = 999.0
		}
		before := template.Clone()
		_ = Decode(genome, template)
		assert.Equal(t, before, template)
	})

	t.Run("long side encodes before short", func(t *testing.T) {
		config := &StrategyConfig{
			Long:  map[string]float64{"x": 1.0},
			Short: map[string]float64{"x": 2.0},
		}
		assert.Equal(t, []float64{1.0, 2.0}, Encode(config))
	})

	t.Run("names encode in sorted order within a side", func(t *testing.T) {
		config := &StrategyConfig{
			Long:  map[string]float64{"b": 2.0, "a": 1.0, "c": 3.0},
			Short: map[string]float64{},
		}
		assert.Equal(t, []float64{1.0, 2.0, 3.0}, Encode(config))
	})
}

func TestMatchesTemplate(t *testing.T) {
	template := testTemplate()

	match := template.Clone()
	match.Long["ema_span_0"] = 1.0
	assert.True(t, match.MatchesTemplate(template))

	missing := template.Clone()
	delete(missing.Long, "ema_span_0")
	assert.False(t, missing.MatchesTemplate(template))

	renamed := template.Clone()
	delete(renamed.Long, "ema_span_0")
	renamed.Long["ema_span_9"] = 1.0
	assert.False(t, renamed.MatchesTemplate(template))
}

func TestGenomeHash(t *testing.T) {
	a := []float64{1.0, 2.0, 3.0}
	b := []float64{1.0, 2.0, 3.0}
	c := []float64{1.0, 2.0, 3.000001}

	assert.Equal(t, hashGenome(a), hashGenome(b))
	assert.NotEqual(t, hashGenome(a), hashGenome(c))
}

func TestFitnessDominates(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Fitness
		dominates bool
	}{
		{"strictly better in both", Fitness{W0: 1, W1: 1}, Fitness{W0: 2, W1: 2}, true},
		{"better in one, equal in other", Fitness{W0: 1, W1: 2}, Fitness{W0: 2, W1: 2}, true},
		{"equal", Fitness{W0: 1, W1: 1}, Fitness{W0: 1, W1: 1}, false},
		{"worse in one", Fitness{W0: 1, W1: 3}, Fitness{W0: 2, W1: 2}, false},
		{"worse in both", Fitness{W0: 3, W1: 3}, Fitness{W0: 2, W1: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dominates, tt.a.Dominates(tt.b))
		})
	}
}

func TestIndividualClone(t *testing.T) {
	ind := &Individual{Genome: []float64{1, 2}, Fitness: Fitness{W0: 1, W1: 2, Valid: true}}
	clone := ind.Clone()

	clone.Genome[0] = 99
	clone.Fitness.W0 = 99

	assert.Equal(t, 1.0, ind.Genome[0])
	assert.Equal(t, 1.0, ind.Fitness.W0)
	assert.True(t, clone.Fitness.Valid)
}

func TestParamBounds(t *testing.T) {
	template := testTemplate()

	t.Run("dimension order is long then short, names sorted", func(t *testing.T) {
		pb, err := NewParamBounds(template, testBoundsTable(template))
		require.NoError(t, err)
		require.Equal(t, 12, pb.Len())

		dims := pb.Dims()
		assert.Equal(t, "long", dims[0].Side)
		assert.Equal(t, "close_grid_min_markup", dims[0].Name)
		assert.Equal(t, "short", dims[6].Side)
		assert.Equal(t, "close_grid_min_markup", dims[6].Name)
		for i := 1; i < 6; i++ {
			assert.Less(t, dims[i-1].Name, dims[i].Name)
		}
	})

	t.Run("missing bound is an error", func(t *testing.T) {
		bounds := testBoundsTable(template)
		delete(bounds, "short_n_positions")
		_, err := NewParamBounds(template, bounds)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "short_n_positions")
	})

	t.Run("inverted bound is an error", func(t *testing.T) {
		bounds := testBoundsTable(template)
		bounds["long_ema_span_0"] = [2]float64{10, 5}
		_, err := NewParamBounds(template, bounds)
		assert.Error(t, err)
	})

	t.Run("sample stays within bounds", func(t *testing.T) {
		pb, err := NewParamBounds(template, testBoundsTable(template))
		require.NoError(t, err)

		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 100; i++ {
			genome := pb.Sample(rng)
			for j, d := range pb.Dims() {
				assert.GreaterOrEqual(t, genome[j], d.Bound.Low)
				assert.LessOrEqual(t, genome[j], d.Bound.High)
			}
		}
	})

	t.Run("clamp forces values into bounds", func(t *testing.T) {
		pb, err := NewParamBounds(template, testBoundsTable(template))
		require.NoError(t, err)

		genome := make([]float64, pb.Len())
		genome[0] = -5
		genome[1] = 1e9
		pb.Clamp(genome)
		assert.Equal(t, 0.0, genome[0])
		assert.Equal(t, 2000.0, genome[1])
	})
}
