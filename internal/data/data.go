// Package data builds the staged market arrays from historical candles: the
// flat high/low/close history the backtest engine replays and the per-step
// coin-preference matrix ranking coins by rolling traded volume.
package data

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/optibot/internal/config"
)

// Candle is one aggregated price bar of a single symbol.
type Candle struct {
	Timestamp int64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Source yields the full candle history of one symbol, oldest first.
type Source interface {
	Candles(ctx context.Context, symbol string) ([]Candle, error)
	Close() error
}

// Dataset holds the arrays ready for staging: the price history flattened
// steps x coins x (high, low, close) and the preference matrix flattened
// steps x slots, each cell a coin index.
type Dataset struct {
	HLCs    []float64
	Prefs   []int32
	Steps   int
	Coins   int
	Slots   int
	Symbols []string
}

// Load fetches every configured symbol from the configured source and
// assembles the dataset. Series of unequal length are aligned on their most
// recent candles.
func Load(ctx context.Context, cfg config.DataConfig, symbols []string, logger zerolog.Logger) (*Dataset, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("data: no symbols configured")
	}

	source, err := newSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	series := make([][]Candle, len(symbols))
	for i, sym := range symbols {
		candles, err := source.Candles(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("failed to load candles for %s: %w", sym, err)
		}
		if len(candles) == 0 {
			return nil, fmt.Errorf("data: no candles for %s", sym)
		}
		series[i] = candles
	}

	ds, err := Build(symbols, series, cfg.VolumeWindow, cfg.PreferenceSlots)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("source", cfg.Source).
		Strs("symbols", symbols).
		Int("steps", ds.Steps).
		Int("preference_slots", ds.Slots).
		Msg("historical data loaded")
	return ds, nil
}

func newSource(ctx context.Context, cfg config.DataConfig) (Source, error) {
	switch cfg.Source {
	case "csv":
		return NewCSVSource(cfg.CSVDir), nil
	case "clickhouse":
		return NewClickHouseSource(ctx, cfg.ClickHouse)
	}
	return nil, fmt.Errorf("data: unknown source %q", cfg.Source)
}

// Build assembles a dataset from per-symbol candle series. The series are
// truncated to the shortest one, dropping the oldest candles of the longer
// series so every coin's history ends at the same step.
func Build(symbols []string, series [][]Candle, volumeWindow, slots int) (*Dataset, error) {
	if len(series) != len(symbols) {
		return nil, fmt.Errorf("data: %d series for %d symbols", len(series), len(symbols))
	}

	steps := len(series[0])
	for _, s := range series[1:] {
		if len(s) < steps {
			steps = len(s)
		}
	}
	if steps == 0 {
		return nil, fmt.Errorf("data: empty candle series")
	}

	coins := len(symbols)
	if slots <= 0 || slots > coins {
		slots = coins
	}
	if volumeWindow <= 0 {
		volumeWindow = 1
	}

	hlcs := make([]float64, steps*coins*3)
	volumes := make([][]float64, coins)
	for c, s := range series {
		s = s[len(s)-steps:]
		volumes[c] = make([]float64, steps)
		for t, candle := range s {
			if candle.High < candle.Low {
				return nil, fmt.Errorf("data: %s step %d: high %v below low %v",
					symbols[c], t, candle.High, candle.Low)
			}
			base := (t*coins + c) * 3
			hlcs[base] = candle.High
			hlcs[base+1] = candle.Low
			hlcs[base+2] = candle.Close
			volumes[c][t] = candle.Volume * candle.Close
		}
	}

	return &Dataset{
		HLCs:    hlcs,
		Prefs:   rankByVolume(volumes, steps, volumeWindow, slots),
		Steps:   steps,
		Coins:   coins,
		Slots:   slots,
		Symbols: symbols,
	}, nil
}

// rankByVolume fills the preference matrix: at each step the coins ordered
// by their rolling quote-volume sum, highest first, truncated to the slot
// count. Rolling sums are carried incrementally across steps.
func rankByVolume(volumes [][]float64, steps, window, slots int) []int32 {
	coins := len(volumes)
	prefs := make([]int32, steps*slots)
	rolling := make([]float64, coins)
	order := make([]int, coins)

	for t := 0; t < steps; t++ {
		for c := 0; c < coins; c++ {
			rolling[c] += volumes[c][t]
			if t >= window {
				rolling[c] -= volumes[c][t-window]
			}
			order[c] = c
		}
		sort.SliceStable(order, func(i, j int) bool {
			return rolling[order[i]] > rolling[order[j]]
		})
		for k := 0; k < slots; k++ {
			prefs[t*slots+k] = int32(order[k])
		}
	}
	return prefs
}
