package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CSVSource reads per-symbol candle files from a directory. Each symbol maps
// to <dir>/<symbol>.csv with the columns timestamp, open, high, low, close,
// volume; a header row is detected and skipped.
type CSVSource struct {
	dir string
}

// NewCSVSource creates a source over a candle directory.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// Candles reads one symbol's file.
func (s *CSVSource) Candles(ctx context.Context, symbol string) ([]Candle, error) {
	path := filepath.Join(s.dir, sanitizeSymbol(symbol)+".csv")
	f, err := os.Open(path) // #nosec G304 -- path built from the configured data dir
	if err != nil {
		return nil, fmt.Errorf("failed to open candle file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	candles := make([]Candle, 0, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			if i == 0 {
				// header row
				continue
			}
			return nil, fmt.Errorf("%s line %d: bad timestamp %q", path, i+1, rec[0])
		}
		c := Candle{Timestamp: ts}
		for j, dst := range []*float64{&c.High, &c.Low, &c.Close, &c.Volume} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j+2]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad value %q", path, i+1, rec[j+2])
			}
			*dst = v
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// Close is a no-op; the source opens files per call.
func (s *CSVSource) Close() error { return nil }

func sanitizeSymbol(symbol string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(symbol)
}
