// Result-log extractor
// Scans an optimization result log, recomputes the non-dominated front over
// the two recorded scores and prints the configuration closest to the
// normalized ideal point.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

var (
	resultsPath = flag.String("results", "", "Path to the result log to scan")
	showFront   = flag.Bool("front", false, "Print the whole non-dominated front instead of the best member")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *resultsPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -results flag is required")
		flag.Usage()
		os.Exit(1)
	}

	records, err := readResults(*resultsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read result log")
	}
	if len(records) == 0 {
		log.Fatal().Str("path", *resultsPath).Msg("Result log holds no usable records")
	}

	front := nonDominated(records)
	log.Info().
		Int("records", len(records)).
		Int("front", len(front)).
		Msg("Result log scanned")

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")

	if *showFront {
		if err := out.Encode(front); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode front")
		}
		return
	}

	best := pickBest(front)
	log.Info().
		Float64("w_0", best.Analysis.W0).
		Float64("w_1", best.Analysis.W1).
		Msg("Best configuration selected")
	if err := out.Encode(best); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode best record")
	}
}

// readResults parses the JSONL log, skipping lines that fail to decode (a
// crashed run can leave a torn final line).
func readResults(path string) ([]optimize.ResultRecord, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to open result log: %w", err)
	}
	defer f.Close()

	var records []optimize.ResultRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec optimize.ResultRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			log.Debug().Int("line", line).Err(err).Msg("Skipping unreadable record")
			continue
		}
		if rec.Config == nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan result log: %w", err)
	}
	return records, nil
}

// nonDominated filters the records down to the Pareto front over (w_0, w_1),
// dropping duplicate score pairs.
func nonDominated(records []optimize.ResultRecord) []optimize.ResultRecord {
	var front []optimize.ResultRecord
	for _, rec := range records {
		f := optimize.Fitness{W0: rec.Analysis.W0, W1: rec.Analysis.W1}
		dominated := false
		kept := front[:0]
		for _, m := range front {
			mf := optimize.Fitness{W0: m.Analysis.W0, W1: m.Analysis.W1}
			if mf.Dominates(f) || mf.Equal(f) {
				dominated = true
			}
			if dominated || !f.Dominates(mf) {
				kept = append(kept, m)
			}
		}
		front = kept
		if !dominated {
			front = append(front, rec)
		}
	}
	return front
}

// pickBest normalizes both scores over the front's span and returns the
// member closest to the ideal (minimum) corner.
func pickBest(front []optimize.ResultRecord) optimize.ResultRecord {
	minW := [2]float64{math.Inf(1), math.Inf(1)}
	maxW := [2]float64{math.Inf(-1), math.Inf(-1)}
	for _, rec := range front {
		for i, v := range [2]float64{rec.Analysis.W0, rec.Analysis.W1} {
			minW[i] = math.Min(minW[i], v)
			maxW[i] = math.Max(maxW[i], v)
		}
	}

	best := front[0]
	bestDist := math.Inf(1)
	for _, rec := range front {
		dist := 0.0
		for i, v := range [2]float64{rec.Analysis.W0, rec.Analysis.W1} {
			span := maxW[i] - minW[i]
			if span == 0 {
				continue
			}
			n := (v - minW[i]) / span
			dist += n * n
		}
		if dist < bestDist {
			bestDist = dist
			best = rec
		}
	}
	return best
}
