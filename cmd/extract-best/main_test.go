package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/optibot/pkg/optimize"
)

func record(w0, w1 float64) optimize.ResultRecord {
	return optimize.ResultRecord{
		Analysis: optimize.AnalysisRecord{W0: w0, W1: w1},
		Config: &optimize.StrategyConfig{
			Long:  map[string]float64{"w0": w0},
			Short: map[string]float64{"w1": w1},
		},
	}
}

func scores(records []optimize.ResultRecord) [][2]float64 {
	out := make([][2]float64, len(records))
	for i, r := range records {
		out[i] = [2]float64{r.Analysis.W0, r.Analysis.W1}
	}
	return out
}

func TestNonDominated(t *testing.T) {
	t.Run("DropsDominatedRecords", func(t *testing.T) {
		front := nonDominated([]optimize.ResultRecord{
			record(1, 1),
			record(2, 2), // dominated by (1,1)
			record(0, 3),
			record(3, 0),
		})
		assert.ElementsMatch(t, [][2]float64{{1, 1}, {0, 3}, {3, 0}}, scores(front))
	})

	t.Run("LaterRecordEvictsDominatedMembers", func(t *testing.T) {
		front := nonDominated([]optimize.ResultRecord{
			record(2, 2),
			record(3, 1),
			record(1, 1), // dominates both
		})
		assert.Equal(t, [][2]float64{{1, 1}}, scores(front))
	})

	t.Run("DuplicateScoresKeptOnce", func(t *testing.T) {
		front := nonDominated([]optimize.ResultRecord{
			record(1, 2),
			record(1, 2),
		})
		assert.Len(t, front, 1)
	})
}

func TestPickBest(t *testing.T) {
	t.Run("PicksClosestToIdealCorner", func(t *testing.T) {
		// Normalized: (0,1), (1,0) and (0.1, 0.1); the knee wins.
		best := pickBest([]optimize.ResultRecord{
			record(0, 10),
			record(10, 0),
			record(1, 1),
		})
		assert.Equal(t, [2]float64{1, 1}, [2]float64{best.Analysis.W0, best.Analysis.W1})
	})

	t.Run("SingleMember", func(t *testing.T) {
		best := pickBest([]optimize.ResultRecord{record(5, 5)})
		assert.Equal(t, 5.0, best.Analysis.W0)
	})
}

func TestReadResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.txt")
	content := `{"analysis":{"adg":0.001,"w_0":-0.5,"w_1":-1.0},"config":{"long":{"x":1},"short":{"x":2}}}
{"analysis":{"w_0":-0.4,"w_1":-1.2},"config":{"long":{"x":3},"short":{"x":4}}}
{"analysis":{"w_0":9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := readResults(path)
	require.NoError(t, err)

	// the torn final line is skipped
	require.Len(t, records, 2)
	assert.Equal(t, -0.5, records[0].Analysis.W0)
	assert.Equal(t, 1.0, records[0].Config.Long["x"])

	t.Run("MissingFile", func(t *testing.T) {
		_, err := readResults(filepath.Join(t.TempDir(), "nope.txt"))
		assert.ErrorContains(t, err, "failed to open result log")
	})
}
