package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEvaluation(t *testing.T) {
	// Collector values are global, so exercise every branch and verify
	// nothing panics.
	assert.NotPanics(t, func() {
		RecordEvaluation(15*time.Millisecond, false, false)
		RecordEvaluation(250*time.Millisecond, true, false)
		RecordEvaluation(0, false, true)
		RecordEvaluation(12*time.Second, true, true)
	})
}

func TestRecordGeneration(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordGeneration(0, 1)
		RecordGeneration(42, 17)
		RecordGeneration(0, 0)
	})
}

func TestRecorderImplementsMetrics(t *testing.T) {
	var rec Recorder
	assert.NotPanics(t, func() {
		rec.EvalDone(5*time.Millisecond, true, false)
		rec.Generation(3, 9)
	})
}

func TestMetricsExposition(t *testing.T) {
	RecordEvaluation(30*time.Millisecond, true, true)
	RecordGeneration(7, 4)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	body := rec.Body.String()
	assert.Contains(t, body, "optibot_evaluations_total")
	assert.Contains(t, body, "optibot_disqualified_total")
	assert.Contains(t, body, "optibot_cache_hits_total")
	assert.Contains(t, body, "optibot_eval_duration_ms")
	assert.Contains(t, body, "optibot_generation 7")
	assert.Contains(t, body, "optibot_pareto_front_size 4")
}
