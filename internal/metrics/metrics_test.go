package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()
	at := time.Unix(1_700_000_000, 0)

	m.ObserveRun(nil, 120, at)
	m.ObserveRun(errors.New("boom"), 0, at.Add(time.Hour))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues(OutcomeError)))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.CanonicalRows), "failed run keeps the served row count")
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.LastSuccess))
}

func TestObserveLookup(t *testing.T) {
	m := New()
	m.ObserveLookup("get", "hit")
	m.ObserveLookup("get", "hit")
	m.ObserveLookup("get", "miss")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LookupRequests.WithLabelValues("get", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupRequests.WithLabelValues("get", "miss")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStep("aggregate", time.Second, nil)
		m.ObserveRun(nil, 1, time.Now())
		m.ObserveLookup("get", "hit")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveStep("aggregate", 10*time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "card_segments_pipeline_step_duration_seconds")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
