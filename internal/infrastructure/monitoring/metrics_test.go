package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatheredNames(t *testing.T, m *Metrics) map[string]bool {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	m1 := NewMetrics()
	m2 := NewMetrics()
	assert.NotSame(t, m1.Registry, m2.Registry)
}

func TestRecordRun(t *testing.T) {
	m := NewMetrics()

	m.RecordRun("test", "ok", 100*time.Millisecond)
	m.RecordRun("run", "fetch_timeout", 300*time.Millisecond)
	m.RecordStage("fetch", "ok", 10*time.Millisecond)
	m.RecordFetch(2048)
	m.RecordCode(24)
	m.IncAsyncResults()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRuns)
	assert.Equal(t, int64(1), snap.FailedRuns)
	assert.InDelta(t, 0.2, snap.AvgDuration, 0.0001)
	assert.Greater(t, snap.Uptime, 0.0)

	names := gatheredNames(t, m)
	for _, name := range []string{
		"crawlrun_runs_total",
		"crawlrun_run_duration_seconds",
		"crawlrun_stage_duration_seconds",
		"crawlrun_fetched_bytes",
		"crawlrun_code_length_chars",
		"crawlrun_async_results_total",
		"crawlrun_uptime_seconds",
	} {
		assert.True(t, names[name], "missing %s", name)
	}
}

func TestTrackInFlight(t *testing.T) {
	m := NewMetrics()

	done := m.TrackInFlight()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "crawlrun_runs_in_flight" {
			assert.Equal(t, 1.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	done()
}

func TestTimer(t *testing.T) {
	m := NewMetrics()
	d := NewTimer(m, "execute").Stop("execution_failed")
	assert.GreaterOrEqual(t, d, time.Duration(0))

	// nil metrics is allowed
	assert.NotPanics(t, func() { NewTimer(nil, "fetch").Stop("ok") })
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `crawlrun_http_requests_total{method="GET",path="/ping",status="200"} 1`)
	assert.Contains(t, body, `path="unmatched"`)
}
