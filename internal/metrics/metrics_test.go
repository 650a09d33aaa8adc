package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorHandler(t *testing.T) {
	c := New()
	c.Cycles.Inc()
	c.AttributionFailures.WithLabelValues("no_pid").Add(3)
	c.TrackedProcesses.Set(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.Cycles))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.AttributionFailures.WithLabelValues("no_pid")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "netmonitor_cycles_total 1"))
	assert.True(t, strings.Contains(body, `netmonitor_attribution_failures_total{reason="no_pid"} 3`))
	assert.True(t, strings.Contains(body, "netmonitor_tracked_processes 2"))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ReportWrites.Inc()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.ReportWrites))
}
