package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordTransition(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("submitted", "underReview", OutcomeApplied)
	m.RecordTransition("submitted", "underReview", OutcomeApplied)
	m.RecordTransition("submitted", "approved", OutcomeRejected)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("submitted", "underReview", OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("submitted", "approved", OutcomeRejected)))
}

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.RecordError("/x", "GET", "NOT_FOUND")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.errors.WithLabelValues("/x", "GET", "NOT_FOUND")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.errors.WithLabelValues("/x", "GET", "NOT_FOUND")))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "INTERNAL")
		m.RecordTransition("a", "b", OutcomeFailed)
		m.StreamOpened()
		m.StreamClosed()
	})
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/health/live", "GET", 200, 5*time.Millisecond)
	m.StreamOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/health/live",status="200"} 1`)
	assert.Contains(t, body, "candidate_feed_subscribers 1")
}
