package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RegistrationOutcome("success")
	m.RegistrationOutcome("success")
	m.Compensation("refund_wallet", false)
	m.BestEffortFailure("decrement_slots")
	m.Push("sent")
	m.DeadLettered(3)
	m.DeadLettered(0)
	m.QueueDepth(7)
	m.Upload("s3", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.registrations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("refund_wallet", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bestEffortFailures.WithLabelValues("decrement_slots")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushes.WithLabelValues("sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.deadLettered))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("s3", "ok")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RegistrationOutcome("x")
		m.ObserveRegistration(time.Second)
		m.Compensation("a", true)
		m.BestEffortFailure("s")
		m.Push("sent")
		m.QueueDepth(1)
		m.DeadLettered(1)
		m.Upload("p", false)
		m.HTTPRequest("GET", "/", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.HTTPRequest(http.MethodPost, "/api/participate", 201, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `glenn_http_requests_total{method="POST",route="/api/participate",status="201"} 1`)
}
