package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountersAdvance(t *testing.T) {
	m := New()

	m.RecordRetry("user.create")
	m.RecordRetry("user.create")
	m.RecordExhausted("user.create")
	m.RecordUpload("stored")
	m.ObserveHTTP(http.MethodGet, "/health", http.StatusOK, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dbRetriesTotal.WithLabelValues("user.create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbExhaustionsTotal.WithLabelValues("user.create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/health", "200")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRetry("x")
		m.RecordExhausted("x")
		m.RecordUpload("x")
		m.ObserveHTTP("GET", "/", 200, time.Second)
	})
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RecordRetry("image.create")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `datastore_retries_total{operation="image.create"} 1`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
