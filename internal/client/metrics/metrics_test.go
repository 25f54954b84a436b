package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DecryptFailed()
	m.DecryptFailed()
	m.SetQueueDepth(3)
	m.SetPreQueueDepth(1)
	m.Delivered()
	m.DeliveryFailed("unavailable")
	m.SetGateOpen(true)
	m.SessionAborted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decryptFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.preQueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveryFailures.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionAborts))

	m.SetGateOpen(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.gateOpen))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DecryptFailed()
		m.SetQueueDepth(1)
		m.SetPreQueueDepth(1)
		m.Delivered()
		m.DeliveryFailed("x")
		m.SetGateOpen(true)
		m.SessionAborted()
	})
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetQueueDepth(7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "casekeeper_queue_depth 7")
}
