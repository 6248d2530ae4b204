package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(func() float64 { return 7 })

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed("timeout")
	m.Frame("t")
	m.Publish("dropped")
	m.Dropped("unknown_source")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive), "sessions_active")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsAccepted), "sessions_accepted_total")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("dropped")), "broker_publishes_total{dropped}")
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth), "persist_queue_depth")
}

func TestMetrics_Handler(t *testing.T) {
	m := New(nil)
	m.StoreWrite("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `candlefeed_store_writes_total{result="ok"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed("eof")
		m.SessionRejected()
		m.Frame("p")
		m.Publish("delivered")
		m.StoreWrite("error")
		m.Dropped("queue_full")
		m.IndexCheck("ok")
		m.ReceiveDelay(0.1)
	})
	assert.Nil(t, m.Registry())
}
