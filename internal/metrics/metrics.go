package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "candlefeed"

// Metrics holds every collector exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive   prometheus.Gauge
	sessionsAccepted prometheus.Counter
	sessionsRejected prometheus.Counter
	sessionsClosed   *prometheus.CounterVec
	frames           *prometheus.CounterVec
	publishes        *prometheus.CounterVec
	queueDepth       prometheus.GaugeFunc
	storeWrites      *prometheus.CounterVec
	itemsDropped     *prometheus.CounterVec
	indexChecks      *prometheus.CounterVec
	receiveDelay     prometheus.Histogram
}

// New creates and registers all collectors on a fresh registry.
// queueDepth is sampled on scrape; it may be nil.
func New(queueDepth func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_active",
			Help: "Ingestion sessions currently running.",
		}),
		sessionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_accepted_total",
			Help: "Connections accepted and handed to a session.",
		}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_rejected_total",
			Help: "Connections closed because the peer is blocklisted.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_closed_total",
			Help: "Sessions ended, by reason.",
		}, []string{"reason"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_total",
			Help: "Frames dispatched, by command tag.",
		}, []string{"tag"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broker_publishes_total",
			Help: "Broker publish attempts, by result.",
		}, []string{"result"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_writes_total",
			Help: "Store inserts, by result.",
		}, []string{"result"}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_dropped_total",
			Help: "Candles dropped before reaching the store, by reason.",
		}, []string{"reason"}),
		indexChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_index_checks_total",
			Help: "Uniqueness index checks, by result.",
		}, []string{"result"}),
		receiveDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "receive_delay_seconds",
			Help:    "Delay between terminal send time and persistence.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	reg.MustRegister(
		m.sessionsActive,
		m.sessionsAccepted,
		m.sessionsRejected,
		m.sessionsClosed,
		m.frames,
		m.publishes,
		m.storeWrites,
		m.itemsDropped,
		m.indexChecks,
		m.receiveDelay,
	)

	if queueDepth != nil {
		m.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "persist_queue_depth",
			Help: "Candles waiting for the persistence worker.",
		}, queueDepth)
		reg.MustRegister(m.queueDepth)
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsAccepted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionRejected() {
	if m == nil {
		return
	}
	m.sessionsRejected.Inc()
}

func (m *Metrics) Frame(tag string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(tag).Inc()
}

func (m *Metrics) Publish(result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreWrite(result string) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.itemsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IndexCheck(result string) {
	if m == nil {
		return
	}
	m.indexChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) ReceiveDelay(seconds float64) {
	if m == nil {
		return
	}
	m.receiveDelay.Observe(seconds)
}
