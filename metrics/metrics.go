package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ingestion counters. A nil *Metrics is valid and records
// nothing, so components can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	normalized         *prometheus.CounterVec
	retrievalRequests  *prometheus.CounterVec
	retrievedItems     *prometheus.CounterVec
	rowsWritten        *prometheus.CounterVec
	rowsSkipped        *prometheus.CounterVec
	storeFallbacks     prometheus.Counter
	summarizerFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.normalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journal",
		Name:      "payloads_normalized_total",
		Help:      "Payloads normalized by detected shape",
	}, []string{"shape"})
	m.retrievalRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journal",
		Name:      "retrieval_requests_total",
		Help:      "History page requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
	m.retrievedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journal",
		Name:      "retrieved_items_total",
		Help:      "Raw history items returned by endpoint",
	}, []string{"endpoint"})
	m.rowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journal",
		Name:      "rows_written_total",
		Help:      "Rows appended by store",
	}, []string{"store"})
	m.rowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "journal",
		Name:      "rows_skipped_total",
		Help:      "Entries skipped as already persisted, by store",
	}, []string{"store"})
	m.storeFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "journal",
		Name:      "store_fallbacks_total",
		Help:      "Batches redirected from the primary store to the CSV fallback",
	})
	m.summarizerFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "journal",
		Name:      "summarizer_failures_total",
		Help:      "Summaries replaced by a placeholder after a summarizer error",
	})
	m.registry.MustRegister(
		m.normalized, m.retrievalRequests, m.retrievedItems,
		m.rowsWritten, m.rowsSkipped, m.storeFallbacks, m.summarizerFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveShape(shape string) {
	if m == nil {
		return
	}
	m.normalized.WithLabelValues(shape).Inc()
}

func (m *Metrics) ObserveRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.retrievalRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) ObserveItems(endpoint string, n int) {
	if m == nil {
		return
	}
	m.retrievedItems.WithLabelValues(endpoint).Add(float64(n))
}

func (m *Metrics) RowWritten(store string) {
	if m == nil {
		return
	}
	m.rowsWritten.WithLabelValues(store).Inc()
}

func (m *Metrics) RowSkipped(store string) {
	if m == nil {
		return
	}
	m.rowsSkipped.WithLabelValues(store).Inc()
}

func (m *Metrics) StoreFallback() {
	if m == nil {
		return
	}
	m.storeFallbacks.Inc()
}

func (m *Metrics) SummarizerFailed() {
	if m == nil {
		return
	}
	m.summarizerFailures.Inc()
}
