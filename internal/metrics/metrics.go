package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signin_ledger"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	ingested      *prometheus.CounterVec
	duplicates    prometheus.Counter
	rejected      *prometheus.CounterVec
	fallbacks     prometheus.Counter
	evicted       prometheus.Counter
	cleared       prometheus.Counter
	historySize   prometheus.Gauge
	activeSess    prometheus.Gauge
	archiveBatch  *prometheus.CounterVec
	archiveRows   prometheus.Counter
	archiveDrop   prometheus.Counter
	httpRequests  *prometheus.CounterVec
	liveListeners prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.ingested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_ingested_total",
		Help:      "Events stored in the ledger by action",
	}, []string{"action"})
	m.duplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_duplicate_total",
		Help:      "Ingestions suppressed as duplicates within the tolerance window",
	})
	m.rejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_rejected_total",
		Help:      "Ingestions rejected before reaching the ledger",
	}, []string{"reason"})
	m.fallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timestamp_fallbacks_total",
		Help:      "Events whose timestamp was absent or unparseable and defaulted to arrival time",
	})
	m.evicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_evicted_total",
		Help:      "Events dropped by the retention bound",
	})
	m.cleared = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_cleared_total",
		Help:      "Events removed by explicit resets",
	})
	m.historySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "history_size",
		Help:      "Events currently retained",
	})
	m.activeSess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "People currently signed in",
	})
	m.archiveBatch = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_batches_total",
		Help:      "Archive batch writes by status",
	}, []string{"status"})
	m.archiveRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_rows_inserted_total",
		Help:      "Rows newly written to the archive",
	})
	m.archiveDrop = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_dropped_total",
		Help:      "Events not archived because the queue was full or a batch failed",
	})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "code"})
	m.liveListeners = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_listeners",
		Help:      "Connected live feed clients",
	})

	m.reg.MustRegister(
		m.ingested, m.duplicates, m.rejected, m.fallbacks, m.evicted, m.cleared,
		m.historySize, m.activeSess,
		m.archiveBatch, m.archiveRows, m.archiveDrop,
		m.httpRequests, m.liveListeners,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) EventStored(action string, fallback bool, evicted int) {
	m.ingested.WithLabelValues(action).Inc()
	if fallback {
		m.fallbacks.Inc()
	}
	if evicted > 0 {
		m.evicted.Add(float64(evicted))
	}
}

func (m *Metrics) EventDuplicate() { m.duplicates.Inc() }

func (m *Metrics) EventRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *Metrics) Cleared(n int) { m.cleared.Add(float64(n)) }

// LedgerSize records the current size of history and the session map.
func (m *Metrics) LedgerSize(history, sessions int) {
	m.historySize.Set(float64(history))
	m.activeSess.Set(float64(sessions))
}

func (m *Metrics) ArchiveBatch(inserted int64, err error) {
	if err != nil {
		m.archiveBatch.WithLabelValues("error").Inc()
		return
	}
	m.archiveBatch.WithLabelValues("ok").Inc()
	m.archiveRows.Add(float64(inserted))
}

func (m *Metrics) ArchiveDropped(n int) { m.archiveDrop.Add(float64(n)) }

func (m *Metrics) HTTPRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) LiveListeners(n int) { m.liveListeners.Set(float64(n)) }
