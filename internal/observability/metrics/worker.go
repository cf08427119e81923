package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks ingestion: how long documents wait in the queue, how
// long processing takes and how many chunks each document yields.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	chunksPerDoc    *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		processTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "documents_total",
				Help:      "Processed documents by final status.",
			},
			[]string{"service", "status"},
		),
		processDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "document_duration_seconds",
				Help:      "Extraction, chunking, embedding and indexing time per document.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service", "status"},
		),
		processInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "ingest",
				Name:        "documents_in_flight",
				Help:        "Documents currently being processed.",
				ConstLabels: prometheus.Labels{"service": service},
			},
		),
		queueLag: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "queue_lag_seconds",
				Help:      "Delay between upload and processing start.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"service"},
		),
		chunksPerDoc: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "chunks_per_document",
				Help:      "Chunks produced per successfully processed document.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"service"},
		),
	}

	m.registry.MustRegister(m.processTotal, m.processDuration, m.processInFlight, m.queueLag, m.chunksPerDoc)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

// FinishDocument closes a StartDocument. chunks is ignored for failures.
func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, chunks int, err error) {
	m.processInFlight.Dec()

	status := "ready"
	if err != nil {
		status = "failed"
	}
	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if err == nil {
		m.chunksPerDoc.WithLabelValues(service).Observe(float64(chunks))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}
