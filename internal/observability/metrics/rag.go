package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rag"

// RAGMetrics records query workflow telemetry. It satisfies the workflow
// observer, keyword index cache observer and resilience observer contracts.
type RAGMetrics struct {
	service string

	stageDuration    *prometheus.HistogramVec
	stepsTotal       *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	rerankDegraded   *prometheus.CounterVec
	queriesTotal     *prometheus.CounterVec
	confidence       *prometheus.HistogramVec
	documentsUsed    *prometheus.HistogramVec
	indexCacheLookup *prometheus.CounterVec
	upstreamRetries  *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewRAGMetrics(service string, registerer prometheus.Registerer) *RAGMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "stage_duration_seconds",
			Help:      "Workflow stage duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "stage"},
	)
	stepsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "steps_total",
			Help:      "Total executed workflow steps by stage.",
		},
		[]string{"service", "stage"},
	)
	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "stage_failures_total",
			Help:      "Total failed workflow stages.",
		},
		[]string{"service", "stage"},
	)
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total tool invocations by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	rerankDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "degraded_total",
			Help:      "Total rerank pass-through fallbacks by reason.",
		},
		[]string{"service", "reason"},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Total processed queries by status.",
		},
		[]string{"service", "status"},
	)
	confidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "confidence",
			Help:      "Distribution of answer confidence.",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service"},
	)
	documentsUsed := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "documents_used",
			Help:      "Distribution of context documents used per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	indexCacheLookup := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keyword_index",
			Name:      "cache_lookups_total",
			Help:      "Keyword index cache lookups by result.",
		},
		[]string{"service", "result"},
	)

	upstreamRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Retried upstream calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_state",
			Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(
		stageDuration,
		stepsTotal,
		stageFailures,
		toolCallsTotal,
		rerankDegraded,
		queriesTotal,
		confidence,
		documentsUsed,
		indexCacheLookup,
		upstreamRetries,
		breakerState,
	)

	return &RAGMetrics{
		service:          service,
		stageDuration:    stageDuration,
		stepsTotal:       stepsTotal,
		stageFailures:    stageFailures,
		toolCallsTotal:   toolCallsTotal,
		rerankDegraded:   rerankDegraded,
		queriesTotal:     queriesTotal,
		confidence:       confidence,
		documentsUsed:    documentsUsed,
		indexCacheLookup: indexCacheLookup,
		upstreamRetries:  upstreamRetries,
		breakerState:     breakerState,
	}
}

func (m *RAGMetrics) ObserveStage(stage string, seconds float64, failed bool) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(seconds)
	m.stepsTotal.WithLabelValues(m.service, stage).Inc()
	if failed {
		m.stageFailures.WithLabelValues(m.service, stage).Inc()
	}
}

func (m *RAGMetrics) RecordToolCall(tool, status string) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(m.service, tool, status).Inc()
}

func (m *RAGMetrics) RecordRerankDegraded(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rerankDegraded.WithLabelValues(m.service, reason).Inc()
}

func (m *RAGMetrics) ObserveQuery(confidence float64, documentsUsed int, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	m.queriesTotal.WithLabelValues(m.service, status).Inc()
	m.confidence.WithLabelValues(m.service).Observe(confidence)
	m.documentsUsed.WithLabelValues(m.service).Observe(float64(documentsUsed))
}

func (m *RAGMetrics) RecordIndexCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.indexCacheLookup.WithLabelValues(m.service, result).Inc()
}

func (m *RAGMetrics) RecordRetry(operation string) {
	m.upstreamRetries.WithLabelValues(m.service, operation).Inc()
}

func (m *RAGMetrics) RecordBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
