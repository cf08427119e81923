package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routeTemplates collapses path parameters so label cardinality stays bounded.
var routeTemplates = []struct {
	prefix   string
	template string
}{
	{prefix: "/v1/documents/", template: "/v1/documents/{id}"},
	{prefix: "/v1/chat/threads/", template: "/v1/chat/threads/{thread_id}"},
}

var knownRoutes = map[string]struct{}{
	"/healthz":         {},
	"/metrics":         {},
	"/openapi.yaml":    {},
	"/v1/documents":    {},
	"/v1/chat/query":   {},
	"/v1/chat/threads": {},
	"/v1/tools":        {},
}

// HTTPServerMetrics owns the registry served on /metrics. RAG and traffic
// control collectors register into it through Registerer.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	responseBytes *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	rejected      *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	m := &HTTPServerMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"service", "method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency. Chat queries include retrieval and generation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"service", "method", "path"}),
		responseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body size.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"service", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Requests currently being served.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control, by reason.",
		}, []string{"service", "reason"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.responseBytes, m.inFlight, m.rejected)
	return m
}

func (m *HTTPServerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		route := routeLabel(r.URL.Path)
		observed := &observedResponse{ResponseWriter: w, status: http.StatusOK}

		m.inFlight.Inc()
		defer m.inFlight.Dec()

		next.ServeHTTP(observed, r)

		m.requests.WithLabelValues(service, r.Method, route, strconv.Itoa(observed.status)).Inc()
		m.latency.WithLabelValues(service, r.Method, route).Observe(time.Since(started).Seconds())
		m.responseBytes.WithLabelValues(service, route).Observe(float64(observed.written))
	})
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rejected.WithLabelValues(service, reason).Inc()
}

// routeLabel maps a request path to its route template; unknown paths share
// one label.
func routeLabel(path string) string {
	for _, route := range routeTemplates {
		if strings.HasPrefix(path, route.prefix) && len(path) > len(route.prefix) {
			return route.template
		}
	}
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

type observedResponse struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func (w *observedResponse) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *observedResponse) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *observedResponse) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
