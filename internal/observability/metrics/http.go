package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal         *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	queryRetrievedDocs *prometheus.HistogramVec
	queryNoResultTotal *prometheus.CounterVec
	queryConfidence    *prometheus.HistogramVec
	labelResolvedTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailq",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailq",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mailq",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailq",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total answered queries by resolved query type.",
		},
		[]string{"service", "query_type"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailq",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "query_type"},
	)
	queryRetrievedDocs := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailq",
			Subsystem: "query",
			Name:      "retrieved_documents",
			Help:      "Distribution of fused documents per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"service", "query_type"},
	)
	queryNoResultTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailq",
			Subsystem: "query",
			Name:      "no_result_total",
			Help:      "Total answered queries with zero retrieved documents.",
		},
		[]string{"service", "query_type"},
	)
	queryConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mailq",
			Subsystem: "query",
			Name:      "confidence",
			Help:      "Distribution of reported answer confidence.",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1},
		},
		[]string{"service", "query_type"},
	)
	labelResolvedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mailq",
			Subsystem: "query",
			Name:      "label_resolved_total",
			Help:      "Total queries where a classification label was resolved, by origin.",
		},
		[]string{"service", "origin"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryDuration,
		queryRetrievedDocs,
		queryNoResultTotal,
		queryConfidence,
		labelResolvedTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		queryTotal:         queryTotal,
		queryDuration:      queryDuration,
		queryRetrievedDocs: queryRetrievedDocs,
		queryNoResultTotal: queryNoResultTotal,
		queryConfidence:    queryConfidence,
		labelResolvedTotal: labelResolvedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/messages/"):
		return "/v1/messages/{message_id}/similar"
	default:
		return path
	}
}

// RecordQueryObservation records per-query signals after a successful answer.
func (m *HTTPServerMetrics) RecordQueryObservation(service, queryType string, sourceCount int, confidence float64, duration time.Duration) {
	if queryType == "" {
		queryType = "unknown"
	}
	m.queryTotal.WithLabelValues(service, queryType).Inc()
	m.queryDuration.WithLabelValues(service, queryType).Observe(duration.Seconds())
	m.queryRetrievedDocs.WithLabelValues(service, queryType).Observe(float64(sourceCount))
	m.queryConfidence.WithLabelValues(service, queryType).Observe(confidence)
	if sourceCount == 0 {
		m.queryNoResultTotal.WithLabelValues(service, queryType).Inc()
	}
}

// RecordLabelResolution counts where a classification label came from:
// "question" when named directly, "history" when recovered from context.
func (m *HTTPServerMetrics) RecordLabelResolution(service, origin string) {
	if origin == "" {
		origin = "unknown"
	}
	m.labelResolvedTotal.WithLabelValues(service, origin).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
