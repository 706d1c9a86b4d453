package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics observes the request API layer.
//
// The route label is the registered pattern ("/files/{id}/data"), never the
// raw path, so cardinality stays bounded.
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	RecordRequest(method, route string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge.
	RecordRequestStart()

	// RecordRequestEnd decrements the in-flight gauge.
	RecordRequestEnd()

	// RecordBytesTransferred records content bytes moved, direction "upload"
	// or "download".
	RecordBytesTransferred(direction string, bytes int64)
}

type httpMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	bytesTransferred *prometheus.CounterVec
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics, or a no-op when
// metrics are disabled.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() {
		return &noopHTTPMetrics{}
	}

	reg := GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "attic_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attic_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "attic_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "attic_http_content_bytes_total",
				Help: "Content bytes transferred by direction",
			},
			[]string{"direction"},
		),
	}
}

func (m *httpMetrics) RecordRequest(method, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, code).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordRequestStart() {
	m.requestsInFlight.Inc()
}

func (m *httpMetrics) RecordRequestEnd() {
	m.requestsInFlight.Dec()
}

func (m *httpMetrics) RecordBytesTransferred(direction string, bytes int64) {
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	}
}

type noopHTTPMetrics struct{}

func (*noopHTTPMetrics) RecordRequest(string, string, int, time.Duration) {}
func (*noopHTTPMetrics) RecordRequestStart()                             {}
func (*noopHTTPMetrics) RecordRequestEnd()                               {}
func (*noopHTTPMetrics) RecordBytesTransferred(string, int64)            {}
