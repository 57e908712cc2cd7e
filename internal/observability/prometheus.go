// Package observability exports client request metrics to Prometheus.
package observability

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHooks implements apiclient.Hooks and records request metrics.
type PrometheusHooks struct {
	requestCounter  *prometheus.CounterVec
	responseCounter *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	retryCounter    *prometheus.CounterVec
}

var (
	prometheusOnce  sync.Once
	prometheusHooks *PrometheusHooks
)

// NewPrometheusHooks creates Prometheus-backed hooks with standard metrics.
// Metrics are registered once on the default registry; subsequent calls
// return the same instance.
func NewPrometheusHooks() *PrometheusHooks {
	prometheusOnce.Do(func() {
		prometheusHooks = &PrometheusHooks{
			requestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gofile_client_requests_total",
				Help: "Total number of file API requests started",
			}, []string{"provider", "endpoint"}),

			responseCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gofile_client_responses_total",
				Help: "Total number of file API requests completed by status code",
			}, []string{"provider", "endpoint", "status"}),

			requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "gofile_client_request_duration_seconds",
				Help:    "File API request latency including retries and backoff",
				Buckets: prometheus.DefBuckets,
			}, []string{"provider", "endpoint"}),

			retryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gofile_client_retries_total",
				Help: "Total number of file API request retries",
			}, []string{"provider", "endpoint"}),
		}

		prometheus.MustRegister(
			prometheusHooks.requestCounter,
			prometheusHooks.responseCounter,
			prometheusHooks.requestLatency,
			prometheusHooks.retryCounter,
		)
	})

	return prometheusHooks
}

// OnRequest records a started request.
func (p *PrometheusHooks) OnRequest(provider, endpoint string) {
	p.requestCounter.With(prometheus.Labels{
		"provider": provider,
		"endpoint": normalizeEndpoint(endpoint),
	}).Inc()
}

// OnResponse records a completed request with its final status and retry count.
func (p *PrometheusHooks) OnResponse(provider, endpoint string, statusCode int, duration time.Duration, retries int) {
	normalized := normalizeEndpoint(endpoint)
	labels := prometheus.Labels{"provider": provider, "endpoint": normalized}

	p.requestLatency.With(labels).Observe(duration.Seconds())

	status := "none"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	p.responseCounter.With(prometheus.Labels{
		"provider": provider,
		"endpoint": normalized,
		"status":   status,
	}).Inc()

	if retries > 0 {
		p.retryCounter.With(labels).Add(float64(retries))
	}
}

// normalizeEndpoint replaces file identifiers in paths with a placeholder
// to keep metric cardinality bounded.
func normalizeEndpoint(endpoint string) string {
	parts := strings.Split(endpoint, "/")
	for i := 1; i < len(parts); i++ {
		if parts[i-1] == "files" && parts[i] != "" {
			parts[i] = "{file_id}"
		}
	}
	return strings.Join(parts, "/")
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
