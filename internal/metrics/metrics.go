// Package metrics exposes request and delivery counters in Prometheus text
// format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the service collectors. Each Registry is independent, so
// tests can create as many as they like.
type Registry struct {
	reg        *prometheus.Registry
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	webhooks   *prometheus.CounterVec
	mismatches prometheus.Counter
}

// New builds a Registry. Every label in webhookResults starts at zero so the
// series exist before the first delivery.
func New(webhookResults ...string) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Webhook deliveries by result.",
		}, []string{"result"}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webhook_duplicate_mismatch_total",
			Help: "Duplicate deliveries whose body differs from the stored message.",
		}),
	}
	r.reg.MustRegister(
		r.requests,
		r.duration,
		r.webhooks,
		r.mismatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, result := range webhookResults {
		r.webhooks.WithLabelValues(result)
	}
	return r
}

// ObserveHTTP records one finished request. path should be a route pattern,
// not the raw URL, to keep label cardinality bounded.
func (r *Registry) ObserveHTTP(path string, status int, d time.Duration) {
	r.requests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	r.duration.WithLabelValues(path).Observe(d.Seconds())
}

func (r *Registry) ObserveWebhook(result string) {
	r.webhooks.WithLabelValues(result).Inc()
}

func (r *Registry) ObserveDuplicateMismatch() {
	r.mismatches.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
