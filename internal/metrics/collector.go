// Package metrics exposes Prometheus metrics for upstream calls and inbound requests
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jzx17/genproxy/pkg/retry"
)

const namespace = "genproxy"

// Failure reasons used as the "reason" label
const (
	ReasonStatus    = "status"
	ReasonExhausted = "exhausted"
	ReasonCanceled  = "canceled"
	ReasonError     = "error"
)

// Collector records metrics on its own registry. It implements
// retry.EventHandler so it can be attached to an Executor directly.
type Collector struct {
	registry *prometheus.Registry

	attempts       prometheus.Counter
	retries        prometheus.Counter
	retrySuccesses prometheus.Counter
	failures       *prometheus.CounterVec
	backoff        prometheus.Histogram

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ retry.EventHandler = (*Collector)(nil)

// NewCollector creates a collector with Go runtime and process metrics registered
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "attempts_total",
			Help:      "Outbound calls issued to the upstream API.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Backoff waits scheduled before a retry.",
		}),
		retrySuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retry_successes_total",
			Help:      "Requests that succeeded after at least one retry.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "failures_total",
			Help:      "Requests that ended in an error, by reason.",
		}, []string{"reason"}),
		backoff: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "backoff_seconds",
			Help:      "Backoff delays scheduled between attempts.",
			Buckets:   []float64{0.5, 1, 1.5, 2, 3, 4, 6, 8, 16},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests, by route and status code.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Inbound HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.attempts,
		c.retries,
		c.retrySuccesses,
		c.failures,
		c.backoff,
		c.requests,
		c.duration,
	)

	return c
}

// Registry returns the registry holding every metric
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRequest records one finished inbound request
func (c *Collector) ObserveRequest(route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// OnAttempt implements retry.EventHandler
func (c *Collector) OnAttempt(ctx context.Context, attempt int, desc retry.RequestDescriptor) {
	c.attempts.Inc()
}

// OnBackoff implements retry.EventHandler
func (c *Collector) OnBackoff(ctx context.Context, attempt int, delay time.Duration, outcome retry.Outcome) {
	c.retries.Inc()
	c.backoff.Observe(delay.Seconds())
}

// OnRetrySuccess implements retry.EventHandler
func (c *Collector) OnRetrySuccess(ctx context.Context, attempt int, duration time.Duration) {
	c.retrySuccesses.Inc()
}

// OnRetryFailure implements retry.EventHandler
func (c *Collector) OnRetryFailure(ctx context.Context, attempt int, err error) {
	c.failures.WithLabelValues(failureReason(err)).Inc()
}

// OnMaxAttemptsReached implements retry.EventHandler
func (c *Collector) OnMaxAttemptsReached(ctx context.Context, attempt int, err error) {
	c.failures.WithLabelValues(ReasonExhausted).Inc()
}

func failureReason(err error) string {
	var statusErr *retry.UpstreamStatusError
	var canceled *retry.CanceledError
	switch {
	case errors.As(err, &statusErr):
		return ReasonStatus
	case errors.As(err, &canceled):
		return ReasonCanceled
	default:
		return ReasonError
	}
}
