// Package metrics exposes Prometheus counters for lifecycle transitions and
// HTTP request latency. The Collector owns its registry so that tests can
// create as many collectors as they like without duplicate registration.
//
// Exposed series:
//
//	usta_job_transitions_total{status}     jobs entering a status
//	usta_offer_transitions_total{status}   offers entering a status
//	usta_withdrawals_total{status}         withdrawals requested, approved, rejected
//	usta_reviews_total                     reviews created
//	usta_http_request_duration_seconds     request latency by method, route, status
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus metrics for the marketplace
type Collector struct {
	registry *prometheus.Registry

	jobTransitions   *prometheus.CounterVec
	offerTransitions *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
	reviews          prometheus.Counter

	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usta_job_transitions_total",
			Help: "Total number of jobs entering each status",
		}, []string{"status"}),
		offerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usta_offer_transitions_total",
			Help: "Total number of offers entering each status",
		}, []string{"status"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usta_withdrawals_total",
			Help: "Total number of withdrawals by resulting status",
		}, []string{"status"}),
		reviews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usta_reviews_total",
			Help: "Total number of reviews created",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usta_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	c.registry.MustRegister(
		c.jobTransitions,
		c.offerTransitions,
		c.withdrawals,
		c.reviews,
		c.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// RecordJobTransition counts a job entering status.
// All Record methods are no-ops on a nil collector.
func (c *Collector) RecordJobTransition(status string) {
	if c == nil {
		return
	}
	c.jobTransitions.WithLabelValues(status).Inc()
}

// RecordOfferTransition counts offers entering status
func (c *Collector) RecordOfferTransition(status string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.offerTransitions.WithLabelValues(status).Add(float64(n))
}

// RecordWithdrawal counts a withdrawal reaching status
func (c *Collector) RecordWithdrawal(status string) {
	if c == nil {
		return
	}
	c.withdrawals.WithLabelValues(status).Inc()
}

// RecordReview counts a created review
func (c *Collector) RecordReview() {
	if c == nil {
		return
	}
	c.reviews.Inc()
}

// ObserveRequest records the latency of one HTTP request
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var (
	mu      sync.RWMutex
	current *Collector
)

// Set installs the process-wide collector
func Set(c *Collector) {
	mu.Lock()
	current = c
	mu.Unlock()
}

// Get returns the process-wide collector, nil when metrics are disabled
func Get() *Collector {
	mu.RLock()
	defer mu.RUnlock()
	return current
}
