// Package metrics exposes Prometheus collectors for the AUR crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchDurationSeconds       *prometheus.HistogramVec
	listingPagesTotal          *prometheus.CounterVec
	itemsTotal                 *prometheus.CounterVec
	commentPagesTotal          *prometheus.CounterVec
	storageOperationsTotal     *prometheus.CounterVec
	checkpointItemsTotal       *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurcrawl_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by fetcher and result.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"fetcher", "result"},
		)

		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurcrawl_listing_pages_total",
				Help: "Total number of listing pages crawled, labeled by status.",
			},
			[]string{"status"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurcrawl_items_total",
				Help: "Total number of package items assembled, labeled by result.",
			},
			[]string{"result"},
		)

		commentPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurcrawl_comment_pages_total",
				Help: "Total number of comment pages fetched, labeled by result.",
			},
			[]string{"result"},
		)

		storageOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurcrawl_storage_operations_total",
				Help: "Total number of storage calls, labeled by backend, operation and result.",
			},
			[]string{"backend", "op", "result"},
		)

		checkpointItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurcrawl_checkpoint_items_total",
				Help: "Total number of items moved through checkpoint files, labeled by direction.",
			},
			[]string{"direction"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurcrawl_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting for a request token, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aurcrawl_http_requests_total",
				Help: "Total number of ops HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aurcrawl_http_request_duration_seconds",
				Help:    "Histogram of ops HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFetch records one page fetch.
func ObserveFetch(fetcher, result string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(fetcher, result).Observe(duration.Seconds())
}

// ObserveListingPage counts one crawled listing page.
func ObserveListingPage(err error) {
	Init()
	listingPagesTotal.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveItem counts one item that was assembled or dropped.
func ObserveItem(err error) {
	Init()
	itemsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveCommentPage counts one comment page fetch.
func ObserveCommentPage(err error) {
	Init()
	commentPagesTotal.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveStorage counts one storage call.
func ObserveStorage(backend, op string, err error) {
	Init()
	storageOperationsTotal.WithLabelValues(backend, op, resultLabel(err)).Inc()
}

// ObserveCheckpoint counts items written to or read from checkpoint files.
func ObserveCheckpoint(direction string, items int) {
	Init()
	checkpointItemsTotal.WithLabelValues(direction).Add(float64(items))
}

// ObserveRateLimitDelay records time spent blocked on the request limiter.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the ops HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
