// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsTotal         *prometheus.CounterVec
	attemptsTotal        *prometheus.CounterVec
	failuresTotal        *prometheus.CounterVec
	throttleWaitSeconds  *prometheus.HistogramVec
	busyWorkers          *prometheus.GaugeVec
	statusRequestsTotal  *prometheus.CounterVec
	statusRequestSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times. Observations made before
// Init are dropped.
func Init() {
	once.Do(func() {
		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of records emitted, labeled by platform and blocked flag.",
			},
			[]string{"platform", "blocked"},
		)

		attemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_attempts_total",
				Help: "Total number of extraction attempts, labeled by lane and outcome.",
			},
			[]string{"lane", "outcome"},
		)

		failuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_failures_total",
				Help: "Total number of tasks that ended failed or blocked, labeled by lane and state.",
			},
			[]string{"lane", "state"},
		)

		throttleWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_throttle_wait_seconds",
				Help:    "Histogram of per-host politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		busyWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_busy_workers",
				Help: "Number of workers currently processing a task, labeled by lane.",
			},
			[]string{"lane"},
		)

		statusRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_status_requests_total",
				Help: "Status server requests, labeled by route and code.",
			},
			[]string{"route", "code"},
		)

		statusRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_status_request_seconds",
				Help:    "Status server latency, labeled by route.",
				Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5},
			},
			[]string{"route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord counts an emitted record.
func ObserveRecord(platform string, blocked bool) {
	if recordsTotal == nil {
		return
	}
	recordsTotal.WithLabelValues(platform, strconv.FormatBool(blocked)).Inc()
}

// ObserveAttempt counts one lane attempt with its outcome.
func ObserveAttempt(lane, outcome string) {
	if attemptsTotal == nil {
		return
	}
	attemptsTotal.WithLabelValues(lane, outcome).Inc()
}

// ObserveFailure counts a task that reached a terminal failed or blocked state.
func ObserveFailure(lane, state string) {
	if failuresTotal == nil {
		return
	}
	failuresTotal.WithLabelValues(lane, state).Inc()
}

// ObserveThrottleWait records the duration of a per-host politeness wait.
func ObserveThrottleWait(host string, duration time.Duration) {
	if throttleWaitSeconds == nil {
		return
	}
	throttleWaitSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// IncBusyWorkers increments the busy workers gauge for a lane.
func IncBusyWorkers(lane string) {
	if busyWorkers == nil {
		return
	}
	busyWorkers.WithLabelValues(lane).Inc()
}

// DecBusyWorkers decrements the busy workers gauge for a lane.
func DecBusyWorkers(lane string) {
	if busyWorkers == nil {
		return
	}
	busyWorkers.WithLabelValues(lane).Dec()
}

// ObserveStatusRequest records one status server request. Scrapes of the
// metrics route are not counted.
func ObserveStatusRequest(route string, code int, duration time.Duration) {
	if statusRequestsTotal == nil || route == MetricsRoute {
		return
	}
	statusRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	statusRequestSeconds.WithLabelValues(route).Observe(duration.Seconds())
}
