// Package metrics exposes Prometheus collectors for thread checks.
//
// Runs are short-lived, so instead of serving /metrics the process can write
// the default registry to a node_exporter textfile collector directory.
package metrics

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal            *prometheus.CounterVec
	fetchTotal           *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	redirectsTotal       *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
	replyIndex           *prometheus.GaugeVec
	lastRunTimestamp     *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadwatch_runs_total",
				Help: "Total number of check runs, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadwatch_fetch_total",
				Help: "Total number of completed thread fetches, labeled by site and final status code.",
			},
			[]string{"site", "code"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threadwatch_fetch_duration_seconds",
				Help:    "Histogram of thread fetch latencies including redirects.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		redirectsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadwatch_redirects_total",
				Help: "Total number of redirects followed while fetching.",
			},
			[]string{"site"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadwatch_notifications_total",
				Help: "Total number of webhook notifications sent, labeled by response code.",
			},
			[]string{"site", "code"},
		)

		replyIndex = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "threadwatch_reply_index",
				Help: "Highest reply index known after the last run.",
			},
			[]string{"site"},
		)

		lastRunTimestamp = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "threadwatch_last_run_timestamp_seconds",
				Help: "Unix time the last run finished, labeled by outcome.",
			},
			[]string{"site", "outcome"},
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

// Recorder implements watch.Recorder for one source.
type Recorder struct {
	site string
	now  func() time.Time
}

// NewRecorder initializes the collectors and binds them to sourceURL's host.
func NewRecorder(sourceURL string) *Recorder {
	Init()
	return &Recorder{site: SanitizeSite(sourceURL), now: time.Now}
}

// ObserveFetch records a completed fetch.
func (r *Recorder) ObserveFetch(status int, redirects int, duration time.Duration) {
	fetchTotal.WithLabelValues(r.site, strconv.Itoa(status)).Inc()
	fetchDurationSeconds.WithLabelValues(r.site).Observe(duration.Seconds())
	if redirects > 0 {
		redirectsTotal.WithLabelValues(r.site).Add(float64(redirects))
	}
}

// ObserveRun records a terminal outcome and the watermark that resulted.
func (r *Recorder) ObserveRun(outcome string, current int) {
	runsTotal.WithLabelValues(r.site, outcome).Inc()
	replyIndex.WithLabelValues(r.site).Set(float64(current))
	lastRunTimestamp.WithLabelValues(r.site, outcome).Set(float64(r.now().Unix()))
}

// ObserveNotification records a delivered webhook call.
func (r *Recorder) ObserveNotification(webhookStatus int) {
	notificationsTotal.WithLabelValues(r.site, strconv.Itoa(webhookStatus)).Inc()
}

// WriteTextfile writes the default registry in text exposition format.
// The write goes through a temp file and rename, so the collector never
// reads a partial file.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
