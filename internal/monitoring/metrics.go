package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Article outcome labels
const (
	StatusEncrypted = "encrypted"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Metrics collects counters for one encryption run. Each instance owns its
// registry so runs (and tests) never share state.
type Metrics struct {
	registry *prometheus.Registry

	ArticlesTotal      *prometheus.CounterVec
	FragmentsEncrypted *prometheus.CounterVec
	RuleWarningsTotal  *prometheus.CounterVec
	BytesEncrypted     prometheus.Counter
	EncryptionDuration prometheus.Histogram
	RunDurationSeconds prometheus.Gauge
	LastRunTimestamp   prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		ArticlesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagecrypt_articles_total",
				Help: "Total number of articles processed, by outcome",
			},
			[]string{"status"},
		),

		FragmentsEncrypted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagecrypt_fragments_encrypted_total",
				Help: "Total number of DOM fragments encrypted",
			},
			[]string{"rule_set"},
		),

		RuleWarningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagecrypt_rule_warnings_total",
				Help: "Total number of rule warnings, by reason",
			},
			[]string{"reason"},
		),

		BytesEncrypted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pagecrypt_plaintext_bytes_total",
				Help: "Total plaintext bytes encrypted",
			},
		),

		EncryptionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagecrypt_fragment_encryption_duration_seconds",
				Help:    "Time spent deriving the key and encrypting one fragment",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),

		RunDurationSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagecrypt_run_duration_seconds",
				Help: "Duration of the last encryption run",
			},
		),

		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagecrypt_last_run_timestamp_seconds",
				Help: "Unix time the last encryption run finished",
			},
		),
	}
}

// RecordArticle records the outcome of one article
func (m *Metrics) RecordArticle(status string) {
	m.ArticlesTotal.WithLabelValues(status).Inc()
}

// RecordFragment records one encrypted fragment
func (m *Metrics) RecordFragment(ruleSet string, plaintextBytes int, duration time.Duration) {
	m.FragmentsEncrypted.WithLabelValues(ruleSet).Inc()
	m.BytesEncrypted.Add(float64(plaintextBytes))
	m.EncryptionDuration.Observe(duration.Seconds())
}

// RecordRuleWarning records a skipped or degraded rule application
func (m *Metrics) RecordRuleWarning(reason string) {
	m.RuleWarningsTotal.WithLabelValues(reason).Inc()
}

// RecordRun records the end of a run
func (m *Metrics) RecordRun(started, finished time.Time) {
	m.RunDurationSeconds.Set(finished.Sub(started).Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the text exposition format, suitable
// for the node_exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
