// Package metrics exposes Prometheus counters and histograms for parse outcomes.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cvtext"

// OutcomeOK labels a parse that produced text.
const OutcomeOK = "ok"

// Metrics owns a private registry so tests and multiple instances never collide.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry  *prom.Registry
	parses    *prom.CounterVec
	duration  *prom.HistogramVec
	textBytes prom.Histogram
	truncated prom.Counter
	ingested  *prom.CounterVec
}

// New creates the collectors and registers them together with the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prom.NewRegistry(),
		parses: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Parse attempts by detected format and outcome (ok or error kind).",
		}, []string{"format", "outcome"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Wall time of a single parse by detected format.",
			Buckets:   prom.ExponentialBuckets(0.001, 4, 8),
		}, []string{"format"}),
		textBytes: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "extracted_text_bytes",
			Help:      "Size of normalized text produced by successful parses.",
			Buckets:   prom.ExponentialBuckets(256, 4, 8),
		}),
		truncated: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "truncated_total",
			Help:      "Parses whose text was cut at the configured limit.",
		}),
		ingested: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingestion results by source (file, upload, watch) and result (stored, skipped, deduplicated, failed).",
		}, []string{"source", "result"}),
	}
	m.registry.MustRegister(
		m.parses, m.duration, m.textBytes, m.truncated, m.ingested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveParse records one parse. outcome is OutcomeOK or an error kind name.
func (m *Metrics) ObserveParse(format, outcome string, elapsed time.Duration, textBytes int, truncated bool) {
	if m == nil {
		return
	}
	m.parses.WithLabelValues(format, outcome).Inc()
	m.duration.WithLabelValues(format).Observe(elapsed.Seconds())
	if outcome != OutcomeOK {
		return
	}
	m.textBytes.Observe(float64(textBytes))
	if truncated {
		m.truncated.Inc()
	}
}

// ObserveIngest records the result of storing one input.
func (m *Metrics) ObserveIngest(source, result string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source, result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prom.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
