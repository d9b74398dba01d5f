// Package metrics exposes Prometheus collectors for the query layer.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/koustreak/backoffice/internal/errs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors recorded by query execution.
type Metrics struct {
	registry      *prometheus.Registry
	queryCounter  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	droppedEvents prometheus.Counter
	exportedRows  prometheus.Counter
}

// New creates the collectors and registers them on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queryCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of executed statements",
			},
			[]string{"statement", "outcome"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of executed statements in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"statement"},
		),
		droppedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Audit events written to the fallback log instead of the database",
			},
		),
		exportedRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exported_rows_total",
				Help:      "Rows written to object storage exports",
			},
		),
	}

	m.registry.MustRegister(
		m.queryCounter,
		m.queryDuration,
		m.droppedEvents,
		m.exportedRows,
	)
	return m
}

// ObserveQuery records one statement execution.
func (m *Metrics) ObserveQuery(sql string, started time.Time, err error) {
	if m == nil {
		return
	}
	stmt := StatementKind(sql)
	m.queryCounter.WithLabelValues(stmt, outcome(err)).Inc()
	m.queryDuration.WithLabelValues(stmt).Observe(time.Since(started).Seconds())
}

// EventDropped records an audit event that could not be stored.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

// RowsExported adds n exported rows.
func (m *Metrics) RowsExported(n int) {
	if m == nil {
		return
	}
	m.exportedRows.Add(float64(n))
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatementKind returns the lower-cased leading keyword of sql.
func StatementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	switch kw := strings.ToLower(fields[0]); kw {
	case "select", "insert", "update", "delete", "with":
		return kw
	default:
		return "other"
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errs.IsNotFound(err):
		return "not_found"
	default:
		return errs.KindOf(err).String()
	}
}
