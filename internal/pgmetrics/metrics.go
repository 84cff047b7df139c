// Package pgmetrics implements spec.md §4.12 (ambient): Prometheus
// instrumentation for connection counts, query counts, and copy
// throughput, grounded in the teacher's internal/metrics/metrics.go
// (isolated registry + GaugeVec/CounterVec/HistogramVec fields, same
// constructor and accessor-method shape, retargeted from pool/tenant
// metrics to copy-pipeline metrics).
package pgmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Role labels a connection's place in a copy job.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// QueryPhase labels which protocol path a query went through.
type QueryPhase string

const (
	PhaseSimple   QueryPhase = "simple"
	PhaseExtended QueryPhase = "extended"
)

// Collector holds every Prometheus metric the copy pipeline and schema
// reader record through. A nil *Collector is valid and every method on it
// is a no-op, so callers that don't care about metrics can pass nil
// exactly as the teacher's proxy.Server accepts a nil *metrics.Collector.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive  *prometheus.GaugeVec
	queriesTotal       *prometheus.CounterVec
	copyRowsTotal      *prometheus.CounterVec
	copyBytesTotal     *prometheus.CounterVec
	copyDuration       *prometheus.HistogramVec
	introspectDuration prometheus.Histogram

	tracker ProgressTracker
}

// ProgressTracker receives the same per-table events as the Prometheus
// metrics, for a dashboard that needs a point-in-time snapshot rather
// than a scrape target. internal/progress.Tracker satisfies this.
type ProgressTracker interface {
	TableStarted(schema, table string)
	TableProgress(schema, table string, rows, bytes int64)
	TableCompleted(schema, table string, d time.Duration)
	TableFailed(schema, table string, err error)
}

// SetTracker attaches a ProgressTracker that mirrors every copy event
// this Collector records. Safe to call with nil to detach.
func (c *Collector) SetTracker(t ProgressTracker) {
	if c == nil {
		return
	}
	c.tracker = t
}

// New creates and registers all metrics on a fresh, isolated registry —
// safe to call more than once (e.g. one Collector per test) without
// metrics from different instances colliding.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "elefant_connections_active",
				Help: "Number of active PostgreSQL connections by role",
			},
			[]string{"role"},
		),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "elefant_queries_total",
				Help: "Total queries issued by protocol phase",
			},
			[]string{"phase"},
		),
		copyRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "elefant_copy_rows_total",
				Help: "Total rows copied per table",
			},
			[]string{"schema", "table"},
		),
		copyBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "elefant_copy_bytes_total",
				Help: "Total bytes copied per table",
			},
			[]string{"schema", "table"},
		),
		copyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "elefant_copy_duration_seconds",
				Help:    "Duration of a single table's data copy",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
			},
			[]string{"schema", "table"},
		),
		introspectDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "elefant_schema_introspection_duration_seconds",
				Help:    "Duration of a full schema introspection pass",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.queriesTotal,
		c.copyRowsTotal,
		c.copyBytesTotal,
		c.copyDuration,
		c.introspectDuration,
	)

	return c
}

// SetConnectionsActive sets the active-connection gauge for a role.
func (c *Collector) SetConnectionsActive(role Role, n int) {
	if c == nil {
		return
	}
	c.connectionsActive.WithLabelValues(string(role)).Set(float64(n))
}

// QueryIssued increments the query counter for a protocol phase.
func (c *Collector) QueryIssued(phase QueryPhase) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(string(phase)).Inc()
}

// CopyProgress adds rows/bytes copied for one table to the running
// totals — called incrementally as COPY OUT data streams in, per
// spec.md §4.8.
func (c *Collector) CopyProgress(schema, table string, rows, bytes int64) {
	if c == nil {
		return
	}
	c.copyRowsTotal.WithLabelValues(schema, table).Add(float64(rows))
	c.copyBytesTotal.WithLabelValues(schema, table).Add(float64(bytes))
	if c.tracker != nil {
		c.tracker.TableProgress(schema, table, rows, bytes)
	}
}

// CopyTableCompleted records the wall-clock duration of one table's copy.
func (c *Collector) CopyTableCompleted(schema, table string, d time.Duration) {
	if c == nil {
		return
	}
	c.copyDuration.WithLabelValues(schema, table).Observe(d.Seconds())
	if c.tracker != nil {
		c.tracker.TableCompleted(schema, table, d)
	}
}

// CopyTableStarted notes that a table's copy has begun, for a tracker
// that wants to distinguish pending from in-flight tables; it has no
// Prometheus counterpart since "currently copying" isn't a useful metric
// series on its own.
func (c *Collector) CopyTableStarted(schema, table string) {
	if c == nil {
		return
	}
	if c.tracker != nil {
		c.tracker.TableStarted(schema, table)
	}
}

// CopyTableFailed notes that a table's copy ended in an error.
func (c *Collector) CopyTableFailed(schema, table string, err error) {
	if c == nil {
		return
	}
	if c.tracker != nil {
		c.tracker.TableFailed(schema, table, err)
	}
}

// IntrospectionCompleted records the duration of a schema read.
func (c *Collector) IntrospectionCompleted(d time.Duration) {
	if c == nil {
		return
	}
	c.introspectDuration.Observe(d.Seconds())
}
