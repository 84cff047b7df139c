// Package progress implements spec.md §4.13 (ambient): an HTTP status
// dashboard and JSON API for an in-flight copy run, grounded on the
// teacher's internal/api/server.go (mux route table, writeJSON/writeError
// helpers, /status and /metrics endpoints) and dashboard.go/dashboard_html.go
// (hand-written HTML served from a Go string constant), retargeted from
// "tenant pool status" to "copy run status".
package progress

import (
	"sync"
	"time"
)

// Phase names one stage of a copy run, mirroring internal/copier's own
// pre-copy/copy/post-copy structure.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseIntrospect Phase = "introspecting"
	PhasePreCopy    Phase = "pre-copy"
	PhaseCopying    Phase = "copying"
	PhasePostCopy   Phase = "post-copy"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// TableStatus is one table's progress within the current run.
type TableStatus struct {
	Schema   string        `json:"schema"`
	Table    string        `json:"table"`
	Rows     int64         `json:"rows"`
	Bytes    int64         `json:"bytes"`
	Started  bool          `json:"started"`
	Done     bool          `json:"done"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Snapshot is the JSON-serializable view Tracker.Snapshot returns, per
// spec.md §4.13's JSON API.
type Snapshot struct {
	Phase        Phase         `json:"phase"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	TablesTotal  int           `json:"tables_total"`
	TablesDone   int           `json:"tables_done"`
	TablesFailed int           `json:"tables_failed"`
	Tables       []TableStatus `json:"tables"`
	Error        string        `json:"error,omitempty"`
}

// Tracker is a thread-safe record of one copy run's progress, read by
// the dashboard/JSON handlers and written as the run proceeds: table
// progress arrives through pgmetrics.Collector, which forwards the
// copier's calls, and cmd/elefantctl sets the phase. The zero value is not usable — construct with NewTracker.
type Tracker struct {
	mu        sync.Mutex
	phase     Phase
	startedAt time.Time
	tables    map[tableKey]*TableStatus
	order     []tableKey
	err       string
}

type tableKey struct{ schema, table string }

// NewTracker creates a Tracker in PhasePending with no tables; a table is
// added by RegisterTable or by the first progress call that names it.
func NewTracker() *Tracker {
	return &Tracker{phase: PhasePending, startedAt: time.Now(), tables: make(map[tableKey]*TableStatus)}
}

// SetPhase records which stage of the pipeline is currently running.
func (t *Tracker) SetPhase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = p
}

// Fail records a fatal, run-ending error.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseFailed
	if err != nil {
		t.err = err.Error()
	}
}

// RegisterTable adds a table to track before its copy starts, so the
// dashboard can show it as pending.
func (t *Tracker) RegisterTable(schema, table string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := tableKey{schema, table}
	if _, ok := t.tables[k]; ok {
		return
	}
	t.tables[k] = &TableStatus{Schema: schema, Table: table}
	t.order = append(t.order, k)
}

// TableStarted marks a table's copy as in flight.
func (t *Tracker) TableStarted(schema, table string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.tableLocked(schema, table)
	s.Started = true
}

// TableProgress accumulates rows/bytes copied so far for one table.
func (t *Tracker) TableProgress(schema, table string, rows, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.tableLocked(schema, table)
	s.Rows += rows
	s.Bytes += bytes
}

// TableCompleted marks a table's copy as finished successfully.
func (t *Tracker) TableCompleted(schema, table string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.tableLocked(schema, table)
	s.Done = true
	s.Duration = d
}

// TableFailed marks a table's copy as finished with an error.
func (t *Tracker) TableFailed(schema, table string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.tableLocked(schema, table)
	s.Done = true
	if err != nil {
		s.Error = err.Error()
	}
}

func (t *Tracker) tableLocked(schema, table string) *TableStatus {
	k := tableKey{schema, table}
	s, ok := t.tables[k]
	if !ok {
		s = &TableStatus{Schema: schema, Table: table}
		t.tables[k] = s
		t.order = append(t.order, k)
	}
	return s
}

// Snapshot returns a consistent, JSON-ready copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	tables := make([]TableStatus, 0, len(t.order))
	done, failed := 0, 0
	for _, k := range t.order {
		s := *t.tables[k]
		tables = append(tables, s)
		if s.Done {
			done++
			if s.Error != "" {
				failed++
			}
		}
	}

	return Snapshot{
		Phase:        t.phase,
		StartedAt:    t.startedAt,
		Elapsed:      time.Since(t.startedAt),
		TablesTotal:  len(tables),
		TablesDone:   done,
		TablesFailed: failed,
		Tables:       tables,
		Error:        t.err,
	}
}
