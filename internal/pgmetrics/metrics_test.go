package pgmetrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestCopyProgressAccumulates(t *testing.T) {
	c := New()
	c.CopyProgress("public", "users", 10, 1024)
	c.CopyProgress("public", "users", 5, 512)

	mf, err := c.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	rows := findCounterValue(t, mf, "elefant_copy_rows_total")
	if rows != 15 {
		t.Errorf("expected 15 rows, got %v", rows)
	}
}

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	c.SetConnectionsActive(RoleSource, 3)
	c.QueryIssued(PhaseSimple)
	c.CopyProgress("s", "t", 1, 1)
	c.CopyTableStarted("s", "t")
	c.CopyTableCompleted("s", "t", time.Second)
	c.CopyTableFailed("s", "t", nil)
	c.IntrospectionCompleted(time.Second)
	c.SetTracker(nil)
}

type fakeTracker struct {
	started, completed, failed int
	lastRows, lastBytes        int64
}

func (f *fakeTracker) TableStarted(schema, table string) { f.started++ }
func (f *fakeTracker) TableProgress(schema, table string, rows, bytes int64) {
	f.lastRows, f.lastBytes = rows, bytes
}
func (f *fakeTracker) TableCompleted(schema, table string, d time.Duration) { f.completed++ }
func (f *fakeTracker) TableFailed(schema, table string, err error)          { f.failed++ }

func TestCollectorForwardsEventsToTracker(t *testing.T) {
	c := New()
	tr := &fakeTracker{}
	c.SetTracker(tr)

	c.CopyTableStarted("public", "users")
	c.CopyProgress("public", "users", 10, 1024)
	c.CopyTableCompleted("public", "users", time.Millisecond)
	c.CopyTableFailed("public", "orders", errTest("boom"))

	if tr.started != 1 || tr.completed != 1 || tr.failed != 1 {
		t.Fatalf("tracker = %+v, want one of each event", tr)
	}
	if tr.lastRows != 10 || tr.lastBytes != 1024 {
		t.Fatalf("tracker progress = rows=%d bytes=%d", tr.lastRows, tr.lastBytes)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func findCounterValue(t *testing.T, mf []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, f := range mf {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric family %s not found", name)
	return 0
}
