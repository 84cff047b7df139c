package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/elefantsql/elefant/internal/config"
)

func TestTrackerSnapshotReflectsTableProgress(t *testing.T) {
	tr := NewTracker()
	tr.SetPhase(PhaseCopying)
	tr.RegisterTable("public", "orders")
	tr.TableStarted("public", "orders")
	tr.TableProgress("public", "orders", 10, 1024)
	tr.TableProgress("public", "orders", 5, 512)

	snap := tr.Snapshot()
	if snap.Phase != PhaseCopying {
		t.Errorf("phase = %v, want %v", snap.Phase, PhaseCopying)
	}
	if len(snap.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(snap.Tables))
	}
	got := snap.Tables[0]
	if got.Rows != 15 || got.Bytes != 1536 {
		t.Errorf("table = %+v, want rows=15 bytes=1536", got)
	}
	if !got.Started || got.Done {
		t.Errorf("expected started=true done=false, got %+v", got)
	}
}

func TestTrackerSnapshotCountsCompletedAndFailed(t *testing.T) {
	tr := NewTracker()
	tr.RegisterTable("public", "a")
	tr.RegisterTable("public", "b")
	tr.TableCompleted("public", "a", 5*time.Millisecond)
	tr.TableFailed("public", "b", errTest("boom"))

	snap := tr.Snapshot()
	if snap.TablesTotal != 2 {
		t.Errorf("TablesTotal = %d, want 2", snap.TablesTotal)
	}
	if snap.TablesDone != 2 {
		t.Errorf("TablesDone = %d, want 2", snap.TablesDone)
	}
	if snap.TablesFailed != 1 {
		t.Errorf("TablesFailed = %d, want 1", snap.TablesFailed)
	}
}

func TestTrackerFailSetsPhaseAndError(t *testing.T) {
	tr := NewTracker()
	tr.Fail(errTest("connection refused"))

	snap := tr.Snapshot()
	if snap.Phase != PhaseFailed {
		t.Errorf("phase = %v, want %v", snap.Phase, PhaseFailed)
	}
	if snap.Error != "connection refused" {
		t.Errorf("error = %q", snap.Error)
	}
}

func TestRenderDashboardIncludesTableRowsAndRedactsPassword(t *testing.T) {
	tr := NewTracker()
	tr.RegisterTable("public", "orders")
	tr.TableProgress("public", "orders", 3, 128)

	cfg := config.Config{
		Source:      config.ConnectionSettings{Host: "db1", Port: 5432, Password: "hunter2"},
		Destination: config.ConnectionSettings{Host: "db2", Port: 5432},
	}

	var buf bytes.Buffer
	renderDashboard(&buf, tr.Snapshot(), cfg)

	out := buf.String()
	if !strings.Contains(out, "orders") {
		t.Errorf("dashboard missing table name:\n%s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("dashboard leaked password:\n%s", out)
	}
	if !strings.Contains(out, "db1:5432") {
		t.Errorf("dashboard missing source address:\n%s", out)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
