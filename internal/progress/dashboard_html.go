package progress

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/elefantsql/elefant/internal/config"
)

// dashboardCSS reuses the teacher's dark/light theme via CSS custom
// properties and card layout (internal/api/dashboard_html.go), trimmed
// to what a read-only progress page needs — no forms, no toggles.
const dashboardCSS = `
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root,[data-theme="dark"]{
  --bg:#0f1117;--bg-card:#161b22;--border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;
  --primary:#58a6ff;--green:#3fb950;--red:#f85149;--yellow:#d29922;--radius:8px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
.container{max-width:1200px;margin:0 auto;padding:24px}
header{display:flex;align-items:center;gap:16px;margin-bottom:24px}
.header-title{font-size:20px;font-weight:700}
.badge{display:inline-flex;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border)}
.badge-done{color:var(--green);border-color:var(--green)}
.badge-failed{color:var(--red);border-color:var(--red)}
.badge-running{color:var(--primary);border-color:var(--primary)}
.summary{display:grid;grid-template-columns:repeat(4,1fr);gap:16px;margin-bottom:24px}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:20px}
.card-label{font-size:12px;text-transform:uppercase;letter-spacing:.5px;color:var(--text-muted);margin-bottom:4px}
.card-value{font-size:32px;font-weight:700}
.table-wrap{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:auto}
table{width:100%;border-collapse:collapse;font-size:14px}
th{text-align:left;padding:10px 16px;font-weight:600;color:var(--text-muted);border-bottom:1px solid var(--border);font-size:12px;text-transform:uppercase}
td{padding:8px 16px;border-bottom:1px solid var(--border)}
.error-text{color:var(--red)}
`

const dashboardBodyTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta http-equiv="refresh" content="2">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>elefant copy progress</title>
<style>{{.CSS}}</style>
</head>
<body>
<div class="container">
<header>
  <div class="header-title">elefant copy progress</div>
  <span class="badge {{.PhaseBadgeClass}}">{{.Snapshot.Phase}}</span>
</header>
<div class="summary">
  <div class="card"><div class="card-label">Source</div><div class="card-value" style="font-size:16px">{{.Source}}</div></div>
  <div class="card"><div class="card-label">Destination</div><div class="card-value" style="font-size:16px">{{.Destination}}</div></div>
  <div class="card"><div class="card-label">Tables</div><div class="card-value">{{.Snapshot.TablesDone}} / {{.Snapshot.TablesTotal}}</div></div>
  <div class="card"><div class="card-label">Elapsed</div><div class="card-value" style="font-size:20px">{{.Elapsed}}</div></div>
</div>
{{if .Snapshot.Error}}<p class="error-text">{{.Snapshot.Error}}</p>{{end}}
<div class="table-wrap">
<table>
<thead><tr><th>Schema</th><th>Table</th><th>Rows</th><th>Bytes</th><th>Status</th></tr></thead>
<tbody>
{{range .Snapshot.Tables}}
<tr>
  <td>{{.Schema}}</td>
  <td>{{.Table}}</td>
  <td>{{.Rows}}</td>
  <td>{{.Bytes}}</td>
  <td>{{if .Error}}<span class="error-text">{{.Error}}</span>{{else if .Done}}done{{else if .Started}}copying{{else}}pending{{end}}</td>
</tr>
{{end}}
</tbody>
</table>
</div>
</div>
</body>
</html>
`

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardBodyTmpl))

type dashboardView struct {
	CSS             template.CSS
	Snapshot        Snapshot
	Source          string
	Destination     string
	Elapsed         string
	PhaseBadgeClass string
}

func renderDashboard(w io.Writer, snap Snapshot, cfg config.Config) {
	class := "badge-running"
	switch snap.Phase {
	case PhaseDone:
		class = "badge-done"
	case PhaseFailed:
		class = "badge-failed"
	}

	view := dashboardView{
		CSS:             template.CSS(dashboardCSS),
		Snapshot:        snap,
		Source:          cfg.Source.Redacted().Address(),
		Destination:     cfg.Destination.Redacted().Address(),
		Elapsed:         snap.Elapsed.Round(time.Second).String(),
		PhaseBadgeClass: class,
	}

	if err := dashboardTemplate.Execute(w, view); err != nil {
		fmt.Fprintf(w, "<html><body>dashboard render error: %v</body></html>", err)
	}
}
