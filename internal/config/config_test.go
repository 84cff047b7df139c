package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
source:
  host: localhost
  port: 5432
  database: srcdb
  user: srcuser
  password: srcpass

destination:
  host: otherhost
  port: 5433
  database: dstdb
  user: dstuser
  password: dstpass

copy:
  data_format: binary
  max_parallel: 8
  target_schema: public
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.Host != "localhost" || cfg.Source.Port != 5432 {
		t.Errorf("unexpected source: %+v", cfg.Source)
	}
	if cfg.Destination.Database != "dstdb" {
		t.Errorf("unexpected destination database: %s", cfg.Destination.Database)
	}
	if cfg.Copy.DataFormat != "binary" || cfg.Copy.MaxParallel != 8 {
		t.Errorf("unexpected copy options: %+v", cfg.Copy)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_DB_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	yaml := `
source:
  host: localhost
  database: db
  user: user
  password: ${TEST_DB_PASSWORD}
destination:
  sql_file: /tmp/out.sql
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.Password != "secret123" {
		t.Errorf("expected password secret123, got %s", cfg.Source.Password)
	}
}

func TestLoadEnvSubstitutionDefault(t *testing.T) {
	os.Unsetenv("TEST_DB_PORT_UNSET")

	yaml := `
source:
  host: localhost
  port: ${TEST_DB_PORT_UNSET:-5433}
  database: db
  user: user
destination:
  sql_file: /tmp/out.sql
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.Port != 5433 {
		t.Errorf("expected default port 5433 from inline fallback, got %d", cfg.Source.Port)
	}
}

func TestLoadEnvSubstitutionDefaultOverriddenByEnv(t *testing.T) {
	os.Setenv("TEST_DB_SCHEMA", "tenant_a")
	defer os.Unsetenv("TEST_DB_SCHEMA")

	yaml := `
source:
  sql_file: /tmp/in.sql
destination:
  sql_file: /tmp/out.sql
copy:
  target_schema: ${TEST_DB_SCHEMA:-public}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Copy.TargetSchema != "tenant_a" {
		t.Errorf("expected env value to win over inline default, got %s", cfg.Copy.TargetSchema)
	}
}

func TestDiffConnection(t *testing.T) {
	old := ConnectionSettings{Host: "old-host", Port: 5432, Database: "db", User: "user", Password: "p1"}
	next := old
	next.Host = "new-host"
	next.Password = "p2"

	changes := diffConnection("source", old, next)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %v", len(changes), changes)
	}

	if changes := diffConnection("source", old, old); len(changes) != 0 {
		t.Errorf("expected no changes for identical settings, got %v", changes)
	}
}

func TestLoadSQLFileSideSkipsHostValidation(t *testing.T) {
	yaml := `
source:
  sql_file: /tmp/in.sql
destination:
  host: localhost
  database: db
  user: user
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Source.IsFile() {
		t.Error("expected source to be recognized as a file side")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing source host",
			yaml: `
source:
  database: db
  user: user
destination:
  sql_file: /tmp/out.sql
`,
		},
		{
			name: "missing destination user",
			yaml: `
source:
  sql_file: /tmp/in.sql
destination:
  host: localhost
  database: db
`,
		},
		{
			name: "invalid data format",
			yaml: `
source:
  sql_file: /tmp/in.sql
destination:
  sql_file: /tmp/out.sql
copy:
  data_format: xml
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	yaml := `
source:
  sql_file: /tmp/in.sql
destination:
  sql_file: /tmp/out.sql
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Copy.MaxParallel != 4 {
		t.Errorf("expected default max_parallel 4, got %d", cfg.Copy.MaxParallel)
	}
	if cfg.Copy.MaxRowsPerInsert != 1000 {
		t.Errorf("expected default max_rows_per_insert 1000, got %d", cfg.Copy.MaxRowsPerInsert)
	}
}

func TestConnectionSettingsRedacted(t *testing.T) {
	c := ConnectionSettings{Host: "localhost", Password: "hunter2"}
	r := c.Redacted()
	if r.Password == "hunter2" {
		t.Error("expected password to be redacted")
	}
	if c.Password != "hunter2" {
		t.Error("Redacted should not mutate the receiver")
	}
}

func TestConnectionSettingsAddress(t *testing.T) {
	c := ConnectionSettings{Host: "db.example.com", Port: 5432}
	if got := c.Address(); got != "db.example.com:5432" {
		t.Errorf("unexpected address: %s", got)
	}
}
