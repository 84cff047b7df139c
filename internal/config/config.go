// Package config implements spec.md §4.11 (ambient): YAML configuration
// for a copy job's source/destination connections and copy options, plus
// an fsnotify-based file watcher for hot-reload, grounded in the
// teacher's internal/config/config.go (TenantConfig/PoolDefaults →
// ConnectionSettings/CopyOptions) but reworked for a job with exactly two
// named connections: reload diffs old against new and logs what changed.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for an elefant copy job.
type Config struct {
	Source      ConnectionSettings `yaml:"source"`
	Destination ConnectionSettings `yaml:"destination"`
	Copy        CopyOptions        `yaml:"copy"`
}

// ConnectionSettings describes one side of a copy: either a live
// PostgreSQL connection, or (when SQLFile is set) a SQL file, per spec.md
// §6.3. Only a destination can be a file (a sqlfile.Sink); cmd/elefantctl
// rejects a source with SQLFile set.
type ConnectionSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// SQLFile, when non-empty, names a path a sqlfile.Sink writes to
	// instead of dialing a live connection.
	SQLFile string `yaml:"sql_file,omitempty"`
}

// CopyOptions configures a single copy run, spec.md §4.8.
type CopyOptions struct {
	// DataFormat is "text", "binary", or "" to let source and destination
	// negotiate the more efficient common format.
	DataFormat string `yaml:"data_format,omitempty"`
	// MaxParallel bounds the number of tables copied concurrently.
	MaxParallel int `yaml:"max_parallel,omitempty"`
	// TargetSchema restricts the copy to a single schema; empty means all
	// schemas readable by the connecting role.
	TargetSchema string `yaml:"target_schema,omitempty"`
	// RenameSchemaTo, when set, remaps TargetSchema to a different name on
	// the destination side.
	RenameSchemaTo string `yaml:"rename_schema_to,omitempty"`
	// MaxRowsPerInsert and MaxCommandsPerChunk bound a sqlfile.Sink's batch
	// sizes (spec.md §4.9); zero means the sink's own defaults apply.
	MaxRowsPerInsert    int `yaml:"max_rows_per_insert,omitempty"`
	MaxCommandsPerChunk int `yaml:"max_commands_per_chunk,omitempty"`
}

// Address returns "host:port" for dialing.
func (c ConnectionSettings) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsFile reports whether this side of the copy is a SQL file rather than
// a live connection.
func (c ConnectionSettings) IsFile() bool {
	return c.SQLFile != ""
}

// Redacted returns a copy of c with the password masked, for logging —
// the Go analog of the teacher's TenantConfig.Redacted().
func (c ConnectionSettings) Redacted() ConnectionSettings {
	if c.Password != "" {
		c.Password = "***REDACTED***"
	}
	return c
}

// envVarPattern matches ${VAR_NAME} and ${VAR_NAME:-default}. The default
// form exists because a copy job's config routinely sets things like
// ${PGPORT:-5432} or ${COPY_TARGET_SCHEMA:-public} where the caller may or
// may not have the variable exported, and applyDefaults only covers the
// Go-level zero value, not "whatever the YAML author wrote inline".
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns
// with environment variable values, falling back to the literal default
// when present, or leaving the reference untouched when neither resolves.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name, hasDefault, def := string(groups[1]), len(groups[2]) > 0, string(groups[3])
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		if hasDefault {
			return []byte(def)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Port == 0 && !cfg.Source.IsFile() {
		cfg.Source.Port = 5432
	}
	if cfg.Destination.Port == 0 && !cfg.Destination.IsFile() {
		cfg.Destination.Port = 5432
	}
	if cfg.Copy.MaxParallel == 0 {
		cfg.Copy.MaxParallel = 4
	}
	if cfg.Copy.MaxRowsPerInsert == 0 {
		cfg.Copy.MaxRowsPerInsert = 1000
	}
	if cfg.Copy.MaxCommandsPerChunk == 0 {
		cfg.Copy.MaxCommandsPerChunk = 10
	}
}

func validate(cfg *Config) error {
	if err := validateConnection("source", cfg.Source); err != nil {
		return err
	}
	if err := validateConnection("destination", cfg.Destination); err != nil {
		return err
	}
	switch cfg.Copy.DataFormat {
	case "", "text", "binary":
	default:
		return fmt.Errorf("copy: unsupported data_format %q (must be text, binary, or empty)", cfg.Copy.DataFormat)
	}
	return nil
}

func validateConnection(side string, c ConnectionSettings) error {
	if c.IsFile() {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("%s: host is required (or set sql_file)", side)
	}
	if c.Database == "" {
		return fmt.Errorf("%s: database is required", side)
	}
	if c.User == "" {
		return fmt.Errorf("%s: user is required", side)
	}
	return nil
}

// Watcher watches a copy job's config file and re-runs callback with the
// reparsed Config on every change, so a long-running `--watch` process
// can pick up a rotated password or a retargeted schema without a
// restart. Unlike a pool of long-lived tenant connections, a copy job has
// exactly one source and one destination, so on reload there's a cheap,
// useful diagnostic a tenant-pool watcher has no use for: log precisely
// which connection field changed, not just that something did.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	current  *Config
	stopCh   chan struct{}
}

// NewWatcher creates a config file watcher, loading path once up front so
// the first detected change has a baseline to diff against.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading initial config: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		current:  initial,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			} else {
				debounce.Reset(500 * time.Millisecond)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error watching %s: %v", cw.path, err)
		case <-cw.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	next, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] keeping previous config, reload of %s failed: %v", cw.path, err)
		return
	}

	changes := append(diffConnection("source", cw.current.Source, next.Source),
		diffConnection("destination", cw.current.Destination, next.Destination)...)
	if len(changes) == 0 {
		log.Printf("[config] %s changed, but source/destination connections are unchanged", cw.path)
	}
	for _, c := range changes {
		log.Printf("[config] %s", c)
	}

	cw.current = next
	cw.callback(next)
}

// diffConnection reports which of a connection's fields changed between
// two loads of the same config file, keyed by side ("source" or
// "destination"), so a hot-reload log line says what changed instead of
// just that a reload happened.
func diffConnection(side string, old, next ConnectionSettings) []string {
	var changes []string
	note := func(field, oldVal, newVal string) {
		if oldVal != newVal {
			changes = append(changes, fmt.Sprintf("%s: %s changed from %q to %q", side, field, oldVal, newVal))
		}
	}
	note("host", old.Host, next.Host)
	note("database", old.Database, next.Database)
	note("user", old.User, next.User)
	note("sql_file", old.SQLFile, next.SQLFile)
	if old.Port != next.Port {
		changes = append(changes, fmt.Sprintf("%s: port changed from %d to %d", side, old.Port, next.Port))
	}
	if old.Password != next.Password {
		changes = append(changes, fmt.Sprintf("%s: password changed", side))
	}
	return changes
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
