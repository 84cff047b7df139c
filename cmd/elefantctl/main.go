// Command elefantctl runs a single database copy job: it reads a YAML
// config describing a source and destination, then performs the copy,
// adapted from cmd/dbbouncer/main.go's flag/config/component wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/elefantsql/elefant/internal/config"
	"github.com/elefantsql/elefant/internal/copier"
	"github.com/elefantsql/elefant/internal/ddlgen"
	"github.com/elefantsql/elefant/internal/pgclient"
	"github.com/elefantsql/elefant/internal/pgmetrics"
	"github.com/elefantsql/elefant/internal/progress"
	"github.com/elefantsql/elefant/internal/schema"
	"github.com/elefantsql/elefant/internal/sqlfile"
)

func main() {
	configPath := flag.String("config", "configs/elefant.yaml", "path to copy job configuration file")
	dashboardPort := flag.Int("dashboard-port", 8080, "port for the progress dashboard and /metrics endpoint (0 disables it)")
	poolSize := flag.Int("pool-size", 4, "number of concurrent connections to open to each side of the copy")
	watch := flag.Bool("watch", false, "re-run the copy job whenever the config file changes, instead of exiting after one run")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("elefantctl starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	collector := pgmetrics.New()

	var dashboard *progress.Server
	if *dashboardPort != 0 {
		dashboard = progress.NewServer(progress.NewTracker(), collector, *cfg)
		if err := dashboard.Start(*dashboardPort); err != nil {
			log.Fatalf("Failed to start dashboard: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOnce := func(c *config.Config) {
		tracker := progress.NewTracker()
		collector.SetTracker(tracker)
		if dashboard != nil {
			dashboard.SetTracker(tracker)
		}
		if err := runCopyJob(ctx, c, *poolSize, collector, tracker); err != nil {
			log.Printf("Copy job failed: %v", err)
		}
	}

	runOnce(cfg)

	if *watch {
		watcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
			log.Printf("Config changed, re-running copy job...")
			runOnce(newCfg)
		})
		if err != nil {
			log.Fatalf("Failed to watch config file: %v", err)
		}
		defer watcher.Stop()

		log.Printf("Watching %s for changes (ctrl-C to stop)", *configPath)
		<-ctx.Done()
	}

	if dashboard != nil {
		if err := dashboard.Stop(); err != nil {
			log.Printf("dashboard shutdown: %v", err)
		}
	}
}

// runCopyJob dials both sides of the copy and runs the orchestrator once,
// reporting progress through tracker/collector as it goes.
func runCopyJob(ctx context.Context, cfg *config.Config, poolSize int, collector *pgmetrics.Collector, tracker *progress.Tracker) error {
	log.Printf("Running copy (source=%s destination=%s)",
		cfg.Source.Redacted().Address(), cfg.Destination.Redacted().Address())

	source, closeSource, err := openSource(ctx, cfg.Source, poolSize)
	if err != nil {
		tracker.Fail(err)
		return fmt.Errorf("opening source: %w", err)
	}
	defer closeSource()

	destination, closeDestination, err := openDestination(ctx, cfg.Destination, poolSize, cfg.Copy)
	if err != nil {
		tracker.Fail(err)
		return fmt.Errorf("opening destination: %w", err)
	}
	defer closeDestination()

	opts := copier.Options{
		MaxParallel:    cfg.Copy.MaxParallel,
		TargetSchema:   cfg.Copy.TargetSchema,
		RenameSchemaTo: cfg.Copy.RenameSchemaTo,
	}
	if cfg.Copy.DataFormat != "" {
		f := parseDataFormat(cfg.Copy.DataFormat)
		opts.DataFormat = &f
	}

	tracker.SetPhase(progress.PhasePreCopy)
	if err := copier.Copy(ctx, source, destination, opts, collector); err != nil {
		tracker.Fail(err)
		return err
	}
	tracker.SetPhase(progress.PhaseDone)
	log.Printf("Copy completed")
	return nil
}

// openSource always dials a live PostgreSQL connection; reading a
// sqlfile as a copy source isn't supported (sqlfile.Sink only
// implements copier.Destination, per spec.md §4.9's "export" direction).
func openSource(ctx context.Context, cs config.ConnectionSettings, poolSize int) (*copier.PostgresSource, func(), error) {
	if cs.IsFile() {
		return nil, nil, fmt.Errorf("source %q: reading a sql file as a copy source is not supported", cs.SQLFile)
	}
	quoter := ddlgen.NewQuoter(nil)
	src, err := copier.NewPostgresSource(ctx, poolSize, quoter, dialer(cs))
	if err != nil {
		return nil, nil, err
	}
	return src, src.Close, nil
}

// openDestination dials a live PostgreSQL connection, or opens a
// sqlfile.Sink writing to cs.SQLFile when cs names a file destination.
func openDestination(ctx context.Context, cs config.ConnectionSettings, poolSize int, copyOpts config.CopyOptions) (copier.Destination, func(), error) {
	if cs.IsFile() {
		f, err := os.Create(cs.SQLFile)
		if err != nil {
			return nil, nil, fmt.Errorf("creating sql file %q: %w", cs.SQLFile, err)
		}
		quoter := ddlgen.NewQuoter(nil)
		sink := sqlfile.NewSink(f, quoter, sqlfile.Options{
			MaxRowsPerInsert:    copyOpts.MaxRowsPerInsert,
			MaxCommandsPerChunk: copyOpts.MaxCommandsPerChunk,
		})
		return sink, func() { f.Close() }, nil
	}

	quoter := ddlgen.NewQuoter(nil)
	dst, err := copier.NewPostgresDestination(ctx, poolSize, quoter, dialer(cs))
	if err != nil {
		return nil, nil, err
	}
	return dst, dst.Close, nil
}

func dialer(cs config.ConnectionSettings) func(ctx context.Context) (*pgclient.Client, error) {
	return func(ctx context.Context) (*pgclient.Client, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", cs.Address())
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", cs.Address(), err)
		}
		client, err := pgclient.Connect(ctx, conn, cs.User, cs.Database, cs.Password)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return client, nil
	}
}

func parseDataFormat(s string) schema.DataFormat {
	if s == "binary" {
		return schema.DataFormatBinary
	}
	return schema.DataFormatText
}
