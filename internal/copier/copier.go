// Package copier implements spec.md §4.8: the data-copy orchestrator
// that introspects a source database, applies equivalent structure to a
// destination, streams each table's rows across, then applies the
// statements that can only run once data is present. Grounded on
// original_source/elefant-tools/src/copy_data.rs's copy_data/
// apply_pre_copy_structure/apply_post_copy_structure_sequential/parallel
// functions and its CopySource/CopyDestination trait split (storage/mod.rs),
// translated into two narrow Go interfaces instead of a generic trait
// hierarchy — idiomatic Go favors small interfaces over Rust's
// associated-type trait objects.
package copier

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elefantsql/elefant/internal/ddlgen"
	"github.com/elefantsql/elefant/internal/pgmetrics"
	"github.com/elefantsql/elefant/internal/schema"
)

// Source is anything copy_data can introspect and stream table data out
// of, the Go analog of CopySource in storage/mod.rs.
type Source interface {
	Introspect(ctx context.Context) (*schema.PostgresDatabase, error)
	SupportedFormats() []schema.DataFormat
	OpenTableData(ctx context.Context, s *schema.PostgresSchema, t *schema.PostgresTable, format schema.DataFormat) (TableData, error)
}

// TableData is a single table's COPY payload stream. Implementations
// (e.g. pgclient.CopyOutReader) satisfy io.WriterTo so Destination.ApplyData
// can forward bytes without an intermediate buffer.
type TableData interface {
	WriteTo(w io.Writer) (int64, error)
}

// Destination is anything copy_data can apply structure and data to, the
// Go analog of CopyDestination in storage/mod.rs.
type Destination interface {
	SupportedFormats() []schema.DataFormat
	BeginTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	ApplyTransactionalStatement(ctx context.Context, stmt string) error
	ApplyNonTransactionalStatement(ctx context.Context, stmt string) error
	ApplyData(ctx context.Context, s *schema.PostgresSchema, t *schema.PostgresTable, format schema.DataFormat, data TableData) error
	IdentifierQuoter() *ddlgen.Quoter
	// SupportsParallel reports whether concurrent ApplyData/ApplyNonTransactionalStatement
	// calls are safe — false for a single sequential sql file sink, per
	// spec.md §4.9's "sequential-only" sink.
	SupportsParallel() bool
}

// Options configures one copy run, spec.md §4.8.
type Options struct {
	// DataFormat forces a specific wire format; zero value lets source and
	// destination negotiate.
	DataFormat *schema.DataFormat
	// MaxParallel bounds concurrent table workers; <=1 means sequential.
	MaxParallel int
	// TargetSchema restricts the copy to one schema; empty means every
	// schema the source role can read.
	TargetSchema string
	// RenameSchemaTo remaps TargetSchema to a different name at the
	// destination, when both are set.
	RenameSchemaTo string
}

func (o Options) maxParallelOrOne() int {
	if o.MaxParallel < 1 {
		return 1
	}
	return o.MaxParallel
}

// Copy runs the full pipeline: negotiate format, introspect, pre-copy DDL
// (transactional), per-table COPY (bounded parallel), post-copy DDL
// (non-transactional, grouped), per spec.md §4.8.
func Copy(ctx context.Context, source Source, destination Destination, opts Options, collector *pgmetrics.Collector) error {
	format, err := negotiateFormat(source, destination, opts)
	if err != nil {
		return err
	}

	sourceDB, err := source.Introspect(ctx)
	if err != nil {
		return fmt.Errorf("copier: introspecting source: %w", err)
	}

	targetDB := filterToSchema(sourceDB, opts.TargetSchema)
	targetDB = renameSchema(targetDB, opts.TargetSchema, opts.RenameSchemaTo)

	quoter := destination.IdentifierQuoter()

	if err := destination.BeginTransaction(ctx); err != nil {
		return fmt.Errorf("copier: beginning pre-copy transaction: %w", err)
	}
	if err := applyPreCopyStructure(ctx, destination, targetDB, quoter); err != nil {
		return err
	}
	if err := destination.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("copier: committing pre-copy transaction: %w", err)
	}

	if err := copyAllTables(ctx, source, destination, sourceDB, targetDB, format, opts, collector); err != nil {
		return err
	}

	return applyPostCopyStructure(ctx, destination, targetDB, quoter, opts)
}

func negotiateFormat(source Source, destination Destination, opts Options) (schema.DataFormat, error) {
	srcFormats := source.SupportedFormats()
	dstFormats := destination.SupportedFormats()

	supported := make(map[schema.DataFormat]bool)
	for _, f := range srcFormats {
		for _, g := range dstFormats {
			if f == g {
				supported[f] = true
			}
		}
	}
	if len(supported) == 0 {
		return 0, fmt.Errorf("copier: source and destination share no common data format (source: %v, destination: %v)", srcFormats, dstFormats)
	}
	if opts.DataFormat != nil {
		if !supported[*opts.DataFormat] {
			return 0, fmt.Errorf("copier: requested format %v not supported by both sides", *opts.DataFormat)
		}
		return *opts.DataFormat, nil
	}
	if supported[schema.DataFormatBinary] {
		return schema.DataFormatBinary, nil
	}
	return schema.DataFormatText, nil
}

// filterToSchema keeps only the named schema when targetSchema is set,
// per spec.md §4.8's target_schema option.
func filterToSchema(db *schema.PostgresDatabase, targetSchema string) *schema.PostgresDatabase {
	if targetSchema == "" {
		return db
	}
	out := &schema.PostgresDatabase{Extensions: db.Extensions, Timescale: db.Timescale}
	if s := db.SchemaNamed(targetSchema); s != nil {
		out.Schemas = []*schema.PostgresSchema{s}
	}
	return out
}

// renameSchema returns a shallow copy of db with the named schema's Name
// field changed, so the destination creates it under a different name
// than the source, per spec.md §4.8's rename_schema_to option.
func renameSchema(db *schema.PostgresDatabase, from, to string) *schema.PostgresDatabase {
	if from == "" || to == "" {
		return db
	}
	out := &schema.PostgresDatabase{Extensions: db.Extensions, Timescale: db.Timescale}
	for _, s := range db.Schemas {
		if s.Name == from {
			renamed := *s
			renamed.Name = to
			out.Schemas = append(out.Schemas, &renamed)
		} else {
			out.Schemas = append(out.Schemas, s)
		}
	}
	return out
}

// tableTypeOrder fixes the within-schema table creation order so a
// partitioned parent/hypertable predecessor is never referenced before it
// exists, grounded on copy_data.rs's apply_pre_copy_structure sort key.
func tableTypeOrder(k schema.TableKind) int {
	switch k {
	case schema.TablePlain:
		return 0
	case schema.TableTimescaleHypertable:
		return 1
	case schema.TablePartitionedParent:
		return 2
	case schema.TablePartitionedChild:
		return 3
	case schema.TableInherited:
		return 4
	default:
		return 5
	}
}

func applyPreCopyStructure(ctx context.Context, destination Destination, db *schema.PostgresDatabase, q *ddlgen.Quoter) error {
	for _, s := range db.Schemas {
		if err := destination.ApplyTransactionalStatement(ctx, ddlgen.CreateSchemaStatement(s, q)); err != nil {
			return fmt.Errorf("copier: creating schema %s: %w", s.Name, err)
		}
	}
	for _, s := range db.Schemas {
		for _, e := range s.Enums {
			if err := destination.ApplyTransactionalStatement(ctx, ddlgen.CreateEnumStatement(e, s, q)); err != nil {
				return fmt.Errorf("copier: creating enum %s.%s: %w", s.Name, e.Name, err)
			}
		}
		for _, d := range s.Domains {
			if err := destination.ApplyTransactionalStatement(ctx, ddlgen.CreateDomainStatement(d, s, q)); err != nil {
				return fmt.Errorf("copier: creating domain %s.%s: %w", s.Name, d.Name, err)
			}
		}
	}
	for _, s := range db.Schemas {
		for _, fn := range s.Functions {
			if err := destination.ApplyTransactionalStatement(ctx, ddlgen.CreateFunctionStatement(fn, s, q)); err != nil {
				return fmt.Errorf("copier: creating function %s.%s: %w", s.Name, fn.Name, err)
			}
		}
	}
	for _, ext := range db.Extensions {
		if err := destination.ApplyTransactionalStatement(ctx, ddlgen.CreateExtensionStatement(ext, q)); err != nil {
			return fmt.Errorf("copier: creating extension %s: %w", ext.Name, err)
		}
	}
	for _, s := range db.Schemas {
		tables := make([]*schema.PostgresTable, len(s.Tables))
		copy(tables, s.Tables)
		sort.SliceStable(tables, func(i, j int) bool {
			return tableTypeOrder(tables[i].Kind) < tableTypeOrder(tables[j].Kind)
		})
		for _, t := range tables {
			if err := destination.ApplyTransactionalStatement(ctx, ddlgen.CreateTableStatement(t, s, q)); err != nil {
				return fmt.Errorf("copier: creating table %s.%s: %w", s.Name, t.Name, err)
			}
		}
	}
	return nil
}

// copyAllTables streams every non-parent table's data, skipping
// partitioned-parent tables (their children carry the actual rows) per
// spec.md §4.8, bounded by opts.MaxParallel via errgroup.SetLimit — the
// idiomatic Go replacement for copy_data.rs's hand-rolled ParallelRunner.
func copyAllTables(ctx context.Context, source Source, destination Destination, sourceDB, targetDB *schema.PostgresDatabase, format schema.DataFormat, opts Options, collector *pgmetrics.Collector) error {
	limit := opts.maxParallelOrOne()
	if !destination.SupportsParallel() {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, targetSchema := range targetDB.Schemas {
		sourceSchema := sourceDB.SchemaNamed(targetSchema.Name)
		if sourceSchema == nil {
			continue
		}
		for _, targetTable := range targetSchema.Tables {
			if targetTable.Kind == schema.TablePartitionedParent {
				continue
			}
			sourceTable := sourceSchema.TableNamed(targetTable.Name)
			if sourceTable == nil {
				continue
			}

			targetSchema, targetTable, sourceSchema, sourceTable := targetSchema, targetTable, sourceSchema, sourceTable
			g.Go(func() error {
				return copyOneTable(gctx, source, destination, sourceSchema, sourceTable, targetSchema, targetTable, format, collector)
			})
		}
	}

	return g.Wait()
}

func copyOneTable(ctx context.Context, source Source, destination Destination, sourceSchema *schema.PostgresSchema, sourceTable *schema.PostgresTable, targetSchema *schema.PostgresSchema, targetTable *schema.PostgresTable, format schema.DataFormat, collector *pgmetrics.Collector) error {
	start := time.Now()
	collector.CopyTableStarted(targetSchema.Name, targetTable.Name)

	data, err := source.OpenTableData(ctx, sourceSchema, sourceTable, format)
	if err != nil {
		err = fmt.Errorf("copier: opening %s.%s for read: %w", sourceSchema.Name, sourceTable.Name, err)
		collector.CopyTableFailed(targetSchema.Name, targetTable.Name, err)
		return err
	}
	counted := &countingTableData{TableData: data, schema: targetSchema.Name, table: targetTable.Name, collector: collector}
	if err := destination.ApplyData(ctx, targetSchema, targetTable, format, counted); err != nil {
		err = fmt.Errorf("copier: copying %s.%s: %w", sourceSchema.Name, sourceTable.Name, err)
		collector.CopyTableFailed(targetSchema.Name, targetTable.Name, err)
		return err
	}
	collector.CopyTableCompleted(targetSchema.Name, targetTable.Name, time.Since(start))
	return nil
}

// countingTableData wraps a TableData stream to report row/byte progress
// to the metrics collector as it's forwarded, per spec.md §4.8's "copy
// progress observable mid-flight" requirement. Row counting is
// approximate: it counts CopyData message boundaries rather than
// decoding individual tuples, since TableData only exposes WriteTo.
type countingTableData struct {
	TableData
	schema, table string
	collector     *pgmetrics.Collector
}

func (c *countingTableData) WriteTo(w io.Writer) (int64, error) {
	n, err := c.TableData.WriteTo(&countingWriter{w: w, schema: c.schema, table: c.table, collector: c.collector})
	return n, err
}

type countingWriter struct {
	w             io.Writer
	schema, table string
	collector     *pgmetrics.Collector
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.collector.CopyProgress(c.schema, c.table, 1, int64(n))
	return n, err
}

// postApplyStatementGroups mirrors copy_data.rs's
// get_post_apply_statement_groups: each group runs fully before the next
// starts (so constraints never reference an index that isn't built yet),
// but statements within one group may run concurrently.
func postApplyStatementGroups(db *schema.PostgresDatabase, q *ddlgen.Quoter) [][]string {
	var groups [][]string

	for _, s := range db.Schemas {
		var indicesAndSequences, setvalsAndDefaults []string
		for _, t := range s.Tables {
			for _, idx := range t.Indices {
				if idx.IndexConstraintType == schema.IndexPrimaryKey {
					continue
				}
				indicesAndSequences = append(indicesAndSequences, ddlgen.CreateIndexCommand(idx, s, t, q))
			}
		}
		for _, seq := range s.Sequences {
			indicesAndSequences = append(indicesAndSequences, ddlgen.CreateSequenceStatement(seq, s, q))
			if stmt := ddlgen.SetValueStatement(seq, s, q); stmt != "" {
				setvalsAndDefaults = append(setvalsAndDefaults, stmt)
			}
		}
		for _, t := range s.Tables {
			for _, col := range t.Columns {
				if col.DefaultValue != "" {
					setvalsAndDefaults = append(setvalsAndDefaults, fmt.Sprintf("alter table %s alter column %s set default %s;",
						q.QualifiedName(s.Name, t.Name), q.Quote(col.Name, ddlgen.ColumnName), col.DefaultValue))
				}
			}
		}
		groups = append(groups, indicesAndSequences)
		groups = append(groups, setvalsAndDefaults)

		for _, v := range s.Views {
			groups = append(groups, []string{ddlgen.CreateViewStatement(v, s, q)})
		}
	}

	for _, s := range db.Schemas {
		var constraints []string
		for _, t := range s.Tables {
			for _, c := range t.Constraints {
				switch cc := c.(type) {
				case schema.PostgresForeignKey:
					constraints = append(constraints, ddlgen.CreateForeignKeyStatement(cc, t, s, q))
				case schema.PostgresUnique:
					constraints = append(constraints, ddlgen.CreateUniqueConstraintStatement(cc, t, s, q))
				}
			}
		}
		groups = append(groups, constraints)
	}

	var last []string
	for _, s := range db.Schemas {
		for _, tr := range s.Triggers {
			last = append(last, ddlgen.CreateTriggerStatement(tr, s, q))
		}
	}
	for _, s := range db.Schemas {
		for _, v := range s.Views {
			if stmt := ddlgen.RefreshMaterializedViewStatement(v, s, q); stmt != "" {
				last = append(last, stmt)
			}
		}
	}
	for _, job := range db.Timescale.Jobs {
		last = append(last, ddlgen.CreateTimescaleJobStatement(job))
	}
	for _, s := range db.Schemas {
		for _, t := range s.Tables {
			if t.Hypertable == nil {
				continue
			}
			for _, agg := range t.Hypertable.ContinuousAggregates {
				last = append(last, ddlgen.CreateContinuousAggregatePolicyStatement(agg))
			}
		}
	}
	groups = append(groups, last)

	return groups
}

// applyPostCopyStructure runs every group in sequence; within a group,
// statements run sequentially if the destination doesn't support
// parallel application, or bounded-parallel otherwise — grounded on
// copy_data.rs's apply_post_copy_structure_sequential/parallel split.
func applyPostCopyStructure(ctx context.Context, destination Destination, db *schema.PostgresDatabase, q *ddlgen.Quoter, opts Options) error {
	groups := postApplyStatementGroups(db, q)

	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		if len(group) == 1 || !destination.SupportsParallel() {
			for _, stmt := range group {
				if err := destination.ApplyNonTransactionalStatement(ctx, stmt); err != nil {
					return fmt.Errorf("copier: applying post-copy statement: %w", err)
				}
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.maxParallelOrOne())
		for _, stmt := range group {
			stmt := stmt
			g.Go(func() error { return destination.ApplyNonTransactionalStatement(gctx, stmt) })
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("copier: applying post-copy statement group: %w", err)
		}
	}
	return nil
}
