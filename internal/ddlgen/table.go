package ddlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elefantsql/elefant/internal/schema"
)

// CreateSchemaStatement emits `create schema if not exists s;`.
func CreateSchemaStatement(s *schema.PostgresSchema, q *Quoter) string {
	return fmt.Sprintf("create schema if not exists %s;", q.Quote(s.Name, ColumnName))
}

// CreateTableStatement emits the full CREATE TABLE block for one table,
// including inline primary key/check constraints, partition/inheritance
// clauses, storage parameters, and trailing comment-on statements,
// grounded on models/table.rs's get_create_statement.
func CreateTableStatement(t *schema.PostgresTable, s *schema.PostgresSchema, q *Quoter) string {
	relationName := q.QualifiedName(s.Name, t.Name)
	var sql strings.Builder
	sql.WriteString("create table ")
	sql.WriteString(relationName)

	if t.Kind == schema.TablePartitionedChild {
		sql.WriteString(" partition of ")
		sql.WriteString(q.Quote(t.ParentTable, ColumnName))
		sql.WriteString(" ")
		sql.WriteString(t.PartitionExpression)
	} else {
		sql.WriteString(" (")
		n := 0

		cols := make([]*schema.PostgresColumn, len(t.Columns))
		copy(cols, t.Columns)
		sort.Slice(cols, func(i, j int) bool { return cols[i].OrdinalPosition < cols[j].OrdinalPosition })

		for _, col := range cols {
			if n > 0 {
				sql.WriteString(",")
			}
			sql.WriteString("\n    ")
			sql.WriteString(q.Quote(col.Name, ColumnName))
			sql.WriteString(" ")
			sql.WriteString(q.Quote(col.DataType, TypeOrFunctionName))
			for i := int32(0); i < col.ArrayDimensions; i++ {
				sql.WriteString("[]")
			}
			if !col.IsNullable {
				sql.WriteString(" not null")
			}
			if col.GeneratedExpression != "" {
				sql.WriteString(" generated always as (")
				sql.WriteString(col.GeneratedExpression)
				sql.WriteString(") stored")
			}
			n++
		}

		for _, idx := range t.Indices {
			if idx.IndexConstraintType != schema.IndexPrimaryKey {
				continue
			}
			if n > 0 {
				sql.WriteString(",")
			}
			sql.WriteString("\n    constraint ")
			sql.WriteString(q.Quote(idx.Name, ColumnName))
			sql.WriteString(" primary key (")
			for i, kc := range idx.KeyColumns {
				if i > 0 {
					sql.WriteString(", ")
				}
				sql.WriteString(q.Quote(kc.Expression, ColumnName))
			}
			sql.WriteString(")")
			n++
		}

		for _, c := range t.Constraints {
			check, ok := c.(schema.PostgresCheck)
			if !ok {
				continue
			}
			if n > 0 {
				sql.WriteString(",")
			}
			sql.WriteString("\n    constraint ")
			sql.WriteString(q.Quote(check.Name, ColumnName))
			sql.WriteString(" check ")
			sql.WriteString(check.Expression)
			n++
		}

		switch t.Kind {
		case schema.TablePartitionedParent:
			sql.WriteString("\n) partition by ")
			sql.WriteString(partitionStrategyKeyword(t.PartitionStrategy))
			sql.WriteString(" (")
			for i, c := range t.PartitionColumns {
				if i > 0 {
					sql.WriteString(", ")
				}
				sql.WriteString(q.Quote(c, ColumnName))
			}
			sql.WriteString(")")
		case schema.TableInherited:
			sql.WriteString("\n) inherits (")
			for i, p := range t.InheritsFrom {
				if i > 0 {
					sql.WriteString(", ")
				}
				sql.WriteString(q.Quote(p, ColumnName))
			}
			sql.WriteString(")")
		default:
			sql.WriteString("\n)")
		}
	}

	if len(t.StorageParameters) > 0 {
		sql.WriteString("\nwith (")
		sql.WriteString(strings.Join(t.StorageParameters, ", "))
		sql.WriteString(")")
	}
	sql.WriteString(";")

	if t.Comment != "" {
		fmt.Fprintf(&sql, "\ncomment on table %s is %s;", relationName, QuoteValueString(t.Comment))
	}
	for _, col := range t.Columns {
		if col.Comment != "" {
			fmt.Fprintf(&sql, "\ncomment on column %s.%s is %s;", relationName, q.Quote(col.Name, ColumnName), QuoteValueString(col.Comment))
		}
	}
	for _, c := range t.Constraints {
		if check, ok := c.(schema.PostgresCheck); ok && check.Comment != "" {
			fmt.Fprintf(&sql, "\ncomment on constraint %s on %s is %s;", q.Quote(check.Name, ColumnName), relationName, QuoteValueString(check.Comment))
		}
	}

	if t.Kind == schema.TableTimescaleHypertable && t.Hypertable != nil {
		writeHypertableSetup(&sql, t.Hypertable, relationName, q)
	}

	return sql.String()
}

func partitionStrategyKeyword(s schema.PartitionStrategy) string {
	switch s {
	case schema.PartitionHash:
		return "hash"
	case schema.PartitionList:
		return "list"
	default:
		return "range"
	}
}

// writeHypertableSetup appends create_hypertable/add_dimension calls plus
// compression/retention policies, grounded on models/table.rs's handling
// of TableTypeDetails::TimescaleHypertable. create_default_indexes is
// false because the indices are recreated later from the introspected
// model, matching the original's comment that timescale needn't create
// its own.
func writeHypertableSetup(sql *strings.Builder, h *schema.HypertableInfo, relationName string, q *Quoter) {
	for i, dim := range h.Dimensions {
		col := q.Quote(dim.ColumnName, ColumnName)
		switch {
		case dim.TimeInterval != "":
			if i == 0 {
				fmt.Fprintf(sql, "\nselect public.create_hypertable('%s', by_range('%s', INTERVAL '%s'), create_default_indexes => false);", relationName, col, dim.TimeInterval)
			} else {
				fmt.Fprintf(sql, "\nselect public.add_dimension('%s', by_range('%s', INTERVAL '%s'));", relationName, col, dim.TimeInterval)
			}
		case dim.NumPartitions > 0:
			if i == 0 {
				fmt.Fprintf(sql, "\nselect public.create_hypertable('%s', by_hash('%s', %d), create_default_indexes => false);", relationName, col, dim.NumPartitions)
			} else {
				fmt.Fprintf(sql, "\nselect public.add_dimension('%s', by_hash('%s', %d));", relationName, col, dim.NumPartitions)
			}
		default:
			if i == 0 {
				fmt.Fprintf(sql, "\nselect public.create_hypertable('%s', by_range('%s', %d), create_default_indexes => false);", relationName, col, dim.IntegerInterval)
			} else {
				fmt.Fprintf(sql, "\nselect public.add_dimension('%s', by_range('%s', %d));", relationName, col, dim.IntegerInterval)
			}
		}
	}

	if c := h.Compression; c != nil {
		fmt.Fprintf(sql, "\nalter table %s set (timescaledb.compress", relationName)
		if len(c.SegmentBy) > 0 {
			fmt.Fprintf(sql, ", timescaledb.compress_segmentby = '%s'", strings.Join(c.SegmentBy, ", "))
		}
		if len(c.OrderBy) > 0 {
			parts := make([]string, len(c.OrderBy))
			for i, ob := range c.OrderBy {
				dir := "asc"
				if ob.Descending {
					dir = "desc"
				}
				nulls := "nulls last"
				if ob.NullsFirst {
					nulls = "nulls first"
				}
				parts[i] = fmt.Sprintf("%s %s %s", q.Quote(ob.ColumnName, ColumnName), dir, nulls)
			}
			fmt.Fprintf(sql, ", timescaledb.compress_orderby = '%s'", strings.Join(parts, ", "))
		}
		if c.ChunkTimeInterval != "" {
			fmt.Fprintf(sql, ", timescaledb.compress_chunk_time_interval = '%s'", c.ChunkTimeInterval)
		}
		sql.WriteString(");")
		if c.ScheduleInterval != "" && c.CompressAfter != "" {
			fmt.Fprintf(sql, "\nselect public.add_compression_policy('%s', INTERVAL '%s', schedule_interval => INTERVAL '%s');", relationName, c.CompressAfter, c.ScheduleInterval)
		}
	}

	if r := h.Retention; r != nil && r.DropAfter != "" {
		fmt.Fprintf(sql, "\nselect public.add_retention_policy('%s', INTERVAL '%s'", relationName, r.DropAfter)
		if r.Schedule != "" {
			fmt.Fprintf(sql, ", schedule_interval => INTERVAL '%s'", r.Schedule)
		}
		sql.WriteString(");")
	}
}

// CreateContinuousAggregatePolicyStatement emits the
// add_continuous_aggregate_policy call that recreates a continuous
// aggregate's refresh policy, grounded on models/table.rs's
// TimescaleContinuousAggregateRefreshOptions handling. Run post-copy,
// after the aggregate's own materialized view exists (see
// postApplyStatementGroups's final statement group).
func CreateContinuousAggregatePolicyStatement(agg schema.ContinuousAggregate) string {
	var sql strings.Builder
	fmt.Fprintf(&sql, "select public.add_continuous_aggregate_policy(%s", QuoteValueString(agg.ViewName))
	if agg.StartOffset != "" {
		fmt.Fprintf(&sql, ", start_offset => INTERVAL '%s'", agg.StartOffset)
	}
	if agg.EndOffset != "" {
		fmt.Fprintf(&sql, ", end_offset => INTERVAL '%s'", agg.EndOffset)
	}
	if agg.Schedule != "" {
		fmt.Fprintf(&sql, ", schedule_interval => INTERVAL '%s'", agg.Schedule)
	}
	sql.WriteString(");")
	return sql.String()
}

// copyColumnsExpression lists non-generated columns in ordinal order,
// quoted and comma-joined, grounded on models/table.rs's
// get_copy_columns_expression — generated columns cannot appear in a
// COPY column list since Postgres computes them itself.
func copyColumnsExpression(t *schema.PostgresTable, q *Quoter) string {
	cols := make([]*schema.PostgresColumn, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.GeneratedExpression == "" {
			cols = append(cols, c)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].OrdinalPosition < cols[j].OrdinalPosition })
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = q.Quote(c.Name, ColumnName)
	}
	return strings.Join(names, ", ")
}

func formatKeyword(f schema.DataFormat) string {
	if f == schema.DataFormatBinary {
		return "binary"
	}
	return "text"
}

// CopyInCommand emits `copy s.t (cols) from stdin with (format ..., header false);`,
// grounded on models/table.rs's get_copy_in_command.
func CopyInCommand(t *schema.PostgresTable, s *schema.PostgresSchema, format schema.DataFormat, q *Quoter) string {
	return fmt.Sprintf("copy %s (%s) from stdin with (format %s, header false);",
		q.QualifiedName(s.Name, t.Name), copyColumnsExpression(t, q), formatKeyword(format))
}

// CopyOutCommand emits `copy s.t (cols) to stdout with (format ..., header false, encoding 'utf-8');`.
// Hypertables use the `copy (select cols from s.t) to stdout ...` form,
// grounded on models/table.rs's get_copy_out_command — selecting through
// a subquery avoids timescale's internal chunk tables leaking into the
// copy stream.
func CopyOutCommand(t *schema.PostgresTable, s *schema.PostgresSchema, format schema.DataFormat, q *Quoter) string {
	cols := copyColumnsExpression(t, q)
	relationName := q.QualifiedName(s.Name, t.Name)
	var source string
	if t.Kind == schema.TableTimescaleHypertable {
		source = fmt.Sprintf("(select %s from %s) ", cols, relationName)
	} else {
		source = fmt.Sprintf("%s (%s) ", relationName, cols)
	}
	return fmt.Sprintf("copy %s to stdout with (format %s, header false, encoding 'utf-8');", source, formatKeyword(format))
}
