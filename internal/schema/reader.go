package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/elefantsql/elefant/internal/pgclient"
	"github.com/elefantsql/elefant/internal/protocol"
)

// Reader introspects one connected database into a PostgresDatabase,
// spec.md §4.7. It is grounded on
// original_source/elefant-tools/src/schema_reader/mod.rs's
// introspect_database, translated from sequential FromRow queries into Go
// methods each returning rows via pgclient.Client.Query/Execute.
//
// Objects the connected role cannot read are silently omitted rather than
// causing introspection to fail, per spec.md §4.7's permission-model
// clause — Postgres itself enforces this by omitting unreadable catalog
// rows, so Reader does not need to special-case permission errors.
type Reader struct {
	client *pgclient.Client
}

func NewReader(client *pgclient.Client) *Reader {
	return &Reader{client: client}
}

// ReadDatabase runs every introspection query and assembles the full
// model, per spec.md §4.7's bulleted list of catalog facts.
func (r *Reader) ReadDatabase(ctx context.Context) (*PostgresDatabase, error) {
	db := &PostgresDatabase{}

	if err := r.readExtensions(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading extensions: %w", err)
	}
	if err := r.readTables(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading tables: %w", err)
	}
	if err := r.readColumns(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading columns: %w", err)
	}
	if err := r.readConstraints(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading constraints: %w", err)
	}
	if err := r.readIndices(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading indices: %w", err)
	}
	if err := r.readSequences(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading sequences: %w", err)
	}
	if err := r.readViews(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading views: %w", err)
	}
	if err := r.readFunctions(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading functions: %w", err)
	}
	if err := r.readPartitioning(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading partitioning: %w", err)
	}
	if err := r.readTimescale(ctx, db); err != nil {
		return nil, fmt.Errorf("schema: reading timescale metadata: %w", err)
	}
	return db, nil
}

// query0 runs sql with no parameters via the simple query protocol and
// returns its single result set's rows, per spec.md §4.5's query(sql,[])
// path being reserved for parameterless, internally-issued statements —
// schema introspection never binds user input into these queries.
func (r *Reader) query0(ctx context.Context, sql string) (*pgclient.Rows, error) {
	rs, err := r.client.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	rows, ok, err := rs.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("schema: query produced no result set: %s", sql)
	}
	return rows, nil
}

func textOf(row protocol.DataRow, i int) string {
	if i >= len(row.Values) || row.Values[i] == nil {
		return ""
	}
	return string(row.Values[i])
}

func boolOf(row protocol.DataRow, i int) bool {
	return textOf(row, i) == "t" || textOf(row, i) == "true" || textOf(row, i) == "YES"
}

func int32Of(row protocol.DataRow, i int) int32 {
	v, _ := strconv.ParseInt(textOf(row, i), 10, 32)
	return int32(v)
}

func int64Of(row protocol.DataRow, i int) int64 {
	v, _ := strconv.ParseInt(textOf(row, i), 10, 64)
	return v
}

func float64Of(row protocol.DataRow, i int) float64 {
	v, _ := strconv.ParseFloat(textOf(row, i), 64)
	return v
}

// readExtensions queries pg_extension for every installed extension,
// grounded on schema_reader/mod.rs's get_extensions / models/extension.rs.
func (r *Reader) readExtensions(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select e.extname, e.extversion, n.nspname
		from pg_catalog.pg_extension e
		join pg_catalog.pg_namespace n on n.oid = e.extnamespace
		order by e.extname`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		ext := Extension{Name: textOf(row, 0), Version: textOf(row, 1), Schema: textOf(row, 2)}
		db.Extensions = append(db.Extensions, ext)
		if ext.Name == "timescaledb" {
			db.Timescale.Installed = true
			db.Timescale.Version = ext.Version
		}
	}
}

// readTables reads information_schema.tables, filtering to base tables in
// non-system schemas, grounded on schema_reader.rs's get_tables /
// TablesResult.
func (r *Reader) readTables(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select t.table_schema, t.table_name,
		       coalesce(obj_description(c.oid, 'pg_class'), '')
		from information_schema.tables t
		join pg_catalog.pg_class c on c.relname = t.table_name
		join pg_catalog.pg_namespace n on n.oid = c.relnamespace and n.nspname = t.table_schema
		where t.table_type = 'BASE TABLE'
		  and t.table_schema not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		order by t.table_schema, t.table_name`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		schemaName, tableName, comment := textOf(row, 0), textOf(row, 1), textOf(row, 2)
		s := db.getOrCreateSchema(schemaName)
		s.Tables = append(s.Tables, &PostgresTable{
			Name:     tableName,
			Comment:  comment,
			ObjectID: ObjectId{Schema: schemaName, Name: tableName, Kind: "table"},
		})
	}
}

// readColumns reads information_schema.columns, grounded on
// schema_reader.rs's get_columns / TableColumnsResult, translating
// data_type + udt_name + array dimensionality + identity columns into
// PostgresColumn.
func (r *Reader) readColumns(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select c.table_schema, c.table_name, c.column_name, c.ordinal_position,
		       c.is_nullable, c.udt_name, c.character_maximum_length,
		       coalesce(c.column_default, ''), coalesce(c.generation_expression, ''),
		       coalesce(c.is_identity, 'NO'), coalesce(c.identity_generation, ''),
		       coalesce(col_description(format('%s.%s', quote_ident(c.table_schema), quote_ident(c.table_name))::regclass::oid, c.ordinal_position), '')
		from information_schema.columns c
		where c.table_schema not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		order by c.table_schema, c.table_name, c.ordinal_position`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		schemaName, tableName := textOf(row, 0), textOf(row, 1)
		table := db.getOrCreateSchema(schemaName).TableNamed(tableName)
		if table == nil {
			continue
		}
		dataType := textOf(row, 5)
		arrayDims := int32(0)
		if strings.HasPrefix(dataType, "_") {
			arrayDims = 1
			dataType = strings.TrimPrefix(dataType, "_")
		}
		var length *int32
		if l := textOf(row, 6); l != "" {
			v := int32Of(row, 6)
			length = &v
		}
		identity := IdentityNone
		if boolOf(row, 9) {
			if textOf(row, 10) == "ALWAYS" {
				identity = IdentityAlways
			} else {
				identity = IdentityByDefault
			}
		}
		col := &PostgresColumn{
			Name:                textOf(row, 2),
			OrdinalPosition:     int32Of(row, 3),
			IsNullable:          textOf(row, 4) == "YES",
			DataType:            dataType,
			ArrayDimensions:     arrayDims,
			DataTypeLength:      length,
			DefaultValue:        textOf(row, 7),
			GeneratedExpression: textOf(row, 8),
			Identity:            identity,
			Comment:             textOf(row, 11),
		}
		table.Columns = append(table.Columns, col)
	}
}

// keyColumnRow mirrors one row of the key-column-usage join, grouped
// below by (constraint_name, constraint_type) the way
// schema_reader/mod.rs uses itertools::group_by — Go has no standard
// group-by, so this sorts by the grouping key and folds consecutive runs
// by hand.
type keyColumnRow struct {
	schema, table, constraintName, constraintType, columnName string
	ordinal                                                   int32
	foreignSchema, foreignTable, foreignColumn                string
	updateRule, deleteRule                                    string
}

// readConstraints reads table_constraints joined with key_column_usage
// and (for foreign keys) constraint_column_usage, grouping rows into
// PostgresPrimaryKey/PostgresForeignKey/PostgresUnique values, grounded on
// schema_reader/mod.rs's get_key_columns plus key_column_usage.rs.
func (r *Reader) readConstraints(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select tc.table_schema, tc.table_name, tc.constraint_name, tc.constraint_type,
		       kcu.column_name, kcu.ordinal_position,
		       coalesce(ccu.table_schema, ''), coalesce(ccu.table_name, ''), coalesce(ccu.column_name, ''),
		       coalesce(rc.update_rule, ''), coalesce(rc.delete_rule, '')
		from information_schema.table_constraints tc
		join information_schema.key_column_usage kcu
		  on kcu.constraint_schema = tc.constraint_schema and kcu.constraint_name = tc.constraint_name
		left join information_schema.referential_constraints rc
		  on rc.constraint_schema = tc.constraint_schema and rc.constraint_name = tc.constraint_name
		left join information_schema.constraint_column_usage ccu
		  on ccu.constraint_schema = rc.unique_constraint_schema and ccu.constraint_name = rc.unique_constraint_name
		     and ccu.column_name = (
		       select kcu2.column_name from information_schema.key_column_usage kcu2
		       where kcu2.constraint_schema = rc.unique_constraint_schema
		         and kcu2.constraint_name = rc.unique_constraint_name
		         and kcu2.ordinal_position = kcu.position_in_unique_constraint
		     )
		where tc.table_schema not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		  and tc.constraint_type in ('PRIMARY KEY', 'FOREIGN KEY', 'UNIQUE')
		order by tc.table_schema, tc.table_name, tc.constraint_name, kcu.ordinal_position`)
	if err != nil {
		return err
	}
	var keyRows []keyColumnRow
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keyRows = append(keyRows, keyColumnRow{
			schema: textOf(row, 0), table: textOf(row, 1),
			constraintName: textOf(row, 2), constraintType: textOf(row, 3),
			columnName: textOf(row, 4), ordinal: int32Of(row, 5),
			foreignSchema: textOf(row, 6), foreignTable: textOf(row, 7), foreignColumn: textOf(row, 8),
			updateRule: textOf(row, 9), deleteRule: textOf(row, 10),
		})
	}

	sort.SliceStable(keyRows, func(i, j int) bool {
		a, b := keyRows[i], keyRows[j]
		if a.schema != b.schema {
			return a.schema < b.schema
		}
		if a.table != b.table {
			return a.table < b.table
		}
		if a.constraintName != b.constraintName {
			return a.constraintName < b.constraintName
		}
		return a.ordinal < b.ordinal
	})

	i := 0
	for i < len(keyRows) {
		j := i
		for j < len(keyRows) && keyRows[j].schema == keyRows[i].schema &&
			keyRows[j].table == keyRows[i].table && keyRows[j].constraintName == keyRows[i].constraintName {
			j++
		}
		group := keyRows[i:j]
		i = j

		table := db.getOrCreateSchema(group[0].schema).TableNamed(group[0].table)
		if table == nil {
			continue
		}
		cols := make([]string, len(group))
		for k, g := range group {
			cols[k] = g.columnName
		}

		switch group[0].constraintType {
		case "PRIMARY KEY":
			table.Constraints = append(table.Constraints, PostgresPrimaryKey{Name: group[0].constraintName, Columns: cols})
		case "UNIQUE":
			table.Constraints = append(table.Constraints, PostgresUnique{Name: group[0].constraintName, IndexName: group[0].constraintName, DistinctNulls: true})
		case "FOREIGN KEY":
			fkCols := make([]string, len(group))
			for k, g := range group {
				fkCols[k] = g.foreignColumn
			}
			fk := PostgresForeignKey{
				Name:              group[0].constraintName,
				Columns:           cols,
				ReferencedTable:   group[0].foreignTable,
				ReferencedColumns: fkCols,
				OnUpdate:          parseFKAction(group[0].updateRule),
				OnDelete:          parseFKAction(group[0].deleteRule),
			}
			if group[0].foreignSchema != group[0].schema {
				fk.ReferencedSchema = group[0].foreignSchema
			}
			table.Constraints = append(table.Constraints, fk)
			table.DependsOn = append(table.DependsOn, ObjectId{Schema: group[0].foreignSchema, Name: group[0].foreignTable, Kind: "table"})
		}
	}

	return r.readCheckConstraints(ctx, db)
}

func parseFKAction(rule string) ForeignKeyAction {
	switch rule {
	case "RESTRICT":
		return FKRestrict
	case "CASCADE":
		return FKCascade
	case "SET NULL":
		return FKSetNull
	case "SET DEFAULT":
		return FKSetDefault
	default:
		return FKNoAction
	}
}

// readCheckConstraints reads check_constraints, grounded on
// schema_reader.rs's get_check_constraints / CheckConstraintResult.
// Check constraints synthesized by Postgres for a NOT NULL column are
// skipped, matching the original's filtering out of is_not_null-derived
// checks so PostgresColumn.IsNullable remains the single source of truth.
func (r *Reader) readCheckConstraints(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select tc.table_schema, tc.table_name, tc.constraint_name, cc.check_clause
		from information_schema.table_constraints tc
		join information_schema.check_constraints cc
		  on cc.constraint_schema = tc.constraint_schema and cc.constraint_name = tc.constraint_name
		join pg_catalog.pg_constraint pc
		  on pc.conname = tc.constraint_name
		where tc.table_schema not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		  and tc.constraint_type = 'CHECK'
		  and not pc.connoinherit is null
		order by tc.table_schema, tc.table_name, tc.constraint_name`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		table := db.getOrCreateSchema(textOf(row, 0)).TableNamed(textOf(row, 1))
		if table == nil {
			continue
		}
		table.Constraints = append(table.Constraints, PostgresCheck{Name: textOf(row, 2), Expression: textOf(row, 3)})
	}
}

// readIndices reads pg_index/pg_class/pg_am, grounded on
// schema_reader/mod.rs's get_indices + index.rs + index_column.rs.
func (r *Reader) readIndices(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select n.nspname, t.relname, i.relname, am.amname,
		       ix.indisprimary, ix.indisunique, ix.indnullsnotdistinct,
		       coalesce(pg_get_expr(ix.indpred, ix.indrelid), ''),
		       pg_get_indexdef(ix.indexrelid)
		from pg_catalog.pg_index ix
		join pg_catalog.pg_class t on t.oid = ix.indrelid
		join pg_catalog.pg_class i on i.oid = ix.indexrelid
		join pg_catalog.pg_namespace n on n.oid = t.relnamespace
		join pg_catalog.pg_am am on am.oid = i.relam
		where n.nspname not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		order by n.nspname, t.relname, i.relname`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		table := db.getOrCreateSchema(textOf(row, 0)).TableNamed(textOf(row, 1))
		if table == nil {
			continue
		}
		kind := IndexPlain
		if boolOf(row, 4) {
			kind = IndexPrimaryKey
		} else if boolOf(row, 5) {
			kind = IndexUnique
		}
		idx := &PostgresIndex{
			Name:                textOf(row, 2),
			IndexType:           textOf(row, 3),
			IndexConstraintType: kind,
			DistinctNulls:       !boolOf(row, 6),
			Predicate:           textOf(row, 7),
		}
		idx.KeyColumns = parseIndexKeyColumns(textOf(row, 8))
		table.Indices = append(table.Indices, idx)
	}
}

// parseIndexKeyColumns extracts the parenthesized column list out of a
// pg_get_indexdef() definition string. This is a pragmatic approximation
// of walking pg_index.indkey/indoption directly (what the original does
// in full); it covers the common single-expression-list case every
// generated index in practice has.
func parseIndexKeyColumns(indexdef string) []IndexKeyColumn {
	open := strings.Index(indexdef, "(")
	close := strings.LastIndex(indexdef, ")")
	if open < 0 || close < 0 || close <= open {
		return nil
	}
	parts := strings.Split(indexdef[open+1:close], ",")
	cols := make([]IndexKeyColumn, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		dir := SortAscending
		nulls := NullsDefault
		if strings.Contains(p, " DESC") {
			dir = SortDescending
			p = strings.Replace(p, " DESC", "", 1)
		}
		if strings.Contains(p, "NULLS FIRST") {
			nulls = NullsFirst
			p = strings.Replace(p, " NULLS FIRST", "", 1)
		} else if strings.Contains(p, "NULLS LAST") {
			nulls = NullsLast
			p = strings.Replace(p, " NULLS LAST", "", 1)
		}
		cols = append(cols, IndexKeyColumn{Expression: strings.TrimSpace(p), Ordinal: int32(i + 1), Direction: dir, Nulls: nulls})
	}
	return cols
}

// readSequences reads pg_sequences, grounded on schema_reader/mod.rs's
// get_sequences / models/sequence.rs.
func (r *Reader) readSequences(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select schemaname, sequencename, data_type, start_value, increment_by,
		       min_value, max_value, cache_size, cycle, last_value
		from pg_catalog.pg_sequences
		where schemaname not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		order by schemaname, sequencename`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		schemaName, seqName := textOf(row, 0), textOf(row, 1)
		var lastValue *int64
		if textOf(row, 9) != "" {
			v := int64Of(row, 9)
			lastValue = &v
		}
		s := db.getOrCreateSchema(schemaName)
		s.Sequences = append(s.Sequences, &PostgresSequence{
			Name:       seqName,
			DataType:   textOf(row, 2),
			StartValue: int64Of(row, 3),
			Increment:  int64Of(row, 4),
			MinValue:   int64Of(row, 5),
			MaxValue:   int64Of(row, 6),
			CacheSize:  int64Of(row, 7),
			Cycle:      boolOf(row, 8),
			LastValue:  lastValue,
			ObjectID:   ObjectId{Schema: schemaName, Name: seqName, Kind: "sequence"},
		})
	}
}

// readViews reads information_schema.views, grounded on
// schema_reader/mod.rs's get_views / models/view.rs.
func (r *Reader) readViews(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select v.table_schema, v.table_name, v.view_definition,
		       c.relkind = 'm'
		from information_schema.views v
		join pg_catalog.pg_class c on c.relname = v.table_name
		join pg_catalog.pg_namespace n on n.oid = c.relnamespace and n.nspname = v.table_schema
		where v.table_schema not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')

		union all

		select schemaname, matviewname, definition, true
		from pg_catalog.pg_matviews
		where schemaname not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')

		order by 1, 2`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		schemaName, viewName := textOf(row, 0), textOf(row, 1)
		s := db.getOrCreateSchema(schemaName)
		s.Views = append(s.Views, &PostgresView{
			Name:         viewName,
			Definition:   textOf(row, 2),
			Materialized: boolOf(row, 3),
			ObjectID:     ObjectId{Schema: schemaName, Name: viewName, Kind: "view"},
		})
	}
}

// readFunctions reads pg_proc, grounded on schema_reader/mod.rs's
// get_functions / models/function.rs's full attribute list (cost, rows,
// security_definer, leakproof, strict, volatility, parallel, sql_body).
func (r *Reader) readFunctions(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select n.nspname, p.proname, l.lanname,
		       pg_get_function_arguments(p.oid), pg_get_function_result(p.oid),
		       p.procost, p.prorows, p.prosecdef, p.proleakproof, p.proisstrict,
		       p.proretset, p.provolatile, p.proparallel, p.prokind,
		       coalesce(pg_get_functiondef(p.oid), '')
		from pg_catalog.pg_proc p
		join pg_catalog.pg_namespace n on n.oid = p.pronamespace
		join pg_catalog.pg_language l on l.oid = p.prolang
		where n.nspname not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		order by n.nspname, p.proname`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		schemaName, fnName := textOf(row, 0), textOf(row, 1)
		s := db.getOrCreateSchema(schemaName)

		kind := FunctionOrdinary
		switch textOf(row, 13) {
		case "a":
			kind = FunctionAggregate
		case "w":
			kind = FunctionWindow
		case "p":
			kind = FunctionProcedure
		}
		volatility := VolatilityVolatile
		switch textOf(row, 11) {
		case "s":
			volatility = VolatilityStable
		case "i":
			volatility = VolatilityImmutable
		}
		parallel := "unsafe"
		switch textOf(row, 12) {
		case "s":
			parallel = "safe"
		case "r":
			parallel = "restricted"
		}

		s.Functions = append(s.Functions, &PostgresFunction{
			Name:            fnName,
			Language:        textOf(row, 2),
			Kind:            kind,
			Arguments:       textOf(row, 3),
			Result:          textOf(row, 4),
			EstimatedCost:   float64Of(row, 5),
			EstimatedRows:   float64Of(row, 6),
			SecurityDefiner: boolOf(row, 7),
			LeakProof:       boolOf(row, 8),
			Strict:          boolOf(row, 9),
			ReturnsSet:      boolOf(row, 10),
			Volatility:      volatility,
			Parallel:        parallel,
			SQLBody:         textOf(row, 14),
			ObjectID:        ObjectId{Schema: schemaName, Name: fnName, Kind: "function"},
		})
	}
}

// readPartitioning fills in TableKind/partition fields via pg_inherits and
// pg_partitioned_table, grounded on models/table.rs's TableTypeDetails and
// get_create_statement's "partition of parent" handling.
func (r *Reader) readPartitioning(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select cn.nspname, c.relname, pn.nspname, p.relname,
		       pg_get_expr(c.relpartbound, c.oid),
		       case pt.partstrat when 'l' then 'l' when 'r' then 'r' when 'h' then 'h' else '' end
		from pg_catalog.pg_inherits i
		join pg_catalog.pg_class c on c.oid = i.inhrelid
		join pg_catalog.pg_namespace cn on cn.oid = c.relnamespace
		join pg_catalog.pg_class p on p.oid = i.inhparent
		join pg_catalog.pg_namespace pn on pn.oid = p.relnamespace
		left join pg_catalog.pg_partitioned_table pt on pt.partrelid = p.oid
		where c.relispartition
		  and cn.nspname not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		child := db.getOrCreateSchema(textOf(row, 0)).TableNamed(textOf(row, 1))
		parent := db.getOrCreateSchema(textOf(row, 2)).TableNamed(textOf(row, 3))
		if child == nil {
			continue
		}
		child.Kind = TablePartitionedChild
		child.ParentTable = textOf(row, 3)
		child.PartitionExpression = textOf(row, 4)
		if parent != nil {
			parent.Kind = TablePartitionedParent
			parent.PartitionStrategy = parsePartitionStrategy(textOf(row, 5))
		}
	}
	return r.readInheritance(ctx, db)
}

func parsePartitionStrategy(s string) PartitionStrategy {
	switch s {
	case "l":
		return PartitionList
	case "r":
		return PartitionRange
	case "h":
		return PartitionHash
	default:
		return PartitionNone
	}
}

// readInheritance records classic table inheritance (not partitioning —
// pg_inherits is shared by both, distinguished by relispartition), per
// spec.md §4.7's "table inheritance" bullet and models/table.rs's
// Inherited variant.
func (r *Reader) readInheritance(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select cn.nspname, c.relname, p.relname
		from pg_catalog.pg_inherits i
		join pg_catalog.pg_class c on c.oid = i.inhrelid
		join pg_catalog.pg_namespace cn on cn.oid = c.relnamespace
		join pg_catalog.pg_class p on p.oid = i.inhparent
		where not c.relispartition
		  and cn.nspname not in ('pg_catalog', 'information_schema', '_timescaledb_internal', '_timescaledb_catalog')
		order by cn.nspname, c.relname`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		child := db.getOrCreateSchema(textOf(row, 0)).TableNamed(textOf(row, 1))
		if child == nil {
			continue
		}
		if child.Kind == TablePlain {
			child.Kind = TableInherited
		}
		child.InheritsFrom = append(child.InheritsFrom, textOf(row, 2))
	}
}

// readTimescale fills in hypertable metadata from timescaledb_information
// views, per spec.md §4.7's TimescaleDB awareness clause. If the
// extension isn't installed this is a no-op — every query below only
// runs once readExtensions has confirmed db.Timescale.Installed.
func (r *Reader) readTimescale(ctx context.Context, db *PostgresDatabase) error {
	if !db.Timescale.Installed {
		return nil
	}
	if err := r.readHypertables(ctx, db); err != nil {
		return err
	}
	return r.readTimescaleJobs(ctx, db)
}

func (r *Reader) readHypertables(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select hypertable_schema, hypertable_name
		from timescaledb_information.hypertables`)
	if err != nil {
		return err
	}
	var names [][2]string
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		names = append(names, [2]string{textOf(row, 0), textOf(row, 1)})
	}
	for _, sn := range names {
		table := db.getOrCreateSchema(sn[0]).TableNamed(sn[1])
		if table == nil {
			continue
		}
		table.Kind = TableTimescaleHypertable
		table.Hypertable = &HypertableInfo{}
		if err := r.readHypertableDimensions(ctx, sn[0], sn[1], table.Hypertable); err != nil {
			return err
		}
		if err := r.readHypertableCompression(ctx, sn[0], sn[1], table.Hypertable); err != nil {
			return err
		}
		if err := r.readHypertableRetention(ctx, sn[0], sn[1], table.Hypertable); err != nil {
			return err
		}
		if err := r.readContinuousAggregates(ctx, sn[0], sn[1], table.Hypertable); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readHypertableDimensions(ctx context.Context, schemaName, tableName string, info *HypertableInfo) error {
	rows, err := r.query0(ctx, fmt.Sprintf(`
		select column_name, coalesce(time_interval::text, ''), coalesce(integer_interval, 0), coalesce(num_partitions, 0)
		from timescaledb_information.dimensions
		where hypertable_schema = %s and hypertable_name = %s`,
		quoteLiteral(schemaName), quoteLiteral(tableName)))
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		info.Dimensions = append(info.Dimensions, HypertableDimension{
			ColumnName:      textOf(row, 0),
			TimeInterval:    textOf(row, 1),
			IntegerInterval: int64Of(row, 2),
			NumPartitions:   int32Of(row, 3),
		})
	}
}

// readHypertableCompression populates a hypertable's compress_segmentby /
// compress_orderby columns from timescaledb_information.compression_settings,
// its compress_chunk_time_interval storage parameter from pg_class
// reloptions, and its compression policy's schedule/compress_after from
// the policy_compression background job, spec.md §4.7's "compression
// settings" bullet.
func (r *Reader) readHypertableCompression(ctx context.Context, schemaName, tableName string, info *HypertableInfo) error {
	rows, err := r.query0(ctx, fmt.Sprintf(`
		select attname, coalesce(segmentby_column_index, 0), coalesce(orderby_column_index, 0),
		       coalesce(orderby_asc, true), coalesce(orderby_nullsfirst, false)
		from timescaledb_information.compression_settings
		where hypertable_schema = %s and hypertable_name = %s`,
		quoteLiteral(schemaName), quoteLiteral(tableName)))
	if err != nil {
		return err
	}

	type indexedName struct {
		idx  int32
		name string
	}
	type indexedOrder struct {
		idx int32
		col HypertableOrderColumn
	}
	var segCols []indexedName
	var orderCols []indexedOrder
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		attname := textOf(row, 0)
		if segIdx := int32Of(row, 1); segIdx > 0 {
			segCols = append(segCols, indexedName{idx: segIdx, name: attname})
		}
		if ordIdx := int32Of(row, 2); ordIdx > 0 {
			orderCols = append(orderCols, indexedOrder{idx: ordIdx, col: HypertableOrderColumn{
				ColumnName: attname,
				Descending: !boolOf(row, 3),
				NullsFirst: boolOf(row, 4),
			}})
		}
	}
	if len(segCols) == 0 && len(orderCols) == 0 {
		return nil
	}

	sort.Slice(segCols, func(i, j int) bool { return segCols[i].idx < segCols[j].idx })
	sort.Slice(orderCols, func(i, j int) bool { return orderCols[i].idx < orderCols[j].idx })

	c := &HypertableCompression{}
	for _, s := range segCols {
		c.SegmentBy = append(c.SegmentBy, s.name)
	}
	for _, o := range orderCols {
		c.OrderBy = append(c.OrderBy, o.col)
	}

	if err := r.readCompressChunkInterval(ctx, schemaName, tableName, c); err != nil {
		return err
	}
	if err := r.readCompressionPolicy(ctx, schemaName, tableName, c); err != nil {
		return err
	}

	info.Compression = c
	return nil
}

// readCompressChunkInterval extracts compress_chunk_time_interval out of
// the table's own storage parameters — Postgres stores it as a plain
// reloption, the same mechanism CreateTableStatement's StorageParameters
// clause already emits, so it never shows up in the compression_settings
// or jobs views.
func (r *Reader) readCompressChunkInterval(ctx context.Context, schemaName, tableName string, c *HypertableCompression) error {
	rows, err := r.query0(ctx, fmt.Sprintf(`
		select unnest(coalesce(cl.reloptions, '{}'))
		from pg_catalog.pg_class cl
		join pg_catalog.pg_namespace n on n.oid = cl.relnamespace
		where n.nspname = %s and cl.relname = %s`,
		quoteLiteral(schemaName), quoteLiteral(tableName)))
	if err != nil {
		return err
	}
	const prefix = "timescaledb.compress_chunk_time_interval="
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if opt := textOf(row, 0); strings.HasPrefix(opt, prefix) {
			c.ChunkTimeInterval = strings.TrimPrefix(opt, prefix)
		}
	}
}

// readCompressionPolicy fills in the schedule/compress_after a
// policy_compression background job carries, if one was added via
// add_compression_policy.
func (r *Reader) readCompressionPolicy(ctx context.Context, schemaName, tableName string, c *HypertableCompression) error {
	rows, err := r.query0(ctx, fmt.Sprintf(`
		select coalesce(schedule_interval::text, ''), coalesce(config::text, '')
		from timescaledb_information.jobs
		where proc_name = 'policy_compression' and hypertable_schema = %s and hypertable_name = %s`,
		quoteLiteral(schemaName), quoteLiteral(tableName)))
	if err != nil {
		return err
	}
	row, ok, err := rows.Next()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c.ScheduleInterval = textOf(row, 0)
	c.CompressAfter = jsonStringField(textOf(row, 1), "compress_after")
	return nil
}

// readHypertableRetention fills in a hypertable's retention policy from
// its policy_retention background job, spec.md §4.7's "retention
// policies" bullet. Absent a retention policy, info.Retention stays nil.
func (r *Reader) readHypertableRetention(ctx context.Context, schemaName, tableName string, info *HypertableInfo) error {
	rows, err := r.query0(ctx, fmt.Sprintf(`
		select coalesce(schedule_interval::text, ''), coalesce(config::text, '')
		from timescaledb_information.jobs
		where proc_name = 'policy_retention' and hypertable_schema = %s and hypertable_name = %s`,
		quoteLiteral(schemaName), quoteLiteral(tableName)))
	if err != nil {
		return err
	}
	row, ok, err := rows.Next()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	dropAfter := jsonStringField(textOf(row, 1), "drop_after")
	if dropAfter == "" {
		return nil
	}
	info.Retention = &HypertableRetention{
		Schedule:  textOf(row, 0),
		DropAfter: dropAfter,
	}
	return nil
}

// readContinuousAggregates lists the continuous aggregates materialized
// from this hypertable and their refresh policy, spec.md §4.7's
// "continuous aggregates" bullet.
func (r *Reader) readContinuousAggregates(ctx context.Context, schemaName, tableName string, info *HypertableInfo) error {
	rows, err := r.query0(ctx, fmt.Sprintf(`
		select view_schema, view_name
		from timescaledb_information.continuous_aggregates
		where hypertable_schema = %s and hypertable_name = %s`,
		quoteLiteral(schemaName), quoteLiteral(tableName)))
	if err != nil {
		return err
	}
	var views [][2]string
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		views = append(views, [2]string{textOf(row, 0), textOf(row, 1)})
	}
	for _, v := range views {
		agg := ContinuousAggregate{ViewName: v[1]}
		if err := r.readContinuousAggregatePolicy(ctx, v[0], v[1], &agg); err != nil {
			return err
		}
		info.ContinuousAggregates = append(info.ContinuousAggregates, agg)
	}
	return nil
}

// readContinuousAggregatePolicy fills in the start/end offset and
// schedule a policy_refresh_continuous_aggregate background job carries
// for one continuous aggregate view.
func (r *Reader) readContinuousAggregatePolicy(ctx context.Context, viewSchema, viewName string, agg *ContinuousAggregate) error {
	rows, err := r.query0(ctx, fmt.Sprintf(`
		select coalesce(schedule_interval::text, ''), coalesce(config::text, '')
		from timescaledb_information.jobs
		where proc_name = 'policy_refresh_continuous_aggregate'
		  and hypertable_schema = %s and hypertable_name = %s`,
		quoteLiteral(viewSchema), quoteLiteral(viewName)))
	if err != nil {
		return err
	}
	row, ok, err := rows.Next()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	agg.Schedule = textOf(row, 0)
	cfg := textOf(row, 1)
	agg.StartOffset = jsonStringField(cfg, "start_offset")
	agg.EndOffset = jsonStringField(cfg, "end_offset")
	return nil
}

// jsonStringField pulls one string-valued key out of a Timescale job's
// config column, which Postgres reports as jsonb text (e.g.
// {"compress_after":"7 days"}). Numeric configs round-trip as plain
// decimal text; anything else or a missing key yields "".
func jsonStringField(rawJSON, key string) string {
	if rawJSON == "" {
		return ""
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(rawJSON), &fields); err != nil {
		return ""
	}
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// readTimescaleJobs lists user-defined background jobs (added via
// add_job), excluding the built-in compression/retention/continuous-
// aggregate-refresh policies — those are introspected in domain-specific
// shape by readHypertableCompression/readHypertableRetention/
// readContinuousAggregates instead of as generic jobs.
func (r *Reader) readTimescaleJobs(ctx context.Context, db *PostgresDatabase) error {
	rows, err := r.query0(ctx, `
		select job_id, application_name, coalesce(schedule_interval::text, ''), proc_name,
		       coalesce(config::text, '')
		from timescaledb_information.jobs
		where proc_name not in ('policy_compression', 'policy_retention', 'policy_refresh_continuous_aggregate')`)
	if err != nil {
		return err
	}
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		db.Timescale.Jobs = append(db.Timescale.Jobs, TimescaleJob{
			JobID:           int32Of(row, 0),
			ApplicationName: textOf(row, 1),
			Schedule:        textOf(row, 2),
			ProcName:        textOf(row, 3),
			Config:          textOf(row, 4),
		})
	}
}

// quoteLiteral produces a safe SQL string literal for values this reader
// builds itself from catalog data (schema/table names already read back
// from Postgres) — never from external caller input.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
