package ddlgen

import (
	"strings"
	"testing"

	"github.com/elefantsql/elefant/internal/schema"
)

func TestQuoteIdentifier(t *testing.T) {
	q := NewQuoter([]string{"select", "table"})
	cases := []struct {
		in   string
		want string
	}{
		{"widgets", "widgets"},
		{"select", `"select"`},
		{"3cols", `"3cols"`},
		{"", `""`},
		{"My Column", `"My Column"`},
		{`weird"name`, `"weird""name"`},
	}
	for _, tc := range cases {
		if got := q.Quote(tc.in, ColumnName); got != tc.want {
			t.Errorf("Quote(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQualifiedName(t *testing.T) {
	q := NewQuoter(nil)
	if got := q.QualifiedName("public", "widgets"); got != "public.widgets" {
		t.Errorf("QualifiedName = %q", got)
	}
}

func TestCreateTableStatementPlainTable(t *testing.T) {
	q := NewQuoter(nil)
	s := &schema.PostgresSchema{Name: "public"}
	table := &schema.PostgresTable{
		Name: "widgets",
		Columns: []*schema.PostgresColumn{
			{Name: "id", OrdinalPosition: 1, DataType: "int4", IsNullable: false},
			{Name: "label", OrdinalPosition: 2, DataType: "text", IsNullable: true},
		},
		Indices: []*schema.PostgresIndex{
			{Name: "widgets_pkey", IndexConstraintType: schema.IndexPrimaryKey, KeyColumns: []schema.IndexKeyColumn{{Expression: "id"}}},
		},
	}

	got := CreateTableStatement(table, s, q)
	for _, want := range []string{
		"create table public.widgets (",
		"id int4 not null",
		"label text",
		"constraint widgets_pkey primary key (id)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("CreateTableStatement missing %q in:\n%s", want, got)
		}
	}
}

func TestCreateTableStatementPartitionedChild(t *testing.T) {
	q := NewQuoter(nil)
	s := &schema.PostgresSchema{Name: "public"}
	table := &schema.PostgresTable{
		Name:                "events_2024",
		Kind:                schema.TablePartitionedChild,
		ParentTable:         "events",
		PartitionExpression: "for values from ('2024-01-01') to ('2025-01-01')",
	}
	got := CreateTableStatement(table, s, q)
	if !strings.Contains(got, "partition of events for values from") {
		t.Errorf("expected partition-of clause, got:\n%s", got)
	}
}

func TestCopyInCommandExcludesGeneratedColumns(t *testing.T) {
	q := NewQuoter(nil)
	s := &schema.PostgresSchema{Name: "public"}
	table := &schema.PostgresTable{
		Name: "widgets",
		Columns: []*schema.PostgresColumn{
			{Name: "id", OrdinalPosition: 1},
			{Name: "computed", OrdinalPosition: 2, GeneratedExpression: "id * 2"},
		},
	}
	got := CopyInCommand(table, s, schema.DataFormatBinary, q)
	if strings.Contains(got, "computed") {
		t.Errorf("expected generated column excluded from COPY list: %s", got)
	}
	if !strings.Contains(got, "format binary") {
		t.Errorf("expected binary format: %s", got)
	}
}

func TestCreateIndexCommand(t *testing.T) {
	q := NewQuoter(nil)
	s := &schema.PostgresSchema{Name: "public"}
	table := &schema.PostgresTable{Name: "widgets"}
	idx := &schema.PostgresIndex{
		Name:      "widgets_label_idx",
		IndexType: "btree",
		KeyColumns: []schema.IndexKeyColumn{
			{Expression: "label", Direction: schema.SortDescending, Nulls: schema.NullsLast},
		},
		Predicate: "label is not null",
	}
	got := CreateIndexCommand(idx, s, table, q)
	want := "create index widgets_label_idx on public.widgets using btree (label desc nulls last) where label is not null;"
	if got != want {
		t.Errorf("CreateIndexCommand =\n%s\nwant\n%s", got, want)
	}
}

// TestCreateTableStatementHypertableCompression mirrors the original
// test suite's inspect_compressed scenario: a hypertable compressed with
// a segmentby column and two orderby columns.
func TestCreateTableStatementHypertableCompression(t *testing.T) {
	q := NewQuoter(nil)
	s := &schema.PostgresSchema{Name: "public"}
	table := &schema.PostgresTable{
		Name: "stocks_real_time",
		Kind: schema.TableTimescaleHypertable,
		Hypertable: &schema.HypertableInfo{
			Dimensions: []schema.HypertableDimension{{ColumnName: "time", TimeInterval: "7 days"}},
			Compression: &schema.HypertableCompression{
				SegmentBy: []string{"symbol"},
				OrderBy: []schema.HypertableOrderColumn{
					{ColumnName: "time", Descending: false, NullsFirst: false},
					{ColumnName: "day_volume", Descending: true, NullsFirst: true},
				},
				ChunkTimeInterval: "14 days",
				ScheduleInterval:  "12:00:00",
				CompressAfter:     "7 days",
			},
		},
	}
	got := CreateTableStatement(table, s, q)
	for _, want := range []string{
		"timescaledb.compress_segmentby = 'symbol'",
		"timescaledb.compress_orderby = 'time asc nulls last, day_volume desc nulls first'",
		"timescaledb.compress_chunk_time_interval = '14 days'",
		"select public.add_compression_policy('public.stocks_real_time', INTERVAL '7 days', schedule_interval => INTERVAL '12:00:00');",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("CreateTableStatement missing %q in:\n%s", want, got)
		}
	}
}

// TestCreateTableStatementHypertableRetention mirrors
// inspect_retention_policies.
func TestCreateTableStatementHypertableRetention(t *testing.T) {
	q := NewQuoter(nil)
	s := &schema.PostgresSchema{Name: "public"}
	table := &schema.PostgresTable{
		Name: "conditions",
		Kind: schema.TableTimescaleHypertable,
		Hypertable: &schema.HypertableInfo{
			Dimensions: []schema.HypertableDimension{{ColumnName: "time", TimeInterval: "1 hour"}},
			Retention:  &schema.HypertableRetention{Schedule: "1 day", DropAfter: "24 hours"},
		},
	}
	got := CreateTableStatement(table, s, q)
	want := "select public.add_retention_policy('public.conditions', INTERVAL '24 hours', schedule_interval => INTERVAL '1 day');"
	if !strings.Contains(got, want) {
		t.Errorf("CreateTableStatement missing %q in:\n%s", want, got)
	}
}

// TestCreateContinuousAggregatePolicyStatement mirrors
// inspect_continuous_aggregates_15/_16's add_continuous_aggregate_policy
// call.
func TestCreateContinuousAggregatePolicyStatement(t *testing.T) {
	agg := schema.ContinuousAggregate{
		ViewName:    "stock_candlestick_daily",
		StartOffset: "6 mons",
		EndOffset:   "1 day",
		Schedule:    "01:00:00",
	}
	got := CreateContinuousAggregatePolicyStatement(agg)
	want := "select public.add_continuous_aggregate_policy('stock_candlestick_daily', start_offset => INTERVAL '6 mons', end_offset => INTERVAL '1 day', schedule_interval => INTERVAL '01:00:00');"
	if got != want {
		t.Errorf("CreateContinuousAggregatePolicyStatement =\n%s\nwant\n%s", got, want)
	}
}

func TestCreateForeignKeyStatement(t *testing.T) {
	q := NewQuoter(nil)
	s := &schema.PostgresSchema{Name: "public"}
	table := &schema.PostgresTable{Name: "orders"}
	fk := schema.PostgresForeignKey{
		Name: "orders_customer_fk", Columns: []string{"customer_id"},
		ReferencedTable: "customers", ReferencedColumns: []string{"id"},
		OnDelete: schema.FKCascade,
	}
	got := CreateForeignKeyStatement(fk, table, s, q)
	want := "alter table public.orders add constraint orders_customer_fk foreign key (customer_id) references public.customers (id) on delete cascade;"
	if got != want {
		t.Errorf("CreateForeignKeyStatement =\n%s\nwant\n%s", got, want)
	}
}
