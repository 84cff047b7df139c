package schema

import (
	"reflect"
	"testing"
)

func TestParseIndexKeyColumns(t *testing.T) {
	cases := []struct {
		name string
		def  string
		want []IndexKeyColumn
	}{
		{
			name: "single ascending column",
			def:  "CREATE UNIQUE INDEX widgets_pkey ON public.widgets USING btree (id)",
			want: []IndexKeyColumn{{Expression: "id", Ordinal: 1, Direction: SortAscending, Nulls: NullsDefault}},
		},
		{
			name: "two columns, one descending with explicit nulls",
			def:  "CREATE INDEX idx ON public.widgets USING btree (created_at DESC NULLS LAST, id)",
			want: []IndexKeyColumn{
				{Expression: "created_at", Ordinal: 1, Direction: SortDescending, Nulls: NullsLast},
				{Expression: "id", Ordinal: 2, Direction: SortAscending, Nulls: NullsDefault},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseIndexKeyColumns(tc.def)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseIndexKeyColumns(%q) = %+v, want %+v", tc.def, got, tc.want)
			}
		})
	}
}

func TestParseFKAction(t *testing.T) {
	cases := map[string]ForeignKeyAction{
		"RESTRICT":    FKRestrict,
		"CASCADE":     FKCascade,
		"SET NULL":    FKSetNull,
		"SET DEFAULT": FKSetDefault,
		"NO ACTION":   FKNoAction,
		"":            FKNoAction,
	}
	for rule, want := range cases {
		if got := parseFKAction(rule); got != want {
			t.Errorf("parseFKAction(%q) = %v, want %v", rule, got, want)
		}
	}
}

func TestParsePartitionStrategy(t *testing.T) {
	cases := map[string]PartitionStrategy{
		"l": PartitionList,
		"r": PartitionRange,
		"h": PartitionHash,
		"":  PartitionNone,
	}
	for s, want := range cases {
		if got := parsePartitionStrategy(s); got != want {
			t.Errorf("parsePartitionStrategy(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestGetOrCreateSchemaIsIdempotent(t *testing.T) {
	db := &PostgresDatabase{}
	a := db.getOrCreateSchema("public")
	b := db.getOrCreateSchema("public")
	if a != b {
		t.Fatal("expected getOrCreateSchema to return the same schema on repeated calls")
	}
	if len(db.Schemas) != 1 {
		t.Fatalf("expected one schema, got %d", len(db.Schemas))
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("o'brien"); got != "'o''brien'" {
		t.Errorf("quoteLiteral: got %q", got)
	}
}

// TestJSONStringField mirrors the shapes timescaledb_information.jobs
// reports for compression/retention/continuous-aggregate-refresh policy
// configs (inspect_compressed, inspect_retention_policies,
// inspect_continuous_aggregates_15/_16 in the original test suite).
func TestJSONStringField(t *testing.T) {
	cases := []struct {
		name    string
		rawJSON string
		key     string
		want    string
	}{
		{
			name:    "compression policy config",
			rawJSON: `{"hypertable_id": 1, "compress_after": "7 days"}`,
			key:     "compress_after",
			want:    "7 days",
		},
		{
			name:    "retention policy config",
			rawJSON: `{"hypertable_id": 1, "drop_after": "24:00:00"}`,
			key:     "drop_after",
			want:    "24:00:00",
		},
		{
			name:    "continuous aggregate refresh config",
			rawJSON: `{"end_offset": "1 day", "start_offset": "6 mons", "mat_hypertable_id": 2}`,
			key:     "start_offset",
			want:    "6 mons",
		},
		{
			name:    "missing key",
			rawJSON: `{"hypertable_id": 1}`,
			key:     "drop_after",
			want:    "",
		},
		{
			name:    "empty config",
			rawJSON: "",
			key:     "compress_after",
			want:    "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := jsonStringField(tc.rawJSON, tc.key); got != tc.want {
				t.Errorf("jsonStringField(%q, %q) = %q, want %q", tc.rawJSON, tc.key, got, tc.want)
			}
		})
	}
}
