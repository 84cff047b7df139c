package copier

import (
	"context"
	"testing"

	"github.com/elefantsql/elefant/internal/ddlgen"
	"github.com/elefantsql/elefant/internal/schema"
)

type fakeFormatSource struct{ formats []schema.DataFormat }

func (f fakeFormatSource) Introspect(ctx context.Context) (*schema.PostgresDatabase, error) {
	return nil, nil
}
func (f fakeFormatSource) SupportedFormats() []schema.DataFormat { return f.formats }
func (f fakeFormatSource) OpenTableData(ctx context.Context, s *schema.PostgresSchema, t *schema.PostgresTable, format schema.DataFormat) (TableData, error) {
	return nil, nil
}

type fakeFormatDestination struct{ formats []schema.DataFormat }

func (f fakeFormatDestination) SupportedFormats() []schema.DataFormat           { return f.formats }
func (f fakeFormatDestination) BeginTransaction(ctx context.Context) error      { return nil }
func (f fakeFormatDestination) CommitTransaction(ctx context.Context) error     { return nil }
func (f fakeFormatDestination) ApplyTransactionalStatement(ctx context.Context, stmt string) error {
	return nil
}
func (f fakeFormatDestination) ApplyNonTransactionalStatement(ctx context.Context, stmt string) error {
	return nil
}
func (f fakeFormatDestination) ApplyData(ctx context.Context, s *schema.PostgresSchema, t *schema.PostgresTable, format schema.DataFormat, data TableData) error {
	return nil
}
func (f fakeFormatDestination) IdentifierQuoter() *ddlgen.Quoter { return ddlgen.NewQuoter(nil) }
func (f fakeFormatDestination) SupportsParallel() bool           { return false }

func TestNegotiateFormatPrefersBinary(t *testing.T) {
	src := fakeFormatSource{formats: []schema.DataFormat{schema.DataFormatText, schema.DataFormatBinary}}
	dst := fakeFormatDestination{formats: []schema.DataFormat{schema.DataFormatBinary, schema.DataFormatText}}
	got, err := negotiateFormat(src, dst, Options{})
	if err != nil {
		t.Fatalf("negotiateFormat: %v", err)
	}
	if got != schema.DataFormatBinary {
		t.Errorf("got %v, want binary", got)
	}
}

func TestNegotiateFormatFallsBackToText(t *testing.T) {
	src := fakeFormatSource{formats: []schema.DataFormat{schema.DataFormatText}}
	dst := fakeFormatDestination{formats: []schema.DataFormat{schema.DataFormatBinary, schema.DataFormatText}}
	got, err := negotiateFormat(src, dst, Options{})
	if err != nil {
		t.Fatalf("negotiateFormat: %v", err)
	}
	if got != schema.DataFormatText {
		t.Errorf("got %v, want text", got)
	}
}

func TestNegotiateFormatNoOverlapErrors(t *testing.T) {
	src := fakeFormatSource{formats: []schema.DataFormat{schema.DataFormatBinary}}
	dst := fakeFormatDestination{formats: []schema.DataFormat{schema.DataFormatText}}
	if _, err := negotiateFormat(src, dst, Options{}); err == nil {
		t.Fatal("expected an error for no common format")
	}
}

func TestNegotiateFormatHonorsForcedFormat(t *testing.T) {
	src := fakeFormatSource{formats: []schema.DataFormat{schema.DataFormatText, schema.DataFormatBinary}}
	dst := fakeFormatDestination{formats: []schema.DataFormat{schema.DataFormatText, schema.DataFormatBinary}}
	forced := schema.DataFormatText
	got, err := negotiateFormat(src, dst, Options{DataFormat: &forced})
	if err != nil {
		t.Fatalf("negotiateFormat: %v", err)
	}
	if got != schema.DataFormatText {
		t.Errorf("got %v, want forced text", got)
	}
}

func TestNegotiateFormatRejectsUnsupportedForcedFormat(t *testing.T) {
	src := fakeFormatSource{formats: []schema.DataFormat{schema.DataFormatText}}
	dst := fakeFormatDestination{formats: []schema.DataFormat{schema.DataFormatText}}
	forced := schema.DataFormatBinary
	if _, err := negotiateFormat(src, dst, Options{DataFormat: &forced}); err == nil {
		t.Fatal("expected an error when the forced format isn't supported")
	}
}

func TestTableTypeOrderPutsParentsBeforeChildren(t *testing.T) {
	order := []schema.TableKind{
		schema.TableInherited,
		schema.TablePartitionedChild,
		schema.TablePartitionedParent,
		schema.TableTimescaleHypertable,
		schema.TablePlain,
	}
	for i := 1; i < len(order); i++ {
		if tableTypeOrder(order[i-1]) <= tableTypeOrder(order[i]) {
			t.Errorf("expected %v to sort after %v", order[i-1], order[i])
		}
	}
}

func TestFilterToSchemaKeepsOnlyNamedSchema(t *testing.T) {
	db := &schema.PostgresDatabase{Schemas: []*schema.PostgresSchema{
		{Name: "public"},
		{Name: "reporting"},
	}}
	got := filterToSchema(db, "reporting")
	if len(got.Schemas) != 1 || got.Schemas[0].Name != "reporting" {
		t.Fatalf("filterToSchema = %+v", got.Schemas)
	}
}

func TestFilterToSchemaEmptyKeepsAll(t *testing.T) {
	db := &schema.PostgresDatabase{Schemas: []*schema.PostgresSchema{{Name: "public"}, {Name: "reporting"}}}
	if got := filterToSchema(db, ""); len(got.Schemas) != 2 {
		t.Fatalf("expected both schemas kept, got %d", len(got.Schemas))
	}
}

func TestRenameSchemaRenamesOnlyTheMatch(t *testing.T) {
	db := &schema.PostgresDatabase{Schemas: []*schema.PostgresSchema{{Name: "public"}, {Name: "reporting"}}}
	got := renameSchema(db, "public", "archive")
	names := map[string]bool{}
	for _, s := range got.Schemas {
		names[s.Name] = true
	}
	if !names["archive"] || !names["reporting"] || names["public"] {
		t.Fatalf("renameSchema produced %v", names)
	}
}

func TestPostApplyStatementGroupsOrdersIndexesBeforeConstraintsAndTriggersLast(t *testing.T) {
	q := ddlgen.NewQuoter(nil)
	db := &schema.PostgresDatabase{Schemas: []*schema.PostgresSchema{
		{
			Name: "public",
			Tables: []*schema.PostgresTable{
				{
					Name: "orders",
					Indices: []*schema.PostgresIndex{
						{Name: "orders_customer_idx", IndexType: "btree", KeyColumns: []schema.IndexKeyColumn{{Expression: "customer_id"}}},
					},
					Constraints: []schema.PostgresConstraint{
						schema.PostgresForeignKey{Name: "orders_customer_fk", Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"}},
					},
				},
			},
			Triggers: []*schema.PostgresTrigger{
				{Name: "orders_audit", Definition: "create trigger orders_audit after insert on public.orders execute function audit()"},
			},
		},
	}}

	groups := postApplyStatementGroups(db, q)
	if len(groups) < 3 {
		t.Fatalf("expected at least 3 groups, got %d", len(groups))
	}

	foundIndexBeforeFK := -1
	foundFK := -1
	foundTrigger := -1
	for i, g := range groups {
		for _, stmt := range g {
			if foundIndexBeforeFK == -1 && stmt == "create index orders_customer_idx on public.orders using btree (customer_id);" {
				foundIndexBeforeFK = i
			}
			if foundFK == -1 && stmt == "alter table public.orders add constraint orders_customer_fk foreign key (customer_id) references public.customers (id);" {
				foundFK = i
			}
			if foundTrigger == -1 && stmt == "create trigger orders_audit after insert on public.orders execute function audit();" {
				foundTrigger = i
			}
		}
	}
	if foundIndexBeforeFK == -1 || foundFK == -1 || foundTrigger == -1 {
		t.Fatalf("missing expected statements across groups: %+v", groups)
	}
	if !(foundIndexBeforeFK < foundFK && foundFK < foundTrigger) {
		t.Errorf("expected index group (%d) < fk group (%d) < trigger group (%d)", foundIndexBeforeFK, foundFK, foundTrigger)
	}
}
