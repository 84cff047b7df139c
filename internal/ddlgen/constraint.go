package ddlgen

import (
	"fmt"
	"strings"

	"github.com/elefantsql/elefant/internal/schema"
)

func fkActionKeyword(a schema.ForeignKeyAction) string {
	switch a {
	case schema.FKRestrict:
		return "restrict"
	case schema.FKCascade:
		return "cascade"
	case schema.FKSetNull:
		return "set null"
	case schema.FKSetDefault:
		return "set default"
	default:
		return "no action"
	}
}

// CreateForeignKeyStatement emits `alter table ... add constraint ...
// foreign key (...) references ... (...) on update ... on delete ...`,
// deferred to the post-copy phase since it can only succeed once both
// sides of the relationship hold data, per spec.md §4.8.
func CreateForeignKeyStatement(fk schema.PostgresForeignKey, t *schema.PostgresTable, s *schema.PostgresSchema, q *Quoter) string {
	refSchema := fk.ReferencedSchema
	if refSchema == "" {
		refSchema = s.Name
	}

	cols := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		cols[i] = q.Quote(c, ColumnName)
	}
	refCols := make([]string, len(fk.ReferencedColumns))
	for i, c := range fk.ReferencedColumns {
		refCols[i] = q.Quote(c, ColumnName)
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "alter table %s add constraint %s foreign key (%s) references %s (%s)",
		q.QualifiedName(s.Name, t.Name), q.Quote(fk.Name, ColumnName),
		strings.Join(cols, ", "), q.QualifiedName(refSchema, fk.ReferencedTable), strings.Join(refCols, ", "))

	if fk.OnUpdate != schema.FKNoAction {
		sql.WriteString(" on update ")
		sql.WriteString(fkActionKeyword(fk.OnUpdate))
	}
	if fk.OnDelete != schema.FKNoAction {
		sql.WriteString(" on delete ")
		sql.WriteString(fkActionKeyword(fk.OnDelete))
	}
	sql.WriteString(";")
	return sql.String()
}

// CreateUniqueConstraintStatement emits `ALTER TABLE ... ADD CONSTRAINT
// ... UNIQUE USING INDEX idx`, preserving the backing index's "nulls not
// distinct" bit rather than re-deriving a fresh one, per spec.md §4.10.
func CreateUniqueConstraintStatement(uq schema.PostgresUnique, t *schema.PostgresTable, s *schema.PostgresSchema, q *Quoter) string {
	return fmt.Sprintf("alter table %s add constraint %s unique using index %s;",
		q.QualifiedName(s.Name, t.Name), q.Quote(uq.Name, ColumnName), q.Quote(uq.IndexName, ColumnName))
}
