package ddlgen

import (
	"fmt"

	"github.com/elefantsql/elefant/internal/schema"
)

// CreateViewStatement emits `create [materialized] view s.name as
// <definition>;`. internal/copier runs each view as its own post-copy
// group, in the order the schema reader lists them (by schema, then
// name); dependencies between views are not taken into account.
func CreateViewStatement(v *schema.PostgresView, s *schema.PostgresSchema, q *Quoter) string {
	kind := "view"
	if v.Materialized {
		kind = "materialized view"
	}
	sql := fmt.Sprintf("create %s %s as\n%s;", kind, q.QualifiedName(s.Name, v.Name), v.Definition)
	if v.Comment != "" {
		sql += fmt.Sprintf("\ncomment on %s %s is %s;", kind, q.QualifiedName(s.Name, v.Name), QuoteValueString(v.Comment))
	}
	return sql
}

// RefreshMaterializedViewStatement returns "" for a plain view — only a
// materialized view needs its initial data populated post-copy, since
// `create materialized view` with no `with data` clause still computes
// results, but a copied definition may reference tables whose data wasn't
// present at creation time.
func RefreshMaterializedViewStatement(v *schema.PostgresView, s *schema.PostgresSchema, q *Quoter) string {
	if !v.Materialized {
		return ""
	}
	return fmt.Sprintf("refresh materialized view %s;", q.QualifiedName(s.Name, v.Name))
}
