package ddlgen

import (
	"fmt"
	"strings"

	"github.com/elefantsql/elefant/internal/schema"
)

// CreateIndexCommand emits `CREATE [UNIQUE] INDEX name ON schema.table
// USING method (col dir nulls, ...) [INCLUDE (...)] [WHERE ...]`, per
// spec.md §4.10. It emits whatever index it is given; the caller,
// internal/copier's postApplyStatementGroups, skips primary-key-backing
// indices, since CreateTableStatement already emits those inline as a
// "constraint ... primary key" clause.
func CreateIndexCommand(idx *schema.PostgresIndex, s *schema.PostgresSchema, t *schema.PostgresTable, q *Quoter) string {
	var sql strings.Builder
	sql.WriteString("create ")
	if idx.IndexConstraintType == schema.IndexUnique {
		sql.WriteString("unique ")
	}
	sql.WriteString("index ")
	sql.WriteString(q.Quote(idx.Name, ColumnName))
	sql.WriteString(" on ")
	sql.WriteString(q.QualifiedName(s.Name, t.Name))
	sql.WriteString(" using ")
	sql.WriteString(idx.IndexType)
	sql.WriteString(" (")
	for i, kc := range idx.KeyColumns {
		if i > 0 {
			sql.WriteString(", ")
		}
		sql.WriteString(kc.Expression)
		if kc.Direction == schema.SortDescending {
			sql.WriteString(" desc")
		}
		switch kc.Nulls {
		case schema.NullsFirst:
			sql.WriteString(" nulls first")
		case schema.NullsLast:
			sql.WriteString(" nulls last")
		}
	}
	sql.WriteString(")")

	if len(idx.IncludedColumns) > 0 {
		sql.WriteString(" include (")
		for i, c := range idx.IncludedColumns {
			if i > 0 {
				sql.WriteString(", ")
			}
			sql.WriteString(q.Quote(c, ColumnName))
		}
		sql.WriteString(")")
	}

	if idx.Predicate != "" {
		sql.WriteString(" where ")
		sql.WriteString(idx.Predicate)
	}
	sql.WriteString(";")

	if idx.Comment != "" {
		fmt.Fprintf(&sql, "\ncomment on index %s.%s is %s;", q.Quote(s.Name, ColumnName), q.Quote(idx.Name, ColumnName), QuoteValueString(idx.Comment))
	}

	return sql.String()
}
