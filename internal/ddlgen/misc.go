package ddlgen

import (
	"fmt"
	"strings"

	"github.com/elefantsql/elefant/internal/schema"
)

// CreateEnumStatement emits `create type s.name as enum ('a', 'b', ...);`.
func CreateEnumStatement(e *schema.PostgresEnum, s *schema.PostgresSchema, q *Quoter) string {
	values := make([]string, len(e.Values))
	for i, v := range e.Values {
		values[i] = QuoteValueString(v)
	}
	sql := fmt.Sprintf("create type %s as enum (%s);", q.QualifiedName(s.Name, e.Name), strings.Join(values, ", "))
	if e.Comment != "" {
		sql += fmt.Sprintf("\ncomment on type %s is %s;", q.QualifiedName(s.Name, e.Name), QuoteValueString(e.Comment))
	}
	return sql
}

// CreateDomainStatement emits `create domain s.name as base [not null]
// [default ...] [check (...)];`.
func CreateDomainStatement(d *schema.PostgresDomain, s *schema.PostgresSchema, q *Quoter) string {
	var sql strings.Builder
	fmt.Fprintf(&sql, "create domain %s as %s", q.QualifiedName(s.Name, d.Name), d.BaseType)
	if d.DefaultValue != "" {
		fmt.Fprintf(&sql, " default %s", d.DefaultValue)
	}
	if d.NotNull {
		sql.WriteString(" not null")
	}
	if d.CheckClause != "" {
		fmt.Fprintf(&sql, " check (%s)", d.CheckClause)
	}
	sql.WriteString(";")
	return sql.String()
}

// CreateExtensionStatement emits `create extension if not exists name
// with schema s version 'v';`.
func CreateExtensionStatement(e schema.Extension, q *Quoter) string {
	sql := fmt.Sprintf("create extension if not exists %s", q.Quote(e.Name, ColumnName))
	if e.Schema != "" {
		sql += fmt.Sprintf(" with schema %s", q.Quote(e.Schema, ColumnName))
	}
	if e.Version != "" {
		sql += fmt.Sprintf(" version %s", QuoteValueString(e.Version))
	}
	return sql + ";"
}

// CreateTriggerStatement emits the trigger's already-introspected
// definition verbatim (pg_get_triggerdef output), since hand-reassembling
// trigger syntax from parts loses nothing the original definition
// doesn't already express more faithfully.
func CreateTriggerStatement(tr *schema.PostgresTrigger, s *schema.PostgresSchema, q *Quoter) string {
	return tr.Definition + ";"
}

// CreateTimescaleJobStatement emits the `select
// add_job('proc', 'schedule', config => '...');` call that recreates a
// user-defined background job, grounded on original_source's
// timescale_support.user_defined_jobs handling in copy_data.rs's
// post-apply statement group 4.
func CreateTimescaleJobStatement(j schema.TimescaleJob) string {
	sql := fmt.Sprintf("select public.add_job(%s, %s", QuoteValueString(j.ProcName), QuoteValueString(j.Schedule))
	if j.Config != "" {
		sql += fmt.Sprintf(", config => %s", QuoteValueString(j.Config))
	}
	return sql + ");"
}
