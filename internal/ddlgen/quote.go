// Package ddlgen renders a schema.PostgresDatabase model back into SQL
// text: identifier quoting, CREATE TABLE/INDEX/VIEW/etc. statements, and
// the COPY command strings internal/copier drives. Every function here
// is pure: no I/O, no network — just model in, SQL text out, per spec.md
// §4.10. Grounded on original_source/elefant-tools/src/models/table.rs's
// get_create_statement/get_copy_in_command/get_copy_out_command (the
// fullest DDL-emission reference in the corpus); the identifier quoter
// itself follows spec.md §4.10's rule directly since no quoting.rs
// survived into original_source/.
package ddlgen

import (
	"strings"
)

// QuoteContext selects which reserved-word set applies, spec.md §4.10.
type QuoteContext int

const (
	ColumnName QuoteContext = iota
	TypeOrFunctionName
)

// Quoter decides when an identifier needs double-quoting. Constructed
// once per destination connection from pg_get_keywords() and shared
// read-only thereafter, per spec.md §5's "identifier-quoter's keyword set
// is shared, read-only".
type Quoter struct {
	reserved map[string]bool
}

// NewQuoter builds a Quoter from the reserved-word list, spec.md §4.10's
// "pg_get_keywords() where catcode != 'U'". Words should already be
// lowercase, matching how Postgres reports them.
func NewQuoter(reservedWords []string) *Quoter {
	q := &Quoter{reserved: make(map[string]bool, len(reservedWords))}
	for _, w := range reservedWords {
		q.reserved[strings.ToLower(w)] = true
	}
	return q
}

func isPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_'
		if !ok {
			return false
		}
	}
	return true
}

// Quote wraps identifier in double quotes (doubling any embedded `"`) if
// it's empty, digit-led, contains a character outside [a-z0-9_], or is a
// reserved word, per spec.md §4.10. The context parameter is accepted to
// mirror the spec's two-context quote() signature; both contexts share
// one reserved-word set here since pg_get_keywords() doesn't split them.
func (q *Quoter) Quote(identifier string, _ QuoteContext) string {
	needsQuoting := !isPlainIdentifier(identifier) || (q != nil && q.reserved[identifier])
	if !needsQuoting {
		return identifier
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// QualifiedName quotes and joins schema.object.
func (q *Quoter) QualifiedName(schemaName, objectName string) string {
	return q.Quote(schemaName, ColumnName) + "." + q.Quote(objectName, ColumnName)
}

// QuoteValueString renders a SQL string literal the way comment-on and
// default-value statements need it: wrapped in single quotes, with
// embedded quotes doubled. Not used for bulk data (see internal/sqlfile
// for the E'' escaping that path needs).
func QuoteValueString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
