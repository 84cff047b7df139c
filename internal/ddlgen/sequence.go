package ddlgen

import (
	"fmt"

	"github.com/elefantsql/elefant/internal/schema"
)

// CreateSequenceStatement emits `create sequence s.name as type increment
// ... minvalue ... maxvalue ... start ... cache ... [cycle];`, grounded
// on original_source's models/sequence.rs shape carried into schema.PostgresSequence.
func CreateSequenceStatement(seq *schema.PostgresSequence, s *schema.PostgresSchema, q *Quoter) string {
	sql := fmt.Sprintf("create sequence %s as %s increment %d minvalue %d maxvalue %d start %d cache %d",
		q.QualifiedName(s.Name, seq.Name), seq.DataType, seq.Increment, seq.MinValue, seq.MaxValue, seq.StartValue, seq.CacheSize)
	if seq.Cycle {
		sql += " cycle"
	}
	return sql + ";"
}

// SetValueStatement emits `select setval('s.name', n, true);` so a copied
// sequence resumes exactly where the source left off, or "" if no value
// was observed.
func SetValueStatement(seq *schema.PostgresSequence, s *schema.PostgresSchema, q *Quoter) string {
	if seq.LastValue == nil {
		return ""
	}
	return fmt.Sprintf("select setval(%s, %d, true);", QuoteValueString(q.QualifiedName(s.Name, seq.Name)), *seq.LastValue)
}
