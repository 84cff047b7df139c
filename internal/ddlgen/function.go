package ddlgen

import (
	"fmt"
	"strings"

	"github.com/elefantsql/elefant/internal/schema"
)

func volatilityKeyword(v schema.Volatility) string {
	switch v {
	case schema.VolatilityStable:
		return "stable"
	case schema.VolatilityImmutable:
		return "immutable"
	default:
		return "volatile"
	}
}

// CreateFunctionStatement emits `create function s.name(args) returns
// result language lang volatility [strict] [security definer] [leakproof]
// parallel p as $elefant_body$...$elefant_body$;`, grounded on original_source's
// models/function.rs attribute list (cost/rows/strict/security
// definer/leakproof/volatility/parallel).
func CreateFunctionStatement(fn *schema.PostgresFunction, s *schema.PostgresSchema, q *Quoter) string {
	var sql strings.Builder
	fmt.Fprintf(&sql, "create function %s(%s) returns %s\n    language %s %s",
		q.QualifiedName(s.Name, fn.Name), fn.Arguments, fn.Result, fn.Language, volatilityKeyword(fn.Volatility))

	if fn.Strict {
		sql.WriteString(" strict")
	}
	if fn.SecurityDefiner {
		sql.WriteString(" security definer")
	}
	if fn.LeakProof {
		sql.WriteString(" leakproof")
	}
	fmt.Fprintf(&sql, " parallel %s", fn.Parallel)
	if fn.EstimatedCost > 0 {
		fmt.Fprintf(&sql, " cost %g", fn.EstimatedCost)
	}
	if fn.ReturnsSet && fn.EstimatedRows > 0 {
		fmt.Fprintf(&sql, " rows %g", fn.EstimatedRows)
	}
	for _, cfg := range fn.Configuration {
		fmt.Fprintf(&sql, "\n    set %s", cfg)
	}
	sql.WriteString("\n    as $elefant_body$\n")
	sql.WriteString(fn.SQLBody)
	sql.WriteString("\n$elefant_body$;")

	if fn.Comment != "" {
		fmt.Fprintf(&sql, "\ncomment on function %s(%s) is %s;", q.QualifiedName(s.Name, fn.Name), fn.Arguments, QuoteValueString(fn.Comment))
	}
	return sql.String()
}
