package report

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Filter narrows a head summary.
type Filter struct {
	// Year is the financial year of the provision rows, e.g. "2023-2024".
	Year string
	// Contractor restricts the summary to one contractor's works when set.
	Contractor string
}

// amount casts a possibly textual money column to numeric; empty text counts
// as NULL.
func amount(col string) string {
	return fmt.Sprintf("COALESCE(SUM(CAST(NULLIF(TRIM(%s::text), '') AS numeric)), 0)::float8", col)
}

// SummaryQuery builds the per-status summary of one head. Every head shares
// the same column layout, so one builder serves all of them.
func SummaryQuery(h Head, f Filter) (string, []any) {
	master := pgx.Identifier{h.Master}.Sanitize()
	provision := pgx.Identifier{h.Provision}.Sanitize()

	var b strings.Builder
	b.WriteString(`SELECT a."Sadyasthiti" AS status, COUNT(a."Sadyasthiti") AS total_work, `)
	b.WriteString(amount(`a."PrashaskiyAmt"`) + " AS estimated_cost, ")
	b.WriteString(amount(`a."TrantrikAmt"`) + " AS ts_cost, ")
	b.WriteString(amount(`b."Tartud"`) + " AS budget_provision, ")
	b.WriteString(amount(`b."AikunKharch"`) + " AS expenditure ")
	fmt.Fprintf(&b, `FROM %s a LEFT JOIN %s b ON a."WorkID" = b."WorkID" AND b."Arthsankalpiyyear" = $1 `, master, provision)
	b.WriteString(`WHERE a."Sadyasthiti" IS NOT NULL`)

	args := []any{f.Year}
	if f.Contractor != "" {
		args = append(args, f.Contractor)
		fmt.Fprintf(&b, ` AND a."ThekedaarName" = $%d`, len(args))
	}
	b.WriteString(` GROUP BY a."Sadyasthiti"`)
	return b.String(), args
}

// CountQuery counts the works of one head.
func CountQuery(h Head) string {
	return "SELECT COUNT(*) FROM " + pgx.Identifier{h.Master}.Sanitize()
}
