package report

import "github.com/swapsoft/pwdbudget/internal/models"

// GrandTotal is the category of the final merged row.
const GrandTotal = "Total"

// HeadRows are the summary rows one head returned.
type HeadRows struct {
	Head Head
	Rows []models.StatusSummaryRow
}

// Merge sums the per-head rows first by category, then by status bucket. It
// returns one row per head, in input order, followed by the grand total.
// Every row carries all buckets, zero-valued where nothing matched.
func Merge(perHead []HeadRows) []models.CategoryRow {
	out := make([]models.CategoryRow, 0, len(perHead)+1)
	grand := newCategoryRow(GrandTotal)

	for _, hr := range perHead {
		row := newCategoryRow(hr.Head.Title)
		for _, r := range hr.Rows {
			b := string(Classify(r.Status))
			t := row.Buckets[b]
			t.Add(r)
			row.Buckets[b] = t
			row.Total.Add(r)
		}
		for b, t := range row.Buckets {
			g := grand.Buckets[b]
			g.Merge(t)
			grand.Buckets[b] = g
		}
		grand.Total.Merge(row.Total)
		out = append(out, row)
	}

	return append(out, grand)
}

func newCategoryRow(category string) models.CategoryRow {
	row := models.CategoryRow{
		Category: category,
		Buckets:  make(map[string]models.Totals, len(Buckets)),
	}
	for _, b := range Buckets {
		row.Buckets[string(b)] = models.Totals{}
	}
	return row
}
