package models

// StatusSummaryRow is one status group of one head, as returned by the
// per-head summary query.
type StatusSummaryRow struct {
	Status          string  `json:"workStatus"`
	TotalWork       int64   `json:"totalWork"`
	EstimatedCost   float64 `json:"estimatedCost"`
	TSCost          float64 `json:"tsCost"`
	BudgetProvision float64 `json:"budgetProvision"`
	Expenditure     float64 `json:"expenditure"`
}

// Totals are the summed numeric fields of a bucket.
type Totals struct {
	TotalWork       int64   `json:"totalWork"`
	EstimatedCost   float64 `json:"estimatedCost"`
	TSCost          float64 `json:"tsCost"`
	BudgetProvision float64 `json:"budgetProvision"`
	Expenditure     float64 `json:"expenditure"`
}

// Add accumulates r into t.
func (t *Totals) Add(r StatusSummaryRow) {
	t.TotalWork += r.TotalWork
	t.EstimatedCost += r.EstimatedCost
	t.TSCost += r.TSCost
	t.BudgetProvision += r.BudgetProvision
	t.Expenditure += r.Expenditure
}

// Merge accumulates o into t.
func (t *Totals) Merge(o Totals) {
	t.TotalWork += o.TotalWork
	t.EstimatedCost += o.EstimatedCost
	t.TSCost += o.TSCost
	t.BudgetProvision += o.BudgetProvision
	t.Expenditure += o.Expenditure
}

// CategoryRow is one merged output row: a head (or the grand total) with its
// figures per status bucket.
type CategoryRow struct {
	Category string            `json:"category"`
	Buckets  map[string]Totals `json:"buckets"`
	Total    Totals            `json:"total"`
}

// BudgetCount is the row count of one head table.
type BudgetCount struct {
	Head  string `json:"head"`
	Table string `json:"table"`
	Count int64  `json:"count"`
	Error string `json:"error,omitempty"`
}
