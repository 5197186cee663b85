package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/report"
)

// HeadRepository runs the per-head budget queries.
type HeadRepository struct {
	offices Resolver
	logger  *logrus.Logger
}

func NewHeadRepository(offices Resolver, logger *logrus.Logger) *HeadRepository {
	return &HeadRepository{
		offices: offices,
		logger:  logger,
	}
}

// StatusSummary returns the status groups of one head in office.
func (r *HeadRepository) StatusSummary(ctx context.Context, office string, head report.Head, f report.Filter) ([]models.StatusSummaryRow, error) {
	h, err := r.offices.Get(office)
	if err != nil {
		return nil, err
	}

	query, args := report.SummaryQuery(head, f)
	rows, err := h.Query(ctx, query, args...)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"office": office,
			"head":   head.Code,
		}).Error("Failed to fetch head summary")
		return nil, fmt.Errorf("failed to fetch %s summary: %w", head.Code, err)
	}
	defer rows.Close()

	out := make([]models.StatusSummaryRow, 0)
	for rows.Next() {
		var s models.StatusSummaryRow
		if err := rows.Scan(&s.Status, &s.TotalWork, &s.EstimatedCost, &s.TSCost, &s.BudgetProvision, &s.Expenditure); err != nil {
			return nil, fmt.Errorf("failed to scan %s summary: %w", head.Code, h.Unavailable(err))
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s summary: %w", head.Code, h.Unavailable(err))
	}

	return out, nil
}

// Count returns the number of works recorded under head in office.
func (r *HeadRepository) Count(ctx context.Context, office string, head report.Head) (int64, error) {
	h, err := r.offices.Get(office)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := h.QueryRow(ctx, report.CountQuery(head)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", head.Master, err)
	}
	return n, nil
}
