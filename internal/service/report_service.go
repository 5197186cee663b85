package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/fanout"
	"github.com/swapsoft/pwdbudget/internal/metrics"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/report"
)

const countFailedMessage = "Table may not exist or cannot be accessed"

// HeadSource runs the per-head queries of an office.
type HeadSource interface {
	StatusSummary(ctx context.Context, office string, head report.Head, f report.Filter) ([]models.StatusSummaryRow, error)
	Count(ctx context.Context, office string, head report.Head) (int64, error)
}

// HeadError names a head whose query failed.
type HeadError struct {
	Head  string `json:"head"`
	Error string `json:"error"`
}

// Summary is the merged cross-head status summary of an office.
type Summary struct {
	Rows   []models.CategoryRow `json:"rows"`
	Errors []HeadError          `json:"errors,omitempty"`
}

type ReportService struct {
	heads   HeadSource
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewReportService(heads HeadSource, m *metrics.Metrics, logger *logrus.Logger) *ReportService {
	return &ReportService{
		heads:   heads,
		metrics: m,
		logger:  logger,
	}
}

// CrossHeadSummary queries every standard head concurrently and merges the
// results. A failed head contributes nothing and is listed in Errors; an
// unknown office fails the whole call.
func (s *ReportService) CrossHeadSummary(ctx context.Context, office string, f report.Filter) (*Summary, error) {
	if strings.TrimSpace(office) == "" {
		return nil, apperr.Validation("Office parameter is required")
	}
	if strings.TrimSpace(f.Year) == "" {
		return nil, apperr.Validation("Budget year is required")
	}

	heads := report.StandardHeads()
	tasks := make([]fanout.Task[[]models.StatusSummaryRow], 0, len(heads))
	for _, h := range heads {
		h := h
		tasks = append(tasks, func(ctx context.Context) ([]models.StatusSummaryRow, error) {
			return s.heads.StatusSummary(ctx, office, h, f)
		})
	}

	results := fanout.SettleAll(ctx, tasks)
	if err := unknownOffice(results); err != nil {
		return nil, err
	}

	perHead := make([]report.HeadRows, 0, len(heads))
	var headErrs []HeadError
	for i, r := range results {
		if r.Err != nil {
			s.metrics.RecordHeadFailure(office, heads[i].Code)
			s.logger.WithError(r.Err).WithFields(logrus.Fields{
				"office": office,
				"head":   heads[i].Code,
			}).Warn("Head excluded from summary")
			headErrs = append(headErrs, HeadError{Head: heads[i].Title, Error: apperr.MessageOf(r.Err)})
			perHead = append(perHead, report.HeadRows{Head: heads[i]})
			continue
		}
		perHead = append(perHead, report.HeadRows{Head: heads[i], Rows: r.Value})
	}

	return &Summary{
		Rows:   report.Merge(perHead),
		Errors: headErrs,
	}, nil
}

// BudgetCounts counts the works of every head table. A table that cannot be
// counted reports zero with an error.
func (s *ReportService) BudgetCounts(ctx context.Context, office string) ([]models.BudgetCount, error) {
	if strings.TrimSpace(office) == "" {
		return nil, apperr.Validation("Office parameter is required")
	}

	tasks := make([]fanout.Task[int64], 0, len(report.Heads))
	for _, h := range report.Heads {
		h := h
		tasks = append(tasks, func(ctx context.Context) (int64, error) {
			return s.heads.Count(ctx, office, h)
		})
	}

	results := fanout.SettleAll(ctx, tasks)
	if err := unknownOffice(results); err != nil {
		return nil, err
	}

	out := make([]models.BudgetCount, len(results))
	for i, r := range results {
		h := report.Heads[i]
		out[i] = models.BudgetCount{Head: h.Title, Table: h.Master, Count: r.Value}
		if r.Err != nil {
			s.metrics.RecordHeadFailure(office, h.Code)
			s.logger.WithError(r.Err).WithFields(logrus.Fields{
				"office": office,
				"table":  h.Master,
			}).Warn("Failed to count head table")
			out[i].Count = 0
			out[i].Error = countFailedMessage
		}
	}
	return out, nil
}

// unknownOffice returns the first unknown-office failure among results. Such a
// failure is about the request, not one head, so it fails the whole call.
func unknownOffice[T any](results []fanout.Result[T]) error {
	for _, err := range fanout.Failed(results) {
		if errors.Is(err, apperr.ErrUnknownTenant) {
			return err
		}
	}
	return nil
}
