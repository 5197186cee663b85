package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/tenant"
)

// WorkRepository reads the SMS schedule (SendSms_tbl) of each office.
type WorkRepository struct {
	offices Resolver
	logger  *logrus.Logger
}

func NewWorkRepository(offices Resolver, logger *logrus.Logger) *WorkRepository {
	return &WorkRepository{
		offices: offices,
		logger:  logger,
	}
}

const workColumns = `
	COALESCE("WorkId"::text, ''), COALESCE("KamacheName", ''), COALESCE("KamPurnDate"::text, ''),
	COALESCE("ShakhaAbhyantaName", ''), COALESCE("ShakhaAbhiyantMobile"::text, ''),
	COALESCE("UpabhyantaName", ''), COALESCE("UpAbhiyantaMobile"::text, ''),
	COALESCE("ThekedaarName", ''), COALESCE("ThekedarMobile"::text, '')
`

// FetchDue returns the works whose completion date lies in [from, to], both
// calendar dates inclusive, in from's location. KamPurnDate is free text in
// office data, so rows are filtered with WorkRecord.DueDate rather than in
// SQL; a row whose date cannot be read is skipped and never fails the query.
func (r *WorkRepository) FetchDue(ctx context.Context, office string, from, to time.Time) ([]models.WorkRecord, error) {
	all, err := r.AllDue(ctx, office)
	if err != nil {
		return nil, err
	}
	return dueWithin(all, from, to), nil
}

// CountDue counts the works FetchDue would return.
func (r *WorkRepository) CountDue(ctx context.Context, office string, from, to time.Time) (int64, error) {
	due, err := r.FetchDue(ctx, office, from, to)
	if err != nil {
		return 0, err
	}
	return int64(len(due)), nil
}

// AllDue returns the whole schedule without a date filter.
func (r *WorkRepository) AllDue(ctx context.Context, office string) ([]models.WorkRecord, error) {
	h, err := r.offices.Get(office)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, h, `SELECT `+workColumns+` FROM "SendSms_tbl"`)
}

func (r *WorkRepository) collect(ctx context.Context, h *tenant.Handle, query string, args ...any) ([]models.WorkRecord, error) {
	rows, err := h.Query(ctx, query, args...)
	if err != nil {
		r.logger.WithError(err).WithField("office", h.Key()).Error("Failed to fetch works")
		return nil, fmt.Errorf("failed to fetch works: %w", err)
	}
	defer rows.Close()

	works := make([]models.WorkRecord, 0)
	for rows.Next() {
		var w models.WorkRecord
		if err := rows.Scan(
			&w.WorkID,
			&w.WorkName,
			&w.CompletionDate,
			&w.EngineerName,
			&w.EngineerMobile,
			&w.DeputyName,
			&w.DeputyMobile,
			&w.ContractorName,
			&w.ContractorMobile,
		); err != nil {
			return nil, fmt.Errorf("failed to scan work: %w", h.Unavailable(err))
		}
		works = append(works, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read works: %w", h.Unavailable(err))
	}

	return works, nil
}

// dueWithin keeps the works due between from and to, ordered by due date.
func dueWithin(works []models.WorkRecord, from, to time.Time) []models.WorkRecord {
	loc := from.Location()
	first, last := calendarDate(from), calendarDate(to.In(loc))

	type dated struct {
		work models.WorkRecord
		due  time.Time
	}
	var kept []dated
	for _, w := range works {
		due, ok := w.DueDate(loc)
		if !ok {
			continue
		}
		due = calendarDate(due)
		if due.Before(first) || due.After(last) {
			continue
		}
		kept = append(kept, dated{work: w, due: due})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].due.Before(kept[j].due) })

	out := make([]models.WorkRecord, len(kept))
	for i, d := range kept {
		out[i] = d.work
	}
	return out
}

// calendarDate keeps only t's calendar date, as seen in t's own location.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
