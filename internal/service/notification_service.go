package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/config"
	"github.com/swapsoft/pwdbudget/internal/fanout"
	"github.com/swapsoft/pwdbudget/internal/metrics"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/sms"
)

// Window is a look-ahead range in days, counted from today.
type Window int

const (
	Today     Window = 0
	Week      Window = 7
	HalfMonth Window = 15
	Month     Window = 30
)

// Windows lists every window in ascending order.
var Windows = []Window{Today, Week, HalfMonth, Month}

func (w Window) String() string {
	switch w {
	case Today:
		return "today"
	case Week:
		return "week"
	case HalfMonth:
		return "half-month"
	case Month:
		return "month"
	default:
		return strconv.Itoa(int(w)) + "d"
	}
}

// ParseWindow maps today, week, half-month or month to its Window.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return Today, nil
	case "week":
		return Week, nil
	case "half-month":
		return HalfMonth, nil
	case "month":
		return Month, nil
	default:
		return 0, apperr.Validation(fmt.Sprintf("unknown notification window %q", s))
	}
}

const (
	reminderMessage = "Reminder: Work ID %s is due for completion on %s. Remaining days: %s. Please ensure timely completion. -Swapsoft"
	notAvailable    = "NA"
)

// WorkSource reads the SMS schedule of an office.
type WorkSource interface {
	FetchDue(ctx context.Context, office string, from, to time.Time) ([]models.WorkRecord, error)
	CountDue(ctx context.Context, office string, from, to time.Time) (int64, error)
	AllDue(ctx context.Context, office string) ([]models.WorkRecord, error)
}

// NotificationService finds works nearing completion and texts a reminder to
// everyone responsible for them.
type NotificationService struct {
	works         WorkSource
	sender        Sender
	loc           *time.Location
	maxConcurrent int
	metrics       *metrics.Metrics
	logger        *logrus.Logger
	nowF          func() time.Time
}

func NewNotificationService(works WorkSource, sender Sender, cfg *config.NotificationConfig, m *metrics.Metrics, logger *logrus.Logger) (*NotificationService, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid notification timezone %q: %w", cfg.Timezone, err)
	}

	return &NotificationService{
		works:         works,
		sender:        sender,
		loc:           loc,
		maxConcurrent: cfg.MaxConcurrent,
		metrics:       m,
		logger:        logger,
		nowF:          time.Now,
	}, nil
}

// windowRange returns today and today plus w, as calendar dates in the
// service timezone.
func (s *NotificationService) windowRange(w Window) (time.Time, time.Time) {
	now := s.nowF().In(s.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 0, int(w))
}

// FetchDue returns the works of office due within w.
func (s *NotificationService) FetchDue(ctx context.Context, office string, w Window) ([]models.WorkRecord, error) {
	if office == "" {
		return nil, apperr.Validation("Office parameter is required")
	}
	from, to := s.windowRange(w)
	return s.works.FetchDue(ctx, office, from, to)
}

// CountDue counts the works of office due within w.
func (s *NotificationService) CountDue(ctx context.Context, office string, w Window) (int64, error) {
	if office == "" {
		return 0, apperr.Validation("Office parameter is required")
	}
	from, to := s.windowRange(w)
	return s.works.CountDue(ctx, office, from, to)
}

// AllDue returns the whole schedule of office.
func (s *NotificationService) AllDue(ctx context.Context, office string) ([]models.WorkRecord, error) {
	if office == "" {
		return nil, apperr.Validation("Office parameter is required")
	}
	return s.works.AllDue(ctx, office)
}

// AggregateTotal sums the counts of every window. Any failing count fails the
// whole aggregate; an unknown office is reported as such.
func (s *NotificationService) AggregateTotal(ctx context.Context, office string) (int64, error) {
	if office == "" {
		return 0, apperr.Validation("Office parameter is required")
	}

	tasks := make([]fanout.Task[int64], 0, len(Windows))
	for _, w := range Windows {
		w := w
		tasks = append(tasks, func(ctx context.Context) (int64, error) {
			return s.CountDue(ctx, office, w)
		})
	}

	counts, err := fanout.All(ctx, tasks)
	if errors.Is(err, apperr.ErrUnknownTenant) {
		return 0, err
	}
	if err != nil {
		s.logger.WithError(err).WithField("office", office).Error("Failed to aggregate notification counts")
		return 0, apperr.Wrap(apperr.CodeAggregation, err, "Failed to aggregate notification counts")
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// ComposeMessage renders the reminder for rec. The remaining days are
// rounded up and are NA when the completion date cannot be parsed.
func (s *NotificationService) ComposeMessage(rec models.WorkRecord, now time.Time) (message, remaining string) {
	raw := strings.TrimSpace(rec.CompletionDate)
	shown, remaining := raw, notAvailable

	if due, ok := rec.DueDate(s.loc); ok {
		shown = due.Format("02-01-2006")
		days := math.Ceil(due.Sub(now).Hours() / 24)
		remaining = strconv.Itoa(int(days))
	}

	return fmt.Sprintf(reminderMessage, rec.WorkID, shown, remaining), remaining
}

// Dispatch sends message to every recipient of rec independently. It never
// fails; each recipient's outcome is recorded.
func (s *NotificationService) Dispatch(ctx context.Context, rec models.WorkRecord, message string) []models.DispatchOutcome {
	recipients := rec.Recipients()

	tasks := make([]fanout.Task[struct{}], 0, len(recipients))
	for _, mobile := range recipients {
		mobile := mobile
		tasks = append(tasks, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.sender.Send(ctx, mobile, message)
		})
	}

	results := fanout.SettleAll(ctx, tasks)

	outcomes := make([]models.DispatchOutcome, len(results))
	for i, r := range results {
		outcomes[i] = models.DispatchOutcome{Mobile: recipients[i], Success: r.OK()}
		if !r.OK() {
			outcomes[i].Error = r.Err.Error()
			s.logger.WithError(r.Err).WithFields(logrus.Fields{
				"work_id": rec.WorkID,
				"mobile":  sms.MaskMobile(recipients[i]),
			}).Warn("Failed to send reminder")
		}
		s.metrics.RecordSMS("reminder", r.OK())
	}
	return outcomes
}

// RunWindow sends reminders for every work of office due within w. Fetch
// errors fail the run; delivery failures are reported per record.
func (s *NotificationService) RunWindow(ctx context.Context, office string, w Window) ([]models.NotificationResult, error) {
	records, err := s.FetchDue(ctx, office, w)
	if err != nil {
		s.metrics.RecordNotificationRun(office, w.String(), 0, false)
		return nil, err
	}

	now := s.nowF()
	tasks := make([]fanout.Task[models.NotificationResult], 0, len(records))
	for _, rec := range records {
		rec := rec
		tasks = append(tasks, func(ctx context.Context) (models.NotificationResult, error) {
			message, remaining := s.ComposeMessage(rec, now)
			return models.NotificationResult{
				WorkID:        rec.WorkID,
				Message:       message,
				Recipients:    rec.Recipients(),
				RemainingDays: remaining,
				Outcomes:      s.Dispatch(ctx, rec, message),
			}, nil
		})
	}

	results := fanout.SettleAll(ctx, tasks, fanout.WithLimit(s.maxConcurrent))

	out := make([]models.NotificationResult, len(results))
	delivered, failed := 0, 0
	for i, r := range results {
		if r.Err != nil {
			// only a panic gets here
			out[i] = models.NotificationResult{WorkID: records[i].WorkID, Recipients: records[i].Recipients(), RemainingDays: notAvailable}
			failed++
			continue
		}
		out[i] = r.Value
		delivered += r.Value.Delivered()
		failed += len(r.Value.Outcomes) - r.Value.Delivered()
	}

	s.metrics.RecordNotificationRun(office, w.String(), len(records), true)
	s.logger.WithFields(logrus.Fields{
		"office":    office,
		"window":    w.String(),
		"records":   len(records),
		"delivered": delivered,
		"failed":    failed,
	}).Info("Notification window processed")

	return out, nil
}
