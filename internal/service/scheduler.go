package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/config"
	"github.com/swapsoft/pwdbudget/internal/models"
)

// WindowRunner runs one notification window for an office.
type WindowRunner interface {
	RunWindow(ctx context.Context, office string, w Window) ([]models.NotificationResult, error)
}

// Scheduler runs the daily reminder job for one office.
type Scheduler struct {
	cron    *cron.Cron
	runner  WindowRunner
	office  string
	window  Window
	timeout time.Duration
	logger  *logrus.Logger
}

func NewScheduler(runner WindowRunner, cfg *config.SchedulerConfig, logger *logrus.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
	}
	window, err := ParseWindow(cfg.Window)
	if err != nil {
		return nil, err
	}

	cronLogger := cron.PrintfLogger(logger)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:  runner,
		office:  cfg.Office,
		window:  window,
		timeout: 30 * time.Minute,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(cfg.Spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"office": s.office,
		"window": s.window.String(),
	}).Info("Notification scheduler started")
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs the job immediately and returns its results.
func (s *Scheduler) RunOnce(ctx context.Context) ([]models.NotificationResult, error) {
	results, err := s.runner.RunWindow(ctx, s.office, s.window)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"office": s.office,
			"window": s.window.String(),
		}).Error("Scheduled notification run failed")
		return nil, err
	}

	sent, failed := 0, 0
	for _, r := range results {
		sent += r.Delivered()
		failed += len(r.Outcomes) - r.Delivered()
	}
	s.logger.WithFields(logrus.Fields{
		"office":  s.office,
		"records": len(results),
		"sent":    sent,
		"failed":  failed,
	}).Info("Scheduled notification run finished")
	return results, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}
