/**
 * @description
 * Cron scheduler setup for the recurring-service background jobs.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron               *cron.Cron
	jobs               *Jobs
	logger             *slog.Logger
	dueScanSchedule    string
	retrySweepSchedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, dueScanSchedule, retrySweepSchedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:               c,
		jobs:               jobs,
		logger:             logger,
		dueScanSchedule:    dueScanSchedule,
		retrySweepSchedule: retrySweepSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.dueScanSchedule, s.jobs.RunDueScan); err != nil {
		s.logger.Error("failed to schedule due-scan job", "error", err)
	} else {
		s.logger.Info("scheduled due-scan job", "schedule", s.dueScanSchedule)
	}

	if _, err := s.cron.AddFunc(s.retrySweepSchedule, s.jobs.RunRetrySweep); err != nil {
		s.logger.Error("failed to schedule retry sweep job", "error", err)
	} else {
		s.logger.Info("scheduled retry sweep job", "schedule", s.retrySweepSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
