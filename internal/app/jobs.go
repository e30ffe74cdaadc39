/**
 * @description
 * Scheduled job implementations for the recurring-service: the due-scan
 * orchestrator and the retry sweeper. Both are driven by the cron scheduler
 * and can also be triggered on demand through the internal API.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/recurring-service/internal/domain"
	"github.com/transfa/recurring-service/internal/metrics"
	"github.com/transfa/recurring-service/internal/store"
)

// ExecutionRunner defines the runner operations the jobs need.
type ExecutionRunner interface {
	Execute(ctx context.Context, scheduleID uuid.UUID) (*domain.ExecutionRecord, error)
	Retry(ctx context.Context, executionID uuid.UUID, retryLimit int) (*domain.ExecutionRecord, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo           store.Repository
	runner         ExecutionRunner
	logger         *slog.Logger
	retryLimit     int
	retryBatchSize int
	maxConcurrent  int
	claimTTL       time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, runner ExecutionRunner, logger *slog.Logger, retryLimit, retryBatchSize, maxConcurrent int, claimTTL time.Duration) *Jobs {
	if retryLimit <= 0 {
		retryLimit = 3
	}
	if retryBatchSize <= 0 {
		retryBatchSize = 100
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if claimTTL <= 0 {
		claimTTL = 15 * time.Minute
	}
	return &Jobs{
		repo:           repo,
		runner:         runner,
		logger:         logger,
		retryLimit:     retryLimit,
		retryBatchSize: retryBatchSize,
		maxConcurrent:  maxConcurrent,
		claimTTL:       claimTTL,
	}
}

// RunDueScan is the cron entry point for the due-scan.
func (j *Jobs) RunDueScan() {
	result, err := j.ProcessDueSchedules(context.Background(), time.Now())
	if err != nil {
		j.logger.Error("due-scan failed", "error", err)
		return
	}
	j.logger.Info("due-scan finished",
		"due", result.Due, "succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
}

// RunRetrySweep is the cron entry point for the retry sweep.
func (j *Jobs) RunRetrySweep() {
	result, err := j.RetryFailedExecutions(context.Background())
	if err != nil {
		j.logger.Error("retry sweep failed", "error", err)
		return
	}
	j.logger.Info("retry sweep finished",
		"evaluated", result.Evaluated, "succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
}

// ProcessDueSchedules finds every schedule due as of the given date and runs
// one execution attempt per schedule. Schedules are processed concurrently up
// to the worker limit; a failure for one schedule is recorded on its
// execution record and never aborts the rest of the batch.
func (j *Jobs) ProcessDueSchedules(ctx context.Context, asOf time.Time) (*domain.DueScanResult, error) {
	asOf = domain.DateOnly(asOf)
	metrics.DueScansTotal.Inc()
	j.RecoverStaleClaims(ctx)

	schedules, err := j.repo.FindDueSchedules(ctx, asOf)
	if err != nil {
		return nil, err
	}
	metrics.DueScanBatchSize.Observe(float64(len(schedules)))

	result := &domain.DueScanResult{AsOf: asOf, Due: len(schedules)}
	if len(schedules) == 0 {
		return result, nil
	}

	j.logger.Info("processing due schedules", "count", len(schedules), "as_of", asOf.Format("2006-01-02"))

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, j.maxConcurrent)
	)

	for _, schedule := range schedules {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(scheduleID uuid.UUID) {
			defer wg.Done()
			defer func() { <-semaphore }()

			_, err := j.runner.Execute(ctx, scheduleID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Succeeded++
			case errors.Is(err, ErrScheduleClaimed), errors.Is(err, ErrScheduleNotActive):
				// Lost the claim to a sibling worker, or the schedule was
				// paused/cancelled after the scan selected it.
				result.Skipped++
			default:
				result.Failed++
			}
		}(schedule.ID)
	}
	wg.Wait()

	return result, nil
}

// RetryFailedExecutions re-drives failed executions still under the retry
// ceiling through the runner. Executions at or above the ceiling are left
// failed permanently and surfaced via the dead-letter listing.
func (j *Jobs) RetryFailedExecutions(ctx context.Context) (*domain.RetrySweepResult, error) {
	j.RecoverStaleClaims(ctx)

	executions, err := j.repo.FindRetryableExecutions(ctx, j.retryLimit, j.retryBatchSize)
	if err != nil {
		return nil, err
	}

	result := &domain.RetrySweepResult{Evaluated: len(executions)}
	if len(executions) == 0 {
		return result, nil
	}

	j.logger.Info("retrying failed executions", "count", len(executions), "retry_limit", j.retryLimit)

	for _, execution := range executions {
		_, err := j.runner.Retry(ctx, execution.ID, j.retryLimit)
		switch {
		case err == nil:
			result.Succeeded++
		case errors.Is(err, ErrScheduleClaimed), errors.Is(err, ErrScheduleNotActive), errors.Is(err, ErrExecutionNotRetryable):
			result.Skipped++
		default:
			result.Failed++
		}
	}

	return result, nil
}

// RecoverStaleClaims releases claims held longer than the claim TTL. A claim
// outlives its TTL only when the holding worker died between claiming and
// writing the outcome; the orphaned pending record is failed so the retry
// sweeper re-drives the occurrence. Runs at the start of every scan and sweep.
func (j *Jobs) RecoverStaleClaims(ctx context.Context) {
	cutoff := time.Now().Add(-j.claimTTL)
	released, err := j.repo.ReleaseStaleClaims(ctx, cutoff, "execution interrupted; claim expired")
	if err != nil {
		j.logger.Error("stale claim recovery failed", "error", err)
		return
	}
	if released > 0 {
		metrics.StaleClaimsReleased.Add(float64(released))
		j.logger.Warn("released stale schedule claims", "count", released, "claim_ttl", j.claimTTL)
	}
}

// DeadLetteredExecutions lists executions that exhausted the retry ceiling,
// for operator attention.
func (j *Jobs) DeadLetteredExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return j.repo.FindDeadLetteredExecutions(ctx, j.retryLimit, limit)
}
