/**
 * @description
 * The execution runner performs exactly one execution attempt for a due
 * schedule: it claims the schedule, creates a pending execution record,
 * invokes the ledger service, and reconciles both records based on the
 * outcome.
 *
 * Correctness notes:
 * - The claim is a conditional update keyed on the current cursor value, so a
 *   second concurrent worker for the same schedule loses the claim instead of
 *   producing a duplicate ledger entry.
 * - The success path (execution completed + cursor advance) is one database
 *   transaction inside the repository. A failed attempt never moves the
 *   cursor; the same occurrence is retried later.
 * - The runner acts as a system principal. It is not request-driven, so it
 *   performs no per-request permission checks.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/recurring-service/internal/domain"
	"github.com/transfa/recurring-service/internal/metrics"
	"github.com/transfa/recurring-service/internal/store"
	"github.com/transfa/recurring-service/pkg/ledgerclient"
)

var (
	ErrScheduleNotActive = errors.New("schedule is not active")
	// ErrScheduleClaimed means another worker holds the schedule's execution
	// claim; the attempt was skipped, not failed.
	ErrScheduleClaimed = errors.New("schedule is claimed by another execution")
	// ErrExecutionFailed wraps a ledger error recorded on the execution
	// record. It is contained by the orchestrator, never fatal to a batch.
	ErrExecutionFailed = errors.New("execution failed")
	// ErrExecutionNotRetryable means the execution is not in a failed state
	// or has exhausted the retry ceiling.
	ErrExecutionNotRetryable = errors.New("execution is not retryable")
)

// LedgerClient defines the interface to the ledger/transaction service.
type LedgerClient interface {
	CreateTransaction(ctx context.Context, params ledgerclient.CreateTransactionParams) (string, error)
}

// EventPublisher defines the interface for publishing outcome events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

// Runner executes single occurrences of recurring schedules.
type Runner struct {
	repo          store.Repository
	ledger        LedgerClient
	publisher     EventPublisher
	logger        *slog.Logger
	ledgerTimeout time.Duration
}

// NewRunner creates a new execution runner. publisher may be nil when the
// event bus is unavailable; outcome events are then skipped.
func NewRunner(repo store.Repository, ledger LedgerClient, publisher EventPublisher, logger *slog.Logger, ledgerTimeout time.Duration) *Runner {
	if ledgerTimeout <= 0 {
		ledgerTimeout = 30 * time.Second
	}
	return &Runner{
		repo:          repo,
		ledger:        ledger,
		publisher:     publisher,
		logger:        logger,
		ledgerTimeout: ledgerTimeout,
	}
}

// Execute runs one execution attempt for the schedule's current due
// occurrence. On success the schedule cursor advances; on failure the cursor
// stays put and the failed execution record carries the error message.
func (r *Runner) Execute(ctx context.Context, scheduleID uuid.UUID) (*domain.ExecutionRecord, error) {
	schedule, err := r.repo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Status != domain.ScheduleStatusActive {
		return nil, fmt.Errorf("%w: schedule %s is %s", ErrScheduleNotActive, scheduleID, schedule.Status)
	}

	claimed, err := r.repo.ClaimSchedule(ctx, scheduleID, schedule.NextExecutionDate)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, fmt.Errorf("%w: schedule %s", ErrScheduleClaimed, scheduleID)
	}

	execution := &domain.ExecutionRecord{
		ID:            uuid.New(),
		ScheduleID:    claimed.ID,
		ScheduledDate: claimed.NextExecutionDate,
		Status:        domain.ExecutionStatusPending,
	}
	if err := r.repo.CreateExecution(ctx, execution); err != nil {
		// Claim without an execution record must not linger.
		if releaseErr := r.repo.ReleaseScheduleClaim(ctx, claimed.ID); releaseErr != nil {
			r.logger.Error("failed to release schedule claim", "schedule_id", claimed.ID, "error", releaseErr)
		}
		return nil, err
	}

	return r.run(ctx, claimed, execution)
}

// Retry re-drives a previously failed execution through the same path,
// reusing the original scheduled date. The execution must still be under the
// retry ceiling.
func (r *Runner) Retry(ctx context.Context, executionID uuid.UUID, retryLimit int) (*domain.ExecutionRecord, error) {
	execution, err := r.repo.FindExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	schedule, err := r.repo.FindScheduleByID(ctx, execution.ScheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Status != domain.ScheduleStatusActive {
		return nil, fmt.Errorf("%w: schedule %s is %s", ErrScheduleNotActive, schedule.ID, schedule.Status)
	}

	// The cursor only moves past an occurrence once some attempt for it
	// completed. A failed record left behind a moved cursor was superseded by
	// that later success; retire it so the sweep stops selecting it.
	if schedule.NextExecutionDate.After(execution.ScheduledDate) {
		if err := r.repo.MarkExecutionSuperseded(ctx, executionID); err != nil {
			return nil, err
		}
		r.logger.Info("execution superseded by a completed attempt",
			"schedule_id", schedule.ID, "execution_id", executionID,
			"scheduled_date", execution.ScheduledDate.Format("2006-01-02"))
		return nil, fmt.Errorf("%w: execution %s was superseded", ErrExecutionNotRetryable, executionID)
	}

	// A failed attempt never advanced the cursor, so the occurrence being
	// retried is still the schedule's current one. The claim rejects the
	// retry if that stopped being true.
	claimed, err := r.repo.ClaimSchedule(ctx, schedule.ID, execution.ScheduledDate)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, fmt.Errorf("%w: schedule %s", ErrScheduleClaimed, schedule.ID)
	}

	rearmed, err := r.repo.ClaimExecutionRetry(ctx, executionID, retryLimit)
	if err != nil {
		if releaseErr := r.repo.ReleaseScheduleClaim(ctx, claimed.ID); releaseErr != nil {
			r.logger.Error("failed to release schedule claim", "schedule_id", claimed.ID, "error", releaseErr)
		}
		return nil, err
	}
	if rearmed == nil {
		if releaseErr := r.repo.ReleaseScheduleClaim(ctx, claimed.ID); releaseErr != nil {
			r.logger.Error("failed to release schedule claim", "schedule_id", claimed.ID, "error", releaseErr)
		}
		return nil, fmt.Errorf("%w: execution %s", ErrExecutionNotRetryable, executionID)
	}

	metrics.RetriesTotal.Inc()
	result, runErr := r.run(ctx, claimed, rearmed)
	if runErr != nil && result != nil && result.RetryCount >= retryLimit {
		// The retry ceiling is exhausted; the record stays failed and is only
		// surfaced for operator attention from here on.
		metrics.DeadLetteredTotal.Inc()
		r.logger.Error("execution dead-lettered",
			"schedule_id", claimed.ID,
			"execution_id", result.ID,
			"retry_count", result.RetryCount,
			"retry_limit", retryLimit)
		r.publishOutcome(ctx, "recurring.execution.dead_lettered", claimed, result, result.ErrorMessage)
	}
	return result, runErr
}

// run invokes the ledger service for a claimed schedule and pending execution
// record, then reconciles both based on the outcome.
func (r *Runner) run(ctx context.Context, schedule *domain.Schedule, execution *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	start := time.Now()
	metrics.InFlightExecutions.Inc()
	defer func() {
		metrics.InFlightExecutions.Dec()
		metrics.ExecutionDuration.Observe(time.Since(start).Seconds())
	}()

	ledgerCtx, cancel := context.WithTimeout(ctx, r.ledgerTimeout)
	defer cancel()

	transactionID, err := r.ledger.CreateTransaction(ledgerCtx, ledgerclient.CreateTransactionParams{
		HouseholdID:          schedule.HouseholdID,
		RequestorID:          schedule.CreatedBy,
		Amount:               schedule.Amount,
		Currency:             schedule.Currency,
		SourceAccountID:      schedule.SourceAccountID,
		DestinationAccountID: schedule.DestinationAccountID,
		CategoryID:           schedule.CategoryID,
		Description:          composeDescription(schedule),
		Date:                 execution.ScheduledDate,
	})
	if err != nil {
		return r.reconcileFailure(ctx, schedule, execution, err)
	}

	executedAt := time.Now().UTC()
	nextDate := domain.NextDate(execution.ScheduledDate, schedule.Frequency, schedule.IntervalValue)
	if err := r.repo.CompleteExecutionAndAdvance(ctx, execution.ID, transactionID, executedAt, schedule.ID, nextDate); err != nil {
		r.logger.Error("failed to persist successful execution",
			"schedule_id", schedule.ID, "execution_id", execution.ID, "transaction_id", transactionID, "error", err)
		return nil, err
	}

	execution.Status = domain.ExecutionStatusCompleted
	execution.LedgerTransactionID = &transactionID
	execution.ExecutedAt = &executedAt

	metrics.ExecutionsTotal.WithLabelValues("completed").Inc()
	r.logger.Info("execution completed",
		"schedule_id", schedule.ID,
		"execution_id", execution.ID,
		"transaction_id", transactionID,
		"scheduled_date", execution.ScheduledDate.Format("2006-01-02"),
		"next_execution_date", nextDate.Format("2006-01-02"))

	r.publishOutcome(ctx, "recurring.execution.completed", schedule, execution, nil)
	return execution, nil
}

func (r *Runner) reconcileFailure(ctx context.Context, schedule *domain.Schedule, execution *domain.ExecutionRecord, cause error) (*domain.ExecutionRecord, error) {
	message := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		message = fmt.Sprintf("ledger call timed out after %s", r.ledgerTimeout)
	}

	if err := r.repo.FailExecutionAndRelease(ctx, execution.ID, schedule.ID, message); err != nil {
		r.logger.Error("failed to persist failed execution",
			"schedule_id", schedule.ID, "execution_id", execution.ID, "error", err)
		return nil, err
	}

	execution.Status = domain.ExecutionStatusFailed
	execution.ErrorMessage = &message

	metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
	r.logger.Error("execution failed",
		"schedule_id", schedule.ID,
		"execution_id", execution.ID,
		"scheduled_date", execution.ScheduledDate.Format("2006-01-02"),
		"retry_count", execution.RetryCount,
		"error", message)

	r.publishOutcome(ctx, "recurring.execution.failed", schedule, execution, &message)
	return execution, fmt.Errorf("%w: %s", ErrExecutionFailed, message)
}

type executionEvent struct {
	ScheduleID    uuid.UUID `json:"schedule_id"`
	HouseholdID   uuid.UUID `json:"household_id"`
	ExecutionID   uuid.UUID `json:"execution_id"`
	ScheduledDate time.Time `json:"scheduled_date"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	RetryCount    int       `json:"retry_count"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func (r *Runner) publishOutcome(ctx context.Context, routingKey string, schedule *domain.Schedule, execution *domain.ExecutionRecord, errorMessage *string) {
	if r.publisher == nil {
		return
	}

	event := executionEvent{
		ScheduleID:    schedule.ID,
		HouseholdID:   schedule.HouseholdID,
		ExecutionID:   execution.ID,
		ScheduledDate: execution.ScheduledDate,
		Amount:        schedule.Amount,
		Currency:      schedule.Currency,
		Status:        string(execution.Status),
		RetryCount:    execution.RetryCount,
		ErrorMessage:  errorMessage,
		Timestamp:     time.Now().UTC(),
	}
	if err := r.publisher.Publish(ctx, routingKey, event); err != nil {
		r.logger.Warn("failed to publish execution event", "routing_key", routingKey, "error", err)
	}
}

func composeDescription(schedule *domain.Schedule) string {
	parts := []string{schedule.Name}
	if schedule.Description != "" {
		parts = append(parts, schedule.Description)
	}
	return strings.Join(parts, " - ")
}
