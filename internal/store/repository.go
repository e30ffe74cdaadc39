/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access operations required by the recurring-service. The interface decouples
 * the business logic from the PostgreSQL implementation and lets the app layer
 * be tested against in-memory stubs.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/recurring-service/internal/domain"
)

var (
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrExecutionNotFound = errors.New("execution not found")
)

// Repository defines the set of methods for interacting with the database.
// All cursor mutations go through atomic operations here; callers never
// read-modify-write the cursor themselves.
type Repository interface {
	// Schedule lifecycle
	CreateSchedule(ctx context.Context, schedule *domain.Schedule) error
	FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error)
	FindSchedulesByHousehold(ctx context.Context, householdID uuid.UUID, opts domain.ScheduleListOptions) ([]domain.Schedule, error)
	UpdateSchedule(ctx context.Context, schedule *domain.Schedule) error
	UpdateScheduleStatus(ctx context.Context, scheduleID uuid.UUID, status domain.ScheduleStatus) error
	DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) (bool, error)

	// Due-scan and claim
	FindDueSchedules(ctx context.Context, asOf time.Time) ([]domain.Schedule, error)
	// ClaimSchedule atomically latches a schedule for execution. The update
	// only succeeds when the schedule is active, not already in flight, and
	// its cursor still equals expectedNextDate (optimistic concurrency token).
	// Returns (nil, nil) when the claim is lost to a concurrent worker.
	ClaimSchedule(ctx context.Context, scheduleID uuid.UUID, expectedNextDate time.Time) (*domain.Schedule, error)
	ReleaseScheduleClaim(ctx context.Context, scheduleID uuid.UUID) error
	// ReleaseStaleClaims recovers schedules whose claim was taken before the
	// cutoff and never resolved (worker crash between claim and outcome). In
	// one transaction their orphaned pending execution records are marked
	// failed, so the retry sweeper picks them up, and the latch is dropped.
	// Returns the number of schedules released.
	ReleaseStaleClaims(ctx context.Context, olderThan time.Time, errorMessage string) (int, error)

	// Execution records
	CreateExecution(ctx context.Context, execution *domain.ExecutionRecord) error
	FindExecutionByID(ctx context.Context, executionID uuid.UUID) (*domain.ExecutionRecord, error)
	// CompleteExecutionAndAdvance applies the success path as one transaction:
	// the execution record moves to completed and the schedule cursor advances
	// (next date set, execution count incremented, last execution date set,
	// claim released). A crash can never separate the two writes.
	CompleteExecutionAndAdvance(ctx context.Context, executionID uuid.UUID, ledgerTransactionID string, executedAt time.Time, scheduleID uuid.UUID, nextDate time.Time) error
	// FailExecutionAndRelease marks the execution failed and releases the
	// schedule claim in one transaction. The cursor is left untouched.
	FailExecutionAndRelease(ctx context.Context, executionID uuid.UUID, scheduleID uuid.UUID, errorMessage string) error
	// ClaimExecutionRetry flips a failed execution back to pending and
	// increments its retry count, but only while retry_count < retryLimit.
	// Returns (nil, nil) when the execution is not retryable.
	ClaimExecutionRetry(ctx context.Context, executionID uuid.UUID, retryLimit int) (*domain.ExecutionRecord, error)
	// MarkExecutionSuperseded retires a failed execution whose occurrence was
	// completed by a later attempt. Only failed records are affected.
	MarkExecutionSuperseded(ctx context.Context, executionID uuid.UUID) error
	FindRetryableExecutions(ctx context.Context, retryLimit int, limit int) ([]domain.ExecutionRecord, error)
	FindDeadLetteredExecutions(ctx context.Context, retryLimit int, limit int) ([]domain.ExecutionRecord, error)
	ListExecutionsBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ExecutionRecord, error)
}
