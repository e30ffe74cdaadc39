/**
 * @description
 * This file implements the data access layer for the recurring-service on
 * PostgreSQL. It contains all the SQL for the `recurring_schedules` and
 * `recurring_executions` tables, including the atomic claim and advance
 * operations the execution runner depends on.
 *
 * @notes
 * - The due-scan predicate and the claim update are evaluated against the
 *   persisted row, never cached state, so concurrent scanners always observe
 *   the latest cursor.
 * - The success path (execution completed + cursor advance) and the failure
 *   path (execution failed + claim release) each run inside a single database
 *   transaction.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/recurring-service/internal/domain"
)

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const scheduleColumns = `
	id, household_id, name, description, merchant_name,
	amount, currency, source_account_id, destination_account_id, category_id,
	frequency, interval_value, start_date, end_date, max_executions,
	next_execution_date, last_execution_date, execution_count, in_flight, claimed_at,
	status, created_by, metadata, created_at, updated_at`

const executionColumns = `
	id, schedule_id, scheduled_date, status, ledger_transaction_id,
	executed_at, error_message, retry_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var s domain.Schedule
	err := row.Scan(
		&s.ID, &s.HouseholdID, &s.Name, &s.Description, &s.MerchantName,
		&s.Amount, &s.Currency, &s.SourceAccountID, &s.DestinationAccountID, &s.CategoryID,
		&s.Frequency, &s.IntervalValue, &s.StartDate, &s.EndDate, &s.MaxExecutions,
		&s.NextExecutionDate, &s.LastExecutionDate, &s.ExecutionCount, &s.InFlight, &s.ClaimedAt,
		&s.Status, &s.CreatedBy, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var e domain.ExecutionRecord
	err := row.Scan(
		&e.ID, &e.ScheduleID, &e.ScheduledDate, &e.Status, &e.LedgerTransactionID,
		&e.ExecutedAt, &e.ErrorMessage, &e.RetryCount, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateSchedule inserts a new recurring schedule row.
func (r *PostgresRepository) CreateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	query := `
        INSERT INTO recurring_schedules (
            id, household_id, name, description, merchant_name,
            amount, currency, source_account_id, destination_account_id, category_id,
            frequency, interval_value, start_date, end_date, max_executions,
            next_execution_date, execution_count, status, created_by, metadata
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
                $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
        RETURNING created_at, updated_at
    `
	return r.db.QueryRow(ctx, query,
		schedule.ID, schedule.HouseholdID, schedule.Name, schedule.Description, schedule.MerchantName,
		schedule.Amount, schedule.Currency, schedule.SourceAccountID, schedule.DestinationAccountID, schedule.CategoryID,
		schedule.Frequency, schedule.IntervalValue, schedule.StartDate, schedule.EndDate, schedule.MaxExecutions,
		schedule.NextExecutionDate, schedule.ExecutionCount, schedule.Status, schedule.CreatedBy, schedule.Metadata,
	).Scan(&schedule.CreatedAt, &schedule.UpdatedAt)
}

// FindScheduleByID retrieves a single schedule by its ID.
func (r *PostgresRepository) FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM recurring_schedules WHERE id = $1`
	schedule, err := scanSchedule(r.db.QueryRow(ctx, query, scheduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return schedule, nil
}

// FindSchedulesByHousehold retrieves schedules for a household with optional
// filters and page/limit pagination.
func (r *PostgresRepository) FindSchedulesByHousehold(ctx context.Context, householdID uuid.UUID, opts domain.ScheduleListOptions) ([]domain.Schedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM recurring_schedules WHERE household_id = $1`
	args := []any{householdID}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if opts.SourceAccountID != nil {
		args = append(args, *opts.SourceAccountID)
		query += fmt.Sprintf(" AND source_account_id = $%d", len(args))
	}
	if opts.CategoryID != nil {
		args = append(args, *opts.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if opts.Frequency != nil {
		args = append(args, *opts.Frequency)
		query += fmt.Sprintf(" AND frequency = $%d", len(args))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, (page-1)*limit)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

// UpdateSchedule persists the mutable template and recurrence fields of a
// schedule, including a recomputed cursor. Status and execution bookkeeping
// are not touched here.
func (r *PostgresRepository) UpdateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	query := `
        UPDATE recurring_schedules
        SET name = $1,
            description = $2,
            merchant_name = $3,
            amount = $4,
            currency = $5,
            source_account_id = $6,
            destination_account_id = $7,
            category_id = $8,
            frequency = $9,
            interval_value = $10,
            start_date = $11,
            end_date = $12,
            max_executions = $13,
            next_execution_date = $14,
            metadata = $15,
            updated_at = NOW()
        WHERE id = $16
    `
	tag, err := r.db.Exec(ctx, query,
		schedule.Name, schedule.Description, schedule.MerchantName,
		schedule.Amount, schedule.Currency, schedule.SourceAccountID,
		schedule.DestinationAccountID, schedule.CategoryID,
		schedule.Frequency, schedule.IntervalValue, schedule.StartDate,
		schedule.EndDate, schedule.MaxExecutions, schedule.NextExecutionDate,
		schedule.Metadata, schedule.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// UpdateScheduleStatus sets the lifecycle status of a schedule.
func (r *PostgresRepository) UpdateScheduleStatus(ctx context.Context, scheduleID uuid.UUID, status domain.ScheduleStatus) error {
	query := `UPDATE recurring_schedules SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, status, scheduleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule. Execution history rows are removed with
// it via the schedule_id foreign key cascade.
func (r *PostgresRepository) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM recurring_schedules WHERE id = $1`, scheduleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindDueSchedules returns every schedule eligible for execution as of the
// given date: active, cursor due, inside the end-date window, and under the
// max execution ceiling. In-flight schedules are skipped; the claim is the
// authoritative gate.
func (r *PostgresRepository) FindDueSchedules(ctx context.Context, asOf time.Time) ([]domain.Schedule, error) {
	query := `SELECT` + scheduleColumns + `
        FROM recurring_schedules
        WHERE status = 'active'
          AND in_flight = FALSE
          AND next_execution_date <= $1
          AND (end_date IS NULL OR end_date >= $1)
          AND (max_executions IS NULL OR execution_count < max_executions)
        ORDER BY next_execution_date ASC
    `
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

// ClaimSchedule latches a schedule for execution with a conditional update.
// The cursor value acts as an optimistic concurrency token: if another worker
// advanced or claimed the schedule since it was read, no row matches and the
// claim is lost.
func (r *PostgresRepository) ClaimSchedule(ctx context.Context, scheduleID uuid.UUID, expectedNextDate time.Time) (*domain.Schedule, error) {
	query := `
        UPDATE recurring_schedules
        SET in_flight = TRUE, claimed_at = NOW(), updated_at = NOW()
        WHERE id = $1
          AND status = 'active'
          AND in_flight = FALSE
          AND next_execution_date = $2
        RETURNING` + scheduleColumns
	schedule, err := scanSchedule(r.db.QueryRow(ctx, query, scheduleID, expectedNextDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return schedule, nil
}

// ReleaseScheduleClaim drops the in-flight latch without touching the cursor.
func (r *PostgresRepository) ReleaseScheduleClaim(ctx context.Context, scheduleID uuid.UUID) error {
	query := `UPDATE recurring_schedules SET in_flight = FALSE, claimed_at = NULL, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, scheduleID)
	return err
}

// ReleaseStaleClaims recovers claims abandoned by a crashed worker. Orphaned
// pending execution records under a stale claim are failed first, then the
// latch is dropped, all in one transaction, so the retry sweeper sees a
// consistent picture.
func (r *PostgresRepository) ReleaseStaleClaims(ctx context.Context, olderThan time.Time, errorMessage string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        UPDATE recurring_executions
        SET status = 'failed', error_message = $1, updated_at = NOW()
        WHERE status = 'pending'
          AND schedule_id IN (
              SELECT id FROM recurring_schedules
              WHERE in_flight = TRUE AND claimed_at < $2
          )
    `, errorMessage, olderThan)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
        UPDATE recurring_schedules
        SET in_flight = FALSE, claimed_at = NULL, updated_at = NOW()
        WHERE in_flight = TRUE AND claimed_at < $1
    `, olderThan)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CreateExecution inserts a pending execution record for one occurrence.
func (r *PostgresRepository) CreateExecution(ctx context.Context, execution *domain.ExecutionRecord) error {
	query := `
        INSERT INTO recurring_executions (id, schedule_id, scheduled_date, status, retry_count)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at
    `
	return r.db.QueryRow(ctx, query,
		execution.ID, execution.ScheduleID, execution.ScheduledDate, execution.Status, execution.RetryCount,
	).Scan(&execution.CreatedAt, &execution.UpdatedAt)
}

// FindExecutionByID retrieves a single execution record.
func (r *PostgresRepository) FindExecutionByID(ctx context.Context, executionID uuid.UUID) (*domain.ExecutionRecord, error) {
	query := `SELECT` + executionColumns + ` FROM recurring_executions WHERE id = $1`
	execution, err := scanExecution(r.db.QueryRow(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return execution, nil
}

// CompleteExecutionAndAdvance records a successful execution and advances the
// schedule cursor in one database transaction.
func (r *PostgresRepository) CompleteExecutionAndAdvance(ctx context.Context, executionID uuid.UUID, ledgerTransactionID string, executedAt time.Time, scheduleID uuid.UUID, nextDate time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE recurring_executions
        SET status = 'completed',
            ledger_transaction_id = $1,
            executed_at = $2,
            error_message = NULL,
            updated_at = NOW()
        WHERE id = $3 AND status = 'pending'
    `, ledgerTransactionID, executedAt, executionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExecutionNotFound
	}

	tag, err = tx.Exec(ctx, `
        UPDATE recurring_schedules
        SET next_execution_date = $1,
            last_execution_date = $2,
            execution_count = execution_count + 1,
            in_flight = FALSE,
            claimed_at = NULL,
            updated_at = NOW()
        WHERE id = $3
    `, nextDate, executedAt, scheduleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}

	return tx.Commit(ctx)
}

// FailExecutionAndRelease records a failed execution and releases the claim
// in one database transaction. Cursor and execution count stay untouched.
func (r *PostgresRepository) FailExecutionAndRelease(ctx context.Context, executionID uuid.UUID, scheduleID uuid.UUID, errorMessage string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE recurring_executions
        SET status = 'failed',
            error_message = $1,
            updated_at = NOW()
        WHERE id = $2 AND status = 'pending'
    `, errorMessage, executionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExecutionNotFound
	}

	_, err = tx.Exec(ctx, `
        UPDATE recurring_schedules SET in_flight = FALSE, claimed_at = NULL, updated_at = NOW() WHERE id = $1
    `, scheduleID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ClaimExecutionRetry re-arms a failed execution for another attempt. The
// conditional update rejects executions that are not failed or that have
// exhausted the retry ceiling, so two concurrent sweepers cannot both claim
// the same record.
func (r *PostgresRepository) ClaimExecutionRetry(ctx context.Context, executionID uuid.UUID, retryLimit int) (*domain.ExecutionRecord, error) {
	query := `
        UPDATE recurring_executions
        SET status = 'pending',
            retry_count = retry_count + 1,
            updated_at = NOW()
        WHERE id = $1
          AND status = 'failed'
          AND retry_count < $2
        RETURNING` + executionColumns
	execution, err := scanExecution(r.db.QueryRow(ctx, query, executionID, retryLimit))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return execution, nil
}

// MarkExecutionSuperseded retires a failed execution whose occurrence was
// already completed by a later attempt, so the retry sweep stops selecting it.
func (r *PostgresRepository) MarkExecutionSuperseded(ctx context.Context, executionID uuid.UUID) error {
	query := `
        UPDATE recurring_executions
        SET status = 'superseded', updated_at = NOW()
        WHERE id = $1 AND status = 'failed'
    `
	tag, err := r.db.Exec(ctx, query, executionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

// FindRetryableExecutions lists failed executions still under the retry
// ceiling, oldest first.
func (r *PostgresRepository) FindRetryableExecutions(ctx context.Context, retryLimit int, limit int) ([]domain.ExecutionRecord, error) {
	query := `SELECT` + executionColumns + `
        FROM recurring_executions
        WHERE status = 'failed' AND retry_count < $1
        ORDER BY updated_at ASC
        LIMIT $2
    `
	return r.queryExecutions(ctx, query, retryLimit, limit)
}

// FindDeadLetteredExecutions lists failed executions at or above the retry
// ceiling. These are permanently failed and surfaced for operator attention.
func (r *PostgresRepository) FindDeadLetteredExecutions(ctx context.Context, retryLimit int, limit int) ([]domain.ExecutionRecord, error) {
	query := `SELECT` + executionColumns + `
        FROM recurring_executions
        WHERE status = 'failed' AND retry_count >= $1
        ORDER BY updated_at DESC
        LIMIT $2
    `
	return r.queryExecutions(ctx, query, retryLimit, limit)
}

// ListExecutionsBySchedule returns the most recent execution records for a
// schedule, newest first.
func (r *PostgresRepository) ListExecutionsBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	query := `SELECT` + executionColumns + `
        FROM recurring_executions
        WHERE schedule_id = $1
        ORDER BY scheduled_date DESC, created_at DESC
        LIMIT $2
    `
	return r.queryExecutions(ctx, query, scheduleID, limit)
}

func (r *PostgresRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]domain.ExecutionRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []domain.ExecutionRecord
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *execution)
	}
	return executions, rows.Err()
}
