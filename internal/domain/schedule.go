/**
 * @description
 * This file defines the core domain models for the recurring-service.
 * It includes the recurring transaction schedule (the declarative recurrence
 * rule), the execution record (one attempt to realize an occurrence as a
 * ledger transaction), and the DTOs used by the API layer.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (kobo) to
 *   avoid floating-point inaccuracies with financial data.
 * - Schedule and execution dates are calendar dates; they are normalized to
 *   midnight UTC before persistence.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus is the lifecycle status of a recurring schedule.
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// IsValid reports whether s is one of the known schedule statuses.
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleStatusActive, ScheduleStatusPaused, ScheduleStatusCancelled:
		return true
	}
	return false
}

// ExecutionStatus is the outcome state of a single execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	// ExecutionStatusSuperseded marks a failed execution whose occurrence was
	// later completed by a fresh attempt. Terminal; never retried.
	ExecutionStatusSuperseded ExecutionStatus = "superseded"
)

// Household permissions checked before lifecycle operations.
const (
	PermissionCreateTransactions = "CREATE_TRANSACTIONS"
	PermissionUpdateTransactions = "UPDATE_TRANSACTIONS"
	PermissionViewTransactions   = "VIEW_TRANSACTIONS"
)

// Schedule represents a recurring transaction rule. This struct maps directly
// to the `recurring_schedules` table.
type Schedule struct {
	ID          uuid.UUID `json:"id"`
	HouseholdID uuid.UUID `json:"household_id"`

	Name         string  `json:"name"`
	Description  string  `json:"description"`
	MerchantName *string `json:"merchant_name,omitempty"`

	Amount               int64      `json:"amount"` // in kobo
	Currency             string     `json:"currency"`
	SourceAccountID      uuid.UUID  `json:"source_account_id"`
	DestinationAccountID *uuid.UUID `json:"destination_account_id,omitempty"`
	CategoryID           *uuid.UUID `json:"category_id,omitempty"`

	Frequency     Frequency  `json:"frequency"`
	IntervalValue int        `json:"interval_value"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	MaxExecutions *int       `json:"max_executions,omitempty"`

	// Cursor fields, mutated only by the execution runner after a confirmed
	// success. InFlight is the per-schedule claim latch: while true, no other
	// worker may start an execution for this schedule. ClaimedAt records when
	// the latch was taken so crashed claims can be reaped after a TTL.
	NextExecutionDate time.Time  `json:"next_execution_date"`
	LastExecutionDate *time.Time `json:"last_execution_date,omitempty"`
	ExecutionCount    int        `json:"execution_count"`
	InFlight          bool       `json:"-"`
	ClaimedAt         *time.Time `json:"-"`

	Status    ScheduleStatus    `json:"status"`
	CreatedBy uuid.UUID         `json:"created_by"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ExecutionRecord represents one attempt against one due occurrence of a
// schedule. Maps to the `recurring_executions` table. A retry reuses the
// failed record, incrementing RetryCount in place, so at most one record
// exists per (schedule, scheduled date).
type ExecutionRecord struct {
	ID            uuid.UUID       `json:"id"`
	ScheduleID    uuid.UUID       `json:"schedule_id"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	Status        ExecutionStatus `json:"status"`

	LedgerTransactionID *string    `json:"ledger_transaction_id,omitempty"`
	ExecutedAt          *time.Time `json:"executed_at,omitempty"`

	ErrorMessage *string `json:"error_message,omitempty"`
	RetryCount   int     `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateScheduleRequest is the DTO for creating a new recurring schedule.
type CreateScheduleRequest struct {
	HouseholdID          uuid.UUID         `json:"household_id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	MerchantName         *string           `json:"merchant_name,omitempty"`
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	SourceAccountID      uuid.UUID         `json:"source_account_id"`
	DestinationAccountID *uuid.UUID        `json:"destination_account_id,omitempty"`
	CategoryID           *uuid.UUID        `json:"category_id,omitempty"`
	Frequency            Frequency         `json:"frequency"`
	IntervalValue        int               `json:"interval_value"`
	StartDate            time.Time         `json:"start_date"`
	EndDate              *time.Time        `json:"end_date,omitempty"`
	MaxExecutions        *int              `json:"max_executions,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// UpdateSchedulePatch is the DTO for partial schedule updates. Nil fields are
// left untouched. Changing Frequency, IntervalValue or StartDate causes the
// next execution date to be recomputed.
type UpdateSchedulePatch struct {
	Name                 *string            `json:"name,omitempty"`
	Description          *string            `json:"description,omitempty"`
	MerchantName         *string            `json:"merchant_name,omitempty"`
	Amount               *int64             `json:"amount,omitempty"`
	Currency             *string            `json:"currency,omitempty"`
	SourceAccountID      *uuid.UUID         `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID         `json:"destination_account_id,omitempty"`
	CategoryID           *uuid.UUID         `json:"category_id,omitempty"`
	Frequency            *Frequency         `json:"frequency,omitempty"`
	IntervalValue        *int               `json:"interval_value,omitempty"`
	StartDate            *time.Time         `json:"start_date,omitempty"`
	EndDate              *time.Time         `json:"end_date,omitempty"`
	MaxExecutions        *int               `json:"max_executions,omitempty"`
	Metadata             *map[string]string `json:"metadata,omitempty"`
}

// ScheduleListOptions carries the filters and pagination for household
// schedule listings.
type ScheduleListOptions struct {
	Status          *ScheduleStatus
	SourceAccountID *uuid.UUID
	CategoryID      *uuid.UUID
	Frequency       *Frequency
	Page            int
	Limit           int
}

// DueScanResult summarizes one due-scan run.
type DueScanResult struct {
	AsOf      time.Time `json:"as_of"`
	Due       int       `json:"due"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
}

// RetrySweepResult summarizes one retry-sweep run.
type RetrySweepResult struct {
	Evaluated int `json:"evaluated"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
