/**
 * @description
 * Core business logic for the schedule lifecycle: create, update, pause,
 * resume, cancel, delete and the read paths. Every operation is authorized
 * against the household service before it touches the store.
 *
 * Status transitions: active <-> paused, and either may move to cancelled.
 * Cancelled is terminal.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/recurring-service/internal/domain"
	"github.com/transfa/recurring-service/internal/store"
)

var (
	ErrInvalidScheduleConfiguration = errors.New("invalid schedule configuration")
	ErrInvalidStatusTransition      = errors.New("invalid status transition")
)

// MaxListLimit caps page sizes on all listing endpoints.
const MaxListLimit = 100

// PermissionClient defines the interface for household permission checks.
type PermissionClient interface {
	CheckPermission(ctx context.Context, userID, householdID uuid.UUID, permission string) error
}

// Service provides the business logic for schedule lifecycle management.
type Service struct {
	repo   store.Repository
	perms  PermissionClient
	logger *slog.Logger
}

// NewService creates a new schedule lifecycle service.
func NewService(repo store.Repository, perms PermissionClient, logger *slog.Logger) *Service {
	return &Service{repo: repo, perms: perms, logger: logger}
}

// Create validates and persists a new recurring schedule. The schedule starts
// active with its cursor on the start date and an execution count of zero.
func (s *Service) Create(ctx context.Context, requestorID uuid.UUID, req domain.CreateScheduleRequest) (*domain.Schedule, error) {
	if err := s.perms.CheckPermission(ctx, requestorID, req.HouseholdID, domain.PermissionCreateTransactions); err != nil {
		return nil, err
	}

	if err := validateScheduleConfig(req.Name, req.Amount, req.Currency, req.Frequency, req.IntervalValue, req.StartDate, req.EndDate, req.MaxExecutions); err != nil {
		return nil, err
	}

	startDate := domain.DateOnly(req.StartDate)
	schedule := &domain.Schedule{
		ID:                   uuid.New(),
		HouseholdID:          req.HouseholdID,
		Name:                 req.Name,
		Description:          req.Description,
		MerchantName:         req.MerchantName,
		Amount:               req.Amount,
		Currency:             req.Currency,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		CategoryID:           req.CategoryID,
		Frequency:            req.Frequency,
		IntervalValue:        req.IntervalValue,
		StartDate:            startDate,
		EndDate:              dateOnlyPtr(req.EndDate),
		MaxExecutions:        req.MaxExecutions,
		NextExecutionDate:    startDate,
		ExecutionCount:       0,
		Status:               domain.ScheduleStatusActive,
		CreatedBy:            requestorID,
		Metadata:             req.Metadata,
	}

	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("schedule created",
		"schedule_id", schedule.ID,
		"household_id", schedule.HouseholdID,
		"frequency", schedule.Frequency,
		"next_execution_date", schedule.NextExecutionDate)

	return schedule, nil
}

// Update applies a partial patch to a schedule. When the patch touches the
// recurrence parameters (frequency, interval, start date) the cursor is
// recomputed from max(now, start date): a future start date becomes the next
// occurrence itself, otherwise the first occurrence after now is used.
func (s *Service) Update(ctx context.Context, scheduleID, requestorID uuid.UUID, patch domain.UpdateSchedulePatch) (*domain.Schedule, error) {
	schedule, err := s.repo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CheckPermission(ctx, requestorID, schedule.HouseholdID, domain.PermissionUpdateTransactions); err != nil {
		return nil, err
	}
	if schedule.Status == domain.ScheduleStatusCancelled {
		return nil, fmt.Errorf("%w: cancelled schedules cannot be updated", ErrInvalidStatusTransition)
	}

	recurrenceChanged := applyPatch(schedule, patch)

	if err := validateScheduleConfig(schedule.Name, schedule.Amount, schedule.Currency, schedule.Frequency, schedule.IntervalValue, schedule.StartDate, schedule.EndDate, schedule.MaxExecutions); err != nil {
		return nil, err
	}

	if recurrenceChanged {
		now := domain.DateOnly(time.Now())
		if schedule.StartDate.After(now) {
			schedule.NextExecutionDate = schedule.StartDate
		} else {
			schedule.NextExecutionDate = domain.NextAfter(schedule.StartDate, now, schedule.Frequency, schedule.IntervalValue)
		}
	}

	if err := s.repo.UpdateSchedule(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("schedule updated",
		"schedule_id", schedule.ID,
		"recurrence_changed", recurrenceChanged,
		"next_execution_date", schedule.NextExecutionDate)

	return schedule, nil
}

// Pause moves an active schedule to paused. The cursor is untouched, so
// resuming continues from where the schedule left off.
func (s *Service) Pause(ctx context.Context, scheduleID, requestorID uuid.UUID) (*domain.Schedule, error) {
	return s.transition(ctx, scheduleID, requestorID, domain.ScheduleStatusActive, domain.ScheduleStatusPaused)
}

// Resume moves a paused schedule back to active.
func (s *Service) Resume(ctx context.Context, scheduleID, requestorID uuid.UUID) (*domain.Schedule, error) {
	return s.transition(ctx, scheduleID, requestorID, domain.ScheduleStatusPaused, domain.ScheduleStatusActive)
}

// Cancel retires a schedule permanently. Cancelled schedules are never
// selected by the due-scan and accept no further transitions.
func (s *Service) Cancel(ctx context.Context, scheduleID, requestorID uuid.UUID) (*domain.Schedule, error) {
	schedule, err := s.repo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CheckPermission(ctx, requestorID, schedule.HouseholdID, domain.PermissionUpdateTransactions); err != nil {
		return nil, err
	}
	if schedule.Status == domain.ScheduleStatusCancelled {
		return nil, fmt.Errorf("%w: schedule is already cancelled", ErrInvalidStatusTransition)
	}

	if err := s.repo.UpdateScheduleStatus(ctx, scheduleID, domain.ScheduleStatusCancelled); err != nil {
		return nil, err
	}
	schedule.Status = domain.ScheduleStatusCancelled

	s.logger.Info("schedule cancelled", "schedule_id", scheduleID)
	return schedule, nil
}

// Delete removes a schedule and its execution history.
func (s *Service) Delete(ctx context.Context, scheduleID, requestorID uuid.UUID) error {
	schedule, err := s.repo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return err
	}
	if err := s.perms.CheckPermission(ctx, requestorID, schedule.HouseholdID, domain.PermissionUpdateTransactions); err != nil {
		return err
	}

	deleted, err := s.repo.DeleteSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrScheduleNotFound
	}

	s.logger.Info("schedule deleted", "schedule_id", scheduleID)
	return nil
}

// GetByID retrieves a single schedule, authorizing the requestor for view
// access on its household.
func (s *Service) GetByID(ctx context.Context, scheduleID, requestorID uuid.UUID) (*domain.Schedule, error) {
	schedule, err := s.repo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CheckPermission(ctx, requestorID, schedule.HouseholdID, domain.PermissionViewTransactions); err != nil {
		return nil, err
	}
	return schedule, nil
}

// ListByHousehold retrieves schedules for a household with filters and
// pagination. The page size is capped at MaxListLimit.
func (s *Service) ListByHousehold(ctx context.Context, householdID, requestorID uuid.UUID, opts domain.ScheduleListOptions) ([]domain.Schedule, error) {
	if err := s.perms.CheckPermission(ctx, requestorID, householdID, domain.PermissionViewTransactions); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	return s.repo.FindSchedulesByHousehold(ctx, householdID, opts)
}

// ListExecutions returns the most recent execution records for a schedule.
func (s *Service) ListExecutions(ctx context.Context, scheduleID, requestorID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	schedule, err := s.repo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CheckPermission(ctx, requestorID, schedule.HouseholdID, domain.PermissionViewTransactions); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.ListExecutionsBySchedule(ctx, scheduleID, limit)
}

func (s *Service) transition(ctx context.Context, scheduleID, requestorID uuid.UUID, from, to domain.ScheduleStatus) (*domain.Schedule, error) {
	schedule, err := s.repo.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.CheckPermission(ctx, requestorID, schedule.HouseholdID, domain.PermissionUpdateTransactions); err != nil {
		return nil, err
	}
	if schedule.Status != from {
		return nil, fmt.Errorf("%w: cannot move schedule from %s to %s", ErrInvalidStatusTransition, schedule.Status, to)
	}

	if err := s.repo.UpdateScheduleStatus(ctx, scheduleID, to); err != nil {
		return nil, err
	}
	schedule.Status = to

	s.logger.Info("schedule status changed", "schedule_id", scheduleID, "from", from, "to", to)
	return schedule, nil
}

func validateScheduleConfig(name string, amount int64, currency string, frequency domain.Frequency, interval int, startDate time.Time, endDate *time.Time, maxExecutions *int) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScheduleConfiguration)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidScheduleConfiguration)
	}
	if currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidScheduleConfiguration)
	}
	if !frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidScheduleConfiguration, frequency)
	}
	if interval <= 0 {
		return fmt.Errorf("%w: interval value must be a positive integer", ErrInvalidScheduleConfiguration)
	}
	if startDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidScheduleConfiguration)
	}
	if endDate != nil && domain.DateOnly(*endDate).Before(domain.DateOnly(startDate)) {
		return fmt.Errorf("%w: end date must not be before start date", ErrInvalidScheduleConfiguration)
	}
	if maxExecutions != nil && *maxExecutions <= 0 {
		return fmt.Errorf("%w: max executions must be positive when set", ErrInvalidScheduleConfiguration)
	}
	return nil
}

// applyPatch copies the non-nil patch fields onto the schedule and reports
// whether any recurrence parameter changed.
func applyPatch(schedule *domain.Schedule, patch domain.UpdateSchedulePatch) bool {
	if patch.Name != nil {
		schedule.Name = *patch.Name
	}
	if patch.Description != nil {
		schedule.Description = *patch.Description
	}
	if patch.MerchantName != nil {
		schedule.MerchantName = patch.MerchantName
	}
	if patch.Amount != nil {
		schedule.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		schedule.Currency = *patch.Currency
	}
	if patch.SourceAccountID != nil {
		schedule.SourceAccountID = *patch.SourceAccountID
	}
	if patch.DestinationAccountID != nil {
		schedule.DestinationAccountID = patch.DestinationAccountID
	}
	if patch.CategoryID != nil {
		schedule.CategoryID = patch.CategoryID
	}
	if patch.EndDate != nil {
		schedule.EndDate = dateOnlyPtr(patch.EndDate)
	}
	if patch.MaxExecutions != nil {
		schedule.MaxExecutions = patch.MaxExecutions
	}
	if patch.Metadata != nil {
		schedule.Metadata = *patch.Metadata
	}

	recurrenceChanged := false
	if patch.Frequency != nil && *patch.Frequency != schedule.Frequency {
		schedule.Frequency = *patch.Frequency
		recurrenceChanged = true
	}
	if patch.IntervalValue != nil && *patch.IntervalValue != schedule.IntervalValue {
		schedule.IntervalValue = *patch.IntervalValue
		recurrenceChanged = true
	}
	if patch.StartDate != nil {
		newStart := domain.DateOnly(*patch.StartDate)
		if !newStart.Equal(schedule.StartDate) {
			schedule.StartDate = newStart
			recurrenceChanged = true
		}
	}
	return recurrenceChanged
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.DateOnly(*t)
	return &d
}
