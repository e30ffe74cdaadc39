package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/recurring-service/internal/domain"
	"github.com/transfa/recurring-service/internal/store"
	"github.com/transfa/recurring-service/pkg/ledgerclient"
)

// fakeRepo is an in-memory store.Repository honoring the same claim and
// atomicity semantics as the PostgreSQL implementation.
type fakeRepo struct {
	mu         sync.Mutex
	schedules  map[uuid.UUID]*domain.Schedule
	executions map[uuid.UUID]*domain.ExecutionRecord

	lastListOpts domain.ScheduleListOptions
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		schedules:  make(map[uuid.UUID]*domain.Schedule),
		executions: make(map[uuid.UUID]*domain.ExecutionRecord),
	}
}

func (f *fakeRepo) addSchedule(s *domain.Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.schedules[s.ID] = &cp
}

func (f *fakeRepo) addExecution(e *domain.ExecutionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.executions[e.ID] = &cp
}

func (f *fakeRepo) schedule(id uuid.UUID) domain.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.schedules[id]
}

func (f *fakeRepo) execution(id uuid.UUID) domain.ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.executions[id]
}

func (f *fakeRepo) executionsForSchedule(id uuid.UUID) []domain.ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, e := range f.executions {
		if e.ScheduleID == id {
			out = append(out, *e)
		}
	}
	return out
}

func (f *fakeRepo) CreateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	cp := *schedule
	f.schedules[schedule.ID] = &cp
	return nil
}

func (f *fakeRepo) FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[scheduleID]
	if !ok {
		return nil, store.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) FindSchedulesByHousehold(ctx context.Context, householdID uuid.UUID, opts domain.ScheduleListOptions) ([]domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastListOpts = opts
	var out []domain.Schedule
	for _, s := range f.schedules {
		if s.HouseholdID == householdID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateSchedule(ctx context.Context, schedule *domain.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[schedule.ID]; !ok {
		return store.ErrScheduleNotFound
	}
	cp := *schedule
	cp.UpdatedAt = time.Now()
	f.schedules[schedule.ID] = &cp
	return nil
}

func (f *fakeRepo) UpdateScheduleStatus(ctx context.Context, scheduleID uuid.UUID, status domain.ScheduleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[scheduleID]
	if !ok {
		return store.ErrScheduleNotFound
	}
	s.Status = status
	return nil
}

func (f *fakeRepo) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[scheduleID]; !ok {
		return false, nil
	}
	delete(f.schedules, scheduleID)
	return true, nil
}

func (f *fakeRepo) FindDueSchedules(ctx context.Context, asOf time.Time) ([]domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Schedule
	for _, s := range f.schedules {
		if s.Status != domain.ScheduleStatusActive || s.InFlight {
			continue
		}
		if s.NextExecutionDate.After(asOf) {
			continue
		}
		if s.EndDate != nil && s.EndDate.Before(asOf) {
			continue
		}
		if s.MaxExecutions != nil && s.ExecutionCount >= *s.MaxExecutions {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeRepo) ClaimSchedule(ctx context.Context, scheduleID uuid.UUID, expectedNextDate time.Time) (*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[scheduleID]
	if !ok {
		return nil, nil
	}
	if s.Status != domain.ScheduleStatusActive || s.InFlight || !s.NextExecutionDate.Equal(expectedNextDate) {
		return nil, nil
	}
	now := time.Now()
	s.InFlight = true
	s.ClaimedAt = &now
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) ReleaseScheduleClaim(ctx context.Context, scheduleID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.schedules[scheduleID]; ok {
		s.InFlight = false
		s.ClaimedAt = nil
	}
	return nil
}

func (f *fakeRepo) ReleaseStaleClaims(ctx context.Context, olderThan time.Time, errorMessage string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	released := 0
	for _, s := range f.schedules {
		if !s.InFlight || s.ClaimedAt == nil || !s.ClaimedAt.Before(olderThan) {
			continue
		}
		for _, e := range f.executions {
			if e.ScheduleID == s.ID && e.Status == domain.ExecutionStatusPending {
				msg := errorMessage
				e.Status = domain.ExecutionStatusFailed
				e.ErrorMessage = &msg
			}
		}
		s.InFlight = false
		s.ClaimedAt = nil
		released++
	}
	return released, nil
}

func (f *fakeRepo) CreateExecution(ctx context.Context, execution *domain.ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	execution.CreatedAt = now
	execution.UpdatedAt = now
	cp := *execution
	f.executions[execution.ID] = &cp
	return nil
}

func (f *fakeRepo) FindExecutionByID(ctx context.Context, executionID uuid.UUID) (*domain.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[executionID]
	if !ok {
		return nil, store.ErrExecutionNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRepo) CompleteExecutionAndAdvance(ctx context.Context, executionID uuid.UUID, ledgerTransactionID string, executedAt time.Time, scheduleID uuid.UUID, nextDate time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[executionID]
	if !ok || e.Status != domain.ExecutionStatusPending {
		return store.ErrExecutionNotFound
	}
	s, ok := f.schedules[scheduleID]
	if !ok {
		return store.ErrScheduleNotFound
	}
	e.Status = domain.ExecutionStatusCompleted
	e.LedgerTransactionID = &ledgerTransactionID
	e.ExecutedAt = &executedAt
	e.ErrorMessage = nil
	s.NextExecutionDate = nextDate
	s.LastExecutionDate = &executedAt
	s.ExecutionCount++
	s.InFlight = false
	s.ClaimedAt = nil
	return nil
}

func (f *fakeRepo) FailExecutionAndRelease(ctx context.Context, executionID uuid.UUID, scheduleID uuid.UUID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[executionID]
	if !ok || e.Status != domain.ExecutionStatusPending {
		return store.ErrExecutionNotFound
	}
	e.Status = domain.ExecutionStatusFailed
	e.ErrorMessage = &errorMessage
	if s, ok := f.schedules[scheduleID]; ok {
		s.InFlight = false
		s.ClaimedAt = nil
	}
	return nil
}

func (f *fakeRepo) MarkExecutionSuperseded(ctx context.Context, executionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[executionID]
	if !ok || e.Status != domain.ExecutionStatusFailed {
		return store.ErrExecutionNotFound
	}
	e.Status = domain.ExecutionStatusSuperseded
	return nil
}

func (f *fakeRepo) ClaimExecutionRetry(ctx context.Context, executionID uuid.UUID, retryLimit int) (*domain.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[executionID]
	if !ok {
		return nil, nil
	}
	if e.Status != domain.ExecutionStatusFailed || e.RetryCount >= retryLimit {
		return nil, nil
	}
	e.Status = domain.ExecutionStatusPending
	e.RetryCount++
	cp := *e
	return &cp, nil
}

func (f *fakeRepo) FindRetryableExecutions(ctx context.Context, retryLimit int, limit int) ([]domain.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, e := range f.executions {
		if e.Status == domain.ExecutionStatusFailed && e.RetryCount < retryLimit {
			out = append(out, *e)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) FindDeadLetteredExecutions(ctx context.Context, retryLimit int, limit int) ([]domain.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, e := range f.executions {
		if e.Status == domain.ExecutionStatusFailed && e.RetryCount >= retryLimit {
			out = append(out, *e)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) ListExecutionsBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, e := range f.executions {
		if e.ScheduleID == scheduleID {
			out = append(out, *e)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeLedger counts calls and answers via the respond hook; the default
// response is a fresh transaction ID.
type fakeLedger struct {
	mu      sync.Mutex
	calls   int
	respond func(params ledgerclient.CreateTransactionParams) (string, error)
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, params ledgerclient.CreateTransactionParams) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(params)
	}
	return fmt.Sprintf("txn-%d", n), nil
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePerms allows everything unless denyErr is set.
type fakePerms struct {
	denyErr error
	calls   []string
}

func (f *fakePerms) CheckPermission(ctx context.Context, userID, householdID uuid.UUID, permission string) error {
	f.calls = append(f.calls, permission)
	return f.denyErr
}

// fakePublisher records published routing keys.
type fakePublisher struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, routingKey)
	return nil
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func activeSchedule(frequency domain.Frequency, interval int, start time.Time) *domain.Schedule {
	return &domain.Schedule{
		ID:                uuid.New(),
		HouseholdID:       uuid.New(),
		Name:              "Rent",
		Description:       "Monthly rent payment",
		Amount:            1_500_000,
		Currency:          "NGN",
		SourceAccountID:   uuid.New(),
		Frequency:         frequency,
		IntervalValue:     interval,
		StartDate:         start,
		NextExecutionDate: start,
		Status:            domain.ScheduleStatusActive,
		CreatedBy:         uuid.New(),
	}
}
