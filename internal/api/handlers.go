/**
 * @description
 * HTTP handlers for the recurring-service API. Handlers parse incoming
 * requests, call the application service or jobs, and map domain errors to
 * HTTP status codes.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/recurring-service/internal/app"
	"github.com/transfa/recurring-service/internal/domain"
	"github.com/transfa/recurring-service/internal/store"
	"github.com/transfa/recurring-service/pkg/permissionclient"
)

// ScheduleHandlers holds the application service and jobs that handlers use.
type ScheduleHandlers struct {
	service *app.Service
	jobs    *app.Jobs
	logger  *slog.Logger
}

// NewScheduleHandlers creates a new instance of ScheduleHandlers.
func NewScheduleHandlers(service *app.Service, jobs *app.Jobs, logger *slog.Logger) *ScheduleHandlers {
	return &ScheduleHandlers{service: service, jobs: jobs, logger: logger}
}

// CreateScheduleHandler handles POST /schedules.
func (h *ScheduleHandlers) CreateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	requestorID, ok := GetRequestorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req domain.CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	schedule, err := h.service.Create(r.Context(), requestorID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, schedule)
}

// GetScheduleHandler handles GET /schedules/{scheduleID}.
func (h *ScheduleHandlers) GetScheduleHandler(w http.ResponseWriter, r *http.Request) {
	requestorID, scheduleID, ok := h.requestorAndScheduleID(w, r)
	if !ok {
		return
	}

	schedule, err := h.service.GetByID(r.Context(), scheduleID, requestorID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}

// UpdateScheduleHandler handles PATCH /schedules/{scheduleID}.
func (h *ScheduleHandlers) UpdateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	requestorID, scheduleID, ok := h.requestorAndScheduleID(w, r)
	if !ok {
		return
	}

	var patch domain.UpdateSchedulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	schedule, err := h.service.Update(r.Context(), scheduleID, requestorID, patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}

// PauseScheduleHandler handles POST /schedules/{scheduleID}/pause.
func (h *ScheduleHandlers) PauseScheduleHandler(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.service.Pause)
}

// ResumeScheduleHandler handles POST /schedules/{scheduleID}/resume.
func (h *ScheduleHandlers) ResumeScheduleHandler(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.service.Resume)
}

// CancelScheduleHandler handles POST /schedules/{scheduleID}/cancel.
func (h *ScheduleHandlers) CancelScheduleHandler(w http.ResponseWriter, r *http.Request) {
	h.statusTransition(w, r, h.service.Cancel)
}

// DeleteScheduleHandler handles DELETE /schedules/{scheduleID}.
func (h *ScheduleHandlers) DeleteScheduleHandler(w http.ResponseWriter, r *http.Request) {
	requestorID, scheduleID, ok := h.requestorAndScheduleID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), scheduleID, requestorID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHouseholdSchedulesHandler handles GET /households/{householdID}/schedules.
func (h *ScheduleHandlers) ListHouseholdSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	requestorID, ok := GetRequestorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	householdID, err := uuid.Parse(chi.URLParam(r, "householdID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid household id")
		return
	}

	opts, err := parseListOptions(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	schedules, err := h.service.ListByHousehold(r.Context(), householdID, requestorID, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if schedules == nil {
		schedules = []domain.Schedule{}
	}
	h.writeJSON(w, http.StatusOK, schedules)
}

// ListExecutionsHandler handles GET /schedules/{scheduleID}/executions.
func (h *ScheduleHandlers) ListExecutionsHandler(w http.ResponseWriter, r *http.Request) {
	requestorID, scheduleID, ok := h.requestorAndScheduleID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	executions, err := h.service.ListExecutions(r.Context(), scheduleID, requestorID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if executions == nil {
		executions = []domain.ExecutionRecord{}
	}
	h.writeJSON(w, http.StatusOK, executions)
}

// TriggerDueScanHandler handles POST /internal/due-scan. It forces an
// immediate due-scan, useful for testing and incident response.
func (h *ScheduleHandlers) TriggerDueScanHandler(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "as_of must be formatted YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	result, err := h.jobs.ProcessDueSchedules(r.Context(), asOf)
	if err != nil {
		h.logger.Error("manual due-scan failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "due-scan failed")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// TriggerRetrySweepHandler handles POST /internal/retry-sweep.
func (h *ScheduleHandlers) TriggerRetrySweepHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.jobs.RetryFailedExecutions(r.Context())
	if err != nil {
		h.logger.Error("manual retry sweep failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "retry sweep failed")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListDeadLetterHandler handles GET /internal/dead-letter. It lists
// executions that exhausted the retry ceiling.
func (h *ScheduleHandlers) ListDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	executions, err := h.jobs.DeadLetteredExecutions(r.Context(), limit)
	if err != nil {
		h.logger.Error("dead-letter listing failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "dead-letter listing failed")
		return
	}
	if executions == nil {
		executions = []domain.ExecutionRecord{}
	}
	h.writeJSON(w, http.StatusOK, executions)
}

func (h *ScheduleHandlers) statusTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, scheduleID, requestorID uuid.UUID) (*domain.Schedule, error)) {
	requestorID, scheduleID, ok := h.requestorAndScheduleID(w, r)
	if !ok {
		return
	}

	schedule, err := op(r.Context(), scheduleID, requestorID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}

func (h *ScheduleHandlers) requestorAndScheduleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	requestorID, ok := GetRequestorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, uuid.Nil, false
	}
	scheduleID, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid schedule id")
		return uuid.Nil, uuid.Nil, false
	}
	return requestorID, scheduleID, true
}

func parseListOptions(r *http.Request) (domain.ScheduleListOptions, error) {
	var opts domain.ScheduleListOptions
	q := r.URL.Query()

	if raw := q.Get("status"); raw != "" {
		status := domain.ScheduleStatus(raw)
		if !status.IsValid() {
			return opts, errors.New("invalid status filter")
		}
		opts.Status = &status
	}
	if raw := q.Get("account_id"); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			return opts, errors.New("invalid account_id filter")
		}
		opts.SourceAccountID = &accountID
	}
	if raw := q.Get("category_id"); raw != "" {
		categoryID, err := uuid.Parse(raw)
		if err != nil {
			return opts, errors.New("invalid category_id filter")
		}
		opts.CategoryID = &categoryID
	}
	if raw := q.Get("frequency"); raw != "" {
		frequency := domain.Frequency(raw)
		if !frequency.IsValid() {
			return opts, errors.New("invalid frequency filter")
		}
		opts.Frequency = &frequency
	}
	opts.Page, _ = strconv.Atoi(q.Get("page"))
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	return opts, nil
}

func (h *ScheduleHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrScheduleNotFound), errors.Is(err, store.ErrExecutionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrInvalidScheduleConfiguration):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidStatusTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, permissionclient.ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, "you do not have permission to perform this action")
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *ScheduleHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ScheduleHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
