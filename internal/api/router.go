/**
 * @description
 * This file sets up the HTTP router for the recurring-service. It defines the
 * API endpoints, associates them with their handlers, and applies middleware
 * for authentication, logging and panic recovery.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ScheduleRoutes creates and returns a new router for the recurring service.
func ScheduleRoutes(h *ScheduleHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// User-facing lifecycle endpoints require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/schedules", h.CreateScheduleHandler)
		r.Get("/schedules/{scheduleID}", h.GetScheduleHandler)
		r.Patch("/schedules/{scheduleID}", h.UpdateScheduleHandler)
		r.Delete("/schedules/{scheduleID}", h.DeleteScheduleHandler)
		r.Post("/schedules/{scheduleID}/pause", h.PauseScheduleHandler)
		r.Post("/schedules/{scheduleID}/resume", h.ResumeScheduleHandler)
		r.Post("/schedules/{scheduleID}/cancel", h.CancelScheduleHandler)
		r.Get("/schedules/{scheduleID}/executions", h.ListExecutionsHandler)
		r.Get("/households/{householdID}/schedules", h.ListHouseholdSchedulesHandler)
	})

	// Operator endpoints are protected by the shared internal key.
	r.Group(func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalAPIKey))

		r.Post("/internal/due-scan", h.TriggerDueScanHandler)
		r.Post("/internal/retry-sweep", h.TriggerRetrySweepHandler)
		r.Get("/internal/dead-letter", h.ListDeadLetterHandler)
	})

	return r
}
