package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/events"
)

// setupRouter creates the HTTP surface: health checking, the external
// scheduler callback, and dead letter inspection.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", app.handleHealth)
	r.Post("/callbacks/reminders", app.handleReminderCallback)
	r.Get("/dead-letters", app.handleListDeadLetters)

	return r
}

// handleHealth reports liveness, including database reachability.
func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := app.db.PingContext(r.Context()); err != nil {
		app.logger.Error("health check failed", "error", err)
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReminderCallback accepts a reminder trigger from an external
// scheduling service. The trigger is processed asynchronously; the
// duplicate guard makes redelivered callbacks harmless.
func (app *application) handleReminderCallback(w http.ResponseWriter, r *http.Request) {
	var ev events.ReminderEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "malformed reminder payload", http.StatusBadRequest)
		return
	}
	if ev.TaskID <= 0 || ev.UserID <= 0 || ev.ReminderTime.IsZero() {
		http.Error(w, "reminder payload missing required fields", http.StatusBadRequest)
		return
	}
	if ev.EventID == uuid.Nil {
		ev.EventID = uuid.New()
	}
	if ev.EventType == "" {
		ev.EventType = events.TypeReminderDue
	}

	go app.consumer.HandleReminderTrigger(context.WithoutCancel(r.Context()), &ev)

	w.WriteHeader(http.StatusAccepted)
}

// handleListDeadLetters returns the most recent dead letters for
// inspection.
func (app *application) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := app.deadLetters.List(r.Context(), 50)
	if err != nil {
		app.logger.Error("failed to list dead letters", "error", err)
		http.Error(w, "failed to list dead letters", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(letters); err != nil {
		app.logger.Error("failed to encode dead letters", "error", err)
	}
}
