package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
	"delivery-pipeline/internal/queue"
)

type QueueHandler struct {
	engine *queue.Engine
	logger logger.Logger
}

func NewQueueHandler(engine *queue.Engine, log logger.Logger) *QueueHandler {
	return &QueueHandler{engine: engine, logger: log}
}

func (h *QueueHandler) Routes(r chi.Router) {
	r.Post("/reminders", h.Schedule)
	r.Delete("/reminders/{sourceId}", h.Cancel)
	r.Get("/queue/stats", h.Stats)
}

// Schedule creates reminder tasks for a source event. An optional
// reminderMinutes array overrides the user's default offsets.
func (h *QueueHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		models.SourceEvent
		ReminderMinutes []int `json:"reminderMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		errs.WriteHTTP(w, errs.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}
	event := payload.SourceEvent
	if event.ID == "" || event.UserID == "" || event.Title == "" || event.Date == "" {
		errs.WriteHTTP(w, errs.NewValidationError("id, userId, title and date are required"))
		return
	}

	tasks, err := h.engine.ScheduleReminders(r.Context(), event, payload.ReminderMinutes)
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"scheduled": len(tasks),
		"tasks":     tasks,
	})
}

// Cancel cancels every pending or in-flight reminder for a source event.
func (h *QueueHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.CancelForSource(r.Context(), chi.URLParam(r, "sourceId"))
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

// Stats returns queue aggregates, scoped to one user when the userId
// query parameter is set.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Statistics(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
