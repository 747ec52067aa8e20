package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/titorm/nexus-saude-sub001/internal/api/models"
	"github.com/titorm/nexus-saude-sub001/internal/api/response"
	"github.com/titorm/nexus-saude-sub001/internal/notify"
)

// NotificationHandler handles notification delivery endpoints.
type NotificationHandler struct {
	dispatcher *notify.Dispatcher
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

// History handles GET /v1/notifications - completed jobs, newest first.
func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	response.JSON(w, r, http.StatusOK, models.NotificationHistory{
		Items: h.dispatcher.History(limit),
	})
}

// Get handles GET /v1/notifications/{jobId} - one delivery job.
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.dispatcher.Job(jobID)
	if err != nil {
		if errors.Is(err, notify.ErrJobNotFound) {
			response.NotFound(w, r, "notification job not found")
			return
		}
		response.InternalError(w, r, "failed to load notification job")
		return
	}
	response.JSON(w, r, http.StatusOK, job)
}
