package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/titorm/nexus-saude-sub001/internal/api/models"
	"github.com/titorm/nexus-saude-sub001/internal/api/response"
	"github.com/titorm/nexus-saude-sub001/internal/escalation"
)

// EscalationHandler handles escalation workflow endpoints.
type EscalationHandler struct {
	escalations *escalation.Service
}

// NewEscalationHandler creates a new EscalationHandler.
func NewEscalationHandler(escalationService *escalation.Service) *EscalationHandler {
	return &EscalationHandler{escalations: escalationService}
}

// ListActive handles GET /v1/escalations - active escalations, oldest first.
func (h *EscalationHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	items, err := h.escalations.ListActive(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list escalations")
		return
	}
	response.JSON(w, r, http.StatusOK, models.EscalationList{Items: items})
}

// History handles GET /v1/escalations/history - closed escalations.
func (h *EscalationHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	items, err := h.escalations.History(r.Context(), limit)
	if err != nil {
		response.InternalError(w, r, "failed to load escalation history")
		return
	}
	response.JSON(w, r, http.StatusOK, models.EscalationList{Items: items})
}

// Get handles GET /v1/escalations/{escalationId}.
func (h *EscalationHandler) Get(w http.ResponseWriter, r *http.Request) {
	escalationID := chi.URLParam(r, "escalationId")

	esc, err := h.escalations.Get(r.Context(), escalationID)
	if err != nil {
		if errors.Is(err, escalation.ErrEscalationNotFound) {
			response.NotFound(w, r, "escalation not found")
			return
		}
		response.InternalError(w, r, "failed to load escalation")
		return
	}
	response.JSON(w, r, http.StatusOK, esc)
}

// Acknowledge handles POST /v1/escalations/{escalationId}/acknowledge.
func (h *EscalationHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	escalationID := chi.URLParam(r, "escalationId")

	var input models.EscalationAcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.AcknowledgedBy == "" {
		response.BadRequest(w, r, "acknowledgedBy is required", []models.FieldError{
			{Field: "acknowledgedBy", Message: "is required"},
		})
		return
	}

	esc, err := h.escalations.Acknowledge(r.Context(), escalationID, input.AcknowledgedBy)
	if err != nil {
		switch {
		case errors.Is(err, escalation.ErrEscalationNotFound):
			response.NotFound(w, r, "escalation not found")
		case errors.Is(err, escalation.ErrEscalationClosed):
			response.Conflict(w, r, "escalation already closed")
		default:
			response.InternalError(w, r, "failed to acknowledge escalation")
		}
		return
	}
	response.JSON(w, r, http.StatusOK, esc)
}

// Resolve handles POST /v1/escalations/{escalationId}/resolve.
func (h *EscalationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	escalationID := chi.URLParam(r, "escalationId")

	var input models.EscalationResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.ResolvedBy == "" {
		response.BadRequest(w, r, "resolvedBy is required", []models.FieldError{
			{Field: "resolvedBy", Message: "is required"},
		})
		return
	}

	esc, err := h.escalations.Resolve(r.Context(), escalationID, input.ResolvedBy, input.Notes)
	if err != nil {
		switch {
		case errors.Is(err, escalation.ErrEscalationNotFound):
			response.NotFound(w, r, "escalation not found")
		case errors.Is(err, escalation.ErrEscalationClosed):
			response.Conflict(w, r, "escalation already closed")
		default:
			response.InternalError(w, r, "failed to resolve escalation")
		}
		return
	}
	response.JSON(w, r, http.StatusOK, esc)
}
