package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/titorm/nexus-saude-sub001/internal/alerting"
	"github.com/titorm/nexus-saude-sub001/internal/api/models"
	"github.com/titorm/nexus-saude-sub001/internal/api/response"
)

// AlertHandler handles alert lifecycle endpoints.
type AlertHandler struct {
	alerts *alerting.Service
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(alertService *alerting.Service) *AlertHandler {
	return &AlertHandler{alerts: alertService}
}

// Create handles POST /v1/alerts - raise a manual or external alert.
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.AlertCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	alert, err := h.alerts.Create(r.Context(), &alerting.Alert{
		PatientID: input.PatientID,
		Type:      input.Type,
		Severity:  alerting.Severity(input.Severity),
		Category:  alerting.Category(input.Category),
		Message:   input.Message,
		Source:    input.Source,
		Signal:    input.Signal,
		Value:     input.Value,
	})
	if err != nil {
		var verr *alerting.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, r, "alert rejected", fieldErrors(verr.Errors))
			return
		}
		response.InternalError(w, r, "failed to create alert")
		return
	}

	location := fmt.Sprintf("/v1/alerts/%s", alert.ID)
	response.Created(w, r, location, models.NewAlert(alert))
}

// List handles GET /v1/alerts - query alerts with filters.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := alerting.Filter{
		PatientID: q.Get("patientId"),
		State:     alerting.State(q.Get("state")),
		Severity:  alerting.Severity(q.Get("severity")),
		Category:  alerting.Category(q.Get("category")),
	}
	if q.Get("unresolved") == "true" {
		filter.Unresolved = true
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		filter.Limit = n
	}

	alerts, err := h.alerts.Query(r.Context(), filter)
	if err != nil {
		response.InternalError(w, r, "failed to query alerts")
		return
	}

	response.JSON(w, r, http.StatusOK, models.PagedAlerts{
		Items: models.NewAlerts(alerts),
		Meta:  models.PagedResponseMeta{Limit: filter.Limit},
	})
}

// Get handles GET /v1/alerts/{alertId} - fetch one alert.
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")

	alert, err := h.alerts.Get(r.Context(), alertID)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			response.NotFound(w, r, "alert not found")
			return
		}
		response.InternalError(w, r, "failed to load alert")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewAlert(alert))
}

// Acknowledge handles POST /v1/alerts/{alertId}/acknowledge.
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")

	var input models.AlertAcknowledgeRequest
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

	alert, err := h.alerts.Acknowledge(r.Context(), alertID, input.AcknowledgedBy)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			response.NotFound(w, r, "alert not found")
			return
		}
		response.InternalError(w, r, "failed to acknowledge alert")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewAlert(alert))
}

// Resolve handles POST /v1/alerts/{alertId}/resolve.
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertId")

	var input models.AlertResolveRequest
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

	alert, err := h.alerts.Resolve(r.Context(), alertID, input.ResolvedBy, input.Notes)
	if err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			response.NotFound(w, r, "alert not found")
			return
		}
		response.InternalError(w, r, "failed to resolve alert")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewAlert(alert))
}

func fieldErrors(errs []alerting.FieldError) []models.FieldError {
	out := make([]models.FieldError, 0, len(errs))
	for _, e := range errs {
		out = append(out, models.FieldError{Field: e.Field, Message: e.Message})
	}
	return out
}
