package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/titorm/nexus-saude-sub001/internal/api/models"
	"github.com/titorm/nexus-saude-sub001/internal/api/response"
	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

// ReadingHandler handles vital-sign reading endpoints.
type ReadingHandler struct {
	vitals *vitals.Service
}

// NewReadingHandler creates a new ReadingHandler.
func NewReadingHandler(vitalsService *vitals.Service) *ReadingHandler {
	return &ReadingHandler{vitals: vitalsService}
}

// Submit handles POST /v1/readings - ingest one vital-sign reading.
func (h *ReadingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var input models.ReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	result, err := h.vitals.Ingest(r.Context(), input.Reading())
	if err != nil {
		switch {
		case errors.Is(err, vitals.ErrMissingPatientID):
			response.BadRequest(w, r, "patientId is required", []models.FieldError{
				{Field: "patientId", Message: "is required"},
			})
		case errors.Is(err, vitals.ErrNoSignals):
			response.BadRequest(w, r, "signals must not be empty", []models.FieldError{
				{Field: "signals", Message: "must not be empty"},
			})
		default:
			response.InternalError(w, r, "failed to process reading")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewIngestResponse(result))
}

// History handles GET /v1/patients/{patientId}/readings - recent readings.
func (h *ReadingHandler) History(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientId")
	if patientID == "" {
		response.BadRequest(w, r, "patientId is required", nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	readings, err := h.vitals.History(r.Context(), patientID, limit)
	if err != nil {
		if errors.Is(err, vitals.ErrNoHistory) {
			response.NotFound(w, r, "no readings for patient")
			return
		}
		response.InternalError(w, r, "failed to load readings")
		return
	}

	response.JSON(w, r, http.StatusOK, models.PatientHistory{
		PatientID: patientID,
		Items:     readings,
	})
}
