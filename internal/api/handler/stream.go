package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/titorm/nexus-saude-sub001/internal/api/models"
	"github.com/titorm/nexus-saude-sub001/internal/api/response"
	"github.com/titorm/nexus-saude-sub001/internal/stream"
)

// StreamHandler handles metric ingestion and stream query endpoints.
type StreamHandler struct {
	hub *stream.Hub
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// SubmitMetric handles POST /v1/metrics - publish an operational metric.
func (h *StreamHandler) SubmitMetric(w http.ResponseWriter, r *http.Request) {
	var input models.MetricRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Name == "" {
		response.BadRequest(w, r, "name is required", []models.FieldError{
			{Field: "name", Message: "is required"},
		})
		return
	}

	at := time.Now()
	if input.Time != nil {
		at = input.Time.Time()
	}

	h.hub.Publish(r.Context(), stream.StreamMetrics, stream.Point{
		Time:   at,
		Type:   input.Name,
		Labels: input.Labels,
		Values: map[string]float64{"value": input.Value},
	})

	response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ListStreams handles GET /v1/streams - names of the available streams.
func (h *StreamHandler) ListStreams(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.StreamList{Streams: h.hub.Streams()})
}

// Points handles GET /v1/streams/{stream}/points - recent points.
func (h *StreamHandler) Points(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "stream")
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	var since time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, r, "since must be an RFC3339 timestamp", nil)
			return
		}
		since = t
	}

	points, err := h.hub.Read(streamName, limit, since)
	if err != nil {
		if errors.Is(err, stream.ErrStreamNotFound) {
			response.NotFound(w, r, "stream not found")
			return
		}
		response.InternalError(w, r, "failed to read stream")
		return
	}

	response.JSON(w, r, http.StatusOK, models.StreamPoints{
		Stream: streamName,
		Items:  points,
	})
}

// Aggregate handles GET /v1/streams/{stream}/aggregate - windowed statistics
// over one numeric field.
func (h *StreamHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "stream")
	q := r.URL.Query()

	field := q.Get("field")
	if field == "" {
		field = "value"
	}

	fn, err := stream.ParseAggregateFunc(q.Get("func"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "func", Message: "must be one of sum, avg, min, max, count, median, stddev"},
		})
		return
	}

	window := 5 * time.Minute
	if raw := q.Get("windowSeconds"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "windowSeconds must be a positive integer", nil)
			return
		}
		window = time.Duration(n) * time.Second
	}

	value, err := h.hub.Aggregate(streamName, field, fn, window)
	if err != nil {
		switch {
		case errors.Is(err, stream.ErrStreamNotFound):
			response.NotFound(w, r, "stream not found")
		case errors.Is(err, stream.ErrNoData):
			response.NotFound(w, r, "no points in window")
		default:
			response.InternalError(w, r, "failed to aggregate stream")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.AggregateResponse{
		Stream:        streamName,
		Field:         field,
		Func:          string(fn),
		WindowSeconds: int(window / time.Second),
		Value:         value,
	})
}
