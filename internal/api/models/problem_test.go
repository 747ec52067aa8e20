package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titorm/nexus-saude-sub001/internal/api/models"
)

func TestProblem_NewProblem(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	)

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid reading payload", []models.FieldError{
		{Field: "signals.heart_rate", Message: "must be a finite number", Code: "OUT_OF_RANGE"},
	})
	p.Instance = "/v1/readings"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "Validation error", result.Title)
	assert.Equal(t, http.StatusBadRequest, result.Status)
	assert.Equal(t, "invalid reading payload", result.Detail)
	assert.Equal(t, "/v1/readings", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "signals.heart_rate", result.Errors[0].Field)
	assert.Equal(t, "OUT_OF_RANGE", result.Errors[0].Code)
}

func TestProblem_StatusConstructors(t *testing.T) {
	tests := []struct {
		name     string
		problem  *models.Problem
		wantType string
		title    string
		status   int
		detail   string
	}{
		{
			name:     "bad request",
			problem:  models.NewBadRequest("req_123", "invalid data", nil),
			wantType: models.ProblemTypeValidation,
			title:    "Validation error",
			status:   http.StatusBadRequest,
			detail:   "invalid data",
		},
		{
			name:     "not found",
			problem:  models.NewNotFound("req_123", "alert not found"),
			wantType: models.ProblemTypeNotFound,
			title:    "Not found",
			status:   http.StatusNotFound,
			detail:   "alert not found",
		},
		{
			name:     "conflict",
			problem:  models.NewConflict("req_123", "alert already resolved"),
			wantType: models.ProblemTypeConflict,
			title:    "Conflict",
			status:   http.StatusConflict,
			detail:   "alert already resolved",
		},
		{
			name:     "too many requests",
			problem:  models.NewTooManyRequests("req_123", "rate limit exceeded"),
			wantType: models.ProblemTypeTooManyRequests,
			title:    "Too many requests",
			status:   http.StatusTooManyRequests,
			detail:   "rate limit exceeded",
		},
		{
			name:     "internal error",
			problem:  models.NewInternalError("req_123", "database error"),
			wantType: models.ProblemTypeInternal,
			title:    "Internal server error",
			status:   http.StatusInternalServerError,
			detail:   "database error",
		},
		{
			name:     "service unavailable",
			problem:  models.NewServiceUnavailable("req_123", "upstream unavailable"),
			wantType: models.ProblemTypeUnavailable,
			title:    "Service unavailable",
			status:   http.StatusServiceUnavailable,
			detail:   "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, tt.detail, tt.problem.Detail)
			assert.Equal(t, "req_123", tt.problem.TraceID)
		})
	}
}
