package response_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titorm/nexus-saude-sub001/internal/api/middleware"
	"github.com/titorm/nexus-saude-sub001/internal/api/models"
	"github.com/titorm/nexus-saude-sub001/internal/api/response"
)

// tracedRequest runs a request through the RequestID middleware so the
// context carries a correlation ID, the way handlers see it in the router.
func tracedRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()

	var traced *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traced = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))

	require.NotNil(t, traced)
	return traced
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var problem models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	return problem
}

func TestJSON(t *testing.T) {
	req := tracedRequest(t, http.MethodGet, "/v1/alerts")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"status": "open"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("X-Request-Id"), "req_")
	assert.Contains(t, rec.Body.String(), "open")
}

func TestJSON_NoRequestID(t *testing.T) {
	// No middleware, so the context has no correlation ID to echo.
	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"status": "open"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
}

func TestJSON_NilData(t *testing.T) {
	req := tracedRequest(t, http.MethodGet, "/v1/alerts")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestCreated_SetsLocation(t *testing.T) {
	req := tracedRequest(t, http.MethodPost, "/v1/alerts")
	rec := httptest.NewRecorder()

	response.Created(rec, req, "/v1/alerts/alt_123", map[string]string{"id": "alt_123"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/alerts/alt_123", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestAccepted_SetsLocation(t *testing.T) {
	req := tracedRequest(t, http.MethodPost, "/v1/readings")
	rec := httptest.NewRecorder()

	response.Accepted(rec, req, "/v1/patients/p-1/vitals", map[string]string{"status": "queued"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/v1/patients/p-1/vitals", rec.Header().Get("Location"))
}

func TestNoContent(t *testing.T) {
	req := tracedRequest(t, http.MethodDelete, "/v1/alerts/alt_123")
	rec := httptest.NewRecorder()

	response.NoContent(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		send   func(w http.ResponseWriter, r *http.Request)
		status int
		typ    string
	}{
		{
			name: "bad request",
			send: func(w http.ResponseWriter, r *http.Request) {
				response.BadRequest(w, r, "validation failed", []models.FieldError{
					{Field: "patientId", Message: "is required"},
				})
			},
			status: http.StatusBadRequest,
			typ:    models.ProblemTypeValidation,
		},
		{
			name: "not found",
			send: func(w http.ResponseWriter, r *http.Request) {
				response.NotFound(w, r, "alert not found")
			},
			status: http.StatusNotFound,
			typ:    models.ProblemTypeNotFound,
		},
		{
			name: "conflict",
			send: func(w http.ResponseWriter, r *http.Request) {
				response.Conflict(w, r, "alert already resolved")
			},
			status: http.StatusConflict,
			typ:    models.ProblemTypeConflict,
		},
		{
			name: "internal error",
			send: func(w http.ResponseWriter, r *http.Request) {
				response.InternalError(w, r, "something went wrong")
			},
			status: http.StatusInternalServerError,
			typ:    models.ProblemTypeInternal,
		},
		{
			name: "service unavailable",
			send: func(w http.ResponseWriter, r *http.Request) {
				response.ServiceUnavailable(w, r, "database unreachable")
			},
			status: http.StatusServiceUnavailable,
			typ:    models.ProblemTypeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tracedRequest(t, http.MethodGet, "/v1/alerts/alt_123")
			rec := httptest.NewRecorder()

			tt.send(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, tt.typ, problem.Type)
			assert.Equal(t, "/v1/alerts/alt_123", problem.Instance)
			assert.NotEmpty(t, problem.TraceID)
		})
	}
}

func TestBadRequest_CarriesFieldErrors(t *testing.T) {
	req := tracedRequest(t, http.MethodPost, "/v1/readings")
	rec := httptest.NewRecorder()

	response.BadRequest(rec, req, "invalid reading payload", []models.FieldError{
		{Field: "signals.heart_rate", Message: "must be a finite number", Code: "OUT_OF_RANGE"},
	})

	problem := decodeProblem(t, rec)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "signals.heart_rate", problem.Errors[0].Field)
	assert.Equal(t, "OUT_OF_RANGE", problem.Errors[0].Code)
}

func TestTooManyRequests_WithInfo(t *testing.T) {
	req := tracedRequest(t, http.MethodPost, "/v1/readings")
	rec := httptest.NewRecorder()

	response.TooManyRequestsWithInfo(rec, req, "rate limit exceeded", &response.RateLimitInfo{
		Limit:      600,
		Remaining:  0,
		ResetAt:    1704067200,
		RetryAfter: 60,
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1704067200", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	problem := decodeProblem(t, rec)
	assert.Equal(t, http.StatusTooManyRequests, problem.Status)
}

func TestTooManyRequests_WithoutInfo(t *testing.T) {
	req := tracedRequest(t, http.MethodPost, "/v1/readings")
	rec := httptest.NewRecorder()

	response.TooManyRequests(rec, req, "rate limit exceeded")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestRequestIDPropagation(t *testing.T) {
	var traced *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traced = r
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", http.NoBody)
	req.Header.Set("X-Request-Id", "client-request-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, traced)
	assert.Equal(t, "client-request-123", middleware.GetRequestID(traced.Context()))

	rec := httptest.NewRecorder()
	response.JSON(rec, traced, http.StatusOK, map[string]string{"status": "ok"})
	assert.Equal(t, "client-request-123", rec.Header().Get("X-Request-Id"))
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(context.Background()))
}
