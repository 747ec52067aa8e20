// Package handler provides HTTP handlers for the telemetry API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/titorm/nexus-saude-sub001/internal/api/models"
	"github.com/titorm/nexus-saude-sub001/internal/api/response"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string

	// ready probes hard dependencies, nil when the service has none.
	ready func(ctx context.Context) error

	// metrics snapshots background job counters for the status endpoint.
	metrics func() map[string]interface{}
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, ready func(ctx context.Context) error, metrics func() map[string]interface{}) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		ready:     ready,
		metrics:   metrics,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			response.ServiceUnavailable(w, r, err.Error())
			return
		}
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())

	overall := models.HealthStatusOK
	subsystems := []models.SubsystemStatus{}
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			overall = models.HealthStatusDegraded
			detail := err.Error()
			subsystems = append(subsystems, models.SubsystemStatus{Name: "database", Status: models.HealthStatusFail, Detail: &detail})
		} else {
			subsystems = append(subsystems, models.SubsystemStatus{Name: "database", Status: models.HealthStatusOK})
		}
	}

	status := models.SystemStatus{
		Status:     overall,
		Time:       now,
		Subsystems: subsystems,
	}
	if h.metrics != nil {
		status.Metrics = h.metrics()
	}
	response.JSON(w, r, http.StatusOK, status)
}
