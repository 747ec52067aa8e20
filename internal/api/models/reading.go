package models

import (
	"time"

	"github.com/titorm/nexus-saude-sub001/internal/vitals"
)

// ReadingRequest is the body for POST /v1/readings. Time defaults to the
// server clock when omitted.
type ReadingRequest struct {
	PatientID string             `json:"patientId" validate:"required"`
	Time      *Timestamp         `json:"time,omitempty"`
	Signals   map[string]float64 `json:"signals" validate:"required"`
}

// Reading converts the request into a domain reading.
func (r ReadingRequest) Reading() *vitals.Reading {
	signals := make(map[vitals.Signal]float64, len(r.Signals))
	for k, v := range r.Signals {
		signals[vitals.Signal(k)] = v
	}

	var at time.Time
	if r.Time != nil {
		at = r.Time.Time()
	}

	return &vitals.Reading{
		PatientID: r.PatientID,
		Time:      at,
		Signals:   signals,
	}
}

// IngestResponse reports what a submitted reading triggered.
type IngestResponse struct {
	Alerts  []Alert                                `json:"alerts"`
	Skipped []vitals.Signal                        `json:"skipped,omitempty"`
	Trends  map[vitals.Signal]vitals.TrendSummary `json:"trends"`
}

// NewIngestResponse maps an ingest result to its API representation.
func NewIngestResponse(res *vitals.IngestResult) IngestResponse {
	return IngestResponse{
		Alerts:  NewAlerts(res.Alerts),
		Skipped: res.Skipped,
		Trends:  res.Trends,
	}
}

// PatientHistory is a patient's recent readings, oldest first.
type PatientHistory struct {
	PatientID string           `json:"patientId"`
	Items     []vitals.Reading `json:"items"`
}
