package models

import (
	"github.com/titorm/nexus-saude-sub001/internal/stream"
)

// MetricRequest is the body for POST /v1/metrics.
type MetricRequest struct {
	Name   string            `json:"name" validate:"required"`
	Value  float64           `json:"value" validate:"required"`
	Time   *Timestamp        `json:"time,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// StreamPoints is a page of points from one stream, oldest first.
type StreamPoints struct {
	Stream string         `json:"stream"`
	Items  []stream.Point `json:"items"`
}

// StreamList names the available streams.
type StreamList struct {
	Streams []string `json:"streams"`
}

// AggregateResponse is the result of a windowed aggregation query.
type AggregateResponse struct {
	Stream        string  `json:"stream"`
	Field         string  `json:"field"`
	Func          string  `json:"func"`
	WindowSeconds int     `json:"windowSeconds"`
	Value         float64 `json:"value"`
}
