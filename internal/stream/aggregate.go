package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Aggregate errors.
var (
	ErrNoData = errors.New("no data points in window")
)

// AggregateFunc names a supported aggregation.
type AggregateFunc string

const (
	AggSum    AggregateFunc = "sum"
	AggAvg    AggregateFunc = "avg"
	AggMin    AggregateFunc = "min"
	AggMax    AggregateFunc = "max"
	AggCount  AggregateFunc = "count"
	AggMedian AggregateFunc = "median"
	AggStdDev AggregateFunc = "stddev"
)

// ParseAggregateFunc converts a string into an AggregateFunc.
func ParseAggregateFunc(s string) (AggregateFunc, error) {
	switch fn := AggregateFunc(s); fn {
	case AggSum, AggAvg, AggMin, AggMax, AggCount, AggMedian, AggStdDev:
		return fn, nil
	default:
		return "", fmt.Errorf("unknown aggregate function %q", s)
	}
}

// Aggregate computes fn over the named numeric field of buffered points
// published within the window. A zero window spans the whole buffer.
func (h *Hub) Aggregate(stream, field string, fn AggregateFunc, window time.Duration) (float64, error) {
	since := time.Time{}
	if window > 0 {
		since = h.now().Add(-window)
	}

	points, err := h.Read(stream, 0, since)
	if err != nil {
		return 0, err
	}

	var values []float64
	for _, p := range points {
		if v, ok := p.Values[field]; ok && !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, ErrNoData
	}

	switch fn {
	case AggCount:
		return float64(len(values)), nil
	case AggSum:
		return sum(values), nil
	case AggAvg:
		return sum(values) / float64(len(values)), nil
	case AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	case AggMedian:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2, nil
		}
		return sorted[mid], nil
	case AggStdDev:
		mean := sum(values) / float64(len(values))
		var sq float64
		for _, v := range values {
			d := v - mean
			sq += d * d
		}
		return math.Sqrt(sq / float64(len(values))), nil
	default:
		return 0, fmt.Errorf("unknown aggregate function %q", fn)
	}
}

// AggregateSpec describes a recurring windowed aggregation: every Interval
// the hub computes Fn over Field of the SourceStream points inside Window
// and publishes the result onto TargetStream.
type AggregateSpec struct {
	SourceStream string
	Field        string
	Fn           AggregateFunc
	Window       time.Duration

	// Interval is the evaluation cadence. Required.
	Interval time.Duration

	// TargetStream receives the computed points, defaulting to
	// StreamMetrics.
	TargetStream string
}

// ScheduleAggregate starts a recurring aggregation and returns its handle.
// The schedule stops when ctx is cancelled or the handle is passed to
// CancelAggregate. Windows with no data publish nothing.
func (h *Hub) ScheduleAggregate(ctx context.Context, spec AggregateSpec) (string, error) {
	if spec.SourceStream == "" || spec.Field == "" {
		return "", errors.New("source stream and field are required")
	}
	if _, err := ParseAggregateFunc(string(spec.Fn)); err != nil {
		return "", err
	}
	if spec.Interval <= 0 {
		return "", errors.New("interval must be positive")
	}
	if spec.TargetStream == "" {
		spec.TargetStream = StreamMetrics
	}

	id := "agg_" + uuid.New().String()[:22]
	stop := make(chan struct{})
	h.mu.Lock()
	h.schedules[id] = stop
	h.mu.Unlock()

	go h.runAggregate(ctx, id, spec, stop)

	h.logger.Info().
		Str("schedule_id", id).
		Str("stream", spec.SourceStream).
		Str("field", spec.Field).
		Str("func", string(spec.Fn)).
		Dur("interval", spec.Interval).
		Msg("recurring aggregate scheduled")
	return id, nil
}

// CancelAggregate stops a recurring aggregation. Unknown handles are
// ignored.
func (h *Hub) CancelAggregate(id string) {
	h.mu.Lock()
	stop, ok := h.schedules[id]
	delete(h.schedules, id)
	h.mu.Unlock()
	if ok {
		close(stop)
	}
}

func (h *Hub) runAggregate(ctx context.Context, id string, spec AggregateSpec, stop <-chan struct{}) {
	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.CancelAggregate(id)
			return
		case <-stop:
			return
		case <-ticker.C:
			h.evaluateAggregate(ctx, spec)
		}
	}
}

func (h *Hub) evaluateAggregate(ctx context.Context, spec AggregateSpec) {
	value, err := h.Aggregate(spec.SourceStream, spec.Field, spec.Fn, spec.Window)
	if err != nil {
		if !errors.Is(err, ErrNoData) && !errors.Is(err, ErrStreamNotFound) {
			h.logger.Warn().Err(err).
				Str("stream", spec.SourceStream).
				Str("field", spec.Field).
				Msg("recurring aggregate failed")
		}
		return
	}

	h.Publish(ctx, spec.TargetStream, Point{
		Type: "aggregate",
		Labels: map[string]string{
			"source": spec.SourceStream,
			"field":  spec.Field,
			"func":   string(spec.Fn),
		},
		Values: map[string]float64{"value": value},
	})
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
