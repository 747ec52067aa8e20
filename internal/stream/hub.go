// Package stream provides the real-time distribution hub: named,
// capacity-bounded streams of tagged points fanned out to live subscribers.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Well-known stream names.
const (
	StreamAlerts     = "alerts"
	StreamVitalSigns = "vital_signs"
	StreamMetrics    = "metrics"
)

// Hub errors.
var (
	ErrStreamNotFound = errors.New("stream not found")
)

// Point is one tagged event on a stream. Values carries the numeric fields
// available to Aggregate; Data carries the full payload relayed to
// subscribers.
type Point struct {
	Time   time.Time          `json:"time"`
	Type   string             `json:"type"`
	Labels map[string]string  `json:"labels,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
	Data   interface{}        `json:"data,omitempty"`
}

// Callback receives every published point matching a subscription's filter.
// A panicking callback is logged and does not block delivery to remaining
// subscribers or bubble to the publisher.
type Callback func(stream string, p Point)

// Filter restricts which points a subscription receives. Nil matches all.
type Filter func(p Point) bool

type subscription struct {
	id       string
	callback Callback
	filter   Filter
}

type streamState struct {
	points []Point
	subs   map[string]*subscription
}

// HubConfig holds configuration for creating a Hub.
type HubConfig struct {
	// Capacity bounds each stream's buffer; the oldest point is dropped
	// first on overflow. Defaults to 500.
	Capacity int

	// Retention is the age horizon enforced by the background sweep,
	// independent of capacity-based eviction. Defaults to 1h.
	Retention time.Duration

	Logger zerolog.Logger

	// Now is the clock source, defaulting to time.Now.
	Now func() time.Time
}

// Hub is the bounded pub/sub distribution layer.
type Hub struct {
	capacity  int
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	streams   map[string]*streamState
	subIndex  map[string]string // subscription id -> stream
	schedules map[string]chan struct{}
}

// NewHub creates a new distribution hub.
func NewHub(cfg HubConfig) *Hub {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 500
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	h := &Hub{
		capacity:  capacity,
		retention: retention,
		logger:    cfg.Logger,
		now:       now,
		streams:   make(map[string]*streamState),
		subIndex:  make(map[string]string),
		schedules: make(map[string]chan struct{}),
	}
	// The well-known streams exist from the start so reads and
	// subscriptions do not depend on publish order.
	for _, name := range []string{StreamAlerts, StreamVitalSigns, StreamMetrics} {
		h.streams[name] = &streamState{subs: make(map[string]*subscription)}
	}
	return h
}

// Publish appends a point to the stream, creating the stream on first use,
// then invokes every matching subscriber. The buffer never exceeds capacity;
// the oldest point is dropped first.
func (h *Hub) Publish(_ context.Context, stream string, p Point) {
	if p.Time.IsZero() {
		p.Time = h.now()
	}

	h.mu.Lock()
	st := h.stream(stream)
	st.points = append(st.points, p)
	if len(st.points) > h.capacity {
		st.points = st.points[len(st.points)-h.capacity:]
	}
	subs := make([]*subscription, 0, len(st.subs))
	for _, sub := range st.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(p) {
			continue
		}
		h.deliver(stream, sub, p)
	}
}

// Subscribe registers a callback on a stream, creating the stream on first
// use, and returns the subscription handle.
func (h *Hub) Subscribe(stream string, cb Callback, filter Filter) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.stream(stream)
	id := "sub_" + uuid.New().String()[:22]
	st.subs[id] = &subscription{id: id, callback: cb, filter: filter}
	h.subIndex[id] = stream
	return id
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stream, ok := h.subIndex[id]
	if !ok {
		return
	}
	delete(h.subIndex, id)
	if st, ok := h.streams[stream]; ok {
		delete(st.subs, id)
	}
}

// Read retrieves buffered points, oldest first. A positive limit caps the
// result from the newest end; a non-zero since excludes older points.
func (h *Hub) Read(stream string, limit int, since time.Time) ([]Point, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st, ok := h.streams[stream]
	if !ok {
		return nil, ErrStreamNotFound
	}

	points := st.points
	if !since.IsZero() {
		idx := len(points)
		for i, p := range points {
			if !p.Time.Before(since) {
				idx = i
				break
			}
		}
		points = points[idx:]
	}
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}

	out := make([]Point, len(points))
	copy(out, points)
	return out, nil
}

// Streams lists the names of every known stream.
func (h *Hub) Streams() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.streams))
	for name := range h.streams {
		out = append(out, name)
	}
	return out
}

// EvictExpired is the retention sweep: it drops points older than the
// retention horizon from every stream and returns the number removed.
func (h *Hub) EvictExpired(_ context.Context) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.retention)
	removed := 0
	for _, st := range h.streams {
		idx := len(st.points)
		for i, p := range st.points {
			if p.Time.After(cutoff) {
				idx = i
				break
			}
		}
		removed += idx
		st.points = st.points[idx:]
	}
	if removed > 0 {
		h.logger.Debug().Int("removed", removed).Msg("evicted expired stream points")
	}
	return removed
}

// stream returns the named stream state, creating it if needed.
// Callers must hold h.mu.
func (h *Hub) stream(name string) *streamState {
	st, ok := h.streams[name]
	if !ok {
		st = &streamState{subs: make(map[string]*subscription)}
		h.streams[name] = st
	}
	return st
}

// deliver invokes one subscriber, containing panics so a failing callback
// cannot disturb the publisher or other subscribers.
func (h *Hub) deliver(stream string, sub *subscription, p Point) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().
				Str("stream", stream).
				Str("subscription_id", sub.id).
				Interface("panic", r).
				Msg("subscriber callback failed")
		}
	}()
	sub.callback(stream, p)
}
