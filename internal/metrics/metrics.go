// Package metrics fans typed lifecycle events out to in-process subscribers
// and mirrors them into Prometheus (spec §4.10), grounded on the teacher's
// pkg/observability.InitMetrics/Record* CounterVec+HistogramVec pattern.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event names the typed lifecycle events of spec §4.10.
type Event string

const (
	EventQueryStart         Event = "query_start"
	EventComplexityDetected Event = "complexity_detected"
	EventStrategySelected   Event = "strategy_selected"
	EventModelCallStart     Event = "model_call_start"
	EventModelCallComplete  Event = "model_call_complete"
	EventModelCallError     Event = "model_call_error"
	EventCascadeDecision    Event = "cascade_decision"
	EventCacheHit           Event = "cache_hit"
	EventCacheMiss          Event = "cache_miss"
	EventQueryComplete      Event = "query_complete"
	EventQueryError         Event = "query_error"
)

// Payload carries whatever fields are relevant to the fired Event; callers
// read the keys they care about.
type Payload map[string]any

// Subscriber receives every fired event. A panicking subscriber is caught
// and counted, never allowed to fail the request (spec §4.10).
type Subscriber func(event Event, payload Payload)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascadeflow_events_total",
			Help: "Total number of lifecycle events fired by the cascade pipeline.",
		},
		[]string{"event"},
	)

	subscriberPanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascadeflow_subscriber_panics_total",
			Help: "Total number of subscriber panics caught by the metrics manager.",
		},
		[]string{"event"},
	)

	modelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cascadeflow_model_call_duration_seconds",
			Help:    "Duration of a single model call.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "role"},
	)

	cascadeCostSaved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cascadeflow_cost_saved_usd",
			Help:    "Signed cost_saved per request (negative on draft rejection).",
			Buckets: []float64{-1, -0.1, -0.01, 0, 0.01, 0.1, 1, 10},
		},
		[]string{"domain"},
	)

	initOnce sync.Once
)

// InitPrometheus registers the collectors exactly once per process.
func InitPrometheus() {
	initOnce.Do(func() {
		prometheus.MustRegister(eventsTotal, subscriberPanicsTotal, modelCallDuration, cascadeCostSaved)
	})
}

// Manager fans events out to registered subscribers in registration order.
// It is single-threaded with respect to any one request — subscribers for a
// request's events are invoked synchronously and in order — but the Manager
// itself may be shared and called concurrently across requests (spec §4.10,
// §5 "Metric subscribers: registered at construction").
type Manager struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewManager builds a Manager with an initial subscriber set.
func NewManager(subscribers ...Subscriber) *Manager {
	return &Manager{subscribers: append([]Subscriber{}, subscribers...)}
}

// Subscribe registers an additional subscriber and returns an unregister
// function. Unregistering does not cancel in-flight dispatches (spec §5).
func (m *Manager) Subscribe(sub Subscriber) (unregister func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
	idx := len(m.subscribers) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.subscribers) {
			m.subscribers[idx] = nil
		}
	}
}

// Fire dispatches event to every live subscriber, catching and counting any
// panic without propagating it to the caller (spec §4.10).
func (m *Manager) Fire(event Event, payload Payload) {
	eventsTotal.WithLabelValues(string(event)).Inc()

	m.mu.RLock()
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub == nil {
			continue
		}
		m.dispatchSafely(sub, event, payload)
	}
}

func (m *Manager) dispatchSafely(sub Subscriber, event Event, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			subscriberPanicsTotal.WithLabelValues(string(event)).Inc()
			_ = fmt.Sprintf("metrics subscriber panic on %s: %v", event, r)
		}
	}()
	sub(event, payload)
}

// RecordModelCall mirrors a completed model call into the Prometheus
// histogram; role is "drafter" or "verifier".
func RecordModelCall(model, role string, d time.Duration) {
	modelCallDuration.WithLabelValues(model, role).Observe(d.Seconds())
}

// RecordCostSaved mirrors one request's signed cost_saved.
func RecordCostSaved(domain string, costSaved float64) {
	cascadeCostSaved.WithLabelValues(domain).Observe(costSaved)
}
