package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "answerview_circuit_breaker_state",
			Help: "Current breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name", "service"},
	)

	breakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_circuit_breaker_requests_total",
			Help: "Requests that passed through a breaker",
		},
		[]string{"name", "service", "state", "result"},
	)

	breakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answerview_circuit_breaker_state_changes_total",
			Help: "Breaker state transitions",
		},
		[]string{"name", "service", "from_state", "to_state"},
	)
)

// MetricsCollector exports breaker state for every registered breaker
type MetricsCollector struct {
	mu       sync.RWMutex
	breakers map[string]registered
}

type registered struct {
	name, service string
	cb            *CircuitBreaker
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{breakers: make(map[string]registered)}
}

// Register hooks the breaker's state change callback into the collector.
func (mc *MetricsCollector) Register(name, service string, cb *CircuitBreaker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.breakers[service+":"+name] = registered{name: name, service: service, cb: cb}

	cb.mutex.Lock()
	prev := cb.config.OnStateChange
	cb.config.OnStateChange = func(cbName string, from, to State) {
		if prev != nil {
			prev(cbName, from, to)
		}
		breakerStateChanges.WithLabelValues(name, service, from.String(), to.String()).Inc()
		breakerState.WithLabelValues(name, service).Set(float64(to))
	}
	cb.mutex.Unlock()
}

// RecordRequest records one call outcome
func (mc *MetricsCollector) RecordRequest(name, service string, state State, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	breakerRequests.WithLabelValues(name, service, state.String(), result).Inc()
}

// Snapshot returns the current state of every registered breaker keyed by "service:name".
func (mc *MetricsCollector) Snapshot() map[string]State {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make(map[string]State, len(mc.breakers))
	for key, r := range mc.breakers {
		st := r.cb.State()
		breakerState.WithLabelValues(r.name, r.service).Set(float64(st))
		out[key] = st
	}
	return out
}

// GlobalMetricsCollector is shared by all wrappers in the process
var GlobalMetricsCollector = NewMetricsCollector()

// StartMetricsCollection refreshes the state gauges until ctx is done.
// Open breakers only move to half-open when observed, so the periodic
// snapshot keeps the gauge honest between requests.
func StartMetricsCollection(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				GlobalMetricsCollector.Snapshot()
			}
		}
	}()
}
