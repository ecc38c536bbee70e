package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds client-side counters and gauges: jobs submitted, events
// applied, reconnects, deliveries, and so on.
type Metrics struct {
	mu sync.RWMutex

	counters map[string]*uint64
	gauges   map[string]float64

	startTime time.Time
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		counters:  make(map[string]*uint64),
		gauges:    make(map[string]float64),
		startTime: time.Now(),
	}
}

// global metrics instance
var defaultMetrics = New()

// Default returns the default metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// Counter names used across the client.
const (
	CounterJobsSubmitted  = "jobs_submitted"
	CounterJobsCompleted  = "jobs_completed"
	CounterJobsCancelled  = "jobs_cancelled"
	CounterJobsFailed     = "jobs_failed"
	CounterEventsApplied  = "events_applied"
	CounterEventsDropped  = "events_dropped"
	CounterReconnects     = "reconnects"
	CounterDeliveries     = "deliveries"
	CounterDeliveryErrors = "delivery_errors"
	CounterStoreDiscards  = "store_corrupt_discards"
)

// IncrCounter increments a named counter
func (m *Metrics) IncrCounter(name string) {
	m.mu.Lock()
	if m.counters[name] == nil {
		var zero uint64
		m.counters[name] = &zero
	}
	c := m.counters[name]
	m.mu.Unlock()

	atomic.AddUint64(c, 1)
}

// Counter returns the current value of a named counter
func (m *Metrics) Counter(name string) uint64 {
	m.mu.RLock()
	c := m.counters[name]
	m.mu.RUnlock()

	if c == nil {
		return 0
	}
	return atomic.LoadUint64(c)
}

// SetGauge sets a named gauge value
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	m.gauges[name] = value
	m.mu.Unlock()
}

// Gauge returns the current value of a named gauge
func (m *Metrics) Gauge(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[name]
}

// Snapshot returns all counters and gauges plus uptime, for the status command.
type Snapshot struct {
	Uptime   time.Duration      `json:"uptime"`
	Counters map[string]uint64  `json:"counters"`
	Gauges   map[string]float64 `json:"gauges"`
}

// Collect returns a point-in-time snapshot with stable key order
func (m *Metrics) Collect() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Counters: make(map[string]uint64, len(m.counters)),
		Gauges:   make(map[string]float64, len(m.gauges)),
	}

	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Counters[name] = atomic.LoadUint64(m.counters[name])
	}

	for name, v := range m.gauges {
		snap.Gauges[name] = v
	}

	return snap
}

// Package-level helpers on the default instance

func IncrCounter(name string) {
	defaultMetrics.IncrCounter(name)
}

func Counter(name string) uint64 {
	return defaultMetrics.Counter(name)
}
