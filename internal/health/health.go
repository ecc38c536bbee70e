package health

import (
	"context"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Report is the aggregated result of probing every component.
type Report struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Probe checks one dependency and returns an error when it is unavailable.
type Probe func(ctx context.Context) error

// Checker probes the client's dependencies: the backend API, the session
// store, and (when configured) the delivery sink.
type Checker struct {
	probes       map[string]Probe
	checkTimeout time.Duration
}

// NewChecker creates a checker with the given per-probe timeout.
func NewChecker(checkTimeout time.Duration) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		probes:       make(map[string]Probe),
		checkTimeout: checkTimeout,
	}
}

// Register adds a named probe.
func (c *Checker) Register(name string, probe Probe) {
	c.probes[name] = probe
}

// Check runs every probe and aggregates the results. The report is degraded
// when some probes fail and unhealthy when the backend probe fails.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: make(map[string]ComponentHealth, len(c.probes)),
	}

	failed := 0
	for name, probe := range c.probes {
		start := time.Now()

		probeCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
		err := probe(probeCtx)
		cancel()

		component := ComponentHealth{
			Status:   StatusHealthy,
			Duration: time.Since(start).String(),
		}
		if err != nil {
			component.Status = StatusUnhealthy
			component.Message = err.Error()
			failed++
			if name == "backend" {
				report.Status = StatusUnhealthy
			}
		}
		report.Components[name] = component
	}

	if failed > 0 && report.Status == StatusHealthy {
		report.Status = StatusDegraded
	}

	return report
}
