package faulttolerance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const checkTimeout = 5 * time.Second

// CheckFunc checks one dependency.
type CheckFunc func(ctx context.Context) error

// HealthCheck is the last known result of a registered check.
type HealthCheck struct {
	Name      string        `json:"name"`
	Critical  bool          `json:"critical"`
	Status    HealthStatus  `json:"status"`
	LastCheck time.Time     `json:"last_check"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

type registeredCheck struct {
	HealthCheck
	fn CheckFunc
}

// HealthMonitor runs registered checks periodically and aggregates them.
// A failing critical check makes the whole process unhealthy; a failing
// non-critical one only degrades it.
type HealthMonitor struct {
	logger   logrus.FieldLogger
	interval time.Duration

	mu     sync.RWMutex
	checks map[string]*registeredCheck

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(logger logrus.FieldLogger, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		logger:   logger,
		interval: interval,
		checks:   make(map[string]*registeredCheck),
	}
}

// AddCheck registers a check. Checks start healthy until first run.
func (hm *HealthMonitor) AddCheck(name string, critical bool, fn CheckFunc) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checks[name] = &registeredCheck{
		HealthCheck: HealthCheck{Name: name, Critical: critical, Status: HealthStatusHealthy},
		fn:          fn,
	}
}

// Start runs all checks immediately and then every interval until Stop.
func (hm *HealthMonitor) Start(ctx context.Context) {
	ctx, hm.cancel = context.WithCancel(ctx)

	hm.wg.Add(1)
	go func() {
		defer hm.wg.Done()

		ticker := time.NewTicker(hm.interval)
		defer ticker.Stop()

		hm.RunChecks(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hm.RunChecks(ctx)
			}
		}
	}()
	hm.logger.WithField("interval", hm.interval).Info("health monitor started")
}

// Stop stops the monitoring loop and waits for it to exit.
func (hm *HealthMonitor) Stop() {
	if hm.cancel == nil {
		return
	}
	hm.cancel()
	hm.wg.Wait()
	hm.logger.Info("health monitor stopped")
}

// RunChecks runs every check concurrently and records the results.
func (hm *HealthMonitor) RunChecks(ctx context.Context) {
	hm.mu.RLock()
	checks := make([]*registeredCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		checks = append(checks, c)
	}
	hm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range checks {
		wg.Add(1)
		go func(c *registeredCheck) {
			defer wg.Done()
			hm.runCheck(ctx, c)
		}(c)
	}
	wg.Wait()
}

func (hm *HealthMonitor) runCheck(ctx context.Context, c *registeredCheck) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	elapsed := time.Since(start)

	hm.mu.Lock()
	defer hm.mu.Unlock()

	prev := c.Status
	c.LastCheck = start
	c.Duration = elapsed
	if err != nil {
		c.Status = HealthStatusUnhealthy
		if !c.Critical {
			c.Status = HealthStatusDegraded
		}
		c.Error = err.Error()
		if prev != c.Status {
			hm.logger.WithError(err).WithField("check", c.Name).Error("health check failed")
		}
		return
	}

	c.Status = HealthStatusHealthy
	c.Error = ""
	if prev != HealthStatusHealthy {
		hm.logger.WithField("check", c.Name).Info("health check recovered")
	}
}

// Checks returns a copy of every check result, sorted by name.
func (hm *HealthMonitor) Checks() []HealthCheck {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	out := make([]HealthCheck, 0, len(hm.checks))
	for _, c := range hm.checks {
		out = append(out, c.HealthCheck)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OverallHealth returns the worst status across all checks.
func (hm *HealthMonitor) OverallHealth() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	overall := HealthStatusHealthy
	for _, c := range hm.checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			overall = HealthStatusDegraded
		}
	}
	return overall
}
