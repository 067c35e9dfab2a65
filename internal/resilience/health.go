package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency_ns"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthMonitorConfig holds health monitor configuration.
type HealthMonitorConfig struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
}

// DefaultHealthMonitorConfig returns default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval: 30 * time.Second,
		CheckTimeout:  5 * time.Second,
	}
}

// HealthMonitor runs registered component checks and keeps the latest results.
type HealthMonitor struct {
	mu     sync.RWMutex
	config HealthMonitorConfig
	logger zerolog.Logger

	startTime       time.Time
	components      map[string]HealthCheck
	componentHealth map[string]ComponentHealth
	overallStatus   HealthStatus

	totalChecks     int64
	failedChecks    int64
	panicRecoveries int64
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(config HealthMonitorConfig, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		config:          config,
		logger:          logger.With().Str("component", "health").Logger(),
		startTime:       time.Now(),
		components:      make(map[string]HealthCheck),
		componentHealth: make(map[string]ComponentHealth),
		overallStatus:   HealthStatusUnknown,
	}
}

// RegisterComponent registers a health check for a component.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// Start runs checks immediately and then on every interval until ctx is done.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	m.RunChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunChecks(ctx)
		}
	}
}

// RunChecks runs every registered check concurrently and updates the snapshot.
func (m *HealthMonitor) RunChecks(ctx context.Context) {
	m.mu.RLock()
	components := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.config.CheckTimeout)
	defer cancel()

	var (
		wg      conc.WaitGroup
		resMu   sync.Mutex
		results = make([]ComponentHealth, 0, len(components)+1)
		panicky int64
	)

	for name, check := range components {
		wg.Go(func() {
			var pc panics.Catcher
			var health ComponentHealth
			start := time.Now()
			pc.Try(func() { health = check(ctx) })

			if r := pc.Recovered(); r != nil {
				health = ComponentHealth{
					Status:  HealthStatusUnhealthy,
					Message: fmt.Sprintf("Panic recovered: %v", r.Value),
				}
				resMu.Lock()
				panicky++
				resMu.Unlock()
			}
			health.Name = name
			health.LastCheck = time.Now()
			if health.Latency == 0 {
				health.Latency = time.Since(start)
			}

			resMu.Lock()
			results = append(results, health)
			resMu.Unlock()
		})
	}
	wg.Wait()

	results = append(results, checkRuntime())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalChecks++
	m.panicRecoveries += panicky

	overall := HealthStatusHealthy
	for _, health := range results {
		m.componentHealth[health.Name] = health
		switch health.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
			m.failedChecks++
			m.logger.Warn().
				Str("check", health.Name).
				Str("message", health.Message).
				Msg("Component unhealthy")
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}
	m.overallStatus = overall
}

func checkRuntime() ComponentHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return ComponentHealth{
		Name:      "runtime",
		Status:    HealthStatusHealthy,
		LastCheck: time.Now(),
		Details: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"alloc_mb":   memStats.Alloc / 1024 / 1024,
			"sys_mb":     memStats.Sys / 1024 / 1024,
			"num_gc":     memStats.NumGC,
		},
	}
}

// SystemHealth represents overall system health.
type SystemHealth struct {
	Status          HealthStatus      `json:"status"`
	Uptime          string            `json:"uptime"`
	StartTime       time.Time         `json:"start_time"`
	Components      []ComponentHealth `json:"components"`
	TotalChecks     int64             `json:"total_checks"`
	FailedChecks    int64             `json:"failed_checks"`
	PanicRecoveries int64             `json:"panic_recoveries"`
}

// GetHealth returns the current health status.
func (m *HealthMonitor) GetHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make([]ComponentHealth, 0, len(m.componentHealth))
	for _, h := range m.componentHealth {
		components = append(components, h)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return SystemHealth{
		Status:          m.overallStatus,
		Uptime:          time.Since(m.startTime).Round(time.Second).String(),
		StartTime:       m.startTime,
		Components:      components,
		TotalChecks:     m.totalChecks,
		FailedChecks:    m.failedChecks,
		PanicRecoveries: m.panicRecoveries,
	}
}

// GetComponentHealth returns health for a specific component.
func (m *HealthMonitor) GetComponentHealth(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health, ok := m.componentHealth[name]
	return health, ok
}

// PingHealthCheck creates a health check for a backing service reachable by ping.
func PingHealthCheck(name string, slow time.Duration, ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Name: name}

		start := time.Now()
		err := ping(ctx)
		health.Latency = time.Since(start)

		if err != nil {
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("%s ping failed: %v", name, err)
			return health
		}

		if health.Latency > slow {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("%s slow: %v", name, health.Latency)
			return health
		}

		health.Status = HealthStatusHealthy
		health.Message = fmt.Sprintf("%s healthy: %v", name, health.Latency)
		return health
	}
}
