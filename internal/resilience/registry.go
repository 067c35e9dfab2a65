package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CircuitBreakerRegistry manages one circuit breaker per upstream provider.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry with default config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
	}
}

// Get returns or creates a circuit breaker for the given name.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	if cb, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, r.config)
	r.breakers[name] = cb
	return cb
}

// AllStats returns statistics for all circuit breakers, sorted by name.
func (r *CircuitBreakerRegistry) AllStats() []CircuitBreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]CircuitBreakerStats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// HealthCheck reports degraded while any provider circuit is open.
func (r *CircuitBreakerRegistry) HealthCheck() HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		stats := r.AllStats()
		details := make(map[string]interface{}, len(stats))
		var open []string
		for _, s := range stats {
			details[s.Name] = s.State
			if s.State == CircuitOpen {
				open = append(open, s.Name)
			}
		}

		if len(open) > 0 {
			return ComponentHealth{
				Status:  HealthStatusDegraded,
				Message: fmt.Sprintf("open circuits: %v", open),
				Details: details,
			}
		}
		return ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "all provider circuits closed",
			Details: details,
		}
	}
}
