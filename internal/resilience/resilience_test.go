package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "stockwatch/internal/errors"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Execute() error = %v, want boom", err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %s, want OPEN", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || !apperrors.IsUpstream(err) {
		t.Errorf("Execute() on open circuit error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("function ran while circuit open")
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("finnhub", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	if cb.State() != CircuitOpen {
		t.Fatalf("State() = %s, want OPEN", cb.State())
	}

	now = now.Add(2 * time.Second)
	got, err := ExecuteWithResult(cb, context.Background(), func(context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Fatalf("ExecuteWithResult() = %d, %v", got, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("State() = %s, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	err := cb.Execute(context.Background(), func(context.Context) error {
		return apperrors.NewProviderError("yahoo", "chart", 404, apperrors.ErrNotFound)
	})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("Execute() error = %v, want not found", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("State() = %s, want CLOSED", cb.State())
	}
}

func TestHealthMonitor_RunChecks(t *testing.T) {
	m := NewHealthMonitor(DefaultHealthMonitorConfig(), zerolog.Nop())
	m.RegisterComponent("database", PingHealthCheck("database", time.Second, func(context.Context) error { return nil }))
	m.RegisterComponent("redis", PingHealthCheck("redis", time.Second, func(context.Context) error { return errors.New("refused") }))
	m.RegisterComponent("flaky", func(context.Context) ComponentHealth { panic("oops") })

	m.RunChecks(context.Background())
	h := m.GetHealth()

	if h.Status != HealthStatusUnhealthy {
		t.Errorf("Status = %s, want UNHEALTHY", h.Status)
	}
	if h.PanicRecoveries != 1 {
		t.Errorf("PanicRecoveries = %d, want 1", h.PanicRecoveries)
	}

	db, ok := m.GetComponentHealth("database")
	if !ok || db.Status != HealthStatusHealthy {
		t.Errorf("database health = %+v", db)
	}
	if _, ok := m.GetComponentHealth("runtime"); !ok {
		t.Error("runtime component missing")
	}
}

func TestRegistry_HealthCheckDegradedWhenOpen(t *testing.T) {
	r := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})
	_ = r.Get("yahoo").Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	r.Get("finnhub")

	h := r.HealthCheck()(context.Background())
	if h.Status != HealthStatusDegraded {
		t.Errorf("Status = %s, want DEGRADED", h.Status)
	}
	if len(r.AllStats()) != 2 {
		t.Errorf("AllStats() len = %d, want 2", len(r.AllStats()))
	}
}
