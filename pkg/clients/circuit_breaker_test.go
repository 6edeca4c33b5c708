package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errDownstream = errors.New("downstream unavailable")

func failing(context.Context) error { return errDownstream }
func succeeding(context.Context) error { return nil }

func callN(cb *CircuitBreaker, n int, fn func(context.Context) error) {
	for i := 0; i < n; i++ {
		_ = cb.CallContext(context.Background(), fn)
	}
}

func TestCircuitBreakerTripping(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		passes   int
		want     CircuitBreakerState
	}{
		{"fresh breaker", 0, 0, StateClosed},
		{"below ratio", 4, 6, StateClosed},
		{"at ratio", 5, 5, StateOpen},
		{"all failing", 10, 0, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				Name:         "analysis",
				MinRequests:  10,
				FailureRatio: 0.5,
				Timeout:      time.Second,
			})
			callN(cb, tt.passes, succeeding)
			callN(cb, tt.failures, failing)

			if cb.State() != tt.want {
				t.Fatalf("state = %s, want %s", cb.State(), tt.want)
			}
			if cb.IsOpen() != (tt.want == StateOpen) {
				t.Fatalf("IsOpen = %v in state %s", cb.IsOpen(), cb.State())
			}
		})
	}
}

func TestCircuitBreakerOpenRejectsWithoutCalling(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "analysis", MinRequests: 3, Timeout: time.Second})
	callN(cb, 3, failing)

	called := false
	err := cb.CallContext(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("open breaker must not reach the downstream")
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	tests := []struct {
		name  string
		trial func(context.Context) error
		want  CircuitBreakerState
	}{
		{"trial succeeds", succeeding, StateClosed},
		{"trial fails", failing, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []string
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				Name:        "analysis",
				MinRequests: 3,
				Timeout:     30 * time.Millisecond,
				OnStateChange: func(_ string, _, to CircuitBreakerState) {
					seen = append(seen, to.String())
				},
			})
			callN(cb, 3, failing)
			time.Sleep(50 * time.Millisecond)

			_ = cb.CallContext(context.Background(), tt.trial)
			if cb.State() != tt.want {
				t.Fatalf("state = %s, want %s", cb.State(), tt.want)
			}
			if len(seen) == 0 || seen[0] != "open" {
				t.Fatalf("transitions = %v", seen)
			}
		})
	}
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	if cb.Name() != "circuit-breaker" {
		t.Fatalf("name = %q", cb.Name())
	}
	if err := cb.CallContext(context.Background(), succeeding); err != nil || cb.State() != StateClosed {
		t.Fatalf("err = %v state = %s", err, cb.State())
	}

	def := DefaultCircuitBreakerConfig()
	if def.MinRequests != 10 || def.FailureRatio != 0.5 || def.Timeout != 15*time.Second {
		t.Fatalf("unexpected defaults %+v", def)
	}
}

func TestCircuitBreakerMetricsCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCircuitBreakerMetrics(reg)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "analysis",
		MinRequests:   2,
		FailureRatio:  0.5,
		Timeout:       time.Second,
		OnStateChange: metrics.Callback(),
	})

	callN(cb, 2, failing)

	if got := testutil.ToFloat64(metrics.state.WithLabelValues("analysis")); got != float64(StateOpen) {
		t.Fatalf("expected open state gauge, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.transitions.WithLabelValues("analysis", "closed", "open")); got != 1 {
		t.Fatalf("expected one closed->open transition, got %v", got)
	}
}
