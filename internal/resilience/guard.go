package resilience

import (
	"context"
	"errors"
)

// Guard combines the per-service circuit breakers with a retry policy.
// Every outbound data-source call goes through a Guard.
type Guard struct {
	breakers *ServiceBreakers
	retry    RetryConfig
}

// NewGuard creates a Guard. A nil breakers registry gets a default one.
func NewGuard(breakers *ServiceBreakers, retry RetryConfig) *Guard {
	if breakers == nil {
		breakers = NewServiceBreakers(DefaultCircuitBreakerConfig())
	}
	return &Guard{breakers: breakers, retry: retry}
}

// Breakers exposes the underlying registry for readiness reporting.
func (g *Guard) Breakers() *ServiceBreakers {
	return g.breakers
}

// Call runs fn for service through its breaker, retrying transient errors
// according to the guard's policy. An open circuit short-circuits retries.
func Call[T any](ctx context.Context, g *Guard, service, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := g.retry
	cfg.OnRetry = RetryLogger(service, operation)
	userRetry := cfg.ShouldRetry
	cfg.ShouldRetry = func(err error) bool {
		if errors.Is(err, ErrCircuitOpen) {
			return false
		}
		if userRetry != nil {
			return userRetry(err)
		}
		return IsTransient(err)
	}

	cb := g.breakers.Get(service)
	return DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, cb, fn)
	})
}
