package recovery

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nexuskit/mcp-core/wire"
)

// CircuitBreaker wraps any operation with a standalone circuit breaker
// (spec.md §4.7: "as §4.5 but composable standalone around any
// operation"), sharing the same gobreaker primitive as
// middleware.CircuitBreaker but without the middleware chain's
// per-method/per-session bookkeeping.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(name string, failureThreshold uint32, window, timeout time.Duration) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		Interval:    window,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= failureThreshold },
	}
	return &CircuitBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (c *CircuitBreaker) Run(ctx context.Context, op Operation) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return wire.NewError(wire.CodeCircuitBreakerOpen, "circuit breaker open: "+err.Error())
	}
	return err
}

func (c *CircuitBreaker) State() gobreaker.State {
	return c.breaker.State()
}
