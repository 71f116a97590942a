package middleware

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nexuskit/mcp-core/wire"
)

// CircuitBreaker trips per-method once failures cross a threshold (spec.md
// property P9), rejecting further calls to that method with
// CodeCircuitBreakerOpen until the reset timeout elapses and a trial call
// succeeds. One gobreaker.CircuitBreaker is created lazily per method name,
// since different tools fail independently of one another. window and
// timeout are threaded through to gobreaker.Settings.Interval/Timeout the
// same way recovery.CircuitBreaker does it (spec.md §4.5/§4.7 share the
// window/timeout parameters between the two composable forms).
type CircuitBreaker struct {
	Base
	maxFailures uint32
	window      time.Duration
	timeout     time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
	done     map[string]func(bool)
}

func NewCircuitBreaker(maxFailures uint32, window, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		window:      window,
		timeout:     timeout,
		breakers:    map[string]*gobreaker.TwoStepCircuitBreaker{},
		done:        map[string]func(bool){},
	}
}

func (c *CircuitBreaker) Name() string       { return "circuit_breaker" }
func (c *CircuitBreaker) Priority() Priority { return PriorityHigh }

func (c *CircuitBreaker) breakerFor(method string) *gobreaker.TwoStepCircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[method]
	if !ok {
		b = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:     method,
			Interval: c.window,
			Timeout:  c.timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= c.maxFailures
			},
		})
		c.breakers[method] = b
	}
	return b
}

// OnRequest asks the breaker for this method for permission to proceed,
// stashing the two-step "done" callback keyed by request id so OnResponse
// or OnError can later report the outcome back to the same breaker.
func (c *CircuitBreaker) OnRequest(_ context.Context, mwctx *Context, _ *json.RawMessage) error {
	done, err := c.breakerFor(mwctx.Method).Allow()
	if err != nil {
		return wire.NewError(wire.CodeCircuitBreakerOpen, "circuit open for method "+mwctx.Method)
	}
	c.mu.Lock()
	c.done[mwctx.RequestID] = done
	c.mu.Unlock()
	return nil
}

func (c *CircuitBreaker) OnResponse(_ context.Context, mwctx *Context, _ *json.RawMessage) error {
	c.reportOutcome(mwctx.RequestID, true)
	return nil
}

func (c *CircuitBreaker) OnError(_ context.Context, mwctx *Context, _ error) {
	c.reportOutcome(mwctx.RequestID, false)
}

func (c *CircuitBreaker) reportOutcome(requestID string, success bool) {
	c.mu.Lock()
	done, ok := c.done[requestID]
	delete(c.done, requestID)
	c.mu.Unlock()
	if ok {
		done(success)
	}
}
