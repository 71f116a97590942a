// Package recovery implements the declarative recovery primitives of
// spec.md §4.7: retry strategies with jitter, deadlines, circuit breakers,
// bulk execution, fallback, and an advisory cascade detector. Retry
// backoff is built on github.com/sethvargo/go-retry, the same module the
// teacher pack carries as an indirect dependency for jordigilh-kubernaut's
// own retry logic; circuit breaking reuses sony/gobreaker, shared with
// middleware.CircuitBreaker.
package recovery

import (
	"context"
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nexuskit/mcp-core/wire"
)

// Operation is the unit of work a recovery policy wraps. A RetryableError
// return value tells the policy to try again; any other error is terminal.
type Operation func(ctx context.Context) error

// Jitter selects how RetryAdaptive spreads delay around its base value,
// per spec.md §4.7.
type Jitter int

const (
	JitterNone Jitter = iota
	JitterFull
	JitterEqual
	JitterDecorrelated
)

// RetryFixed runs op up to n times total, separated by a constant delay.
func RetryFixed(ctx context.Context, n int, delay time.Duration, op Operation) error {
	backoff := retry.WithMaxRetries(uint64(maxInt(n-1, 0)), retry.NewConstant(delay))
	return runWithBackoff(ctx, backoff, op)
}

// RetryExponential runs op up to n times, with delay growing geometrically
// by mult each attempt and capped at max. A mult of 1 or less falls back to
// doubling.
func RetryExponential(ctx context.Context, n int, initial, max time.Duration, mult float64, op Operation) error {
	if initial <= 0 {
		return wire.NewError(wire.CodeInternalError, "invalid exponential backoff base: initial delay must be greater than zero")
	}
	if mult <= 1 {
		mult = 2
	}
	next := initial
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		d := next
		if grown := time.Duration(float64(next) * mult); grown < max {
			next = grown
		} else {
			next = max
		}
		return d, false
	})
	backoff := retry.WithCappedDuration(max, b)
	backoff = retry.WithMaxRetries(uint64(maxInt(n-1, 0)), backoff)
	return runWithBackoff(ctx, backoff, op)
}

// RetryAdaptive runs op up to n times with a jittered delay derived from
// base, per the jitter kind requested in spec.md §4.7. Decorrelated jitter
// follows the AWS "Exponential Backoff And Jitter" recurrence, capped at max.
func RetryAdaptive(ctx context.Context, n int, base, max time.Duration, kind Jitter, op Operation) error {
	var backoff retry.Backoff
	switch kind {
	case JitterNone:
		b, err := retry.NewExponential(base)
		if err != nil {
			return wire.NewError(wire.CodeInternalError, err.Error())
		}
		backoff = retry.WithCappedDuration(max, b)
	case JitterFull:
		backoff = fullJitterBackoff{base: base, max: max}
	case JitterEqual:
		backoff = equalJitterBackoff{base: base, max: max}
	case JitterDecorrelated:
		backoff = &decorrelatedJitterBackoff{base: base, max: max, prev: base}
	default:
		return wire.NewError(wire.CodeInternalError, "unknown jitter kind")
	}
	backoff = retry.WithMaxRetries(uint64(maxInt(n-1, 0)), backoff)
	return runWithBackoff(ctx, backoff, op)
}

func runWithBackoff(ctx context.Context, backoff retry.Backoff, op Operation) error {
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return wire.NewError(wire.CodeRequestTimeout, "retry exhausted: "+err.Error())
		}
		return err
	}
	return nil
}

// RetryableError marks err as transient, telling a recovery policy to
// retry rather than give up immediately.
func RetryableError(err error) error {
	return retry.RetryableError(err)
}

type fullJitterBackoff struct {
	base, max time.Duration
	attempt   int
}

func (b fullJitterBackoff) Next() (time.Duration, bool) {
	delay := capped(b.base*time.Duration(1<<uint(b.attempt)), b.max)
	return time.Duration(rand.Int63n(int64(delay) + 1)), false
}

type equalJitterBackoff struct {
	base, max time.Duration
	attempt   int
}

func (b equalJitterBackoff) Next() (time.Duration, bool) {
	delay := capped(b.base*time.Duration(1<<uint(b.attempt)), b.max)
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1)), false
}

// decorrelatedJitterBackoff implements the AWS decorrelated-jitter
// recurrence: next = min(max, random_between(base, prev*3)).
type decorrelatedJitterBackoff struct {
	base, max, prev time.Duration
}

func (b *decorrelatedJitterBackoff) Next() (time.Duration, bool) {
	upper := b.prev * 3
	if upper < b.base {
		upper = b.base
	}
	span := int64(upper - b.base)
	next := b.base
	if span > 0 {
		next = b.base + time.Duration(rand.Int63n(span+1))
	}
	next = capped(next, b.max)
	b.prev = next
	return next, false
}

func capped(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	if d < 0 {
		return max
	}
	return d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
