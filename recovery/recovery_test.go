package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexuskit/mcp-core/wire"
)

func TestRetryFixedSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := RetryFixed(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return RetryableError(errors.New("transient"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryFixedGivesUpAfterN(t *testing.T) {
	attempts := 0
	err := RetryFixed(context.Background(), 2, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return RetryableError(errors.New("always fails"))
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryExponentialCapsDelay(t *testing.T) {
	attempts := 0
	start := time.Now()
	err := RetryExponential(context.Background(), 4, time.Millisecond, 5*time.Millisecond, 2.0, func(ctx context.Context) error {
		attempts++
		if attempts < 4 {
			return RetryableError(errors.New("retry me"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, attempts)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetryAdaptiveDecorrelatedJitterEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := RetryAdaptive(context.Background(), 5, time.Millisecond, 10*time.Millisecond, JitterDecorrelated, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return RetryableError(errors.New("retry me"))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNonRetryableErrorStopsImmediately(t *testing.T) {
	attempts := 0
	err := RetryFixed(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return errors.New("terminal, not retryable")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDeadlineTimesOutSlowOperation(t *testing.T) {
	d := Deadline{Budget: 10 * time.Millisecond, Inner: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	err := d.Run(context.Background())
	require.Error(t, err)
}

func TestDeadlineAllowsFastOperation(t *testing.T) {
	d := Deadline{Budget: 50 * time.Millisecond, Inner: func(ctx context.Context) error { return nil }}
	require.NoError(t, d.Run(context.Background()))
}

func TestBulkAllSuccess(t *testing.T) {
	b := Bulk{Threshold: 0.5}
	ops := []Operation{okOp, okOp, okOp}
	result := b.Run(context.Background(), ops)
	require.Equal(t, AllSuccess, result.Outcome)
}

func TestBulkPartialSuccessAboveThreshold(t *testing.T) {
	b := Bulk{Threshold: 0.5}
	ops := []Operation{okOp, okOp, failOp}
	result := b.Run(context.Background(), ops)
	require.Equal(t, PartialSuccess, result.Outcome)
}

func TestBulkAllFailedBelowThreshold(t *testing.T) {
	b := Bulk{Threshold: 0.9}
	ops := []Operation{okOp, failOp, failOp}
	result := b.Run(context.Background(), ops)
	require.Equal(t, AllFailed, result.Outcome)
}

func TestBulkFailFastStopsEarly(t *testing.T) {
	ran := 0
	countingOp := func(ctx context.Context) error { ran++; return nil }
	b := Bulk{Threshold: 0.5, FailFast: true}
	ops := []Operation{failOp, countingOp, countingOp}
	b.Run(context.Background(), ops)
	require.Equal(t, 0, ran)
}

func TestFallbackInvokesAlternateOnPrimaryFailure(t *testing.T) {
	f := Fallback{
		Primary:   failOp,
		Alternate: okOp,
	}
	require.NoError(t, f.Run(context.Background()))
}

func TestFallbackSkipsAlternateOnPrimarySuccess(t *testing.T) {
	alternateCalled := false
	f := Fallback{
		Primary:   okOp,
		Alternate: func(ctx context.Context) error { alternateCalled = true; return nil },
	}
	require.NoError(t, f.Run(context.Background()))
	require.False(t, alternateCalled)
}

func TestCascadeDetectorFindsTransitiveDependents(t *testing.T) {
	c := NewCascadeCoordinator()
	c.DependsOn("gateway", "database")
	c.DependsOn("api", "gateway")

	dependents := c.DetectCascade("database")
	require.ElementsMatch(t, []string{"gateway", "api"}, dependents)
}

func TestCascadeDetectorNotifiesSubscribers(t *testing.T) {
	c := NewCascadeCoordinator()
	c.DependsOn("gateway", "database")

	var received *CascadingFailure
	c.Subscribe(func(event CascadingFailure) { received = &event })

	c.ReportUnhealthy("database")

	require.NotNil(t, received)
	require.Equal(t, "database", received.Component)
	require.Equal(t, []string{"gateway"}, received.Dependents)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Second, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		err := cb.Run(context.Background(), failOp)
		require.Error(t, err)
	}
	err := cb.Run(context.Background(), okOp)
	require.Error(t, err)
}

func okOp(ctx context.Context) error   { return nil }
func failOp(ctx context.Context) error { return errors.New("boom") }

func TestMapErrorPreservesExplicitWireCode(t *testing.T) {
	werr := wire.NewError(wire.CodeForbidden, "nope")
	mapped := MapError(werr)
	require.Equal(t, wire.CodeForbidden, mapped.Code)
}

func TestMapErrorDefaultsToInternal(t *testing.T) {
	mapped := MapError(errors.New("unexpected"))
	require.Equal(t, wire.CodeInternalError, mapped.Code)
}

func TestMapErrorMapsDeadlineExceeded(t *testing.T) {
	mapped := MapError(context.DeadlineExceeded)
	require.Equal(t, wire.CodeRequestTimeout, mapped.Code)
}
