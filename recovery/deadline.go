package recovery

import (
	"context"
	"time"

	"github.com/nexuskit/mcp-core/wire"
)

// Deadline wraps an inner operation with a wall-clock budget (spec.md
// §4.7): each attempt is only started while remaining budget is positive,
// and a budget exceeded mid-attempt surfaces as a timeout error rather
// than whatever the inner operation itself returned.
type Deadline struct {
	Budget time.Duration
	Inner  Operation
}

func (d Deadline) Run(ctx context.Context) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, d.Budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Inner(deadlineCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-deadlineCtx.Done():
		return wire.NewError(wire.CodeRequestTimeout, "recovery deadline exceeded after "+d.Budget.String())
	}
}
