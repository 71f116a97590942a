package recovery

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"github.com/nexuskit/mcp-core/wire"
)

// MapError applies the recovery error-code mapping from spec.md §4.7:
// timeouts become REQUEST_TIMEOUT, circuit-open becomes
// CIRCUIT_BREAKER_OPEN, and anything else falls back to INTERNAL unless
// the error already carries an explicit wire code.
func MapError(err error) *wire.Error {
	if err == nil {
		return nil
	}
	var werr *wire.Error
	if errors.As(err, &werr) {
		return werr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wire.NewError(wire.CodeRequestTimeout, err.Error())
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return wire.NewError(wire.CodeCircuitBreakerOpen, err.Error())
	}
	return wire.NewError(wire.CodeInternalError, err.Error())
}
