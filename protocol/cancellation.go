package protocol

import "sync/atomic"

// CancellationToken is a runtime-agnostic, cooperative cancellation signal
// threaded into every in-flight request's handler context. Adapted from the
// original SDK's shared::cancellation::CancellationToken (an AtomicBool),
// generalized to also carry the human-readable reason that accompanied the
// peer's notifications/cancelled message, since handlers and middleware
// logging both want to report why a request stopped (SPEC_FULL.md §5).
type CancellationToken struct {
	cancelled atomic.Bool
	reason    atomic.Value // string
}

// NewCancellationToken returns a token in the not-cancelled state.
func NewCancellationToken() *CancellationToken {
	t := &CancellationToken{}
	t.reason.Store("")
	return t
}

// Cancel marks the token cancelled, recording reason if this is the first
// call. Subsequent calls are no-ops: the first reason wins.
func (t *CancellationToken) Cancel(reason string) {
	if t.cancelled.CompareAndSwap(false, true) {
		t.reason.Store(reason)
	}
}

// IsCancelled reports whether Cancel has been called.
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Reason returns the reason passed to the first Cancel call, or "" if the
// token has not been cancelled.
func (t *CancellationToken) Reason() string {
	return t.reason.Load().(string)
}
