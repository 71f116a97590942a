package protocol

import (
	"context"
	"encoding/json"

	"github.com/nexuskit/mcp-core/auth"
	"github.com/nexuskit/mcp-core/wire"
)

// ProgressSink is the handler-facing half of the progress model (spec.md
// §4.6): handlers call Report as often as they like; the core turns each
// call into a notifications/progress message, and silently drops any call
// made after the handler has already returned.
type ProgressSink interface {
	Report(progress float64, total float64, message string)
}

type noopProgressSink struct{}

func (noopProgressSink) Report(float64, float64, string) {}

// Extra is the per-invocation context passed to every registered handler,
// mirroring the teacher's RequestHandlerExtra plus the auth/cancellation
// fields the original Rust SDK's shared::cancellation::RequestHandlerExtra
// adds (SPEC_FULL.md §5).
type Extra struct {
	RequestID   string
	SessionID   string
	AuthContext *auth.AuthContext
	Cancel      *CancellationToken
	Progress    ProgressSink
}

// Handler is the narrow capability the protocol core depends on to execute
// a method call; registry.Registry implements it. Defining it here (rather
// than importing the registry package) keeps protocol free of a dependency
// on registry, matching the "protocol imports auth, not vice versa" layering.
type Handler interface {
	// Invoke dispatches method with the given raw params, returning either a
	// raw JSON result or a wire.Error classified per spec.md §4.1.
	Invoke(ctx context.Context, method string, params json.RawMessage, extra Extra) (json.RawMessage, *wire.Error)
}

// HandlerFunc adapts a plain function to Handler, useful in tests and for
// trivial single-method cores.
type HandlerFunc func(ctx context.Context, method string, params json.RawMessage, extra Extra) (json.RawMessage, *wire.Error)

func (f HandlerFunc) Invoke(ctx context.Context, method string, params json.RawMessage, extra Extra) (json.RawMessage, *wire.Error) {
	return f(ctx, method, params, extra)
}
