package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexuskit/mcp-core/wire"
)

type recordingMiddleware struct {
	Base
	name     string
	priority Priority
	events   *[]string
	failOn   string
}

func (m *recordingMiddleware) Name() string       { return m.name }
func (m *recordingMiddleware) Priority() Priority { return m.priority }

func (m *recordingMiddleware) OnRequest(_ context.Context, _ *Context, _ *json.RawMessage) error {
	*m.events = append(*m.events, m.name+":request")
	if m.failOn == "request" {
		return wire.NewError(wire.CodeInternalError, "boom")
	}
	return nil
}

func (m *recordingMiddleware) OnResponse(_ context.Context, _ *Context, _ *json.RawMessage) error {
	*m.events = append(*m.events, m.name+":response")
	return nil
}

func (m *recordingMiddleware) OnSend(_ context.Context, _ *Context, _ *wire.Message) error {
	*m.events = append(*m.events, m.name+":send")
	return nil
}

func (m *recordingMiddleware) OnError(_ context.Context, _ *Context, _ error) {
	*m.events = append(*m.events, m.name+":error")
}

func TestChainRunsRequestHighPriorityFirstAndResponseReversed(t *testing.T) {
	var events []string
	critical := &recordingMiddleware{name: "critical", priority: PriorityCritical, events: &events}
	low := &recordingMiddleware{name: "low", priority: PriorityLow, events: &events}
	chain := NewChain(low, critical) // registered out of priority order on purpose

	mwctx := NewContext("sess-1", "tools/call", "req-1")
	entered, err := chain.RunRequest(context.Background(), mwctx, nil)
	require.NoError(t, err)
	require.Len(t, entered, 2)

	require.NoError(t, chain.RunResponse(context.Background(), mwctx, entered, nil))

	require.Equal(t, []string{
		"critical:request", "low:request",
		"low:response", "critical:response",
	}, events)
}

func TestChainShortCircuitsOnRequestError(t *testing.T) {
	var events []string
	ok := &recordingMiddleware{name: "ok", priority: PriorityCritical, events: &events}
	failing := &recordingMiddleware{name: "failing", priority: PriorityHigh, events: &events, failOn: "request"}
	neverRuns := &recordingMiddleware{name: "never", priority: PriorityLow, events: &events}
	chain := NewChain(ok, failing, neverRuns)

	mwctx := NewContext("sess-1", "tools/call", "req-1")
	entered, err := chain.RunRequest(context.Background(), mwctx, nil)
	require.Error(t, err)
	require.Equal(t, []string{"ok:request", "failing:request"}, events)
	require.Len(t, entered, 2)
}

func TestChainErrorBroadcastsToEveryMiddlewareRegardlessOfEntry(t *testing.T) {
	var events []string
	a := &recordingMiddleware{name: "a", priority: PriorityCritical, events: &events}
	b := &recordingMiddleware{name: "b", priority: PriorityLow, events: &events}
	chain := NewChain(a, b)

	mwctx := NewContext("sess-1", "tools/call", "req-1")
	chain.RunError(context.Background(), mwctx, wire.NewError(wire.CodeInternalError, "boom"))

	require.Equal(t, []string{"a:error", "b:error"}, events)
}
