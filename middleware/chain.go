// Package middleware implements the priority-ordered interceptor pipeline
// described in spec.md §4.5/§4.6 (C6): built-in rate limiting, circuit
// breaking, metrics, compression, and validation, composed around handler
// invocation with symmetric request/response ordering.
package middleware

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/nexuskit/mcp-core/wire"
)

// Priority orders middleware execution; lower numeric value runs first on
// on_request and last on on_response/on_send (spec.md §3 MiddlewareChain).
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityLowest
)

// Context is the per-request mutable side channel visible to every
// middleware for the lifetime of one handler invocation (spec.md §3
// MiddlewareContext). It is discarded after the request completes.
type Context struct {
	SessionID string
	Method    string
	RequestID string
	Priority  Priority
	Metadata  map[string]string

	mu      sync.Mutex
	metrics MetricSink
}

func NewContext(sessionID, method, requestID string) *Context {
	return &Context{SessionID: sessionID, Method: method, RequestID: requestID, Metadata: map[string]string{}}
}

func (c *Context) SetMetricSink(s MetricSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = s
}

func (c *Context) MetricSink() MetricSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// MetricSink is the one permitted cross-session shared mutable structure
// (spec.md §5): implementations must use atomic counters or a lock-free
// histogram internally.
type MetricSink interface {
	ObserveRequest(method string, errOccurred bool, latencySeconds float64)
}

// Middleware is the interceptor contract: name, priority, an optional gate,
// and up to four hooks. Embed Base to get no-op defaults for hooks a
// middleware does not need.
type Middleware interface {
	Name() string
	Priority() Priority
	ShouldExecute(ctx *Context) bool

	// OnRequest runs high-priority-first, before the handler. Returning a
	// non-nil error short-circuits dispatch without invoking the handler.
	OnRequest(ctx context.Context, mwctx *Context, params *json.RawMessage) error

	// OnResponse runs low-priority-first (reverse of OnRequest), after the
	// handler has produced a result but before it is framed as a wire
	// response.
	OnResponse(ctx context.Context, mwctx *Context, result *json.RawMessage) error

	// OnSend runs low-priority-first, immediately before the assembled
	// wire.Message is handed to the transport.
	OnSend(ctx context.Context, mwctx *Context, msg *wire.Message) error

	// OnError is broadcast on terminal failure to every middleware in the
	// chain's declared order whose ShouldExecute returns true, regardless of
	// whether that middleware's OnRequest ran. It returns nothing, so it
	// cannot replace the primary error (spec.md §4.5, §7).
	OnError(ctx context.Context, mwctx *Context, err error)
}

// Base supplies no-op hook implementations; built-ins embed it and
// override only what they need.
type Base struct{}

func (Base) Name() string                      { return "base" }
func (Base) Priority() Priority                 { return PriorityNormal }
func (Base) ShouldExecute(*Context) bool        { return true }
func (Base) OnRequest(context.Context, *Context, *json.RawMessage) error  { return nil }
func (Base) OnResponse(context.Context, *Context, *json.RawMessage) error { return nil }
func (Base) OnSend(context.Context, *Context, *wire.Message) error        { return nil }
func (Base) OnError(context.Context, *Context, error)                    {}

// Chain is an immutable, priority-sorted sequence of middlewares, built once
// at server construction (spec.md §3 MiddlewareChain).
type Chain struct {
	mws []Middleware
}

// NewChain builds a Chain, stably sorted by ascending Priority (Critical
// first). Stable sort preserves registration order among same-priority
// middlewares, matching the teacher's registration-order handler semantics
// elsewhere in the codebase.
func NewChain(mws ...Middleware) *Chain {
	sorted := make([]Middleware, len(mws))
	copy(sorted, mws)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Chain{mws: sorted}
}

// RunRequest executes on_request hooks high-priority-first. It returns the
// list of middlewares that were entered (ShouldExecute true), so RunResponse
// can mirror exactly that subset in reverse (P6).
func (c *Chain) RunRequest(ctx context.Context, mwctx *Context, params *json.RawMessage) (entered []Middleware, err error) {
	for _, mw := range c.mws {
		if !mw.ShouldExecute(mwctx) {
			continue
		}
		entered = append(entered, mw)
		if err = mw.OnRequest(ctx, mwctx, params); err != nil {
			return entered, err
		}
	}
	return entered, nil
}

// RunResponse executes on_response for the entered middlewares in reverse order.
func (c *Chain) RunResponse(ctx context.Context, mwctx *Context, entered []Middleware, result *json.RawMessage) error {
	for i := len(entered) - 1; i >= 0; i-- {
		if err := entered[i].OnResponse(ctx, mwctx, result); err != nil {
			return err
		}
	}
	return nil
}

// RunSend executes on_send for the entered middlewares in reverse order,
// mirroring OnResponse so compression wrap/unwrap stays symmetric.
func (c *Chain) RunSend(ctx context.Context, mwctx *Context, entered []Middleware, msg *wire.Message) error {
	for i := len(entered) - 1; i >= 0; i-- {
		if err := entered[i].OnSend(ctx, mwctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// RunError broadcasts a terminal failure to every middleware in the chain's
// declared order, regardless of whether it was entered for this request;
// middlewares whose ShouldExecute returns false are skipped.
func (c *Chain) RunError(ctx context.Context, mwctx *Context, err error) {
	for _, mw := range c.mws {
		if !mw.ShouldExecute(mwctx) {
			continue
		}
		mw.OnError(ctx, mwctx, err)
	}
}

// Middlewares returns the sorted chain contents, for diagnostics.
func (c *Chain) Middlewares() []Middleware { return append([]Middleware{}, c.mws...) }
