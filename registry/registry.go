// Package registry implements the handler registry (spec.md §4.4, C5): a
// uniform invoke(params, extra) shape per handler category, typed handlers
// with declarative schema generation and dispatch-time validation, tool
// authorization, and the resources/subscribe subscription table. Adapted
// from the teacher's SetRequestHandler map-of-methods pattern
// (internal/protocol/protocol.go), generalized into per-category typed
// registration instead of one flat method-name map.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nexuskit/mcp-core/auth"
	"github.com/nexuskit/mcp-core/protocol"
	"github.com/nexuskit/mcp-core/wire"
)

// Registry implements protocol.Handler, dispatching each MCP method to its
// registered category handler. Registration happens during server setup;
// after Serve begins, Registry is read-mostly and safe for concurrent
// dispatch (spec.md §5 "immutable after server construction").
type Registry struct {
	mu sync.RWMutex

	tools     map[string]*toolEntry
	resources map[string]*resourceEntry
	prompts   map[string]*promptEntry

	samplingHandler   SamplingHandler
	completionHandler CompletionHandler
	loggingHandler    LoggingHandler

	authorizer auth.ToolAuthorizer

	subs *subscriptionTable
}

func New() *Registry {
	return &Registry{
		tools:     map[string]*toolEntry{},
		resources: map[string]*resourceEntry{},
		prompts:   map[string]*promptEntry{},
		subs:      newSubscriptionTable(),
	}
}

// WithAuthorizer installs the tool authorizer consulted before every
// tools/call invocation (spec.md §4.4).
func (r *Registry) WithAuthorizer(az auth.ToolAuthorizer) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorizer = az
	return r
}

// SamplingHandler services sampling/createMessage requests. There is no
// built-in implementation: model invocation is always user-supplied.
type SamplingHandler func(ctx context.Context, params wire.SamplingCreateParams, extra protocol.Extra) (*wire.SamplingCreateResult, *wire.Error)

// CompletionHandler services completion/complete requests.
type CompletionHandler func(ctx context.Context, params wire.CompletionCompleteParams, extra protocol.Extra) (*wire.CompletionCompleteResult, *wire.Error)

// LoggingHandler services logging/setLevel requests.
type LoggingHandler func(ctx context.Context, level string, extra protocol.Extra) *wire.Error

func (r *Registry) SetSamplingHandler(h SamplingHandler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samplingHandler = h
	return r
}

func (r *Registry) SetCompletionHandler(h CompletionHandler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completionHandler = h
	return r
}

func (r *Registry) SetLoggingHandler(h LoggingHandler) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggingHandler = h
	return r
}

// Invoke implements protocol.Handler.
func (r *Registry) Invoke(ctx context.Context, method string, params json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	switch method {
	case wire.MethodPing:
		return json.RawMessage(`{}`), nil

	case wire.MethodToolsList:
		return marshalResult(r.listTools())

	case wire.MethodToolsCall:
		return r.callTool(ctx, params, extra)

	case wire.MethodResourcesList:
		return marshalResult(r.listResources())

	case wire.MethodResourcesRead:
		return r.readResource(ctx, params, extra)

	case wire.MethodResourcesSubscribe:
		return r.subscribeResource(params, extra)

	case wire.MethodPromptsList:
		return marshalResult(r.listPrompts())

	case wire.MethodPromptsGet:
		return r.getPrompt(ctx, params, extra)

	case wire.MethodSamplingCreate:
		return r.createSample(ctx, params, extra)

	case wire.MethodCompletionComplete:
		return r.complete(ctx, params, extra)

	case wire.MethodLoggingSetLevel:
		return r.setLoggingLevel(ctx, params, extra)

	default:
		return nil, wire.NewError(wire.CodeMethodNotFound, "method not found: "+method)
	}
}

func marshalResult(v interface{}, err *wire.Error) (json.RawMessage, *wire.Error) {
	if err != nil {
		return nil, err
	}
	b, jerr := json.Marshal(v)
	if jerr != nil {
		return nil, wire.NewError(wire.CodeInternalError, "failed to marshal result: "+jerr.Error())
	}
	return b, nil
}

// validateAgainstSchema runs dispatch-time validation (spec.md §4.4) using
// gojsonschema against a schema generated by invopop/jsonschema at
// registration time (see tools.go/RegisterTypedTool).
func validateAgainstSchema(schema []byte, payload json.RawMessage) *wire.Error {
	if len(schema) == 0 {
		return nil
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return wire.NewError(wire.CodeInvalidParams, "schema evaluation failed: "+err.Error())
	}
	if result.Valid() {
		return nil
	}
	return wire.NewElicitErrorFromSchemaErrors(result.Errors())
}

// sortedKeys returns m's keys in ascending order, for deterministic listing
// results independent of Go's randomized map iteration.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var errNotFound = func(kind, name string) *wire.Error {
	return wire.NewError(wire.CodeInvalidParams, fmt.Sprintf("%s not found: %s", kind, name))
}
