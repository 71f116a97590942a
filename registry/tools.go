package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/nexuskit/mcp-core/auth"
	"github.com/nexuskit/mcp-core/protocol"
	"github.com/nexuskit/mcp-core/wire"
)

// ToolFunc is the raw-params shape of a tool handler. Most callers should
// prefer RegisterTypedTool, which derives this from a typed function.
type ToolFunc func(ctx context.Context, args json.RawMessage, extra protocol.Extra) (*wire.ToolsCallResult, *wire.Error)

type toolEntry struct {
	tool         wire.Tool
	handler      ToolFunc
	inputSchema  []byte
}

// RegisterTool adds a tool with a raw-JSON handler and a pre-built input
// schema (as a JSON Schema object, or nil to skip validation).
func (r *Registry) RegisterTool(name, description string, inputSchema map[string]interface{}, handler ToolFunc) *Registry {
	var schemaBytes []byte
	if inputSchema != nil {
		schemaBytes, _ = json.Marshal(inputSchema)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = &toolEntry{
		tool:        wire.Tool{Name: name, Description: description, InputSchema: inputSchema},
		handler:     handler,
		inputSchema: schemaBytes,
	}
	return r
}

// RegisterTypedTool derives a JSON Schema for Args via invopop/jsonschema
// and wraps a typed handler so dispatch-time validation and unmarshaling
// happen once, centrally, instead of in every handler (spec.md §4.4
// "a handler may be constructed with an input type whose schema is
// generated declaratively").
func RegisterTypedTool[Args any](r *Registry, name, description string, handler func(ctx context.Context, args Args, extra protocol.Extra) (*wire.ToolsCallResult, *wire.Error)) *Registry {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(new(Args))
	schemaBytes, _ := json.Marshal(schema)

	var schemaMap map[string]interface{}
	_ = json.Unmarshal(schemaBytes, &schemaMap)

	wrapped := ToolFunc(func(ctx context.Context, raw json.RawMessage, extra protocol.Extra) (*wire.ToolsCallResult, *wire.Error) {
		// Params already passed schema validation in Registry.callTool before
		// this handler runs; only unmarshaling into Args remains here.
		var args Args
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, wire.NewError(wire.CodeInvalidParams, "invalid tool arguments: "+err.Error())
			}
		}
		return handler(ctx, args, extra)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = &toolEntry{
		tool:        wire.Tool{Name: name, Description: description, InputSchema: schemaMap},
		handler:     wrapped,
		inputSchema: schemaBytes,
	}
	return r
}

func (r *Registry) listTools() (*wire.ToolsListResult, *wire.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]wire.Tool, 0, len(r.tools))
	for _, name := range sortedKeys(r.tools) {
		tools = append(tools, r.tools[name].tool)
	}
	return &wire.ToolsListResult{Tools: tools}, nil
}

func (r *Registry) callTool(ctx context.Context, raw json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	var params wire.ToolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, wire.NewError(wire.CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	r.mu.RLock()
	entry, ok := r.tools[params.Name]
	authorizer := r.authorizer
	r.mu.RUnlock()
	if !ok {
		return nil, errNotFound("tool", params.Name)
	}

	if werr := auth.Authorize(authorizer, extra.AuthContext, params.Name); werr != nil {
		return nil, werr
	}

	if werr := validateAgainstSchema(entry.inputSchema, params.Arguments); werr != nil {
		return nil, werr
	}

	result, werr := entry.handler(ctx, params.Arguments, extra)
	if werr != nil {
		return nil, werr
	}
	if result == nil {
		return nil, wire.NewError(wire.CodeInternalError, fmt.Sprintf("tool %s returned no result", params.Name))
	}
	return marshalResult(result, nil)
}
