package registry

import (
	"context"
	"encoding/json"

	"github.com/nexuskit/mcp-core/protocol"
	"github.com/nexuskit/mcp-core/wire"
)

// PromptFunc renders a prompt given its raw arguments.
type PromptFunc func(ctx context.Context, args json.RawMessage, extra protocol.Extra) (*wire.PromptsGetResult, *wire.Error)

type promptEntry struct {
	prompt wire.Prompt
	render PromptFunc
}

func (r *Registry) RegisterPrompt(prompt wire.Prompt, render PromptFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[prompt.Name] = &promptEntry{prompt: prompt, render: render}
	return r
}

func (r *Registry) listPrompts() (*wire.PromptsListResult, *wire.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.Prompt, 0, len(r.prompts))
	for _, name := range sortedKeys(r.prompts) {
		out = append(out, r.prompts[name].prompt)
	}
	return &wire.PromptsListResult{Prompts: out}, nil
}

func (r *Registry) getPrompt(ctx context.Context, raw json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	var params wire.PromptsGetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, wire.NewError(wire.CodeInvalidParams, "invalid prompts/get params: "+err.Error())
	}

	r.mu.RLock()
	entry, ok := r.prompts[params.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, errNotFound("prompt", params.Name)
	}

	result, werr := entry.render(ctx, params.Arguments, extra)
	if werr != nil {
		return nil, werr
	}
	return marshalResult(result, nil)
}
