package registry

import (
	"context"
	"encoding/json"

	"github.com/nexuskit/mcp-core/protocol"
	"github.com/nexuskit/mcp-core/wire"
)

func (r *Registry) createSample(ctx context.Context, raw json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	r.mu.RLock()
	handler := r.samplingHandler
	r.mu.RUnlock()
	if handler == nil {
		return nil, wire.NewError(wire.CodeMethodNotFound, "no sampling handler registered")
	}

	var params wire.SamplingCreateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, wire.NewError(wire.CodeInvalidParams, "invalid sampling/createMessage params: "+err.Error())
	}

	result, werr := handler(ctx, params, extra)
	if werr != nil {
		return nil, werr
	}
	return marshalResult(result, nil)
}

func (r *Registry) complete(ctx context.Context, raw json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	r.mu.RLock()
	handler := r.completionHandler
	r.mu.RUnlock()
	if handler == nil {
		return nil, wire.NewError(wire.CodeMethodNotFound, "no completion handler registered")
	}

	var params wire.CompletionCompleteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, wire.NewError(wire.CodeInvalidParams, "invalid completion/complete params: "+err.Error())
	}

	result, werr := handler(ctx, params, extra)
	if werr != nil {
		return nil, werr
	}
	return marshalResult(result, nil)
}

func (r *Registry) setLoggingLevel(ctx context.Context, raw json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	r.mu.RLock()
	handler := r.loggingHandler
	r.mu.RUnlock()

	var params wire.LoggingSetLevelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, wire.NewError(wire.CodeInvalidParams, "invalid logging/setLevel params: "+err.Error())
	}

	if handler != nil {
		if werr := handler(ctx, params.Level, extra); werr != nil {
			return nil, werr
		}
	}
	return json.RawMessage(`{}`), nil
}
