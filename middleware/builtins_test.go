package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexuskit/mcp-core/wire"
)

func TestRateLimitAllowsBurstThenRejects(t *testing.T) {
	rl := NewRateLimit(1, 1)
	mwctx := NewContext("sess-1", "tools/call", "req-1")

	require.NoError(t, rl.OnRequest(context.Background(), mwctx, nil))
	err := rl.OnRequest(context.Background(), mwctx, nil)
	require.Error(t, err)

	var wireErr *wire.Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, wire.CodeRateLimited, wireErr.Code)
}

func TestRateLimitTracksSessionsIndependently(t *testing.T) {
	rl := NewRateLimit(1, 1)
	a := NewContext("sess-a", "tools/call", "req-1")
	b := NewContext("sess-b", "tools/call", "req-1")

	require.NoError(t, rl.OnRequest(context.Background(), a, nil))
	require.NoError(t, rl.OnRequest(context.Background(), b, nil))
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, 5*time.Second)
	method := "tools/call"

	for i := 0; i < 2; i++ {
		mwctx := NewContext("sess-1", method, "req")
		require.NoError(t, cb.OnRequest(context.Background(), mwctx, nil))
		cb.OnError(context.Background(), mwctx, wire.NewError(wire.CodeInternalError, "boom"))
	}

	mwctx := NewContext("sess-1", method, "req-3")
	err := cb.OnRequest(context.Background(), mwctx, nil)
	require.Error(t, err)

	var wireErr *wire.Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, wire.CodeCircuitBreakerOpen, wireErr.Code)
}

func TestCompressionRoundTripsLargePayload(t *testing.T) {
	c := NewCompression(8)
	payload := json.RawMessage(`{"data":"` + strings.Repeat("x", 64) + `"}`)
	compressed := append(json.RawMessage{}, payload...)

	require.NoError(t, c.compressInPlace(&compressed))
	require.NotEqual(t, payload, compressed)

	restored := append(json.RawMessage{}, compressed...)
	require.NoError(t, c.decompressInPlace(&restored))
	require.JSONEq(t, string(payload), string(restored))
}

func TestCompressionLeavesSmallPayloadUntouched(t *testing.T) {
	c := NewCompression(1024)
	payload := json.RawMessage(`{"ok":true}`)
	out := append(json.RawMessage{}, payload...)
	require.NoError(t, c.compressInPlace(&out))
	require.Equal(t, payload, out)
}

func TestValidationRejectsParamsFailingSchema(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`)
	v := NewValidation(func(method string) ([]byte, bool) {
		if method == "tools/call" {
			return schema, true
		}
		return nil, false
	})

	params := json.RawMessage(`{"count": 1}`)
	err := v.OnRequest(context.Background(), NewContext("sess-1", "tools/call", "req-1"), &params)
	require.Error(t, err)
}

func TestValidationAllowsConformingParams(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`)
	v := NewValidation(func(method string) ([]byte, bool) {
		return schema, true
	})

	params := json.RawMessage(`{"name": "widget"}`)
	require.NoError(t, v.OnRequest(context.Background(), NewContext("sess-1", "tools/call", "req-1"), &params))
}
