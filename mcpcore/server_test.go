package mcpcore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexuskit/mcp-core/protocol"
	"github.com/nexuskit/mcp-core/transport"
	"github.com/nexuskit/mcp-core/wire"
)

type greetArgs struct {
	Name string `json:"name" jsonschema:"required"`
}

func TestServerEndToEndToolCall(t *testing.T) {
	srv := NewServer(WithServerName("greeter", "1.0.0"))
	Tool(srv, "greet", "says hello", func(_ context.Context, args greetArgs, _ protocol.Extra) (*wire.ToolsCallResult, *wire.Error) {
		return &wire.ToolsCallResult{Content: []wire.Content{wire.NewTextContent("hello " + args.Name)}}, nil
	})

	serverTr, clientTr := transport.NewChannelTransportPair(8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.Serve(ctx, serverTr) }()

	clientSess := protocol.NewSession(clientTr)
	go func() {
		for {
			msg, err := clientTr.Receive(ctx)
			if err != nil {
				return
			}
			srv.HandleIncoming(ctx, clientSess, msg)
		}
	}()

	_, err := srv.SendRequest(ctx, clientSess, wire.MethodInitialize, wire.InitializeParams{
		ProtocolVersion: wire.LatestProtocolVersion,
		ClientInfo:      wire.Implementation{Name: "test-client", Version: "1.0.0"},
	}, 2*time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, srv.SendNotification(ctx, clientSess, wire.NotificationInitialized, nil))

	params, _ := json.Marshal(wire.ToolsCallParams{Name: "greet", Arguments: json.RawMessage(`{"name":"ada"}`)})
	resultRaw, err := srv.SendRequest(ctx, clientSess, wire.MethodToolsCall, json.RawMessage(params), 2*time.Second, nil)
	require.NoError(t, err)

	var result wire.ToolsCallResult
	require.NoError(t, json.Unmarshal(resultRaw, &result))
	require.Len(t, result.Content, 1)
}

func TestNewServerFromConfigWiresMiddleware(t *testing.T) {
	cfg := &Config{
		Server: ServerSection{Name: "cfgserver", Version: "1.0.0"},
		RateLimit: &RateLimitSection{
			Rate:  10,
			Burst: 5,
		},
	}
	srv := NewServerFromConfig(cfg)
	require.Len(t, srv.Chain.Middlewares(), 1)
}
