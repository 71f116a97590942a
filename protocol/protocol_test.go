package protocol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexuskit/mcp-core/middleware"
	"github.com/nexuskit/mcp-core/transport"
	"github.com/nexuskit/mcp-core/wire"
)

// sendRecordingMiddleware records every wire.Message it observes in OnSend,
// proving dispatch hands the assembled reply through the send hook before
// returning it to the caller.
type sendRecordingMiddleware struct {
	middleware.Base
	sent []*wire.Message
}

func (m *sendRecordingMiddleware) Name() string { return "send-recorder" }

func (m *sendRecordingMiddleware) OnSend(_ context.Context, _ *middleware.Context, msg *wire.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func echoHandler() HandlerFunc {
	return func(_ context.Context, method string, params json.RawMessage, extra Extra) (json.RawMessage, *wire.Error) {
		switch method {
		case wire.MethodPing:
			return json.RawMessage(`{}`), nil
		case "echo":
			return params, nil
		case "boom":
			return nil, wire.NewError(wire.CodeInternalError, "boom")
		default:
			return nil, wire.NewError(wire.CodeMethodNotFound, "method not found: "+method)
		}
	}
}

func newTestCore() *Core {
	return NewCore(
		WithHandler(echoHandler()),
		WithSupportedVersions("2025-06-18"),
		WithServerInfo(wire.Implementation{Name: "test-server", Version: "0.0.1"}),
	)
}

func doInitialize(t *testing.T, core *Core, sess *Session) {
	t.Helper()
	params, err := json.Marshal(wire.InitializeParams{
		ProtocolVersion: "2025-06-18",
		ClientInfo:      wire.Implementation{Name: "test-client", Version: "1.0"},
	})
	require.NoError(t, err)

	reqMsg := wire.NewRequestMessage(&wire.Request{ID: wire.NewIntID(1), Method: wire.MethodInitialize, Params: params})
	reply, closeReason := core.HandleIncoming(context.Background(), sess, reqMsg)
	require.Empty(t, closeReason)
	require.NotNil(t, reply)
	require.Equal(t, wire.KindResponse, reply.Kind)
	require.Nil(t, reply.Response.Err)
	require.Equal(t, PhaseInitialising, sess.Phase())

	initNote := wire.NewNotificationMessage(&wire.Notification{Method: wire.NotificationInitialized})
	reply, closeReason = core.HandleIncoming(context.Background(), sess, initNote)
	require.Empty(t, closeReason)
	require.Nil(t, reply)
	require.Equal(t, PhaseReady, sess.Phase())
}

func TestHandshakeRejectsRequestsBeforeInitialize(t *testing.T) {
	core := newTestCore()
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)

	req := wire.NewRequestMessage(&wire.Request{ID: wire.NewIntID(1), Method: "echo"})
	reply, closeReason := core.HandleIncoming(context.Background(), sess, req)
	require.Empty(t, closeReason)
	require.NotNil(t, reply.Response.Err)
	require.Equal(t, wire.CodeServerNotInitialized, reply.Response.Err.Code)
}

func TestHandshakeHappyPath(t *testing.T) {
	core := newTestCore()
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)

	doInitialize(t, core, sess)
	require.Equal(t, "2025-06-18", sess.NegotiatedVersion())
	require.Equal(t, "test-client", sess.PeerInfo().Name)
}

func TestDuplicateInitializeIsProtocolViolation(t *testing.T) {
	core := newTestCore()
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)
	doInitialize(t, core, sess)

	params, _ := json.Marshal(wire.InitializeParams{ProtocolVersion: "2025-06-18"})
	req := wire.NewRequestMessage(&wire.Request{ID: wire.NewIntID(99), Method: wire.MethodInitialize, Params: params})
	reply, closeReason := core.HandleIncoming(context.Background(), sess, req)
	require.NotEmpty(t, closeReason)
	require.NotNil(t, reply.Response.Err)
	require.Equal(t, wire.CodeProtocolViolation, reply.Response.Err.Code)
}

func TestDispatchReadyStateInvokesHandler(t *testing.T) {
	core := newTestCore()
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)
	doInitialize(t, core, sess)

	params := json.RawMessage(`{"value":42}`)
	req := wire.NewRequestMessage(&wire.Request{ID: wire.NewIntID(2), Method: "echo", Params: params})
	reply, closeReason := core.HandleIncoming(context.Background(), sess, req)
	require.Empty(t, closeReason)
	require.Nil(t, reply.Response.Err)
	require.JSONEq(t, `{"value":42}`, string(reply.Response.Result))
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	core := newTestCore()
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)
	doInitialize(t, core, sess)

	req := wire.NewRequestMessage(&wire.Request{ID: wire.NewIntID(3), Method: "nonexistent"})
	reply, _ := core.HandleIncoming(context.Background(), sess, req)
	require.NotNil(t, reply.Response.Err)
	require.Equal(t, wire.CodeMethodNotFound, reply.Response.Err.Code)
}

func TestDuplicateInFlightRequestIDIsProtocolViolation(t *testing.T) {
	core := NewCore(
		WithHandler(HandlerFunc(func(ctx context.Context, method string, params json.RawMessage, extra Extra) (json.RawMessage, *wire.Error) {
			<-ctx.Done()
			return json.RawMessage(`{}`), nil
		})),
		WithSupportedVersions("2025-06-18"),
	)
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)
	doInitialize(t, core, sess)

	tok, started := sess.inflight.start(wire.NewIntID(7))
	require.True(t, started)
	defer tok.Cancel("test cleanup")

	req := wire.NewRequestMessage(&wire.Request{ID: wire.NewIntID(7), Method: "echo"})
	reply, closeReason := core.HandleIncoming(context.Background(), sess, req)
	require.NotEmpty(t, closeReason)
	require.Equal(t, wire.CodeProtocolViolation, reply.Response.Err.Code)
}

func TestCancelledNotificationCancelsInFlightToken(t *testing.T) {
	core := newTestCore()
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)
	doInitialize(t, core, sess)

	tok, _ := sess.inflight.start(wire.NewIntID(5))
	cancelParams, _ := json.Marshal(wire.CancelledParams{RequestID: wire.NewIntID(5), Reason: "client gave up"})
	note := wire.NewNotificationMessage(&wire.Notification{Method: wire.NotificationCancelled, Params: cancelParams})
	reply, closeReason := core.HandleIncoming(context.Background(), sess, note)
	require.Nil(t, reply)
	require.Empty(t, closeReason)
	require.True(t, tok.IsCancelled())
	require.Equal(t, "client gave up", tok.Reason())
}

func TestEndToEndRequestResponseOverChannelTransport(t *testing.T) {
	clientTr, serverTr := transport.NewChannelTransportPair(4)
	defer clientTr.Close()
	defer serverTr.Close()

	serverCore := newTestCore()
	serverSess := NewSession(serverTr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = serverCore.Run(ctx, serverSess) }()

	clientCore := NewCore(WithSupportedVersions("2025-06-18"))
	clientSess := NewSession(clientTr)
	clientSess.setPhase(PhaseReady) // client side never runs the server handshake state machine

	go func() {
		for {
			msg, err := clientTr.Receive(ctx)
			if err != nil {
				return
			}
			clientCore.HandleIncoming(ctx, clientSess, msg)
		}
	}()

	_, err := clientCore.SendRequest(ctx, clientSess, wire.MethodInitialize, wire.InitializeParams{
		ProtocolVersion: "2025-06-18",
		ClientInfo:      wire.Implementation{Name: "client", Version: "1.0"},
	}, time.Second, nil)
	require.NoError(t, err)

	require.NoError(t, clientCore.SendNotification(ctx, clientSess, wire.NotificationInitialized, nil))

	result, err := clientCore.SendRequest(ctx, clientSess, "echo", map[string]interface{}{"hello": "world"}, time.Second, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"world"}`, string(result))
}

func TestDispatchInvokesOnSendBeforeReturningReply(t *testing.T) {
	recorder := &sendRecordingMiddleware{}
	core := NewCore(
		WithHandler(echoHandler()),
		WithSupportedVersions("2025-06-18"),
		WithServerInfo(wire.Implementation{Name: "test-server", Version: "0.0.1"}),
		WithChain(middleware.NewChain(recorder)),
	)
	_, b := transport.NewChannelTransportPair(4)
	sess := NewSession(b)
	sess.setPhase(PhaseAwaitingInitialize)
	doInitialize(t, core, sess)

	req := wire.NewRequestMessage(&wire.Request{ID: wire.NewIntID(4), Method: "echo", Params: json.RawMessage(`{"value":1}`)})
	reply, closeReason := core.HandleIncoming(context.Background(), sess, req)
	require.Empty(t, closeReason)
	require.Nil(t, reply.Response.Err)

	require.Len(t, recorder.sent, 1)
	require.Same(t, reply, recorder.sent[0])
}
