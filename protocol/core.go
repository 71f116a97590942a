// Package protocol implements the MCP handshake state machine and request
// dispatcher on top of the wire and transport packages: it is the part of
// the teacher's Protocol type (internal/protocol/protocol.go) generalized
// from a single global per-process instance into a per-session Session
// driven by a shared Core dispatcher.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nexuskit/mcp-core/auth"
	"github.com/nexuskit/mcp-core/middleware"
	"github.com/nexuskit/mcp-core/wire"
)

// Core is the shared, immutable-after-construction dispatcher that every
// Session on a server (or client) is driven through. It owns the handler
// registry, middleware chain, and optional auth wiring; it owns no
// per-connection state, which lives on Session instead.
type Core struct {
	handler  Handler
	chain    *middleware.Chain
	provider auth.Provider

	supportedVersions []string
	serverInfo        wire.Implementation
	serverCaps        wire.ServerCapabilities

	logger         *zap.Logger
	tracer         trace.Tracer
	requestTimeout time.Duration
}

// Option configures a Core at construction time.
type Option func(*Core)

func WithHandler(h Handler) Option { return func(c *Core) { c.handler = h } }
func WithChain(chain *middleware.Chain) Option {
	return func(c *Core) { c.chain = chain }
}
func WithAuthProvider(p auth.Provider) Option { return func(c *Core) { c.provider = p } }
func WithSupportedVersions(versions ...string) Option {
	return func(c *Core) { c.supportedVersions = versions }
}
func WithServerInfo(info wire.Implementation) Option {
	return func(c *Core) { c.serverInfo = info }
}
func WithServerCapabilities(caps wire.ServerCapabilities) Option {
	return func(c *Core) { c.serverCaps = caps }
}
func WithLogger(l *zap.Logger) Option { return func(c *Core) { c.logger = l } }
func WithTracer(t trace.Tracer) Option { return func(c *Core) { c.tracer = t } }
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Core) { c.requestTimeout = d }
}

// NewCore builds a dispatcher. A nil handler is valid (useful for pure
// clients that only send requests); an empty supportedVersions list means
// every initialize will fail negotiation.
func NewCore(opts ...Option) *Core {
	c := &Core{
		logger:         zap.NewNop(),
		tracer:         otel.Tracer("github.com/nexuskit/mcp-core/protocol"),
		requestTimeout: 60 * time.Second,
		chain:          middleware.NewChain(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleIncoming processes one framed message for sess, returning a wire
// message to send back (for requests) or nil (responses/notifications are
// routed internally and never produce a reply). A non-empty closeReason means
// the caller must close the session after sending the returned message, if
// any (spec.md §4.1 "Tie-breaks and edge cases").
func (c *Core) HandleIncoming(ctx context.Context, sess *Session, msg *wire.Message) (reply *wire.Message, closeReason string) {
	switch msg.Kind {
	case wire.KindBatch:
		return c.handleBatch(ctx, sess, msg.Batch)
	case wire.KindRequest:
		return c.handleRequest(ctx, sess, msg.Request)
	case wire.KindNotification:
		c.handleNotification(ctx, sess, msg.Notification)
		return nil, ""
	case wire.KindResponse:
		c.handleResponse(sess, msg.Response)
		return nil, ""
	default:
		return nil, ""
	}
}

func (c *Core) handleBatch(ctx context.Context, sess *Session, batch []*wire.Message) (*wire.Message, string) {
	responses := make([]*wire.Message, 0, len(batch))
	for _, sub := range batch {
		reply, closeReason := c.HandleIncoming(ctx, sess, sub)
		if reply != nil {
			responses = append(responses, reply)
		}
		if closeReason != "" {
			if len(responses) == 0 {
				return nil, closeReason
			}
			return wire.NewBatchMessage(responses), closeReason
		}
	}
	if len(responses) == 0 {
		return nil, ""
	}
	return wire.NewBatchMessage(responses), ""
}

func (c *Core) handleRequest(ctx context.Context, sess *Session, req *wire.Request) (*wire.Message, string) {
	if req.Method == wire.MethodInitialize {
		return c.handleInitialize(ctx, sess, req)
	}

	phase := sess.Phase()
	if phase == PhaseFresh || phase == PhaseAwaitingInitialize || phase == PhaseInitialising {
		return errorResponse(req.ID, wire.CodeServerNotInitialized, "server not initialized"), ""
	}
	if phase != PhaseReady {
		return errorResponse(req.ID, wire.CodeServerNotInitialized, "session is closing"), ""
	}

	tok, started := sess.inflight.start(req.ID)
	if !started {
		// Duplicate in-flight id from the peer: protocol violation. Respond
		// once, then the caller closes the session (spec.md §4.1).
		return errorResponse(req.ID, wire.CodeProtocolViolation, "duplicate in-flight request id"), "duplicate in-flight request id"
	}
	defer sess.inflight.finish(req.ID)

	return c.dispatch(ctx, sess, req, tok), ""
}

func (c *Core) handleInitialize(ctx context.Context, sess *Session, req *wire.Request) (*wire.Message, string) {
	phase := sess.Phase()
	if phase == PhaseInitialising || phase == PhaseReady {
		return errorResponse(req.ID, wire.CodeProtocolViolation, "duplicate initialize request"), "duplicate initialize request"
	}
	if phase != PhaseFresh && phase != PhaseAwaitingInitialize {
		return errorResponse(req.ID, wire.CodeProtocolViolation, "initialize received while closing"), ""
	}

	var params wire.InitializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, wire.CodeInvalidParams, "invalid initialize params: "+err.Error()), ""
	}

	version, ok := negotiateVersion(c.supportedVersions, params.ProtocolVersion)
	if !ok {
		sess.setPhase(PhaseClosing)
		return errorResponse(req.ID, wire.CodeInvalidParams, "no mutually supported protocol version"), "no mutually supported protocol version"
	}

	sess.mu.Lock()
	sess.negotiated = version
	peerInfo := params.ClientInfo
	peerCaps := params.Capabilities
	sess.peerInfo = &peerInfo
	sess.peerCapability = &peerCaps
	sess.phase = PhaseInitialising
	sess.mu.Unlock()

	if sa, ok := sess.Transport.(interface{ SetProtocolVersion(string) }); ok {
		sa.SetProtocolVersion(version)
	}

	result := wire.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    c.serverCaps,
		ServerInfo:      c.serverInfo,
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, wire.CodeInternalError, "failed to marshal initialize result"), ""
	}
	return wire.NewResponseMessage(&wire.Response{ID: req.ID, Result: resultBytes}), ""
}

// negotiateVersion picks peerVersion if the server supports it, else the
// server's own first (highest-preference) supported version. An empty
// supported list is always a failure (spec.md §4.1).
func negotiateVersion(supported []string, peerVersion string) (string, bool) {
	if len(supported) == 0 {
		return "", false
	}
	for _, v := range supported {
		if v == peerVersion {
			return peerVersion, true
		}
	}
	return supported[0], true
}

func (c *Core) dispatch(ctx context.Context, sess *Session, req *wire.Request, tok *CancellationToken) *wire.Message {
	spanCtx, span := c.tracer.Start(ctx, req.Method)
	defer span.End()

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		spanCtx, cancel = context.WithTimeout(spanCtx, c.requestTimeout)
		defer cancel()
	}

	mwctx := middleware.NewContext(sess.ID, req.Method, req.ID.String())
	params := req.Params

	entered, err := c.chain.RunRequest(spanCtx, mwctx, &params)
	if err != nil {
		c.chain.RunError(spanCtx, mwctx, err)
		return errorResponseFrom(req.ID, err)
	}

	if c.handler == nil {
		werr := wire.NewError(wire.CodeMethodNotFound, "method not found: "+req.Method)
		c.chain.RunError(spanCtx, mwctx, werr)
		return errorResponseFrom(req.ID, werr)
	}

	progress := c.progressSinkFor(sess, req)
	extra := Extra{
		RequestID: req.ID.String(),
		SessionID: sess.ID,
		Cancel:    tok,
		Progress:  progress,
	}
	if authCtx := sess.AuthMachine().Context(); authCtx != nil {
		extra.AuthContext = authCtx
	}

	result, werr := c.handler.Invoke(spanCtx, req.Method, params, extra)
	if ps, ok := progress.(*sessionProgressSink); ok {
		ps.done.Store(true)
	}
	if werr != nil {
		c.chain.RunError(spanCtx, mwctx, werr)
		return errorResponseFrom(req.ID, werr)
	}

	if tok.IsCancelled() {
		// spec.md §4.6: a result produced after cancellation is discarded.
		cancelErr := wire.NewError(wire.CodeRequestCancelled, "request cancelled: "+tok.Reason())
		c.chain.RunError(spanCtx, mwctx, cancelErr)
		return errorResponseFrom(req.ID, cancelErr)
	}

	if err := c.chain.RunResponse(spanCtx, mwctx, entered, &result); err != nil {
		c.chain.RunError(spanCtx, mwctx, err)
		return errorResponseFrom(req.ID, err)
	}

	reply := wire.NewResponseMessage(&wire.Response{ID: req.ID, Result: result})
	if err := c.chain.RunSend(spanCtx, mwctx, entered, reply); err != nil {
		c.chain.RunError(spanCtx, mwctx, err)
		return errorResponseFrom(req.ID, err)
	}
	return reply
}

// progressSinkFor returns a sink that emits notifications/progress for this
// request's progressToken, if its params carried one; otherwise a no-op.
func (c *Core) progressSinkFor(sess *Session, req *wire.Request) ProgressSink {
	var withToken struct {
		Meta struct {
			ProgressToken wire.ProgressToken `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(req.Params, &withToken); err != nil || !withToken.Meta.ProgressToken.IsSet() {
		return noopProgressSink{}
	}
	token := withToken.Meta.ProgressToken
	return &sessionProgressSink{core: c, sess: sess, requestID: req.ID, token: token}
}

type sessionProgressSink struct {
	core      *Core
	sess      *Session
	requestID wire.RequestID
	token     wire.ProgressToken
	done      atomic.Bool // set once the handler has returned
}

func (p *sessionProgressSink) Report(progress float64, total float64, message string) {
	if p.done.Load() {
		return
	}
	params := wire.ProgressParams{ProgressToken: p.token, Progress: progress, Total: total, Message: message}
	data, err := json.Marshal(params)
	if err != nil {
		return
	}
	msg := wire.NewNotificationMessage(&wire.Notification{Method: wire.NotificationProgress, Params: data})
	_ = p.sess.send(context.Background(), msg)
}

func (c *Core) handleNotification(ctx context.Context, sess *Session, note *wire.Notification) {
	switch note.Method {
	case wire.NotificationInitialized:
		if !sess.compareAndSetPhase(PhaseInitialising, PhaseReady) {
			c.logger.Warn("notifications/initialized received outside Initialising phase", zap.String("session", sess.ID))
		}
	case wire.NotificationCancelled:
		var params wire.CancelledParams
		if err := json.Unmarshal(note.Params, &params); err != nil {
			c.logger.Warn("malformed notifications/cancelled", zap.Error(err))
			return
		}
		sess.inflight.cancel(params.RequestID, params.Reason)
	case wire.NotificationProgress:
		var params wire.ProgressParams
		if err := json.Unmarshal(note.Params, &params); err != nil {
			c.logger.Warn("malformed notifications/progress", zap.Error(err))
			return
		}
		if cb := sess.pending.progressFor(params.ProgressToken); cb != nil {
			cb(params.Progress, params.Total, params.Message)
		}
	default:
		// Other inbound notifications have no core-level effect; a future
		// registry hook could route them to user handlers if a need arises.
	}
}

func (c *Core) handleResponse(sess *Session, resp *wire.Response) {
	if !sess.pending.deliver(resp) {
		c.logger.Warn("response with no matching pending request", zap.String("session", sess.ID))
	}
}

// SendRequest issues an outbound request and blocks until the matching
// response arrives, ctx is done, or the request times out.
func (c *Core) SendRequest(ctx context.Context, sess *Session, method string, params interface{}, timeout time.Duration, onProgress ProgressCallback) (json.RawMessage, error) {
	id := sess.nextRequestID()

	paramBytes, err := marshalParams(params, id, onProgress)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: marshal request params")
	}

	ch := sess.pending.register(id, onProgress)
	msg := wire.NewRequestMessage(&wire.Request{ID: id, Method: method, Params: paramBytes})
	if err := sess.send(ctx, msg); err != nil {
		sess.pending.forget(id)
		return nil, errors.Wrap(err, "protocol: send request")
	}

	if timeout <= 0 {
		timeout = c.requestTimeout
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Result, nil
	case <-ctx.Done():
		sess.pending.forget(id)
		_ = c.SendNotification(context.Background(), sess, wire.NotificationCancelled, wire.CancelledParams{RequestID: id, Reason: ctx.Err().Error()})
		return nil, ctx.Err()
	case <-timeoutCh:
		sess.pending.forget(id)
		_ = c.SendNotification(context.Background(), sess, wire.NotificationCancelled, wire.CancelledParams{RequestID: id, Reason: "request timeout"})
		return nil, wire.NewError(wire.CodeRequestTimeout, fmt.Sprintf("request timed out after %s", timeout))
	}
}

// SendNotification emits a fire-and-forget message; it fails only if the
// transport reports permanent closure (spec.md §4.1).
func (c *Core) SendNotification(ctx context.Context, sess *Session, method string, params interface{}) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return errors.Wrap(err, "protocol: marshal notification params")
		}
		raw = b
	}
	msg := wire.NewNotificationMessage(&wire.Notification{Method: method, Params: raw})
	return errors.Wrap(sess.send(ctx, msg), "protocol: send notification")
}

// Run drives sess until its transport closes or ctx is cancelled: receive,
// dispatch, send any reply, repeat. This is the single reader/handler loop
// a session needs; concurrent SendRequest/SendNotification calls from other
// goroutines are safe since writes are serialized by Session.send.
func (c *Core) Run(ctx context.Context, sess *Session) error {
	if sess.Phase() == PhaseFresh {
		sess.setPhase(PhaseAwaitingInitialize)
	}
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := sess.Transport.Receive(ctx)
		if err != nil {
			return err
		}

		reply, closeReason := c.HandleIncoming(ctx, sess, raw)
		if reply != nil {
			if err := sess.send(ctx, reply); err != nil {
				c.logger.Error("failed to send reply", zap.Error(err))
				return err
			}
		}
		if closeReason != "" {
			c.logger.Warn("closing session", zap.String("reason", closeReason), zap.String("session", sess.ID))
			return errors.New("protocol: " + closeReason)
		}
	}
}

func errorResponse(id wire.RequestID, code wire.ErrorCode, message string) *wire.Message {
	return wire.NewResponseMessage(&wire.Response{ID: id, Err: wire.NewError(code, message)})
}

func errorResponseFrom(id wire.RequestID, err error) *wire.Message {
	if werr, ok := err.(*wire.Error); ok {
		return wire.NewResponseMessage(&wire.Response{ID: id, Err: werr})
	}
	return errorResponse(id, wire.CodeInternalError, err.Error())
}

func marshalParams(params interface{}, id wire.RequestID, onProgress ProgressCallback) (json.RawMessage, error) {
	if onProgress == nil {
		if params == nil {
			return nil, nil
		}
		return json.Marshal(params)
	}

	meta := map[string]interface{}{"progressToken": id}
	if params == nil {
		return json.Marshal(map[string]interface{}{"_meta": meta})
	}

	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(b, &asMap); err != nil {
		return nil, errors.New("protocol: params must marshal to a JSON object to support progress tracking")
	}
	asMap["_meta"] = meta
	return json.Marshal(asMap)
}
