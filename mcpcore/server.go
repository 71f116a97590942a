// Package mcpcore wires the wire/transport/protocol/registry/middleware/
// auth/recovery packages into a single Server type, mirroring the
// teacher's NewServer/.Tool(...) ergonomics (server.go's doc comment)
// while targeting this module's own dispatch core instead of the
// teacher's flat method-map Protocol.
package mcpcore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nexuskit/mcp-core/auth"
	"github.com/nexuskit/mcp-core/middleware"
	"github.com/nexuskit/mcp-core/protocol"
	"github.com/nexuskit/mcp-core/recovery"
	"github.com/nexuskit/mcp-core/registry"
	"github.com/nexuskit/mcp-core/transport"
	"github.com/nexuskit/mcp-core/wire"
)

// Server is the top-level facade a host application constructs once: it
// owns the handler registry, the middleware chain, and the dispatcher
// core, and drives one Session per accepted transport connection.
type Server struct {
	Registry *registry.Registry
	Chain    *middleware.Chain
	Cascade  *recovery.CascadeCoordinator
	Recovery *recovery.Policy

	core   *protocol.Core
	logger *zap.Logger
}

// ServerOption configures a Server at construction time.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name, version     string
	caps              wire.ServerCapabilities
	supportedVersions []string
	authProvider      auth.Provider
	authorizer        auth.ToolAuthorizer
	logger            *zap.Logger
	tracer            trace.Tracer
	middlewares       []middleware.Middleware
	requestTimeout    time.Duration
}

func WithServerName(name, version string) ServerOption {
	return func(c *serverConfig) { c.name, c.version = name, version }
}

func WithCapabilities(caps wire.ServerCapabilities) ServerOption {
	return func(c *serverConfig) { c.caps = caps }
}

func WithSupportedVersions(versions ...string) ServerOption {
	return func(c *serverConfig) { c.supportedVersions = versions }
}

func WithAuthProvider(p auth.Provider) ServerOption {
	return func(c *serverConfig) { c.authProvider = p }
}

func WithToolAuthorizer(az auth.ToolAuthorizer) ServerOption {
	return func(c *serverConfig) { c.authorizer = az }
}

func WithLogger(l *zap.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

func WithTracer(t trace.Tracer) ServerOption {
	return func(c *serverConfig) { c.tracer = t }
}

func WithMiddleware(mws ...middleware.Middleware) ServerOption {
	return func(c *serverConfig) { c.middlewares = append(c.middlewares, mws...) }
}

func WithRequestTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.requestTimeout = d }
}

// NewServer builds a Server ready to accept sessions. Following the
// teacher's intended usage ("server := mcp.NewServer(transport)"), tool/
// resource/prompt registration happens via the Registry after
// construction and before the first session is driven.
func NewServer(opts ...ServerOption) *Server {
	cfg := &serverConfig{
		name:              "mcp-core",
		version:           "0.1.0",
		supportedVersions: append([]string{}, wire.DefaultSupportedVersions...),
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reg := registry.New()
	if cfg.authorizer != nil {
		reg.WithAuthorizer(cfg.authorizer)
	}

	chain := middleware.NewChain(cfg.middlewares...)

	coreOpts := []protocol.Option{
		protocol.WithHandler(reg),
		protocol.WithChain(chain),
		protocol.WithSupportedVersions(cfg.supportedVersions...),
		protocol.WithServerInfo(wire.Implementation{Name: cfg.name, Version: cfg.version}),
		protocol.WithServerCapabilities(cfg.caps),
		protocol.WithLogger(cfg.logger),
	}
	if cfg.authProvider != nil {
		coreOpts = append(coreOpts, protocol.WithAuthProvider(cfg.authProvider))
	}
	if cfg.tracer != nil {
		coreOpts = append(coreOpts, protocol.WithTracer(cfg.tracer))
	}
	if cfg.requestTimeout > 0 {
		coreOpts = append(coreOpts, protocol.WithRequestTimeout(cfg.requestTimeout))
	}

	return &Server{
		Registry: reg,
		Chain:    chain,
		Cascade:  recovery.NewCascadeCoordinator(),
		core:     protocol.NewCore(coreOpts...),
		logger:   cfg.logger,
	}
}

// Tool registers a typed tool on the server's registry, mirroring the
// teacher's intended server.Tool(name, description, args, fn) call shape.
func Tool[Args any](s *Server, name, description string, handler func(ctx context.Context, args Args, extra protocol.Extra) (*wire.ToolsCallResult, *wire.Error)) *Server {
	registry.RegisterTypedTool(s.Registry, name, description, handler)
	return s
}

// Serve drives one Session to completion: receive, dispatch, reply, until
// the transport closes or ctx is cancelled. It returns once the session
// is no longer usable; the caller is responsible for accepting further
// connections and calling Serve again per connection.
func (s *Server) Serve(ctx context.Context, tr transport.Transport) error {
	sess := protocol.NewSession(tr)
	if err := s.core.Run(ctx, sess); err != nil {
		return errors.Wrap(err, "mcpcore: session ended")
	}
	return nil
}

// NewServerFromConfig builds a Server from a loaded Config, wiring its
// rate_limit/circuit_breaker/compression sections into the middleware
// chain and its recovery tree onto the Server for callers to Compile and
// wrap their own handler-adjacent operations with.
func NewServerFromConfig(cfg *Config, opts ...ServerOption) *Server {
	var mws []middleware.Middleware
	if cfg.RateLimit != nil {
		mws = append(mws, middleware.NewRateLimit(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.CircuitBreaker != nil {
		mws = append(mws, middleware.NewCircuitBreaker(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.Window, cfg.CircuitBreaker.Timeout))
	}
	if cfg.Compression != nil && cfg.Compression.Algo == CompressionGzip {
		mws = append(mws, middleware.NewCompression(cfg.Compression.MinSize))
	}

	allOpts := append([]ServerOption{
		WithServerName(cfg.Server.Name, cfg.Server.Version),
		WithMiddleware(mws...),
		WithRequestTimeout(cfg.Server.RequestTimeout()),
	}, opts...)

	s := NewServer(allOpts...)
	if cfg.Recovery != nil {
		s.Recovery = cfg.Recovery
	}
	return s
}

// Dial drives a client-side Session over tr without serving any handlers
// of its own (the Server's Registry is still consulted for any server-
// role methods the peer might invoke, e.g. sampling callbacks).
func (s *Server) Dial(ctx context.Context, tr transport.Transport) (*protocol.Session, error) {
	sess := protocol.NewSession(tr)
	go func() {
		_ = s.core.Run(ctx, sess)
	}()
	return sess, nil
}

// SendRequest sends a request over sess and awaits its correlated
// response, delegating to the underlying protocol.Core.
func (s *Server) SendRequest(ctx context.Context, sess *protocol.Session, method string, params interface{}, timeout time.Duration, onProgress protocol.ProgressCallback) (json.RawMessage, error) {
	return s.core.SendRequest(ctx, sess, method, params, timeout, onProgress)
}

// SendNotification sends a one-way notification over sess.
func (s *Server) SendNotification(ctx context.Context, sess *protocol.Session, method string, params interface{}) error {
	return s.core.SendNotification(ctx, sess, method, params)
}

// HandleIncoming processes one already-received message for sess, routing
// responses/notifications internally and returning a reply for requests.
// Exposed so a caller driving its own receive loop (e.g. a client session
// not created via Serve) can feed messages through the same dispatcher.
func (s *Server) HandleIncoming(ctx context.Context, sess *protocol.Session, msg *wire.Message) (*wire.Message, string) {
	return s.core.HandleIncoming(ctx, sess, msg)
}
