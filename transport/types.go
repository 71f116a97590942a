// Package transport defines the minimal capability the protocol core
// requires of any duplex message channel (spec.md §4.3), plus the framing
// and in-memory composition helpers that are in scope for the core itself
// (spec.md §2 C3). Concrete production transports (stdio process framing,
// WebSocket handshakes, HTTP/SSE plumbing) are external collaborators and
// are not implemented here.
package transport

import (
	"context"
	"errors"

	"github.com/nexuskit/mcp-core/wire"
)

// ErrClosed is returned by Send/Receive once the transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Priority is an advisory hint a caller may attach to an outbound message.
// A transport MAY use it to reorder or prioritize delivery; it is never
// required to honor it.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
)

// Metadata carries transport-level, out-of-band information alongside a
// message: a priority hint on send, and (for stateful HTTP-style
// transports) the protocol-version/session-id headers on receive.
type Metadata struct {
	Priority        Priority
	ProtocolVersion string
	SessionID       string
	ContentEncoding string
}

// Transport is the minimal send/receive/close contract a protocol Session
// requires. Implementations are expected to be single-producer/single-
// consumer per session; the protocol core serializes its own calls to Send
// (§5 "at most one in-flight write per transport"), so implementations need
// not add their own write mutex for that purpose, though doing so is
// harmless.
type Transport interface {
	// Send transmits a single framed message. metadata may be nil.
	Send(ctx context.Context, msg *wire.Message, metadata *Metadata) error

	// Receive yields the next framed inbound message. It may block
	// indefinitely; it must return ErrClosed (or a wrapped form of it)
	// once Close has been called.
	Receive(ctx context.Context) (*wire.Message, error)

	// Close idempotently releases the transport. Further Send/Receive
	// calls must return ErrClosed.
	Close() error

	IsConnected() bool
	TransportType() string
}

// SessionAware is an optional capability of stateful HTTP-style transports:
// the core calls SetProtocolVersion once after a successful initialize, and
// may read SessionID to echo `mcp-session-id` framing.
type SessionAware interface {
	SessionID() string
	SetProtocolVersion(version string)
}
