package protocol

import (
	"context"
	"sync"

	"github.com/nexuskit/mcp-core/auth"
	"github.com/nexuskit/mcp-core/transport"
	"github.com/nexuskit/mcp-core/wire"
)

// Session owns one peer connection's correlation state: the transport, the
// handshake phase, outbound id allocation, the pending-response table, and
// the in-flight-request table used to resolve notifications/cancelled.
// Adapted from the teacher's Protocol type (internal/protocol/protocol.go),
// generalized from a single global instance per process into one instance
// per connected peer, since the core must serve many sessions concurrently.
type Session struct {
	ID        string
	Transport transport.Transport

	writeMu sync.Mutex // serializes transport.Send: "at most one in-flight write per transport" (spec.md §5)

	mu              sync.Mutex
	phase           Phase
	nextID          int64
	negotiated      string
	peerInfo        *wire.Implementation
	peerCapability  *wire.ClientCapabilities

	pending  *pendingTable
	inflight *inflightTable
	authMach *auth.Machine
}

// NewSession wraps a connected transport. The session starts in PhaseFresh.
func NewSession(tr transport.Transport) *Session {
	id := ""
	if sa, ok := tr.(transport.SessionAware); ok {
		id = sa.SessionID()
	}
	return &Session{
		ID:        id,
		Transport: tr,
		phase:     PhaseFresh,
		pending:   newPendingTable(),
		inflight:  newInflightTable(),
		authMach:  auth.NewMachine(),
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// compareAndSetPhase transitions from `from` to `to`, returning false (no
// change made) if the session was not in `from`.
func (s *Session) compareAndSetPhase(from, to Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != from {
		return false
	}
	s.phase = to
	return true
}

func (s *Session) NegotiatedVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

func (s *Session) PeerInfo() *wire.Implementation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerInfo
}

func (s *Session) PeerCapabilities() *wire.ClientCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerCapability
}

func (s *Session) AuthMachine() *auth.Machine { return s.authMach }

// nextRequestID allocates the next monotonic outbound id (spec.md §4.1:
// "outbound ids are monotonic per session starting at 1").
func (s *Session) nextRequestID() wire.RequestID {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	return wire.NewIntID(id)
}

// send serializes concurrent outbound writes through the session's single
// writer lock, honoring the transport contract in spec.md §4.3/§5.
func (s *Session) send(ctx context.Context, msg *wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Transport.Send(ctx, msg, nil)
}

// Close releases the underlying transport and fails any still-pending
// outbound requests with a transport-closed error (spec.md §4.1 "Failure
// semantics").
func (s *Session) Close() error {
	s.setPhase(PhaseClosed)
	s.inflight.cancelAll("session closed")
	s.pending.drainAll(wire.NewError(wire.CodeRequestCancelled, "transport closed"))
	return s.Transport.Close()
}
