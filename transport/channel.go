package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nexuskit/mcp-core/wire"
)

// ChannelTransport is an in-memory, in-process Transport backed by Go
// channels. It is the core's own harness for exercising the protocol
// without a concrete external transport: two ChannelTransports created by
// NewChannelTransportPair are wired to each other, letting a Session drive
// a full handshake/dispatch cycle in tests (grounded on the teacher's
// mock_transport_test.go, generalized from a single-sided test double into
// a real duplex pair). It is also a legitimate composition primitive for
// running a client and server in the same process (e.g. the WASM variant
// discussed in spec.md §9).
type ChannelTransport struct {
	name string
	out  chan<- *wire.Message
	in   <-chan *wire.Message
	done chan struct{}

	mu              sync.Mutex
	closed          bool
	sessionID       string
	protocolVersion string
}

// NewChannelTransportPair creates two connected transports: messages sent on
// one are received on the other.
func NewChannelTransportPair(bufSize int) (a, b *ChannelTransport) {
	ab := make(chan *wire.Message, bufSize)
	ba := make(chan *wire.Message, bufSize)
	a = &ChannelTransport{name: "channel-a", out: ab, in: ba, done: make(chan struct{}), sessionID: uuid.NewString()}
	b = &ChannelTransport{name: "channel-b", out: ba, in: ab, done: make(chan struct{}), sessionID: uuid.NewString()}
	return a, b
}

func (t *ChannelTransport) Send(ctx context.Context, msg *wire.Message, _ *Metadata) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case t.out <- msg:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ChannelTransport) Receive(ctx context.Context) (*wire.Message, error) {
	select {
	case msg, ok := <-t.in:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *ChannelTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

func (t *ChannelTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *ChannelTransport) TransportType() string { return "channel" }

func (t *ChannelTransport) SessionID() string { return t.sessionID }

func (t *ChannelTransport) SetProtocolVersion(version string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.protocolVersion = version
}

func (t *ChannelTransport) ProtocolVersion() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protocolVersion
}
