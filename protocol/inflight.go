package protocol

import (
	"sync"

	"github.com/nexuskit/mcp-core/wire"
)

// inflightTable tracks requests this side received from the peer and is
// still handling, keyed by the peer's RequestID, so a later
// notifications/cancelled can find and cancel the right handler goroutine
// (adapted from the teacher's requestCancellers map[RequestId]context.CancelFunc).
type inflightTable struct {
	mu     sync.Mutex
	tokens map[string]*CancellationToken
}

func newInflightTable() *inflightTable {
	return &inflightTable{tokens: map[string]*CancellationToken{}}
}

// start registers a new in-flight request, returning false if one with the
// same id is already in flight (a protocol violation per spec.md §4.1).
func (t *inflightTable) start(id wire.RequestID) (*CancellationToken, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := id.Key()
	if _, exists := t.tokens[key]; exists {
		return nil, false
	}
	tok := NewCancellationToken()
	t.tokens[key] = tok
	return tok, true
}

func (t *inflightTable) finish(id wire.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, id.Key())
}

func (t *inflightTable) cancel(id wire.RequestID, reason string) bool {
	t.mu.Lock()
	tok, ok := t.tokens[id.Key()]
	t.mu.Unlock()
	if !ok {
		return false
	}
	tok.Cancel(reason)
	return true
}

func (t *inflightTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}

func (t *inflightTable) cancelAll(reason string) {
	t.mu.Lock()
	toks := make([]*CancellationToken, 0, len(t.tokens))
	for _, tok := range t.tokens {
		toks = append(toks, tok)
	}
	t.mu.Unlock()
	for _, tok := range toks {
		tok.Cancel(reason)
	}
}
