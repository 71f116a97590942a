package protocol

import (
	"sync"

	"github.com/nexuskit/mcp-core/wire"
)

// pendingResponse is the correlation record for one outgoing request this
// side is waiting on: a response channel plus the optional progress
// callback supplied when the request was sent.
type pendingResponse struct {
	ch       chan *wire.Response
	progress ProgressCallback
}

// ProgressCallback receives progress updates for one outstanding request,
// matching wire.ProgressParams's shape (spec.md §4.6).
type ProgressCallback func(progress float64, total float64, message string)

// pendingTable correlates outgoing requests to their eventual responses,
// keyed by wire.RequestID.Key() (adapted from the teacher's
// responseHandlers map[int64]chan, generalized from int64-only ids to the
// full RequestID union).
type pendingTable struct {
	mu    sync.Mutex
	byKey map[string]*pendingResponse
}

func newPendingTable() *pendingTable {
	return &pendingTable{byKey: map[string]*pendingResponse{}}
}

func (t *pendingTable) register(id wire.RequestID, progress ProgressCallback) chan *wire.Response {
	ch := make(chan *wire.Response, 1)
	t.mu.Lock()
	t.byKey[id.Key()] = &pendingResponse{ch: ch, progress: progress}
	t.mu.Unlock()
	return ch
}

func (t *pendingTable) forget(id wire.RequestID) {
	t.mu.Lock()
	delete(t.byKey, id.Key())
	t.mu.Unlock()
}

func (t *pendingTable) deliver(resp *wire.Response) bool {
	t.mu.Lock()
	p, ok := t.byKey[resp.ID.Key()]
	if ok {
		delete(t.byKey, resp.ID.Key())
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.ch <- resp
	close(p.ch)
	return true
}

func (t *pendingTable) progressFor(token wire.ProgressToken) ProgressCallback {
	// Progress tokens are correlated 1:1 with the request id they were
	// issued for in this implementation (spec.md §7.1: no cross-type
	// coercion, caller-chosen token); we look the entry up by treating the
	// token's key as a request id key, since SendRequest registers both
	// under the same key when progress tracking is requested.
	t.mu.Lock()
	p, ok := t.byKey[token.Key()]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return p.progress
}

// drainAll fails every still-pending request with err, used when a session
// closes with requests in flight.
func (t *pendingTable) drainAll(err *wire.Error) {
	t.mu.Lock()
	entries := t.byKey
	t.byKey = map[string]*pendingResponse{}
	t.mu.Unlock()
	for _, p := range entries {
		p.ch <- &wire.Response{Err: err}
		close(p.ch)
	}
}
