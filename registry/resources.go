package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nexuskit/mcp-core/protocol"
	"github.com/nexuskit/mcp-core/wire"
)

// ReadFunc reads one resource's current contents.
type ReadFunc func(ctx context.Context, uri string, extra protocol.Extra) (*wire.ResourcesReadResult, *wire.Error)

type resourceEntry struct {
	resource wire.Resource
	read     ReadFunc
}

func (r *Registry) RegisterResource(resource wire.Resource, read ReadFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[resource.URI] = &resourceEntry{resource: resource, read: read}
	return r
}

func (r *Registry) listResources() (*wire.ResourcesListResult, *wire.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.Resource, 0, len(r.resources))
	for _, uri := range sortedKeys(r.resources) {
		out = append(out, r.resources[uri].resource)
	}
	return &wire.ResourcesListResult{Resources: out}, nil
}

func (r *Registry) readResource(ctx context.Context, raw json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	var params wire.ResourcesReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, wire.NewError(wire.CodeInvalidParams, "invalid resources/read params: "+err.Error())
	}

	r.mu.RLock()
	entry, ok := r.resources[params.URI]
	r.mu.RUnlock()
	if !ok {
		return nil, errNotFound("resource", params.URI)
	}

	result, werr := entry.read(ctx, params.URI, extra)
	if werr != nil {
		return nil, werr
	}
	return marshalResult(result, nil)
}

// subscribeResource registers a (session, uri) pair. Per SPEC_FULL.md §7.3,
// subscription does not require the URI to have previously appeared in a
// resources/list result.
func (r *Registry) subscribeResource(raw json.RawMessage, extra protocol.Extra) (json.RawMessage, *wire.Error) {
	var params wire.ResourcesSubscribeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, wire.NewError(wire.CodeInvalidParams, "invalid resources/subscribe params: "+err.Error())
	}
	r.subs.subscribe(extra.SessionID, params.URI)
	return json.RawMessage(`{}`), nil
}

// Unsubscribe removes a (session, uri) pair, e.g. on an explicit unsubscribe
// request or session close.
func (r *Registry) Unsubscribe(sessionID, uri string) {
	r.subs.unsubscribe(sessionID, uri)
}

// UnsubscribeSession removes every subscription owned by sessionID, called
// when a session closes.
func (r *Registry) UnsubscribeSession(sessionID string) {
	r.subs.unsubscribeSession(sessionID)
}

// SubscribersOf returns the session ids currently subscribed to uri, so a
// server can fan out notifications/resources/updated.
func (r *Registry) SubscribersOf(uri string) []string {
	return r.subs.subscribersOf(uri)
}

// subscriptionTable is the (session, uri) registry behind resources/subscribe.
type subscriptionTable struct {
	mu   sync.Mutex
	byURI map[string]map[string]struct{}
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{byURI: map[string]map[string]struct{}{}}
}

func (t *subscriptionTable) subscribe(sessionID, uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions, ok := t.byURI[uri]
	if !ok {
		sessions = map[string]struct{}{}
		t.byURI[uri] = sessions
	}
	sessions[sessionID] = struct{}{}
}

func (t *subscriptionTable) unsubscribe(sessionID, uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sessions, ok := t.byURI[uri]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(t.byURI, uri)
		}
	}
}

func (t *subscriptionTable) unsubscribeSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for uri, sessions := range t.byURI {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(t.byURI, uri)
		}
	}
}

func (t *subscriptionTable) subscribersOf(uri string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions, ok := t.byURI[uri]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(sessions))
	for id := range sessions {
		out = append(out, id)
	}
	return out
}
