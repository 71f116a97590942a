// Package auth provides the optional authentication/authorization surface
// the protocol core consumes: a validated AuthContext attached to in-flight
// requests, a pluggable AuthProvider capability for credential validation,
// and a scope-based tool authorizer. Concrete token handling (OAuth2 token
// issuance, JWKS, PKCE, refresh) is explicitly out of scope; this package
// only consumes the result.
package auth

import (
	"context"
	"sync"
)

// AuthContext is a validated principal, immutable once attached to a
// request (spec.md §3 AuthContext).
type AuthContext struct {
	Subject string
	Scopes  []string
	Issuer  string
	Claims  map[string]interface{}
}

// HasScope reports whether the context carries the named scope.
func (a *AuthContext) HasScope(scope string) bool {
	if a == nil {
		return false
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Provider validates a raw credential (e.g. a bearer token) and returns a
// validated AuthContext, or an error if the credential is missing/invalid.
// Concrete implementations (OAuth2 validators, JWKS-backed JWT checkers)
// live outside this module; the core only depends on this interface.
type Provider interface {
	Validate(ctx context.Context, credential string) (*AuthContext, error)
}

// State is a step in the per-session authentication state machine
// (spec.md §3): Unauthenticated -> Authenticating -> Authenticated ->
// (Refreshing -> Authenticated)* -> Failed -> Unauthenticated.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Machine tracks one session's authentication state and guards the
// transitions the state diagram allows. It is safe for concurrent use.
type Machine struct {
	mu    sync.Mutex
	state State
	ctx   *AuthContext
}

func NewMachine() *Machine { return &Machine{state: StateUnauthenticated} }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Context() *AuthContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// BeginAuthenticating transitions Unauthenticated/Failed -> Authenticating.
func (m *Machine) BeginAuthenticating() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnauthenticated && m.state != StateFailed {
		return errTransition(m.state, StateAuthenticating)
	}
	m.state = StateAuthenticating
	return nil
}

// Succeed transitions Authenticating/Refreshing -> Authenticated, attaching
// the validated context.
func (m *Machine) Succeed(ctx *AuthContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticating && m.state != StateRefreshing {
		return errTransition(m.state, StateAuthenticated)
	}
	m.state = StateAuthenticated
	m.ctx = ctx
	return nil
}

// BeginRefreshing transitions Authenticated -> Refreshing.
func (m *Machine) BeginRefreshing() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return errTransition(m.state, StateRefreshing)
	}
	m.state = StateRefreshing
	return nil
}

// Fail transitions any state -> Failed, clearing any attached context.
func (m *Machine) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateFailed
	m.ctx = nil
}

// Reset transitions any state -> Unauthenticated, clearing any attached context.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateUnauthenticated
	m.ctx = nil
}

func errTransition(from, to State) error {
	return &transitionError{from: from, to: to}
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return "auth: invalid transition from " + e.from.String() + " to " + e.to.String()
}
