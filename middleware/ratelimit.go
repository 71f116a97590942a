package middleware

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nexuskit/mcp-core/wire"
)

// RateLimit enforces a per-session token bucket (spec.md property P8: a
// session exceeding its configured rate receives CodeRateLimited instead of
// reaching the handler). One limiter is lazily created per session id.
type RateLimit struct {
	Base
	ratePerSecond float64
	burst         int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimit(ratePerSecond float64, burst int) *RateLimit {
	return &RateLimit{ratePerSecond: ratePerSecond, burst: burst, limiters: map[string]*rate.Limiter{}}
}

func (r *RateLimit) Name() string       { return "rate_limit" }
func (r *RateLimit) Priority() Priority { return PriorityCritical }

func (r *RateLimit) limiterFor(sessionID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[sessionID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.ratePerSecond), r.burst)
		r.limiters[sessionID] = l
	}
	return l
}

func (r *RateLimit) OnRequest(_ context.Context, mwctx *Context, _ *json.RawMessage) error {
	if !r.limiterFor(mwctx.SessionID).Allow() {
		return wire.NewError(wire.CodeRateLimited, "rate limit exceeded for session "+mwctx.SessionID)
	}
	return nil
}

// Forget drops a session's limiter, freeing memory once a session closes.
func (r *RateLimit) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, sessionID)
}
