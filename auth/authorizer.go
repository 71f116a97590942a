package auth

import "github.com/nexuskit/mcp-core/wire"

// ToolAuthorizer decides whether a given auth context may invoke a named
// tool (spec.md §4.4): "if a tool authorizer is configured, invoke for
// tools must first pass can_access_tool(auth_context, tool_name); missing
// auth context with any non-empty required scopes is an auth error; boolean
// false is a forbidden error; otherwise allowed."
type ToolAuthorizer interface {
	CanAccessTool(ctx *AuthContext, toolName string) bool
}

// ScopeAuthorizer is the built-in, scope-based ToolAuthorizer: each tool
// name maps to its required scopes, with DefaultScopes applied to any
// unlisted tool.
type ScopeAuthorizer struct {
	RequiredScopes map[string][]string
	DefaultScopes  []string
}

func NewScopeAuthorizer(defaultScopes []string) *ScopeAuthorizer {
	return &ScopeAuthorizer{RequiredScopes: map[string][]string{}, DefaultScopes: defaultScopes}
}

// Require sets the scopes needed to invoke the named tool, overriding DefaultScopes for it.
func (s *ScopeAuthorizer) Require(toolName string, scopes ...string) *ScopeAuthorizer {
	s.RequiredScopes[toolName] = scopes
	return s
}

func (s *ScopeAuthorizer) scopesFor(toolName string) []string {
	if scopes, ok := s.RequiredScopes[toolName]; ok {
		return scopes
	}
	return s.DefaultScopes
}

func (s *ScopeAuthorizer) CanAccessTool(ctx *AuthContext, toolName string) bool {
	for _, scope := range s.scopesFor(toolName) {
		if !ctx.HasScope(scope) {
			return false
		}
	}
	return true
}

// Authorize applies the full decision rule from spec.md §4.4, returning a
// wire error ready to surface to the peer when access is denied.
func Authorize(authorizer ToolAuthorizer, ctx *AuthContext, toolName string) *wire.Error {
	if authorizer == nil {
		return nil
	}
	if ctx == nil {
		if sa, ok := authorizer.(*ScopeAuthorizer); ok && len(sa.scopesFor(toolName)) > 0 {
			return wire.NewError(wire.CodeAuthenticationError, "tool "+toolName+" requires authentication")
		}
		if !authorizer.CanAccessTool(nil, toolName) {
			return wire.NewError(wire.CodeAuthenticationError, "tool "+toolName+" requires authentication")
		}
		return nil
	}
	if !authorizer.CanAccessTool(ctx, toolName) {
		return wire.NewError(wire.CodeForbidden, "insufficient scope for tool "+toolName)
	}
	return nil
}
