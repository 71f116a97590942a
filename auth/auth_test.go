package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexuskit/mcp-core/wire"
)

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine()
	require.Equal(t, StateUnauthenticated, m.State())
	require.NoError(t, m.BeginAuthenticating())
	require.NoError(t, m.Succeed(&AuthContext{Subject: "alice"}))
	require.Equal(t, StateAuthenticated, m.State())
	require.Equal(t, "alice", m.Context().Subject)

	require.NoError(t, m.BeginRefreshing())
	require.NoError(t, m.Succeed(&AuthContext{Subject: "alice"}))
}

func TestMachineRejectsInvalidTransition(t *testing.T) {
	m := NewMachine()
	require.Error(t, m.Succeed(&AuthContext{}))
}

func TestMachineFailClearsContext(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.BeginAuthenticating())
	require.NoError(t, m.Succeed(&AuthContext{Subject: "alice"}))
	m.Fail()
	require.Equal(t, StateFailed, m.State())
	require.Nil(t, m.Context())
}

func TestScopeAuthorizerDefaultScopes(t *testing.T) {
	az := NewScopeAuthorizer([]string{"tools:read"})
	ctx := &AuthContext{Scopes: []string{"tools:read"}}
	require.True(t, az.CanAccessTool(ctx, "list_files"))

	empty := &AuthContext{}
	require.False(t, az.CanAccessTool(empty, "list_files"))
}

func TestScopeAuthorizerPerToolOverride(t *testing.T) {
	az := NewScopeAuthorizer(nil).Require("delete_file", "tools:write", "tools:admin")
	ctx := &AuthContext{Scopes: []string{"tools:write"}}
	require.False(t, az.CanAccessTool(ctx, "delete_file"))

	ctx.Scopes = append(ctx.Scopes, "tools:admin")
	require.True(t, az.CanAccessTool(ctx, "delete_file"))
}

func TestAuthorizeMissingContextWithRequiredScopesIsAuthError(t *testing.T) {
	az := NewScopeAuthorizer(nil).Require("delete_file", "tools:write")
	err := Authorize(az, nil, "delete_file")
	require.NotNil(t, err)
	require.Equal(t, wire.CodeAuthenticationError, err.Code)
}

func TestAuthorizeMissingContextWithNoRequiredScopesIsAllowed(t *testing.T) {
	az := NewScopeAuthorizer(nil)
	err := Authorize(az, nil, "list_files")
	require.Nil(t, err)
}

func TestAuthorizeInsufficientScopeIsForbidden(t *testing.T) {
	az := NewScopeAuthorizer(nil).Require("delete_file", "tools:write")
	err := Authorize(az, &AuthContext{Scopes: []string{"tools:read"}}, "delete_file")
	require.NotNil(t, err)
	require.Equal(t, wire.CodeForbidden, err.Code)
}

func TestAuthorizeNilAuthorizerAllowsEverything(t *testing.T) {
	require.Nil(t, Authorize(nil, nil, "anything"))
}
