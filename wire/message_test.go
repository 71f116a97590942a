package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	in := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`
	m, err := Parse([]byte(in))
	require.NoError(t, err)
	require.Equal(t, KindRequest, m.Kind)
	require.Equal(t, "initialize", m.Request.Method)
	require.Equal(t, NewIntID(1), m.Request.ID)
}

func TestParseResponseRequiresExactlyOneOfResultOrError(t *testing.T) {
	_, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":-32000,"message":"x"}}`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"jsonrpc":"2.0","id":1}`))
	require.Error(t, err)
}

func TestParseNotification(t *testing.T) {
	m, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	require.Equal(t, KindNotification, m.Kind)
	require.Equal(t, "notifications/initialized", m.Notification.Method)
}

func TestParseRejectsWrongVersion(t *testing.T) {
	_, err := Parse([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	require.Error(t, err)
}

func TestStringIDZero(t *testing.T) {
	m, err := Parse([]byte(`{"jsonrpc":"2.0","id":"0","method":"ping"}`))
	require.NoError(t, err)
	require.True(t, m.Request.ID.IsString())
	require.Equal(t, "0", m.Request.ID.String())
	require.False(t, m.Request.ID.Equal(NewIntID(0)))
}

// P1: for any valid WireMessage m, parse(serialize(m)) ≡ m up to field ordering.
func TestRoundTripProperty(t *testing.T) {
	cases := []string{
		`{"jsonrpc":"2.0","id":42,"method":"tools/call","params":{"name":"calc","arguments":{"a":1}}}`,
		`{"jsonrpc":"2.0","id":"req-1","result":{"ok":true}}`,
		`{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"method not found: x"}}`,
		`{"jsonrpc":"2.0","method":"notifications/progress","params":{"progressToken":1,"progress":0.5}}`,
		`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2,"method":"ping"}]`,
	}

	for _, in := range cases {
		m1, err := Parse([]byte(in))
		require.NoError(t, err)
		out, err := Serialize(m1)
		require.NoError(t, err)
		m2, err := Parse(out)
		require.NoError(t, err)

		b1, _ := json.Marshal(normalize(t, m1))
		b2, _ := json.Marshal(normalize(t, m2))
		require.JSONEq(t, string(b1), string(b2))
	}
}

func TestUnknownFieldsPreservedOnRoundTrip(t *testing.T) {
	in := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{},"_meta":{"vendor":"acme"}}`
	m, err := Parse([]byte(in))
	require.NoError(t, err)
	out, err := Serialize(m)
	require.NoError(t, err)
	require.Contains(t, string(out), `"vendor":"acme"`)
}

// normalize re-serializes to a canonical comparable form for the test above.
func normalize(t *testing.T, m *Message) interface{} {
	t.Helper()
	b, err := Serialize(m)
	require.NoError(t, err)
	var v interface{}
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}
