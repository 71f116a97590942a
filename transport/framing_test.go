package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineFramerBuffersIncompleteMessage(t *testing.T) {
	f := NewLineFramer()
	f.Append([]byte(`{"jsonrpc": "2.0", "method": "test"`))
	_, ok := f.NextFrame()
	require.False(t, ok)

	f.Append([]byte(`, "params": {}}` + "\n"))
	frame, ok := f.NextFrame()
	require.True(t, ok)
	require.Equal(t, `{"jsonrpc": "2.0", "method": "test", "params": {}}`, string(frame))

	_, ok = f.NextFrame()
	require.False(t, ok)
}

func TestLineFramerMultipleFrames(t *testing.T) {
	f := NewLineFramer()
	f.Append([]byte("a\nb\nc"))

	frame, ok := f.NextFrame()
	require.True(t, ok)
	require.Equal(t, "a", string(frame))

	frame, ok = f.NextFrame()
	require.True(t, ok)
	require.Equal(t, "b", string(frame))

	_, ok = f.NextFrame()
	require.False(t, ok)
}

func TestLengthPrefixedFramerRoundTrip(t *testing.T) {
	f := NewLengthPrefixedFramer()
	f.Append(EncodeLengthPrefixed([]byte("hello")))
	f.Append(EncodeLengthPrefixed([]byte("world")))

	frame, ok, err := f.NextFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(frame))

	frame, ok, err = f.NextFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", string(frame))
}

func TestLengthPrefixedFramerRejectsOversizeFrame(t *testing.T) {
	f := NewLengthPrefixedFramer()
	oversized := make([]byte, 4)
	oversized[0] = 0xFF
	f.Append(oversized)
	_, _, err := f.NextFrame()
	require.Error(t, err)
}

func TestChannelTransportPairSendReceive(t *testing.T) {
	a, b := NewChannelTransportPair(1)
	defer a.Close()
	defer b.Close()
	require.True(t, a.IsConnected())
	require.NotEqual(t, a.SessionID(), b.SessionID())
}
