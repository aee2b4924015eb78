package cryptoload

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"
)

func TestFallbackSignVerifyRoundTrip(t *testing.T) {
	l := New(Bounds{Min: 1, Max: 2})
	l.LoadFrom("") // no plugin configured: ed25519 fallback

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sig, err := l.Sign(priv, []byte("hello"))
	require.NoError(t, err)

	ok, err := l.Verify(pub, []byte("hello"), sig)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, l.Resolved())
}

func TestFallbackRejectsWrongKeySize(t *testing.T) {
	l := New(Bounds{Min: 1, Max: 2})
	l.LoadFrom("")

	_, err := l.Sign([]byte("too-short"), []byte("hello"))
	require.Error(t, err)
}

func TestUninitializedLoaderFails(t *testing.T) {
	l := &Loader{bounds: Bounds{Min: 1, Max: 2}}
	_, err := l.Sign(make([]byte, ed25519.PrivateKeySize), []byte("x"))
	require.Error(t, err)
}

func TestMissingPluginStaysUnresolvedPermanently(t *testing.T) {
	l := New(Bounds{Min: 1, Max: 2})
	l.LoadFrom("/no/such/plugin.so")
	require.False(t, l.Resolved())

	// A second probe attempt must be a no-op; Resolved stays false.
	l.LoadFrom("/no/such/plugin.so")
	require.False(t, l.Resolved())
}
