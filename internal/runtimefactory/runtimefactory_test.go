package runtimefactory

import (
	"testing"

	"github.com/appkit/amd/internal/amerr"
	"github.com/stretchr/testify/require"
)

func TestFactoryRegistersAndCreatesQMLInProcess(t *testing.T) {
	f := NewFactory()
	f.Register(NewQMLInProcessManager())
	f.Register(NewNativeManager())

	require.Equal(t, []string{"qml-inprocess", "native"}, f.Kinds())

	rt, err := f.Create("qml-inprocess", nil, false)
	require.NoError(t, err)
	require.False(t, rt.IsQuickLauncher())
	require.Nil(t, rt.Container())

	require.NoError(t, rt.Start(nil, nil))
	require.NoError(t, rt.Stop())
	code, crashed := rt.Wait()
	require.True(t, crashed)
	require.Equal(t, -1, code)
}

func TestNativeManagerRequiresContainer(t *testing.T) {
	f := NewFactory()
	f.Register(NewNativeManager())

	_, err := f.Create("native", nil, false)
	require.Error(t, err)
}

func TestUnknownKind(t *testing.T) {
	f := NewFactory()
	_, err := f.Create("bogus", nil, false)
	require.True(t, amerr.NotFound.Is(err))
}

func TestQuickLaunchSupport(t *testing.T) {
	native := NewNativeManager()
	inproc := NewQMLInProcessManager()

	require.True(t, native.SupportsQuickLaunch())
	require.False(t, inproc.SupportsQuickLaunch())
	require.False(t, native.InProcess())
	require.True(t, inproc.InProcess())
}
