package rpcsurface

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestRegisterNoneBusWritesNoSidecar(t *testing.T) {
	dir := t.TempDir()
	s := New()

	reg, err := s.Register(InterfaceConfig{
		Name:       "control",
		Bus:        BusSpec{Kind: BusNone},
		SocketDir:  dir,
		SidecarDir: dir,
	}, func(*grpc.Server) {})
	require.NoError(t, err)
	require.NotEmpty(t, reg.Address())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".dbus")
	}

	require.NoError(t, s.Unregister("control"))
}

func TestRegisterExplicitBusWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	s := New()

	_, err := s.Register(InterfaceConfig{
		Name:       "ipc",
		Bus:        BusSpec{Kind: BusExplicit, Address: "unix:path=/tmp/fake-bus"},
		SocketDir:  dir,
		SidecarDir: dir,
	}, func(*grpc.Server) {})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "ipc.dbus"))
	require.NoError(t, err)
	require.Equal(t, "unix:path=/tmp/fake-bus", string(content))

	require.NoError(t, s.Unregister("ipc"))
	_, err = os.Stat(filepath.Join(dir, "ipc.dbus"))
	require.True(t, os.IsNotExist(err))
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	dir := t.TempDir()
	s := New()

	cfg := InterfaceConfig{Name: "dup", Bus: BusSpec{Kind: BusNone}, SocketDir: dir}
	_, err := s.Register(cfg, func(*grpc.Server) {})
	require.NoError(t, err)

	_, err = s.Register(cfg, func(*grpc.Server) {})
	require.Error(t, err)

	s.Shutdown()
}

func TestPolicyDeniesUnlistedMethod(t *testing.T) {
	p := Policy{
		"/x.Svc/Allowed": AllowAll,
		"*":              func(string) bool { return false },
	}
	require.True(t, p.allows("/x.Svc/Allowed", "peer"))
	require.False(t, p.allows("/x.Svc/Denied", "peer"))
}

func TestPolicyDefaultAllowsWhenUnconfigured(t *testing.T) {
	var p Policy
	require.True(t, p.allows("/x.Svc/Anything", "peer"))
}

func TestPolicyInterceptorRejectsDenied(t *testing.T) {
	p := Policy{"*": func(string) bool { return false }}
	interceptor := policyInterceptor(p)

	called := false
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		called = true
		return nil, nil
	}
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x.Svc/M"}, handler)
	require.Error(t, err)
	require.False(t, called)
}
