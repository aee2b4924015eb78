package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/app"
)

func TestToAppInfoPlain(t *testing.T) {
	a := &app.Application{ID: "com.example.app", CodeDir: "/apps/app", RuntimeName: "native"}
	info := toAppInfo(a, "Active")

	require.Equal(t, "com.example.app", info.ID)
	require.Equal(t, "native", info.RuntimeName)
	require.Equal(t, "Active", info.State)
	require.False(t, info.IsAlias)
	require.Empty(t, info.NonAliasedID)
}

func TestToAppInfoAlias(t *testing.T) {
	base := &app.Application{ID: "com.example.app"}
	alias := &app.Application{ID: "com.example.app.alias", NonAliased: base}

	info := toAppInfo(alias, "Inactive")
	require.True(t, info.IsAlias)
	require.Equal(t, "com.example.app", info.NonAliasedID)
}

func TestRPCErrorMapsKnownKinds(t *testing.T) {
	err := rpcError(amerr.NotFound.New("missing"))
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())

	err = rpcError(amerr.AppRunning.New("running"))
	st, ok = status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.FailedPrecondition, st.Code())
}

func TestRPCErrorNilIsNil(t *testing.T) {
	require.NoError(t, rpcError(nil))
}
