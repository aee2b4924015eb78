package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestExitCodeSuccess(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
}

func TestExitCodeRemoteRPCFailure(t *testing.T) {
	err := status.Error(codes.NotFound, "application not found")
	require.Equal(t, 2, ExitCode(err))
}

func TestExitCodeGenericError(t *testing.T) {
	require.Equal(t, 1, ExitCode(errors.New("boom")))
}
