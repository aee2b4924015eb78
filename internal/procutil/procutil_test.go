package procutil

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseColorMode(t *testing.T) {
	require.Equal(t, ColorOn, ParseColorMode("on"))
	require.Equal(t, ColorOn, ParseColorMode("1"))
	require.Equal(t, ColorOff, ParseColorMode("off"))
	require.Equal(t, ColorOff, ParseColorMode("0"))
	require.Equal(t, ColorAuto, ParseColorMode("auto"))
	require.Equal(t, ColorAuto, ParseColorMode("garbage"))
}

func TestColorEnabledForcedModes(t *testing.T) {
	require.True(t, ColorEnabled(ColorOn, 0))
	require.False(t, ColorEnabled(ColorOff, 0))
}

func TestTimeoutFactorDefault(t *testing.T) {
	os.Unsetenv(TimeoutFactorEnvVar)
	require.Equal(t, 1, TimeoutFactor())
	require.Equal(t, 2*time.Second, ScaleTimeout(2*time.Second))
}

func TestTimeoutFactorFromEnv(t *testing.T) {
	os.Setenv(TimeoutFactorEnvVar, "3")
	defer os.Unsetenv(TimeoutFactorEnvVar)

	require.Equal(t, 3, TimeoutFactor())
	require.Equal(t, 6*time.Second, ScaleTimeout(2*time.Second))
}

func TestTimeoutFactorInvalidFallsBackToOne(t *testing.T) {
	os.Setenv(TimeoutFactorEnvVar, "not-a-number")
	defer os.Unsetenv(TimeoutFactorEnvVar)

	require.Equal(t, 1, TimeoutFactor())
}
