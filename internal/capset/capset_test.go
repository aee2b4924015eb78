package capset

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestSupportedDropsUnrecognizedNames(t *testing.T) {
	log := logrus.NewEntry(logrus.StandardLogger())
	out := Supported([]string{"CAP_CHOWN", "CAP_NOT_A_REAL_CAPABILITY"}, log)
	require.Contains(t, out, "CAP_CHOWN")
	require.NotContains(t, out, "CAP_NOT_A_REAL_CAPABILITY")
}

func TestSupportedIsCaseInsensitive(t *testing.T) {
	out := Supported([]string{"cap_chown"}, nil)
	require.Contains(t, out, "CAP_CHOWN")
}

func TestSupportedNeverReturnsMoreThanRequested(t *testing.T) {
	requested := []string{"CAP_CHOWN", "CAP_SETUID"}
	out := Supported(requested, nil)
	require.LessOrEqual(t, len(out), len(requested))
}
