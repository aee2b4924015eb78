package config

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "amd-config-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestLoadParsesFields(t *testing.T) {
	path := writeTempConfig(t, `
storageRoot: /var/lib/am
runtimesPerContainer: 2
idleLoad: 0.5
installationLocations:
  - type: internal
    index: 0
    installationPath: /var/lib/am/apps
    documentPath: /var/lib/am/docs
    isDefault: true
rpcInterfaces:
  ApplicationManager:
    bus: system
applicationUserIdSeparation:
  minUserId: 5000
  maxUserId: 5999
  commonGroupId: 100
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/am", cfg.StorageRoot)
	require.Equal(t, 2, cfg.RuntimesPerContainer)
	require.Len(t, cfg.InstallationLocations, 1)
	require.True(t, cfg.InstallationLocations[0].IsDefault)
	require.Equal(t, "system", cfg.RPCInterfaces["ApplicationManager"].Bus)
	require.NotNil(t, cfg.UIDSeparation)
	require.Equal(t, 5000, cfg.UIDSeparation.MinUserID)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "storageRoot: /opt/custom\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.QuitTime)
	require.Equal(t, []SelectionRuleConfig{{Glob: "*", Kind: "process"}}, cfg.ContainerSelection)
	require.Equal(t, []SelectionRuleConfig{{Glob: "*", Kind: "native"}}, cfg.RuntimeSelection)
}

func TestLoadDefaultsStorageRootWhenEmpty(t *testing.T) {
	path := writeTempConfig(t, "runtimesPerContainer: 1\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/am", cfg.StorageRoot)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}
