package installer

import (
	"archive/tar"
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildPackage(t *testing.T, manifest string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	writeEntry := func(name, contents string) {
		hdr := &tar.Header{Name: name, Size: int64(len(contents)), Mode: 0644}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(contents))
		require.NoError(t, err)
	}

	writeEntry("info.yaml", manifest)
	for name, contents := range files {
		writeEntry(name, contents)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func resolver(base string) LocationResolver {
	return func(locationID string) (string, string, bool) {
		if locationID != "internal-0" {
			return "", "", false
		}
		return filepath.Join(base, "inst"), filepath.Join(base, "doc"), true
	}
}

func TestInstallFlowAwaitingAckThenAcknowledge(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inst"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "doc"), 0755))

	e := New(resolver(dir), nil, true, nil, nil)

	manifest := "formatType: am-application\nformatVersion: 1\n---\nid: com.x.a\nsignerChain: []\n"
	pkg := buildPackage(t, manifest, map[string]string{"bin/run": "#!/bin/sh\n"})
	taskID, err := e.StartInstallation("internal-0", bytes.NewReader(pkg))
	require.NoError(t, err)

	task, ok := e.Task(taskID)
	require.True(t, ok)
	require.Equal(t, AwaitingAck, task.State)
	require.Equal(t, "com.x.a", task.AppID)
	require.NotEmpty(t, task.DigestHex)
	require.Greater(t, task.DiskSpaceUsed, int64(0))

	require.NoError(t, e.Acknowledge(taskID))

	task, _ = e.Task(taskID)
	require.Equal(t, Finished, task.State)

	reportPath := filepath.Join(dir, "inst", "com.x.a", "installation-report.yaml")
	reportBytes, err := ioutil.ReadFile(reportPath)
	require.NoError(t, err)
	require.Contains(t, string(reportBytes), task.DigestHex)
}

func TestCancelDuringAwaitingAckRemovesStaging(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inst"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "doc"), 0755))

	e := New(resolver(dir), nil, true, nil, nil)

	manifest := "formatType: am-application\nformatVersion: 1\n---\nid: com.x.a\n"
	pkg := buildPackage(t, manifest, nil)
	taskID, err := e.StartInstallation("internal-0", bytes.NewReader(pkg))
	require.NoError(t, err)

	task, _ := e.Task(taskID)
	staging := task.stagingDir

	require.NoError(t, e.Cancel(taskID))

	task, _ = e.Task(taskID)
	require.Equal(t, Failed, task.State)

	_, err = os.Stat(staging)
	require.True(t, os.IsNotExist(err))
}

func TestStartInstallationUnknownLocation(t *testing.T) {
	dir := t.TempDir()
	e := New(resolver(dir), nil, true, nil, nil)
	_, err := e.StartInstallation("internal-9", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestRemoveRefusesWhenRunningWithoutForce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "inst", "com.x.a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "doc"), 0755))

	e := New(resolver(dir), nil, true, nil, nil)
	isRunning := func(id string) bool { return true }

	_, err := e.Remove("com.x.a", "internal-0", false, false, isRunning)
	require.Error(t, err)
}

func TestRemoveDeletesInstalledApp(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "inst", "com.x.a")
	require.NoError(t, os.MkdirAll(appDir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "doc", "com.x.a"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(appDir, "installation-report.yaml"), []byte("applicationId: com.x.a\n"), 0644))

	e := New(resolver(dir), nil, true, nil, nil)
	taskID, err := e.Remove("com.x.a", "internal-0", true, false, nil)
	require.NoError(t, err)

	task, _ := e.Task(taskID)
	require.Equal(t, Finished, task.State)

	_, err = os.Stat(appDir)
	require.True(t, os.IsNotExist(err))
}

func TestUIDSeparationEnabled(t *testing.T) {
	var u *UIDSeparation
	require.False(t, u.Enabled())

	u = &UIDSeparation{MinUserID: 10000, MaxUserID: 20000, CommonGroupID: 500}
	require.True(t, u.Enabled())

	incomplete := &UIDSeparation{MinUserID: 10000}
	require.False(t, incomplete.Enabled())
}

func TestCleanupBrokenInstallations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".staging-abc"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "com.x.a"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "com.x.a", "installation-report.yaml"), []byte("applicationId: com.x.a\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "com.x.broken"), 0755))

	require.NoError(t, CleanupBrokenInstallations(dir))

	_, err := os.Stat(filepath.Join(dir, ".staging-abc"))
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "com.x.broken"))
	require.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "com.x.a"))
	require.NoError(t, err)
}
