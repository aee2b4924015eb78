package registry

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
}

const infoHeader = "formatType: am-application\nformatVersion: 1\n---\n"

func TestScanTreeBuiltinWithAlias(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "com.x.a")
	writeFile(t, filepath.Join(appDir, "info.yaml"), infoHeader+"id: com.x.a\ncodeDir: /app\nruntimeName: native\nruntimeParameters:\n  foo: bar\n")
	writeFile(t, filepath.Join(appDir, "info-ru.yaml"), infoHeader+"id: com.x.a@ru\nruntimeParameters:\n  foo: baz\n  lang: ru\n")

	r := New(nil)
	apps, err := r.ScanTree(dir, BuiltIn)
	require.NoError(t, err)
	require.Len(t, apps, 2)

	r.Load(apps)

	base, ok := r.Lookup("com.x.a")
	require.True(t, ok)
	require.False(t, base.IsAlias())

	alias, ok := r.Lookup("com.x.a@ru")
	require.True(t, ok)
	require.True(t, alias.IsAlias())
	require.Equal(t, base, alias.NonAliased)

	merged := alias.EffectiveRuntimeParameters()
	require.Equal(t, "baz", merged["foo"])
	require.Equal(t, "ru", merged["lang"])
}

func TestScanTreeSkipsReservedNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "com.x.a+", "info.yaml"), infoHeader+"id: com.x.a+\n")

	r := New(nil)
	apps, err := r.ScanTree(dir, BuiltIn)
	require.NoError(t, err)
	require.Empty(t, apps)
}

func TestScanTreeInstalledRequiresReport(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "com.x.a")
	writeFile(t, filepath.Join(appDir, "info.yaml"), infoHeader+"id: com.x.a\nruntimeName: native\n")
	// no installation-report.yaml

	r := New(nil)
	apps, err := r.ScanTree(dir, Installed)
	require.NoError(t, err)
	require.Empty(t, apps)
}

func TestScanTreeInstalledWithReport(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "com.x.a")
	writeFile(t, filepath.Join(appDir, "info.yaml"), infoHeader+"id: com.x.a\nruntimeName: native\n")
	writeFile(t, filepath.Join(appDir, "installation-report.yaml"), "applicationId: com.x.a\ninstallationLocationId: internal-0\ndiskSpaceUsed: 1024\ndigest: abc\n")

	r := New(nil)
	apps, err := r.ScanTree(dir, Installed)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.True(t, apps[0].IsInstalled())
}

func TestRejectsWrongFormatVersion(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "com.x.a")
	writeFile(t, filepath.Join(appDir, "info.yaml"), "formatType: am-application\nformatVersion: 2\n---\nid: com.x.a\n")

	r := New(nil)
	apps, err := r.ScanTree(dir, BuiltIn)
	require.NoError(t, err)
	require.Empty(t, apps) // bad entries are skipped, not fatal
}

func TestWriteOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "com.x.a")
	writeFile(t, filepath.Join(appDir, "info.yaml"), infoHeader+"id: com.x.a\ncodeDir: /app\nruntimeName: native\nruntimeParameters:\n  foo: bar\n")

	r := New(nil)
	apps, err := r.ScanTree(dir, BuiltIn)
	require.NoError(t, err)
	r.Load(apps)

	dbPath := filepath.Join(dir, "apps.db")
	require.NoError(t, r.Write(dbPath))

	loaded, err := Open(dbPath)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "com.x.a", loaded[0].ID)
	require.Equal(t, "bar", loaded[0].RuntimeParameters["foo"])
}

func TestOpenMissingNeedsRecreate(t *testing.T) {
	_, err := Open("/nonexistent/path/apps.db")
	require.True(t, NeedsRecreate(err))
}

func TestOpenCorruptNeedsRecreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.db")
	writeFile(t, path, "not a database")

	_, err := Open(path)
	require.True(t, NeedsRecreate(err))
}
