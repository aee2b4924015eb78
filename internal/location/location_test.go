package location

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSingleDefault(t *testing.T) {
	dir := t.TempDir()
	list := []Config{
		{
			ID:               "internal-0",
			InstallationPath: filepath.Join(dir, "inst"),
			DocumentPath:     filepath.Join(dir, "doc"),
			IsDefault:        true,
		},
	}

	locs, err := Parse(list, "abc123")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "internal-0", locs[0].ID())
	require.True(t, locs[0].IsDefault())
	require.False(t, locs[0].IsRemovable())
	require.True(t, locs[0].IsMounted())
}

func TestParseRejectsMultipleDefaults(t *testing.T) {
	dir := t.TempDir()
	list := []Config{
		{ID: "internal-0", InstallationPath: filepath.Join(dir, "a"), DocumentPath: filepath.Join(dir, "ad"), IsDefault: true},
		{ID: "internal-1", InstallationPath: filepath.Join(dir, "b"), DocumentPath: filepath.Join(dir, "bd"), IsDefault: true},
	}

	_, err := Parse(list, "abc123")
	require.Error(t, err)
}

func TestParseRejectsEmptyList(t *testing.T) {
	_, err := Parse(nil, "abc123")
	require.Error(t, err)
}

func TestParseRejectsInvalidID(t *testing.T) {
	dir := t.TempDir()
	list := []Config{
		{ID: "bogus", InstallationPath: filepath.Join(dir, "a"), DocumentPath: filepath.Join(dir, "ad")},
	}

	_, err := Parse(list, "abc123")
	require.Error(t, err)
}

func TestRemovableLocationDoesNotRequirePath(t *testing.T) {
	list := []Config{
		{ID: "removable-0", InstallationPath: "/mnt/@HARDWARE-ID@/app", DocumentPath: "/mnt/@HARDWARE-ID@/doc", MountPoint: "/nonexistent"},
	}

	locs, err := Parse(list, "hw42")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.True(t, locs[0].IsRemovable())
	require.Contains(t, locs[0].InstallationPath(), "hw42")
	require.False(t, locs[0].IsMounted())
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	list := []Config{
		{ID: "internal-0", InstallationPath: filepath.Join(dir, "a"), DocumentPath: filepath.Join(dir, "ad")},
	}
	locs, err := Parse(list, "hw")
	require.NoError(t, err)
	require.NotNil(t, Find(locs, "internal-0"))
	require.Nil(t, Find(locs, "internal-9"))
}
