// Package location implements the Storage-Location Model (C4): it
// enumerates install/document paths, detects mount state, and reports
// free/total bytes. It is grounded on the original implementation's
// installationlocation.cpp (fixPath, diskUsage, parseInstallationLocations),
// translated into Go idioms.
package location

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/appkit/amd/internal/amerr"
)

// Type is the kind of an installation location.
type Type int

const (
	Invalid Type = iota
	Internal
	Removable
)

func (t Type) String() string {
	switch t {
	case Internal:
		return "internal"
	case Removable:
		return "removable"
	default:
		return "invalid"
	}
}

func typeFromString(s string) Type {
	switch s {
	case "internal":
		return Internal
	case "removable":
		return Removable
	default:
		return Invalid
	}
}

// Config is the raw, user-supplied shape of one installation location
// entry, as read from the YAML configuration file (spec §6's
// "installationLocations" key).
type Config struct {
	ID               string `yaml:"id"`
	InstallationPath string `yaml:"installationPath"`
	DocumentPath     string `yaml:"documentPath"`
	MountPoint       string `yaml:"mountPoint"`
	IsDefault        bool   `yaml:"isDefault"`
}

// Location is a resolved, validated installation location: a named pair
// (installationPath, documentPath) possibly on removable media,
// identified by "<type>-<index>".
type Location struct {
	typ              Type
	index            int
	installationPath string
	documentPath     string
	mountPoint       string
	isDefault        bool
}

// ID returns the composite "<type>-<index>" identifier.
func (l *Location) ID() string { return fmt.Sprintf("%s-%d", l.typ, l.index) }

func (l *Location) Type() Type             { return l.typ }
func (l *Location) Index() int             { return l.index }
func (l *Location) IsDefault() bool        { return l.isDefault }
func (l *Location) IsRemovable() bool      { return l.typ == Removable }
func (l *Location) InstallationPath() string { return l.installationPath }
func (l *Location) DocumentPath() string     { return l.documentPath }
func (l *Location) MountPoint() string       { return l.mountPoint }

// IsMounted reports whether the backing media is currently available.
// Non-removable locations are always considered mounted.
func (l *Location) IsMounted() bool {
	if !l.IsRemovable() {
		return true
	}
	if l.mountPoint == "" {
		return false
	}
	_, err := os.Stat(l.mountPoint)
	return err == nil
}

// DiskUsage reports the total and free bytes of the filesystem backing
// path, mirroring the original's statvfs-based diskUsage(). Uses
// golang.org/x/sys/unix rather than the syscall package so the Statfs_t
// field set stays correct across the kernel ABI variations x/sys tracks.
func DiskUsage(path string) (total, free uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, amerr.System.Wrap(err, "statfs "+path)
	}
	total = uint64(stat.Bsize) * stat.Blocks
	free = uint64(stat.Bsize) * stat.Bavail
	return total, free, nil
}

// InstallationDeviceFreeSpace reports free/total bytes for the
// installation path's filesystem.
func (l *Location) InstallationDeviceFreeSpace() (total, free uint64, err error) {
	return DiskUsage(l.installationPath)
}

// DocumentDeviceFreeSpace reports free/total bytes for the document
// path's filesystem.
func (l *Location) DocumentDeviceFreeSpace() (total, free uint64, err error) {
	return DiskUsage(l.documentPath)
}

// fixPath substitutes the "@HARDWARE-ID@" token and returns a
// slash-terminated absolute-ish path, mirroring the original's fixPath().
func fixPath(path, hardwareID string) string {
	real := strings.ReplaceAll(path, "@HARDWARE-ID@", hardwareID)
	if abs, err := filepath.Abs(real); err == nil {
		real = abs
	}
	if !strings.HasSuffix(real, string(os.PathSeparator)) {
		real += string(os.PathSeparator)
	}
	return real
}

// Parse validates and resolves a list of configured installation
// locations, grounded on parseInstallationLocations() in
// installationlocation.cpp. It enforces invariant I5 (at most one
// isDefault) and, for non-removable locations, that both directories
// exist or can be created.
func Parse(list []Config, hardwareID string) ([]*Location, error) {
	var locations []*Location
	gotDefault := false

	for _, c := range list {
		if c.IsDefault {
			if gotDefault {
				return nil, amerr.Parse.New("multiple default installation locations defined")
			}
			gotDefault = true
		}

		parts := strings.SplitN(c.ID, "-", 2)
		if len(parts) != 2 {
			return nil, amerr.Parse.New(fmt.Sprintf("could not parse the installation location with id %s", c.ID))
		}

		typ := typeFromString(parts[0])
		index, err := strconv.Atoi(parts[1])
		if typ == Invalid || err != nil || index < 0 {
			return nil, amerr.Parse.New(fmt.Sprintf("could not parse the installation location with id %s", c.ID))
		}

		l := &Location{
			typ:              typ,
			index:            index,
			installationPath: fixPath(c.InstallationPath, hardwareID),
			documentPath:     fixPath(c.DocumentPath, hardwareID),
			mountPoint:       c.MountPoint,
			isDefault:        c.IsDefault,
		}

		if !l.IsRemovable() {
			if err := os.MkdirAll(l.installationPath, 0755); err != nil {
				return nil, amerr.Parse.New(fmt.Sprintf("the app directory %s for the installation location %s does not exist although the location is not removable", c.InstallationPath, c.ID))
			}
			if err := os.MkdirAll(l.documentPath, 0755); err != nil {
				return nil, amerr.Parse.New(fmt.Sprintf("the doc directory %s for the installation location %s does not exist although the location is not removable", c.DocumentPath, c.ID))
			}
		}

		locations = append(locations, l)
	}

	if len(locations) == 0 {
		return nil, amerr.Parse.New("no installation locations defined in config file")
	}

	return locations, nil
}

// Find looks up a parsed location by its composite id.
func Find(locations []*Location, id string) *Location {
	for _, l := range locations {
		if l.ID() == id {
			return l
		}
	}
	return nil
}
