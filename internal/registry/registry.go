// Package registry implements the Application Registry (C5): a
// persistent, versioned on-disk database of installed application
// manifests plus in-memory alias resolution. It is grounded on
// runtime/storage.go's directory-scanning idiom, generalized from
// driver images to application manifests, and on the binary database
// format that spec §6 mandates.
package registry

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/app"
	"github.com/sirupsen/logrus"
)

// Kind selects which directory-scan rules apply (spec §4.2).
type Kind int

const (
	BuiltIn Kind = iota
	Installed
)

// Registry is the in-memory view of every known Application, indexed by
// id for O(1) lookup including alias resolution.
type Registry struct {
	log *logrus.Entry

	byID map[string]*app.Application
	all  []*app.Application
}

// New creates an empty registry. log may be nil, in which case the
// standard logger is used (matching the teacher's package-level logger
// fallback).
func New(log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{log: log.WithField("component", "registry"), byID: map[string]*app.Application{}}
}

// skipDirName reports whether a directory name must be ignored by
// scanTree: names ending in '+' or '-' are reserved (spec §4.2, spec §8
// boundary case "App directory named foo+ -> ignored silently").
func skipDirName(name string) bool {
	return strings.HasSuffix(name, "+") || strings.HasSuffix(name, "-")
}

// ScanTree walks baseDir's immediate subdirectories, loading info.yaml
// (and, for BuiltIn, any info-*.yaml alias manifests; for Installed, a
// required installation-report.yaml) from each one whose name is a
// valid, non-reserved application id. Entries with invalid or missing
// data are skipped with a logged reason rather than aborting the scan
// (spec §4.2, §7).
func (r *Registry) ScanTree(baseDir string, kind Kind) ([]*app.Application, error) {
	entries, err := ioutil.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, amerr.System.Wrap(err, "reading "+baseDir)
	}

	var found []*app.Application

	for _, entry := range entries {
		if !entry.IsDir() || skipDirName(entry.Name()) {
			continue
		}

		dir := filepath.Join(baseDir, entry.Name())
		base, err := r.loadOne(dir, entry.Name(), kind)
		if err != nil {
			r.log.WithField("dir", dir).WithError(err).Warn("skipping application directory")
			continue
		}
		if base == nil {
			continue
		}
		found = append(found, base)

		if kind == BuiltIn {
			found = append(found, r.loadAliases(dir, base)...)
		}
	}

	return found, nil
}

func (r *Registry) loadOne(dir, dirName string, kind Kind) (*app.Application, error) {
	body, err := LoadManifest(filepath.Join(dir, "info.yaml"))
	if err != nil {
		return nil, err
	}

	if body.ID != dirName {
		return nil, amerr.Parse.New("manifest id " + body.ID + " does not match directory name " + dirName)
	}

	a := &app.Application{
		ID:                           body.ID,
		CodeDir:                      body.CodeDir,
		RuntimeName:                  body.RuntimeName,
		RuntimeParameters:            body.RuntimeParameters,
		SupportsApplicationInterface: body.SupportsApplicationInterface,
		IsBuiltIn:                    kind == BuiltIn,
	}

	if kind == Installed {
		reportPath := filepath.Join(dir, "installation-report.yaml")
		rep, err := loadInstallationReport(reportPath)
		if err != nil {
			return nil, amerr.NotFound.Wrap(err, "required installation-report.yaml for "+dirName)
		}
		a.InstallationReport = &app.InstallationReport{
			ApplicationID:          rep.ApplicationID,
			InstallationLocationID: rep.InstallationLocationID,
			DiskSpaceUsed:          rep.DiskSpaceUsed,
			Digest:                 rep.Digest,
			SignerChain:            rep.SignerChain,
			UIDMapping:             rep.UIDMapping,
		}
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	return a, nil
}

func (r *Registry) loadAliases(dir string, base *app.Application) []*app.Application {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil
	}

	var aliases []*app.Application
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "info-") || !strings.HasSuffix(name, ".yaml") {
			continue
		}

		body, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			r.log.WithField("file", name).WithError(err).Warn("skipping alias manifest")
			continue
		}

		wantID := base.ID + "@" + strings.TrimSuffix(strings.TrimPrefix(name, "info-"), ".yaml")
		if body.ID != wantID {
			r.log.WithField("file", name).Warn("alias id does not match expected qualifier, skipping")
			continue
		}

		aliases = append(aliases, &app.Application{
			ID:                body.ID,
			RuntimeParameters: body.RuntimeParameters,
			NonAliased:        base,
			IsBuiltIn:         true,
		})
	}
	return aliases
}

// Load replaces the registry's contents with apps, building the alias
// index. The registry never returns an alias without its base present
// (spec §4.2 invariant); aliases whose base is absent are dropped with
// a logged reason.
func (r *Registry) Load(apps []*app.Application) {
	byID := make(map[string]*app.Application, len(apps))
	for _, a := range apps {
		if a.IsAlias() {
			continue
		}
		byID[a.ID] = a
	}

	var all []*app.Application
	for _, a := range apps {
		if a.IsAlias() {
			base, ok := byID[a.NonAliased.ID]
			if !ok {
				r.log.WithField("id", a.ID).Warn("dropping alias whose base is absent")
				continue
			}
			a.NonAliased = base
		}
		byID[a.ID] = a
		all = append(all, a)
	}

	r.byID = byID
	r.all = all
}

// Lookup resolves id, transparently following alias references.
func (r *Registry) Lookup(id string) (*app.Application, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// All returns every application currently known to the registry,
// including aliases.
func (r *Registry) All() []*app.Application {
	out := make([]*app.Application, len(r.all))
	copy(out, r.all)
	return out
}

// Write persists every application the registry holds, aliases
// included (an alias record stores its base's id, which Load resolves
// again), to path, atomically.
func (r *Registry) Write(path string) error {
	var apps []*app.Application
	for _, a := range r.all {
		apps = append(apps, a)
	}
	return writeDB(path, apps)
}

// Open loads the binary database at path. If the file is missing or
// invalid, it returns errNeedsRecreate so the Orchestrator can fall back
// to ScanTree (spec §4.2).
func Open(path string) ([]*app.Application, error) {
	return openDB(path)
}

// NeedsRecreate reports whether err indicates Open should be followed by
// a fresh directory scan.
func NeedsRecreate(err error) bool {
	return err == errNeedsRecreate
}
