// Package app defines the Application data model (spec §3): identity,
// runtime selection, alias resolution, and the installation report that
// binds an installed application to a storage location.
package app

import (
	"regexp"
	"strings"

	"github.com/appkit/amd/internal/amerr"
)

// idPattern mirrors the reverse-DNS-like validation the registry applies
// to every application id on load.
var idPattern = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9-]+)+$`)

// ValidID reports whether id is a syntactically valid, non-alias
// application id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// InstallationReport is the on-disk receipt of an install (spec §3).
type InstallationReport struct {
	ApplicationID         string            `yaml:"applicationId"`
	InstallationLocationID string           `yaml:"installationLocationId"`
	DiskSpaceUsed         int64             `yaml:"diskSpaceUsed"`
	Digest                string            `yaml:"digest"`
	SignerChain           []string          `yaml:"signerChain"`
	UIDMapping            map[string]int    `yaml:"uidMapping,omitempty"`
}

// Application is a third-party or built-in program managed by the
// system (spec §3 / GLOSSARY).
type Application struct {
	ID                           string
	CodeDir                      string
	RuntimeName                  string
	RuntimeParameters            map[string]interface{}
	SupportsApplicationInterface bool
	IsBuiltIn                    bool

	// NonAliased is set for aliases: it points at the base application.
	NonAliased *Application

	// InstallationReport is present iff the application is installed.
	InstallationReport *InstallationReport
}

// IsAlias reports whether this entry is an alias of another application.
func (a *Application) IsAlias() bool { return a.NonAliased != nil }

// IsInstalled reports whether this application has a valid installation
// report bound to it.
func (a *Application) IsInstalled() bool { return a.InstallationReport != nil }

// BaseID and Qualifier split an alias id "<base>@<qualifier>" into its
// two parts. ok is false if id does not have that shape.
func BaseID(id string) (base, qualifier string, ok bool) {
	i := strings.IndexByte(id, '@')
	if i < 0 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// EffectiveRuntimeParameters returns the runtime parameters that should
// actually be used to start this application: for a plain application
// this is just RuntimeParameters; for an alias it is the base's map
// overlaid by the alias's own map, with alias keys winning, per the
// end-to-end alias-resolution scenario in spec §8.
func (a *Application) EffectiveRuntimeParameters() map[string]interface{} {
	if !a.IsAlias() {
		return a.RuntimeParameters
	}

	merged := make(map[string]interface{}, len(a.NonAliased.RuntimeParameters)+len(a.RuntimeParameters))
	for k, v := range a.NonAliased.RuntimeParameters {
		merged[k] = v
	}
	for k, v := range a.RuntimeParameters {
		merged[k] = v
	}
	return merged
}

// Validate checks the structural invariants from spec §3 that don't
// require registry-wide context (uniqueness and alias-base presence are
// checked by the registry instead).
func (a *Application) Validate() error {
	if a.IsAlias() {
		base, _, ok := BaseID(a.ID)
		if !ok || base != a.NonAliased.ID {
			return amerr.Parse.New("alias id " + a.ID + " does not match its base " + a.NonAliased.ID)
		}
		return nil
	}

	if !ValidID(a.ID) {
		return amerr.Parse.New("invalid application id " + a.ID)
	}
	return nil
}
