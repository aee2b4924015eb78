// Package config loads the single YAML configuration file the
// Orchestrator (C12) reads at startup, mirroring the teacher's
// flag-driven cmd/bblfshd/main.go for the fixed-shape bits (network,
// storage paths, timeouts) but promoting the free-form bits spec §4.9
// lists (installation locations, container/runtime selection globs,
// RPC bus addresses (no access policies), quick-launch sizing, crash-handler
// behavior) to a structured document, the way utils/config.go persists
// ImageConfig as a JSON side-car instead of flags.
package config

import (
	"io/ioutil"
	"time"

	"github.com/appkit/amd/internal/amerr"
	"gopkg.in/yaml.v2"
)

// LocationConfig is one entry of the "installationLocations" list.
type LocationConfig struct {
	Type             string `yaml:"type"` // "internal" or "removable"
	Index            int    `yaml:"index"`
	InstallationPath string `yaml:"installationPath"`
	DocumentPath     string `yaml:"documentPath"`
	MountPoint       string `yaml:"mountPoint"`
	IsDefault        bool   `yaml:"isDefault"`
}

// SelectionRuleConfig is one (glob, kind) entry of a container- or
// runtime-selection list (spec §4.3).
type SelectionRuleConfig struct {
	Glob string `yaml:"glob"`
	Kind string `yaml:"kind"`
}

// RPCInterfaceConfig is one entry of the "rpcInterfaces" map (spec
// §4.8): which bus an interface is published on.
type RPCInterfaceConfig struct {
	Bus     string `yaml:"bus"` // "system", "session", "none", or an explicit address
	Address string `yaml:"address,omitempty"`
}

// UIDSeparationConfig mirrors spec §4.6/§9's applicationUserIdSeparation
// sub-map; the feature is active iff this is present and complete:
// positive minUserId and commonGroupId, and maxUserId above minUserId
// (see installer.UIDSeparation.Enabled).
type UIDSeparationConfig struct {
	MinUserID     int `yaml:"minUserId"`
	MaxUserID     int `yaml:"maxUserId"`
	CommonGroupID int `yaml:"commonGroupId"`
}

// CrashHandlerConfig is the {printBacktrace, waitForGdbAttach, dumpCore}
// mapping from spec §4.1.
type CrashHandlerConfig struct {
	PrintBacktrace   bool          `yaml:"printBacktrace"`
	WaitForGdbAttach time.Duration `yaml:"waitForGdbAttach"`
	DumpCore         bool          `yaml:"dumpCore"`
}

// Config is the top-level document read from the path given to amd
// (default /opt/am/config.yaml).
type Config struct {
	StorageRoot string `yaml:"storageRoot"`

	InstallationLocations []LocationConfig `yaml:"installationLocations"`

	ContainerSelection []SelectionRuleConfig `yaml:"containerSelection"`
	RuntimeSelection   []SelectionRuleConfig `yaml:"runtimeSelection"`

	RuntimesPerContainer int     `yaml:"runtimesPerContainer"`
	IdleLoad             float64 `yaml:"idleLoad"`

	RegistrationDelay time.Duration `yaml:"registrationDelay"`

	RPCInterfaces map[string]RPCInterfaceConfig `yaml:"rpcInterfaces"`

	AllowInstallationOfUnsignedPackages bool `yaml:"allowInstallationOfUnsignedPackages"`
	UIDSeparation                       *UIDSeparationConfig `yaml:"applicationUserIdSeparation"`

	CrashHandler CrashHandlerConfig `yaml:"crashHandler"`

	QuitTime time.Duration `yaml:"quitTime"`

	// CryptoPluginPath is the dynamically loaded crypto library path
	// for package-signature verification (spec §4.7); empty runs the
	// ed25519 fallback table.
	CryptoPluginPath string `yaml:"cryptoPluginPath,omitempty"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, amerr.IO.Wrap(err, "reading configuration "+path)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, amerr.Parse.Wrap(err, "parsing configuration "+path)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.QuitTime <= 0 {
		c.QuitTime = 250 * time.Millisecond
	}
	if c.RegistrationDelay <= 0 {
		c.RegistrationDelay = 0
	}
	if len(c.ContainerSelection) == 0 {
		c.ContainerSelection = []SelectionRuleConfig{{Glob: "*", Kind: "process"}}
	}
	if len(c.RuntimeSelection) == 0 {
		c.RuntimeSelection = []SelectionRuleConfig{{Glob: "*", Kind: "native"}}
	}
	if c.StorageRoot == "" {
		c.StorageRoot = "/opt/am"
	}
}
