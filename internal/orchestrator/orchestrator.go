// Package orchestrator implements the Orchestrator (C12): the single
// startup sequence that reads configuration, builds every other
// component in dependency order, publishes the RPC surface, and tears
// everything down again on shutdown. Grounded on cmd/bblfshd/main.go
// and daemon/daemon.go's NewDaemon, which play the identical "read
// flags/config, construct the long-lived singletons, wire them
// together, start serving" role for the bblfshd daemon.
package orchestrator

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/appkit/amd/internal/amerr"
	"github.com/appkit/amd/internal/app"
	"github.com/appkit/amd/internal/appmanager"
	"github.com/appkit/amd/internal/capset"
	"github.com/appkit/amd/internal/config"
	"github.com/appkit/amd/internal/container"
	"github.com/appkit/amd/internal/crashhandler"
	"github.com/appkit/amd/internal/cryptoload"
	"github.com/appkit/amd/internal/hwid"
	"github.com/appkit/amd/internal/installer"
	"github.com/appkit/amd/internal/location"
	"github.com/appkit/amd/internal/procutil"
	"github.com/appkit/amd/internal/quicklaunch"
	"github.com/appkit/amd/internal/registry"
	"github.com/appkit/amd/internal/rpc"
	"github.com/appkit/amd/internal/rpcsurface"
	"github.com/appkit/amd/internal/runtimefactory"
)

// Orchestrator owns every long-lived component started for one daemon
// process. Start builds it; Shutdown tears it down in reverse order.
type Orchestrator struct {
	log *logrus.Entry

	cfg       *config.Config
	locations []*location.Location
	reg       *registry.Registry

	containers *container.Factory
	runtimes   *runtimefactory.Factory

	pool    *quicklaunch.Pool
	mgr     *appmanager.Manager
	engine  *installer.Engine
	surface *rpcsurface.Surface

	crash *crashhandler.Handler
}

// Start runs the bring-up sequence in this order: configuration, crash
// handler, hardware id, storage locations (with broken-installation
// cleanup), registry, container and runtime factories, quick-launch
// pool, manager, installer, and finally the RPC surface. Logging is set
// up by the caller before Start runs. It returns a ready Orchestrator
// or the first fatal error.
func Start(configPath string) (*Orchestrator, error) {
	log := logrus.NewEntry(logrus.StandardLogger()).WithField("component", "orchestrator")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, amerr.System.Wrap(err, "loading configuration "+configPath)
	}

	crash := crashhandler.New("amd", crashhandler.Config{
		PrintBacktrace:   cfg.CrashHandler.PrintBacktrace,
		WaitForGdbAttach: cfg.CrashHandler.WaitForGdbAttach,
		DumpCore:         cfg.CrashHandler.DumpCore,
	})
	crash.Install()

	hardwareID := hwid.Resolve()
	log.WithField("hardwareId", hardwareID).Info("starting")

	locCfgs := make([]location.Config, len(cfg.InstallationLocations))
	for i, l := range cfg.InstallationLocations {
		locCfgs[i] = location.Config{
			ID:               fmt.Sprintf("%s-%d", l.Type, l.Index),
			InstallationPath: l.InstallationPath,
			DocumentPath:     l.DocumentPath,
			MountPoint:       l.MountPoint,
			IsDefault:        l.IsDefault,
		}
	}
	locations, err := location.Parse(locCfgs, hardwareID)
	if err != nil {
		return nil, err
	}
	waitForRemovableMedia(locations, log)

	for _, l := range locations {
		if l.IsMounted() {
			if err := installer.CleanupBrokenInstallations(l.InstallationPath()); err != nil {
				log.WithError(err).WithField("location", l.ID()).Warn("cleanup of broken installations failed")
			}
		}
	}

	reg := registry.New(log)
	if err := loadRegistry(reg, cfg, locations, log); err != nil {
		return nil, err
	}

	containers, err := buildContainerFactory(cfg, log)
	if err != nil {
		return nil, err
	}

	runtimes := runtimefactory.NewFactory()
	runtimes.Register(runtimefactory.NewNativeManager())
	runtimes.Register(runtimefactory.NewQMLInProcessManager())

	valid := appmanager.ValidateRuntimeNames(reg.All(), runtimes, log)
	reg.Load(valid)

	containerSelection := toSelectionRules(cfg.ContainerSelection)

	pool := buildQuickLaunchPool(cfg, containers, runtimes, log)
	go pool.Run()

	mgr := appmanager.New(reg, containers, runtimes, pool, containerSelection, cfg.StorageRoot, procutil.ScaleTimeout(cfg.QuitTime), log)

	engine := buildInstaller(cfg, locations, log)

	surface := rpcsurface.New()
	if err := publishRPCSurface(surface, cfg, mgr, engine, locations, log); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		log:        log,
		cfg:        cfg,
		locations:  locations,
		reg:        reg,
		containers: containers,
		runtimes:   runtimes,
		pool:       pool,
		mgr:        mgr,
		engine:     engine,
		surface:    surface,
		crash:      crash,
	}
	return o, nil
}

// waitForRemovableMedia gives removable installation locations a short
// grace period to appear mounted at startup (spec §4.2's boundary case
// "registry opened while a removable location's media is absent"),
// backing off exponentially rather than busy-polling, grounded on the
// retry discipline daemon/pool.go applies to driver-pull failures.
func waitForRemovableMedia(locations []*location.Location, log *logrus.Entry) {
	for _, l := range locations {
		if !l.IsRemovable() {
			continue
		}
		b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		err := backoff.Retry(func() error {
			if l.IsMounted() {
				return nil
			}
			return amerr.NotFound.New("removable media for " + l.ID())
		}, b)
		if err != nil {
			log.WithField("location", l.ID()).Warn("removable installation location is not mounted at startup")
		}
	}
}

func loadRegistry(reg *registry.Registry, cfg *config.Config, locations []*location.Location, log *logrus.Entry) error {
	dbPath := filepath.Join(cfg.StorageRoot, "registry.db")

	apps, err := registry.Open(dbPath)
	if err == nil {
		reg.Load(apps)
		return nil
	}
	if !registry.NeedsRecreate(err) {
		return err
	}

	log.Info("registry database missing or invalid, rescanning application directories")

	var all []*app.Application
	builtins, err := reg.ScanTree(filepath.Join(cfg.StorageRoot, "builtin"), registry.BuiltIn)
	if err != nil {
		return err
	}
	all = append(all, builtins...)

	for _, l := range locations {
		installed, err := reg.ScanTree(l.InstallationPath(), registry.Installed)
		if err != nil {
			return err
		}
		all = append(all, installed...)
	}

	reg.Load(all)
	if err := reg.Write(dbPath); err != nil {
		log.WithError(err).Warn("failed to persist freshly rescanned registry database")
	}
	return nil
}

func buildContainerFactory(cfg *config.Config, log *logrus.Entry) (*container.Factory, error) {
	factory := container.NewFactory()

	root := filepath.Join(cfg.StorageRoot, "containers")
	caps := capset.Supported([]string{"CAP_CHOWN", "CAP_SETUID", "CAP_SETGID"}, log)

	processMgr, err := container.NewProcessManager(root, caps)
	if err != nil {
		return nil, err
	}
	factory.Register(processMgr)
	return factory, nil
}

func toSelectionRules(cfgs []config.SelectionRuleConfig) []container.SelectionRule {
	rules := make([]container.SelectionRule, len(cfgs))
	for i, c := range cfgs {
		rules[i] = container.SelectionRule{Glob: c.Glob, Kind: c.Kind}
	}
	return rules
}

// buildQuickLaunchPool wires the Builder so the pool can manufacture a
// warm (container, runtime) pair for an arbitrary kind cross, per spec
// §4.5's instantiate-then-start-as-quick-launcher sequence.
func buildQuickLaunchPool(cfg *config.Config, containers *container.Factory, runtimes *runtimefactory.Factory, log *logrus.Entry) *quicklaunch.Pool {
	build := func(containerKind, runtimeKind string) (*quicklaunch.Pair, error) {
		id := fmt.Sprintf("quick-%s-%s-%d", containerKind, runtimeKind, time.Now().UnixNano())
		c, err := containers.Create(containerKind, id, filepath.Join(cfg.StorageRoot, "quicklaunch", id))
		if err != nil {
			return nil, err
		}
		rt, err := runtimes.Create(runtimeKind, c, true)
		if err != nil {
			return nil, err
		}
		if err := rt.Start([]string{c.ProgramPath()}, os.Environ()); err != nil {
			return nil, err
		}
		return &quicklaunch.Pair{Container: c, Runtime: rt}, nil
	}

	var runtimeManagers []runtimefactory.Manager
	for _, kind := range runtimes.Kinds() {
		m, _ := runtimes.Manager(kind)
		runtimeManagers = append(runtimeManagers, m)
	}

	return quicklaunch.New(containers.Kinds(), runtimeManagers, cfg.RuntimesPerContainer, cfg.IdleLoad, build, nil, log)
}

// buildInstaller constructs the Installer Task Engine, resolving
// locationIds to filesystem paths and wiring signature verification
// through the crypto loader (spec §4.6/§4.7). The signer chain's first
// entry is the signing key (hex), its last entry the detached signature
// over the package digest (hex); everything in between is an
// informational certificate chain, unverified here.
func buildInstaller(cfg *config.Config, locations []*location.Location, log *logrus.Entry) *installer.Engine {
	resolve := func(locationID string) (string, string, bool) {
		l := location.Find(locations, locationID)
		if l == nil {
			return "", "", false
		}
		return l.InstallationPath(), l.DocumentPath(), true
	}

	loader := cryptoload.New(cryptoload.Bounds{Min: 1, Max: 2})
	loader.LoadFrom(cfg.CryptoPluginPath)

	verify := func(signerChain []string, digest string) error {
		if len(signerChain) < 2 {
			return amerr.Security.New("package signer chain is incomplete")
		}
		pub, err := hex.DecodeString(signerChain[0])
		if err != nil {
			return amerr.Security.Wrap(err, "decoding signer public key")
		}
		sig, err := hex.DecodeString(signerChain[len(signerChain)-1])
		if err != nil {
			return amerr.Security.Wrap(err, "decoding package signature")
		}
		digestBytes, err := hex.DecodeString(digest)
		if err != nil {
			return amerr.Security.Wrap(err, "decoding package digest")
		}
		ok, err := loader.Verify(pub, digestBytes, sig)
		if err != nil {
			return amerr.Security.Wrap(err, "verifying package signature")
		}
		if !ok {
			return amerr.Security.New("package signature verification failed")
		}
		return nil
	}

	var uidSep *installer.UIDSeparation
	if cfg.UIDSeparation != nil {
		uidSep = &installer.UIDSeparation{
			MinUserID:     cfg.UIDSeparation.MinUserID,
			MaxUserID:     cfg.UIDSeparation.MaxUserID,
			CommonGroupID: cfg.UIDSeparation.CommonGroupID,
		}
	}

	return installer.New(resolve, verify, cfg.AllowInstallationOfUnsignedPackages, uidSep, log)
}

// publishRPCSurface registers the three RPC objects spec §6 names,
// resolving each interface's bus from configuration. Access policies
// are not read from configuration: every interface gets an allow-all
// "*" policy.
func publishRPCSurface(surface *rpcsurface.Surface, cfg *config.Config, mgr *appmanager.Manager, engine *installer.Engine, locations []*location.Location, log *logrus.Entry) error {
	appSvc := rpc.NewApplicationManagerService(mgr)
	installerSvc := rpc.NewInstallerService(engine, locations, mgr.IsRunning)
	notifySvc := rpc.NewNotificationManagerService()

	ifaces := map[string]func(*grpc.Server){
		"ApplicationManager":    func(s *grpc.Server) { rpc.RegisterApplicationManagerServer(s, appSvc) },
		"ApplicationInstaller":  func(s *grpc.Server) { rpc.RegisterInstallerServer(s, installerSvc) },
		"NotificationManager":   func(s *grpc.Server) { rpc.RegisterNotificationManagerServer(s, notifySvc) },
	}

	for name, register := range ifaces {
		ic, ok := cfg.RPCInterfaces[name]
		busSpec := rpcsurface.BusSpec{Kind: rpcsurface.BusNone}
		if ok {
			busSpec = parseBusKind(ic.Bus, ic.Address)
		}

		_, err := surface.Register(rpcsurface.InterfaceConfig{
			Name:   name,
			Bus:    busSpec,
			Policy: rpcsurface.Policy{"*": rpcsurface.AllowAll},
		}, register)
		if err != nil {
			return amerr.System.Wrap(err, "publishing RPC interface "+name)
		}
		log.WithField("interface", name).Info("published RPC interface")
	}
	return nil
}

func parseBusKind(kind, address string) rpcsurface.BusSpec {
	switch kind {
	case "system":
		return rpcsurface.BusSpec{Kind: rpcsurface.BusSystem}
	case "session":
		return rpcsurface.BusSpec{Kind: rpcsurface.BusSession}
	case "explicit":
		return rpcsurface.BusSpec{Kind: rpcsurface.BusExplicit, Address: address}
	default:
		return rpcsurface.BusSpec{Kind: rpcsurface.BusNone}
	}
}

// Shutdown tears everything down in reverse dependency order.
func (o *Orchestrator) Shutdown() {
	o.surface.Shutdown()
	o.pool.Stop()
	o.log.Info("shutdown complete")
}
